package advocates

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/internal/reviews"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
	"github.com/aldoetobex/legal-advocate-backend/pkg/utils"
)

// Profile is an advocate as shown to clients.
type Profile struct {
	models.Advocate
	Rating reviews.Rating `json:"rating"`
}

// FeeUpdate changes an advocate's fee schedule. Nil fields stay as they are.
type FeeUpdate struct {
	AdvanceFee      *decimal.Decimal
	SittingFee      *decimal.Decimal
	ConsultationFee *decimal.Decimal
	Specializations []string
}

type Service struct {
	db      *gorm.DB
	reviews *reviews.Service
	log     *slog.Logger
}

func NewService(db *gorm.DB, rv *reviews.Service, log *slog.Logger) *Service {
	return &Service{db: db, reviews: rv, log: log}
}

// ListVerified returns discoverable advocates, optionally narrowed to one specialization.
func (s *Service) ListVerified(ctx context.Context, specialization string) ([]Profile, error) {
	var rows []models.Advocate
	if err := s.db.WithContext(ctx).Where("verified = ?", true).Order("name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}

	// JSON array columns filter differently per dialect; the set is small.
	if want := strings.ToLower(strings.TrimSpace(specialization)); want != "" {
		rows = slices.DeleteFunc(rows, func(a models.Advocate) bool {
			return !slices.Contains(utils.NormalizeTags(a.Specializations), want)
		})
	}
	return s.withRatings(ctx, rows), nil
}

// Get returns a verified advocate's public profile.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Profile, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	if !a.Verified {
		return Profile{}, apperr.NotFound("advocate")
	}
	return s.withRatings(ctx, []models.Advocate{a})[0], nil
}

// UpdateFees changes the caller's own fee schedule and specializations.
func (s *Service) UpdateFees(ctx context.Context, advocateID uuid.UUID, in FeeUpdate) (models.Advocate, error) {
	updates := map[string]any{}
	for col, v := range map[string]*decimal.Decimal{
		"advance_fee":      in.AdvanceFee,
		"sitting_fee":      in.SittingFee,
		"consultation_fee": in.ConsultationFee,
	} {
		if v == nil {
			continue
		}
		if v.IsNegative() {
			return models.Advocate{}, apperr.Validation("fees must not be negative")
		}
		updates[col] = *v
	}
	if in.Specializations != nil {
		updates["specializations"] = datatypes.JSONSlice[string](utils.NormalizeTags(in.Specializations))
	}

	a, err := s.load(ctx, advocateID)
	if err != nil {
		return models.Advocate{}, err
	}
	if len(updates) == 0 {
		return a, nil
	}
	if err := s.db.WithContext(ctx).Model(&a).Updates(updates).Error; err != nil {
		return models.Advocate{}, err
	}
	s.log.InfoContext(ctx, "advocate fees updated", "advocate_id", advocateID)
	return s.load(ctx, advocateID)
}

/* ================================ Admin ================================= */

// ListUnverified returns advocates awaiting verification, oldest first.
func (s *Service) ListUnverified(ctx context.Context) ([]models.Advocate, error) {
	rows := []models.Advocate{}
	err := s.db.WithContext(ctx).Where("verified = ?", false).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// Verify makes an advocate discoverable and able to log in. Verifying twice is a no-op.
func (s *Service) Verify(ctx context.Context, id uuid.UUID) (models.Advocate, error) {
	a, err := s.load(ctx, id)
	if err != nil {
		return models.Advocate{}, err
	}
	if a.Verified {
		return a, nil
	}
	if err := s.db.WithContext(ctx).Model(&a).Update("verified", true).Error; err != nil {
		return models.Advocate{}, err
	}
	a.Verified = true
	s.log.InfoContext(ctx, "advocate verified", "advocate_id", id)
	return a, nil
}

func (s *Service) load(ctx context.Context, id uuid.UUID) (models.Advocate, error) {
	var a models.Advocate
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Advocate{}, apperr.NotFound("advocate")
		}
		return models.Advocate{}, err
	}
	return a, nil
}

// withRatings attaches aggregates; a failed lookup leaves ratings empty.
func (s *Service) withRatings(ctx context.Context, rows []models.Advocate) []Profile {
	ids := make([]uuid.UUID, 0, len(rows))
	for _, a := range rows {
		ids = append(ids, a.ID)
	}
	ratings, err := s.reviews.AggregateMany(ctx, ids)
	if err != nil {
		s.log.WarnContext(ctx, "ratings unavailable", "err", err)
	}

	out := make([]Profile, 0, len(rows))
	for _, a := range rows {
		out = append(out, Profile{Advocate: a, Rating: ratings[a.ID]})
	}
	return out
}
