package reviews

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/database"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

// Service is the review ledger: one review per (case, client), immutable once written.
type Service struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewService(db *gorm.DB, log *slog.Logger) *Service { return &Service{db: db, log: log} }

// Submit records a client's rating of the advocate on their case.
// The advocate id is copied from the case at write time.
func (s *Service) Submit(ctx context.Context, clientID, caseID uuid.UUID, rating int, body string) (models.Review, error) {
	if rating < 1 || rating > 5 {
		return models.Review{}, apperr.Validation("rating must be between 1 and 5")
	}
	db := s.db.WithContext(ctx)

	var cs models.Case
	if err := db.First(&cs, "id = ?", caseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Review{}, apperr.NotFound("case")
		}
		return models.Review{}, err
	}
	if cs.ClientID != clientID {
		return models.Review{}, apperr.Forbidden("only the case's client can review it")
	}

	var n int64
	if err := db.Model(&models.Review{}).Where("case_id = ? AND client_id = ?", caseID, clientID).Count(&n).Error; err != nil {
		return models.Review{}, err
	}
	if n > 0 {
		return models.Review{}, apperr.ErrDuplicateReview
	}

	r := models.Review{
		CaseID:     cs.ID,
		ClientID:   clientID,
		AdvocateID: cs.AdvocateID,
		Rating:     rating,
		Body:       strings.TrimSpace(body),
	}
	if err := db.Create(&r).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return models.Review{}, apperr.ErrDuplicateReview
		}
		return models.Review{}, err
	}
	s.log.InfoContext(ctx, "review submitted", "review_id", r.ID, "advocate_id", r.AdvocateID, "rating", rating)
	return r, nil
}

// View is a review with display snapshots.
type View struct {
	models.Review
	ClientName string `json:"client_name"`
	CaseTitle  string `json:"case_title"`
}

// ListForAdvocate returns reviews newest first. Missing names read "Unknown".
func (s *Service) ListForAdvocate(ctx context.Context, advocateID uuid.UUID) ([]View, error) {
	var rows []models.Review
	if err := s.db.WithContext(ctx).Where("advocate_id = ?", advocateID).Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, err
	}

	clientIDs := make([]uuid.UUID, 0, len(rows))
	caseIDs := make([]uuid.UUID, 0, len(rows))
	for _, r := range rows {
		clientIDs = append(clientIDs, r.ClientID)
		caseIDs = append(caseIDs, r.CaseID)
	}
	names := map[uuid.UUID]string{}
	titles := map[uuid.UUID]string{}
	if len(rows) > 0 {
		var us []models.User
		if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", clientIDs).Find(&us).Error; err != nil {
			s.log.WarnContext(ctx, "review client lookup failed", "err", err)
		}
		for _, u := range us {
			names[u.ID] = u.Name
		}
		var cs []models.Case
		if err := s.db.WithContext(ctx).Select("id", "title").Where("id IN ?", caseIDs).Find(&cs).Error; err != nil {
			s.log.WarnContext(ctx, "review case lookup failed", "err", err)
		}
		for _, c := range cs {
			titles[c.ID] = c.Title
		}
	}

	out := make([]View, 0, len(rows))
	for _, r := range rows {
		v := View{Review: r, ClientName: "Unknown", CaseTitle: "Unknown"}
		if n := names[r.ClientID]; n != "" {
			v.ClientName = n
		}
		if t := titles[r.CaseID]; t != "" {
			v.CaseTitle = t
		}
		out = append(out, v)
	}
	return out, nil
}

// Rating is an advocate's aggregate score.
type Rating struct {
	Average float64 `json:"average"`
	Count   int64   `json:"count"`
}

// Aggregate returns the average (one decimal) and count of an advocate's reviews.
func (s *Service) Aggregate(ctx context.Context, advocateID uuid.UUID) (Rating, error) {
	m, err := s.AggregateMany(ctx, []uuid.UUID{advocateID})
	if err != nil {
		return Rating{}, err
	}
	return m[advocateID], nil
}

// AggregateMany returns ratings keyed by advocate; advocates without reviews are absent.
func (s *Service) AggregateMany(ctx context.Context, advocateIDs []uuid.UUID) (map[uuid.UUID]Rating, error) {
	out := map[uuid.UUID]Rating{}
	if len(advocateIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		AdvocateID uuid.UUID
		Avg        float64
		Cnt        int64
	}
	if err := s.db.WithContext(ctx).Model(&models.Review{}).
		Select("advocate_id, AVG(rating) AS avg, COUNT(*) AS cnt").
		Where("advocate_id IN ?", advocateIDs).
		Group("advocate_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, r := range rows {
		out[r.AdvocateID] = Rating{Average: math.Round(r.Avg*10) / 10, Count: r.Cnt}
	}
	return out, nil
}
