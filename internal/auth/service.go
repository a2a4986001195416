package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/database"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
	"github.com/aldoetobex/legal-advocate-backend/pkg/utils"
)

// Service authenticates clients, advocates and admins and issues their tokens.
// Only bcrypt hashes of credentials are stored.
type Service struct {
	db       *gorm.DB
	tokens   *Tokens
	log      *slog.Logger
	hashCost int
}

func NewService(db *gorm.DB, tokens *Tokens, log *slog.Logger) *Service {
	return &Service{db: db, tokens: tokens, log: log, hashCost: bcrypt.DefaultCost}
}

// WithHashCost lowers bcrypt cost, used by tests.
func (s *Service) WithHashCost(cost int) *Service {
	s.hashCost = cost
	return s
}

func (s *Service) hash(pw string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(pw), s.hashCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func normalizeEmail(e string) string { return strings.ToLower(strings.TrimSpace(e)) }

/* =============================== Register =============================== */

// RegisterClient creates a client account.
func (s *Service) RegisterClient(ctx context.Context, in SignupClientRequest) (models.User, error) {
	email := normalizeEmail(in.Email)
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("email = ? AND role = ?", email, models.RoleClient).Count(&n).Error; err != nil {
		return models.User{}, err
	}
	if n > 0 {
		return models.User{}, apperr.ErrDuplicateIdentity
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return models.User{}, err
	}
	u := models.User{
		Email:        email,
		Role:         models.RoleClient,
		PasswordHash: hash,
		Name:         strings.TrimSpace(in.Name),
		Phone:        strings.TrimSpace(in.Phone),
		Address:      strings.TrimSpace(in.Address),
	}
	if err := s.db.WithContext(ctx).Create(&u).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return models.User{}, apperr.ErrDuplicateIdentity
		}
		return models.User{}, err
	}
	return u, nil
}

// RegisterAdvocate creates an advocate account in the unverified state.
func (s *Service) RegisterAdvocate(ctx context.Context, in SignupAdvocateRequest) (models.Advocate, error) {
	for _, fee := range []decimal.Decimal{in.AdvanceFee, in.SittingFee, in.ConsultationFee} {
		if fee.IsNegative() {
			return models.Advocate{}, apperr.Validation("fees must not be negative")
		}
	}

	email := normalizeEmail(in.Email)
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.Advocate{}).Where("email = ?", email).Count(&n).Error; err != nil {
		return models.Advocate{}, err
	}
	if n > 0 {
		return models.Advocate{}, apperr.ErrDuplicateIdentity
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return models.Advocate{}, err
	}
	a := models.Advocate{
		Email:           email,
		PasswordHash:    hash,
		Name:            strings.TrimSpace(in.Name),
		Phone:           strings.TrimSpace(in.Phone),
		BarNumber:       strings.TrimSpace(in.BarNumber),
		Experience:      in.Experience,
		Bio:             strings.TrimSpace(in.Bio),
		Specializations: utils.NormalizeTags(in.Specializations),
		AdvanceFee:      in.AdvanceFee,
		SittingFee:      in.SittingFee,
		ConsultationFee: in.ConsultationFee,
		Verified:        false,
	}
	if err := s.db.WithContext(ctx).Create(&a).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return models.Advocate{}, apperr.ErrDuplicateIdentity
		}
		return models.Advocate{}, err
	}
	return a, nil
}

// EnsureAdmin seeds the admin account, or rotates its password when it changed.
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil
	}
	var u models.User
	err := s.db.WithContext(ctx).Where("email = ? AND role = ?", email, models.RoleAdmin).First(&u).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		hash, err := s.hash(password)
		if err != nil {
			return err
		}
		return s.db.WithContext(ctx).Create(&models.User{
			Email: email, Role: models.RoleAdmin, PasswordHash: hash, Name: "Administrator",
		}).Error
	case err != nil:
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil {
		return nil
	}
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Model(&u).Update("password_hash", hash).Error
}

/* ================================ Login ================================= */

// Login checks credentials for the given role and returns a signed token.
// Unverified advocates get ErrNotVerified even when the password is right.
func (s *Service) Login(ctx context.Context, role models.Role, email, password string) (string, string, error) {
	email = normalizeEmail(email)

	var (
		id       string
		hash     string
		verified = true
	)
	switch role {
	case models.RoleAdvocate:
		var a models.Advocate
		if err := s.db.WithContext(ctx).Where("email = ?", email).First(&a).Error; err != nil {
			return "", "", notFoundOr(err, "account")
		}
		id, hash, verified = a.ID.String(), a.PasswordHash, a.Verified
	case models.RoleClient, models.RoleAdmin:
		var u models.User
		if err := s.db.WithContext(ctx).Where("email = ? AND role = ?", email, role).First(&u).Error; err != nil {
			return "", "", notFoundOr(err, "account")
		}
		id, hash = u.ID.String(), u.PasswordHash
	default:
		return "", "", apperr.Validation("unknown role")
	}

	pwErr := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if !verified {
		return "", "", apperr.ErrNotVerified
	}
	if pwErr != nil {
		return "", "", apperr.ErrInvalidCredential
	}

	token, err := s.tokens.Issue(id, role)
	if err != nil {
		return "", "", err
	}
	return token, id, nil
}

/* =============================== Profile ================================ */

// Profile loads the identity behind a token.
func (s *Service) Profile(ctx context.Context, id string, role models.Role) (any, error) {
	if role == models.RoleAdvocate {
		var a models.Advocate
		if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
			return nil, notFoundOr(err, "advocate")
		}
		return a, nil
	}
	var u models.User
	if err := s.db.WithContext(ctx).First(&u, "id = ? AND role = ?", id, role).Error; err != nil {
		return nil, notFoundOr(err, "user")
	}
	return u, nil
}

// UpdateProfile changes contact fields. A new password requires the current one.
func (s *Service) UpdateProfile(ctx context.Context, id string, role models.Role, in UpdateProfileRequest) error {
	var (
		model   any
		current string
	)
	if role == models.RoleAdvocate {
		var a models.Advocate
		if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
			return notFoundOr(err, "advocate")
		}
		model, current = &a, a.PasswordHash
	} else {
		var u models.User
		if err := s.db.WithContext(ctx).First(&u, "id = ? AND role = ?", id, role).Error; err != nil {
			return notFoundOr(err, "user")
		}
		model, current = &u, u.PasswordHash
	}

	updates := map[string]any{}
	if v := strings.TrimSpace(in.Name); v != "" {
		updates["name"] = v
	}
	if v := strings.TrimSpace(in.Phone); v != "" {
		updates["phone"] = v
	}
	if v := strings.TrimSpace(in.Address); v != "" && role != models.RoleAdvocate {
		updates["address"] = v
	}
	if v := strings.TrimSpace(in.Bio); v != "" && role == models.RoleAdvocate {
		updates["bio"] = v
	}
	if in.NewPassword != "" {
		if bcrypt.CompareHashAndPassword([]byte(current), []byte(in.CurrentPassword)) != nil {
			return apperr.ErrInvalidCredential
		}
		hash, err := s.hash(in.NewPassword)
		if err != nil {
			return err
		}
		updates["password_hash"] = hash
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).Model(model).Updates(updates).Error
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what)
	}
	return err
}
