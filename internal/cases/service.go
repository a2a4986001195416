package cases

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/internal/config"
	"github.com/aldoetobex/legal-advocate-backend/internal/payments"
	"github.com/aldoetobex/legal-advocate-backend/internal/storage"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/database"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
	"github.com/aldoetobex/legal-advocate-backend/pkg/sanitize"
	"github.com/aldoetobex/legal-advocate-backend/pkg/utils"
)

const (
	displayPrefix = "CASE-"
	previewLen    = 240
	unknown       = "Unknown"
)

// Service is the case registry: Not Approved -> {Open, deleted}, Open -> Closed.
type Service struct {
	db       *gorm.DB
	store    storage.Store
	log      *slog.Logger
	defaults config.FeeDefaults
	now      func() time.Time
}

func NewService(db *gorm.DB, store storage.Store, log *slog.Logger, defaults config.FeeDefaults) *Service {
	return &Service{db: db, store: store, log: log, defaults: defaults, now: time.Now}
}

/* =============================== Submit ================================= */

// SubmitInput is a client's new case.
type SubmitInput struct {
	AdvocateID  uuid.UUID
	Title       string
	Description string
	CaseType    string
}

// Submit stores a case in Not Approved under a temporary number.
// A missing or unknown case type falls back to civil.
func (s *Service) Submit(ctx context.Context, clientID uuid.UUID, in SubmitInput) (models.Case, error) {
	db := s.db.WithContext(ctx)

	var client models.User
	if clientID == uuid.Nil || db.Select("id").First(&client, "id = ? AND role = ?", clientID, models.RoleClient).Error != nil {
		return models.Case{}, apperr.ErrInvalidClient
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Case{}, apperr.Validation("case title is required")
	}
	if in.AdvocateID == uuid.Nil {
		return models.Case{}, apperr.Validation("advocate is required")
	}

	var adv models.Advocate
	if err := db.Select("id", "verified").First(&adv, "id = ?", in.AdvocateID).Error; err != nil {
		return models.Case{}, notFoundOr(err, "advocate")
	}
	if !adv.Verified {
		return models.Case{}, apperr.NotFound("advocate")
	}

	ct := models.CaseType(strings.ToLower(strings.TrimSpace(in.CaseType)))
	if !ct.Valid() {
		s.log.WarnContext(ctx, "case type defaulted to civil", "given", in.CaseType)
		ct = models.CaseCivil
	}

	cs := models.Case{
		CaseNumber:  tempNumber(),
		Title:       title,
		Description: strings.TrimSpace(in.Description),
		ClientID:    clientID,
		AdvocateID:  adv.ID,
		CaseType:    ct,
		Status:      models.CaseNotApproved,
	}
	if err := db.Create(&cs).Error; err != nil {
		return models.Case{}, err
	}

	utils.LogCaseHistory(ctx, s.db, cs.ID, clientID, "submitted", "", models.CaseNotApproved, "")
	s.log.InfoContext(ctx, "case submitted", "case_id", cs.ID, "advocate_id", adv.ID, "case_type", ct)
	return cs, nil
}

/* ============================== Approve ================================= */

// ApproveInput carries the final case number and an optional case type.
type ApproveInput struct {
	CaseNum  string
	CaseType string
}

// Approve opens the case under its final number and raises the advance fee,
// both in one transaction.
func (s *Service) Approve(ctx context.Context, advocateID, caseID uuid.UUID, in ApproveInput) (models.Case, models.Payment, error) {
	number := DisplayNumber(in.CaseNum)
	if number == displayPrefix {
		return models.Case{}, models.Payment{}, apperr.Validation("case number is required")
	}

	var (
		cs  models.Case
		pay models.Payment
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&cs, "id = ?", caseID).Error; err != nil {
			return notFoundOr(err, "case")
		}
		if cs.AdvocateID != advocateID {
			return apperr.Forbidden("not your case")
		}
		if cs.Status != models.CaseNotApproved {
			return apperr.InvalidTransition("only cases awaiting approval can be approved")
		}

		var adv models.Advocate
		if err := tx.First(&adv, "id = ?", cs.AdvocateID).Error; err != nil {
			return notFoundOr(err, "advocate")
		}

		updates := map[string]any{
			"case_number": number,
			"status":      models.CaseOpen,
			"approved_at": s.now(),
		}
		if ct := models.CaseType(strings.ToLower(strings.TrimSpace(in.CaseType))); ct != "" {
			if !ct.Valid() {
				return apperr.Validation("invalid case type")
			}
			updates["case_type"] = ct
		}

		res := tx.Model(&models.Case{}).
			Where("id = ? AND status = ?", cs.ID, models.CaseNotApproved).
			Updates(updates)
		if res.Error != nil {
			if database.IsUniqueViolation(res.Error) {
				return apperr.Duplicate("case number already in use")
			}
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidTransition("only cases awaiting approval can be approved")
		}

		fee := adv.AdvanceFee
		if !fee.IsPositive() {
			fee = s.defaults.AdvanceFee
		}
		pay = models.Payment{
			CaseID:      &cs.ID,
			AdvocateID:  adv.ID,
			ClientID:    cs.ClientID,
			Type:        models.PayAdvance,
			Amount:      fee,
			Description: "Advance fee for " + cs.Title,
		}
		if err := payments.Insert(ctx, tx, &pay); err != nil {
			return err
		}

		utils.LogCaseHistory(ctx, tx, cs.ID, advocateID, "approved", models.CaseNotApproved, models.CaseOpen, number)
		return tx.First(&cs, "id = ?", cs.ID).Error
	})
	if err != nil {
		return models.Case{}, models.Payment{}, err
	}

	s.log.InfoContext(ctx, "case approved", "case_id", cs.ID, "case_number", cs.CaseNumber, "advance_fee", pay.Amount.String())
	return cs, pay, nil
}

/* =========================== Reject / Close ============================= */

// Reject deletes a case that is still awaiting approval, with its documents.
func (s *Service) Reject(ctx context.Context, advocateID, caseID uuid.UUID, reason string) error {
	var docs []models.Document
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cs models.Case
		if err := tx.First(&cs, "id = ?", caseID).Error; err != nil {
			return notFoundOr(err, "case")
		}
		if cs.AdvocateID != advocateID {
			return apperr.Forbidden("not your case")
		}

		res := tx.Where("id = ? AND status = ?", caseID, models.CaseNotApproved).Delete(&models.Case{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.InvalidTransition("only cases awaiting approval can be rejected")
		}

		if err := tx.Where("case_id = ?", caseID).Find(&docs).Error; err != nil {
			return err
		}
		if err := tx.Where("case_id = ?", caseID).Delete(&models.Document{}).Error; err != nil {
			return err
		}
		utils.LogCaseHistory(ctx, tx, caseID, advocateID, "rejected", models.CaseNotApproved, "", reason)
		return nil
	})
	if err != nil {
		return err
	}

	for _, d := range docs {
		s.removeFile(ctx, d)
	}
	s.log.InfoContext(ctx, "case rejected", "case_id", caseID)
	return nil
}

// Close moves an Open case to Closed.
func (s *Service) Close(ctx context.Context, advocateID, caseID uuid.UUID) (models.Case, error) {
	db := s.db.WithContext(ctx)

	var cs models.Case
	if err := db.First(&cs, "id = ?", caseID).Error; err != nil {
		return models.Case{}, notFoundOr(err, "case")
	}
	if cs.AdvocateID != advocateID {
		return models.Case{}, apperr.Forbidden("not your case")
	}

	res := db.Model(&models.Case{}).
		Where("id = ? AND status = ?", caseID, models.CaseOpen).
		Updates(map[string]any{"status": models.CaseClosed, "closed_at": s.now()})
	if res.Error != nil {
		return models.Case{}, res.Error
	}
	if res.RowsAffected == 0 {
		return models.Case{}, apperr.InvalidTransition("only open cases can be closed")
	}

	utils.LogCaseHistory(ctx, s.db, caseID, advocateID, "closed", models.CaseOpen, models.CaseClosed, "")
	if err := db.First(&cs, "id = ?", caseID).Error; err != nil {
		return models.Case{}, err
	}
	return cs, nil
}

/* ================================ Reads ================================= */

// Party is a display snapshot of a client or an advocate.
type Party struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

// CaseSummary is a list row.
type CaseSummary struct {
	ID         uuid.UUID         `json:"id"`
	CaseNumber string            `json:"case_number"`
	Title      string            `json:"title"`
	CaseType   models.CaseType   `json:"case_type"`
	Status     models.CaseStatus `json:"status"`
	Preview    string            `json:"preview"`
	Client     Party             `json:"client"`
	Advocate   Party             `json:"advocate"`
	CreatedAt  time.Time         `json:"created_at"`
}

// CaseDetail is a case with its parties and documents.
type CaseDetail struct {
	models.Case
	Client    Party             `json:"client"`
	Advocate  Party             `json:"advocate"`
	Documents []models.Document `json:"documents"`
}

// ListQuery narrows a case listing. A zero Status lists every status.
type ListQuery struct {
	Status models.CaseStatus
	Page   utils.Page
}

func (s *Service) ListForClient(ctx context.Context, clientID uuid.UUID, q ListQuery) ([]CaseSummary, int64, error) {
	return s.list(ctx, "client_id = ?", clientID, false, q)
}

// ListForAdvocate redacts contact details from cases the advocate has not accepted yet.
func (s *Service) ListForAdvocate(ctx context.Context, advocateID uuid.UUID, q ListQuery) ([]CaseSummary, int64, error) {
	return s.list(ctx, "advocate_id = ?", advocateID, true, q)
}

func (s *Service) list(ctx context.Context, where string, id uuid.UUID, redactPending bool, q ListQuery) ([]CaseSummary, int64, error) {
	tx := s.db.WithContext(ctx).Model(&models.Case{}).Where(where, id)
	if q.Status != "" {
		tx = tx.Where("status = ?", q.Status)
	}
	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var rows []models.Case
	if q.Page.Size > 0 {
		tx = tx.Offset(q.Page.Offset()).Limit(q.Page.Size)
	}
	if err := tx.Order("created_at DESC").Find(&rows).Error; err != nil {
		return nil, 0, err
	}

	clientIDs := make([]uuid.UUID, 0, len(rows))
	advocateIDs := make([]uuid.UUID, 0, len(rows))
	for _, cs := range rows {
		clientIDs = append(clientIDs, cs.ClientID)
		advocateIDs = append(advocateIDs, cs.AdvocateID)
	}
	clients := s.clientNames(ctx, clientIDs)
	advocates := s.advocateNames(ctx, advocateIDs)

	out := make([]CaseSummary, 0, len(rows))
	for _, cs := range rows {
		desc := cs.Description
		if redactPending && cs.Status == models.CaseNotApproved {
			desc = sanitize.RedactPII(desc)
		}
		out = append(out, CaseSummary{
			ID:         cs.ID,
			CaseNumber: cs.CaseNumber,
			Title:      cs.Title,
			CaseType:   cs.CaseType,
			Status:     cs.Status,
			Preview:    sanitize.Summary(desc, previewLen),
			Client:     Party{ID: cs.ClientID, Name: nameOr(clients, cs.ClientID)},
			Advocate:   Party{ID: cs.AdvocateID, Name: nameOr(advocates, cs.AdvocateID)},
			CreatedAt:  cs.CreatedAt,
		})
	}
	return out, total, nil
}

// Get returns a case visible to viewer, enriched best-effort.
func (s *Service) Get(ctx context.Context, caseID, viewerID uuid.UUID, role models.Role) (CaseDetail, error) {
	cs, err := s.authorize(ctx, caseID, viewerID, role)
	if err != nil {
		return CaseDetail{}, err
	}

	out := CaseDetail{
		Case:      cs,
		Client:    Party{ID: cs.ClientID, Name: nameOr(s.clientNames(ctx, []uuid.UUID{cs.ClientID}), cs.ClientID)},
		Advocate:  Party{ID: cs.AdvocateID, Name: nameOr(s.advocateNames(ctx, []uuid.UUID{cs.AdvocateID}), cs.AdvocateID)},
		Documents: []models.Document{},
	}
	if docs, err := s.listDocuments(ctx, cs.ID); err != nil {
		s.log.WarnContext(ctx, "case documents unavailable", "case_id", cs.ID, "err", err)
	} else {
		out.Documents = docs
	}
	return out, nil
}

// History lists audit entries of a case, oldest first.
func (s *Service) History(ctx context.Context, caseID, viewerID uuid.UUID, role models.Role) ([]models.CaseHistory, error) {
	if _, err := s.authorize(ctx, caseID, viewerID, role); err != nil {
		return nil, err
	}
	rows := []models.CaseHistory{}
	err := s.db.WithContext(ctx).Where("case_id = ?", caseID).Order("created_at ASC").Find(&rows).Error
	return rows, err
}

// authorize loads a case its client, its advocate or an admin may see.
func (s *Service) authorize(ctx context.Context, caseID, viewerID uuid.UUID, role models.Role) (models.Case, error) {
	var cs models.Case
	if err := s.db.WithContext(ctx).First(&cs, "id = ?", caseID).Error; err != nil {
		return models.Case{}, notFoundOr(err, "case")
	}
	switch {
	case role == models.RoleAdmin:
	case role == models.RoleClient && cs.ClientID == viewerID:
	case role == models.RoleAdvocate && cs.AdvocateID == viewerID:
	default:
		return models.Case{}, apperr.Forbidden("not your case")
	}
	return cs, nil
}

func (s *Service) clientNames(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]string {
	out := map[uuid.UUID]string{}
	if len(ids) == 0 {
		return out
	}
	var us []models.User
	if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&us).Error; err != nil {
		s.log.WarnContext(ctx, "client lookup failed", "err", err)
		return out
	}
	for _, u := range us {
		out[u.ID] = u.Name
	}
	return out
}

func (s *Service) advocateNames(ctx context.Context, ids []uuid.UUID) map[uuid.UUID]string {
	out := map[uuid.UUID]string{}
	if len(ids) == 0 {
		return out
	}
	var as []models.Advocate
	if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", ids).Find(&as).Error; err != nil {
		s.log.WarnContext(ctx, "advocate lookup failed", "err", err)
		return out
	}
	for _, a := range as {
		out[a.ID] = a.Name
	}
	return out
}

/* =============================== Helpers ================================ */

// DisplayNumber turns an advocate-entered number into CASE-<num>.
func DisplayNumber(num string) string {
	num = strings.TrimSpace(num)
	num = strings.TrimPrefix(strings.TrimPrefix(num, displayPrefix), "CASE ")
	return displayPrefix + strings.TrimSpace(num)
}

func tempNumber() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return "TEMP-" + hex.EncodeToString(b)
}

func nameOr(m map[uuid.UUID]string, id uuid.UUID) string {
	if n, ok := m[id]; ok && n != "" {
		return n
	}
	return unknown
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what)
	}
	return err
}
