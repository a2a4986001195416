package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
	"github.com/aldoetobex/legal-advocate-backend/pkg/utils"
)

// CompletionHook runs after a payment reaches Completed. Hooks must be idempotent:
// they also run when an already-completed payment is confirmed again.
type CompletionHook func(ctx context.Context, p models.Payment) error

// Service owns the payment lifecycle: Pending -> {Completed, Cancelled}.
type Service struct {
	db          *gorm.DB
	provider    Provider
	log         *slog.Logger
	frontendURL string
	currency    string
	hooks       []CompletionHook
	now         func() time.Time
}

func NewService(db *gorm.DB, provider Provider, log *slog.Logger, frontendURL, currency string) *Service {
	return &Service{
		db:          db,
		provider:    provider,
		log:         log,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		currency:    currency,
		now:         time.Now,
	}
}

// OnCompleted registers a hook fired after completion.
func (s *Service) OnCompleted(h CompletionHook) { s.hooks = append(s.hooks, h) }

// ProviderName reports the active checkout provider.
func (s *Service) ProviderName() string { return s.provider.Name() }

/* ============================== Creation ================================ */

// CreatePaymentInput is an ad hoc charge against a case.
type CreatePaymentInput struct {
	CaseID      uuid.UUID
	Type        models.PaymentType
	Amount      decimal.Decimal
	AdvocateID  *uuid.UUID // optional; must be the case's advocate
	Description string
}

// Insert stores a new Pending payment using db, which may be a transaction.
func Insert(ctx context.Context, db *gorm.DB, p *models.Payment) error {
	if !p.Amount.IsPositive() {
		return apperr.Validation("amount must be greater than zero")
	}
	if !p.Type.Valid() {
		return apperr.Validation("invalid payment type")
	}
	p.Status = models.PayPending
	return db.WithContext(ctx).Create(p).Error
}

func (s *Service) CreatePayment(ctx context.Context, in CreatePaymentInput) (models.Payment, error) {
	var cs models.Case
	if err := s.db.WithContext(ctx).First(&cs, "id = ?", in.CaseID).Error; err != nil {
		return models.Payment{}, notFoundOr(err, "case")
	}

	// Earnings are attributed through the case, so the payee cannot differ.
	advocateID := cs.AdvocateID
	if in.AdvocateID != nil && *in.AdvocateID != uuid.Nil && *in.AdvocateID != cs.AdvocateID {
		return models.Payment{}, apperr.Validation("advocate must be the case's advocate")
	}
	desc := in.Description
	if desc == "" {
		desc = fmt.Sprintf("%s fee for %s", in.Type, cs.Title)
	}

	p := models.Payment{
		CaseID:      &cs.ID,
		AdvocateID:  advocateID,
		ClientID:    cs.ClientID,
		Type:        in.Type,
		Amount:      in.Amount,
		Description: desc,
	}
	if err := Insert(ctx, s.db, &p); err != nil {
		return models.Payment{}, err
	}
	s.log.InfoContext(ctx, "payment created", "payment_id", p.ID, "case_id", cs.ID, "type", p.Type, "amount", p.Amount.String())
	return p, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.Payment, error) {
	var p models.Payment
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return models.Payment{}, notFoundOr(err, "payment")
	}
	return p, nil
}

/* ============================ State machine ============================= */

// Complete marks a Pending payment Completed. Re-completing is a no-op success;
// changed reports whether this call performed the transition.
func (s *Service) Complete(ctx context.Context, id uuid.UUID, externalRef string) (p models.Payment, changed bool, err error) {
	now := s.now()
	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PayPending).
		Updates(map[string]any{
			"status":             models.PayCompleted,
			"external_reference": externalRef,
			"payment_date":       now,
		})
	if res.Error != nil {
		return models.Payment{}, false, res.Error
	}

	p, err = s.Get(ctx, id)
	if err != nil {
		return models.Payment{}, false, err
	}
	changed = res.RowsAffected == 1
	if !changed {
		switch p.Status {
		case models.PayCompleted:
			// idempotent
		case models.PayCancelled:
			return p, false, apperr.InvalidTransition("cannot complete a cancelled payment")
		default:
			return p, false, apperr.InvalidTransition("payment is not pending")
		}
	} else {
		s.log.InfoContext(ctx, "payment completed", "payment_id", p.ID, "amount", p.Amount.String())
		if p.CaseID != nil {
			utils.LogCaseHistory(ctx, s.db, *p.CaseID, p.ClientID, "payment_completed", "", "", string(p.Type)+" "+p.Amount.String())
		}
	}

	s.runHooks(ctx, p)
	return p, changed, nil
}

// CompleteBySession completes the payment holding the checkout session id.
// paymentRef is the payment id the session was created for (client reference
// or metadata); it finds the payment when its recorded session was replaced.
func (s *Service) CompleteBySession(ctx context.Context, sessionID, paymentRef, externalRef string) (models.Payment, bool, error) {
	var p models.Payment
	err := s.db.WithContext(ctx).First(&p, "stripe_session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		id, perr := uuid.Parse(paymentRef)
		if perr != nil {
			return models.Payment{}, false, apperr.NotFound("payment")
		}
		if p, err = s.Get(ctx, id); err != nil {
			return models.Payment{}, false, err
		}
		s.log.WarnContext(ctx, "completing payment through a replaced session", "payment_id", p.ID, "session_id", sessionID)
	} else if err != nil {
		return models.Payment{}, false, err
	}
	return s.Complete(ctx, p.ID, externalRef)
}

// Cancel moves a Pending payment to Cancelled. Cancelling twice is a no-op
// reported through already; a Completed payment can never be cancelled.
// A recorded checkout session is expired first so it cannot be paid afterwards.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (p models.Payment, already bool, err error) {
	p, err = s.Get(ctx, id)
	if err != nil {
		return models.Payment{}, false, err
	}
	if p.Status == models.PayPending && p.StripeSessionID != nil && *p.StripeSessionID != "" {
		if err := s.closeSession(ctx, p.ID, *p.StripeSessionID); err != nil {
			return p, false, err
		}
	}

	res := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ?", id, models.PayPending).
		Updates(map[string]any{
			"status":        models.PayCancelled,
			"cancel_reason": reason,
			"cancelled_at":  s.now(),
		})
	if res.Error != nil {
		return models.Payment{}, false, res.Error
	}

	p, err = s.Get(ctx, id)
	if err != nil {
		return models.Payment{}, false, err
	}
	if res.RowsAffected == 1 {
		s.log.InfoContext(ctx, "payment cancelled", "payment_id", p.ID, "reason", reason)
		return p, false, nil
	}
	switch p.Status {
	case models.PayCancelled:
		return p, true, nil
	case models.PayCompleted:
		return p, false, apperr.InvalidTransition("cannot cancel a completed payment")
	}
	return p, false, apperr.InvalidTransition("payment is not pending")
}

// closeSession expires a checkout session. When the processor refuses because
// the session was paid in the meantime, the payment is completed instead and
// the cancellation is refused.
func (s *Service) closeSession(ctx context.Context, paymentID uuid.UUID, sessionID string) error {
	expireErr := s.provider.Expire(ctx, sessionID)
	if expireErr == nil {
		return nil
	}
	info, err := s.provider.Session(ctx, sessionID)
	switch {
	case err != nil:
		return apperr.Wrap(apperr.KindUpstream, "payment processor unavailable", errors.Join(expireErr, err))
	case info.Paid:
		if _, _, err := s.Complete(ctx, paymentID, info.Reference); err != nil {
			return err
		}
		return apperr.InvalidTransition("cannot cancel a completed payment")
	case info.Expired:
		return nil
	}
	s.log.ErrorContext(ctx, "checkout session could not be expired", "payment_id", paymentID, "session_id", sessionID, "err", expireErr)
	return apperr.Wrap(apperr.KindUpstream, "payment processor unavailable", expireErr)
}

func (s *Service) runHooks(ctx context.Context, p models.Payment) {
	for _, h := range s.hooks {
		if err := h(ctx, p); err != nil {
			s.log.ErrorContext(ctx, "payment completion hook failed", "payment_id", p.ID, "err", err)
		}
	}
}

/* =============================== Checkout =============================== */

// Checkout opens (or reuses) a processor session for a Pending payment and returns its redirect URL.
func (s *Service) Checkout(ctx context.Context, p models.Payment, customerEmail string) (string, error) {
	if p.Status != models.PayPending {
		return "", apperr.InvalidTransition("only pending payments can be checked out")
	}

	// An open session is reused and a paid one completes the payment; only an
	// expired session is replaced. Creating another could charge twice.
	if p.StripeSessionID != nil && *p.StripeSessionID != "" {
		info, err := s.provider.Session(ctx, *p.StripeSessionID)
		if err != nil {
			return "", apperr.Wrap(apperr.KindUpstream, "payment processor unavailable", err)
		}
		switch {
		case info.Open && info.URL != "":
			return info.URL, nil
		case info.Paid:
			if _, _, err := s.Complete(ctx, p.ID, info.Reference); err != nil {
				return "", err
			}
			return strings.ReplaceAll(s.redirectURL("success", p.ID, true), sessionPlaceholder, info.ID), nil
		case !info.Expired:
			return "", apperr.InvalidTransition("checkout is still being processed")
		}
	}

	req := CheckoutRequest{
		PaymentID:     p.ID.String(),
		Description:   p.Description,
		Currency:      s.currency,
		AmountMinor:   MinorUnits(p.Amount),
		CustomerEmail: customerEmail,
		SuccessURL:    s.redirectURL("success", p.ID, true),
		CancelURL:     s.redirectURL("cancel", p.ID, false),
		Metadata: map[string]string{
			"payment_id": p.ID.String(),
			"type":       string(p.Type),
		},
	}
	if req.Description == "" {
		req.Description = string(p.Type) + " payment"
	}

	info, err := s.provider.CreateCheckout(ctx, req)
	if err != nil {
		s.log.ErrorContext(ctx, "checkout session failed", "payment_id", p.ID, "provider", s.provider.Name(), "err", err)
		return "", apperr.Wrap(apperr.KindUpstream, "payment processor unavailable", err)
	}

	if err := s.db.WithContext(ctx).Model(&models.Payment{}).
		Where("id = ?", p.ID).
		Update("stripe_session_id", info.ID).Error; err != nil {
		return "", err
	}
	return info.URL, nil
}

// Confirm handles the success redirect. With a recorded session the processor
// is asked (read-only) whether it was paid before the payment is completed.
func (s *Service) Confirm(ctx context.Context, p models.Payment) (models.Payment, error) {
	if p.Status == models.PayCompleted {
		return p, nil
	}
	ref := ""
	if p.StripeSessionID != nil && *p.StripeSessionID != "" {
		info, err := s.provider.Session(ctx, *p.StripeSessionID)
		if err != nil {
			return models.Payment{}, apperr.Wrap(apperr.KindUpstream, "payment processor unavailable", err)
		}
		if !info.Paid {
			return models.Payment{}, apperr.InvalidTransition("checkout session is not paid yet")
		}
		ref = info.Reference
	} else if s.provider.Name() != "mock" {
		return models.Payment{}, apperr.InvalidTransition("payment has no checkout session")
	}
	out, _, err := s.Complete(ctx, p.ID, ref)
	return out, err
}

func (s *Service) redirectURL(kind string, id uuid.UUID, withSession bool) string {
	q := url.Values{}
	q.Set("paymentId", id.String())
	u := fmt.Sprintf("%s/payment/%s?%s", s.frontendURL, kind, q.Encode())
	if withSession {
		// Placeholder is substituted by the processor; must stay unescaped.
		u += "&session_id=" + sessionPlaceholder
	}
	return u
}

/* ================================ Reads ================================= */

func (s *Service) ListForCase(ctx context.Context, caseID uuid.UUID) ([]models.Payment, error) {
	var rows []models.Payment
	err := s.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

// PendingItem is a pending payment with display snapshots.
type PendingItem struct {
	models.Payment
	CaseTitle  string `json:"case_title"`
	CaseNumber string `json:"case_number"`
	ClientName string `json:"client_name"`
}

func (s *Service) ListPendingForAdvocate(ctx context.Context, advocateID uuid.UUID) ([]PendingItem, error) {
	var rows []models.Payment
	if err := s.db.WithContext(ctx).
		Where("advocate_id = ? AND status = ?", advocateID, models.PayPending).
		Order("created_at DESC").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	caseIDs := make([]uuid.UUID, 0, len(rows))
	clientIDs := make([]uuid.UUID, 0, len(rows))
	for _, p := range rows {
		if p.CaseID != nil {
			caseIDs = append(caseIDs, *p.CaseID)
		}
		clientIDs = append(clientIDs, p.ClientID)
	}

	cases := map[uuid.UUID]models.Case{}
	if len(caseIDs) > 0 {
		var cs []models.Case
		if err := s.db.WithContext(ctx).Where("id IN ?", caseIDs).Find(&cs).Error; err == nil {
			for _, c := range cs {
				cases[c.ID] = c
			}
		}
	}
	clients := map[uuid.UUID]string{}
	if len(clientIDs) > 0 {
		var us []models.User
		if err := s.db.WithContext(ctx).Select("id", "name").Where("id IN ?", clientIDs).Find(&us).Error; err == nil {
			for _, u := range us {
				clients[u.ID] = u.Name
			}
		}
	}

	out := make([]PendingItem, 0, len(rows))
	for _, p := range rows {
		it := PendingItem{Payment: p, CaseTitle: "Consultation", CaseNumber: "-", ClientName: "Unknown"}
		if p.CaseID != nil {
			if c, ok := cases[*p.CaseID]; ok {
				it.CaseTitle, it.CaseNumber = c.Title, c.CaseNumber
			} else {
				it.CaseTitle = "Unknown"
			}
		}
		if n, ok := clients[p.ClientID]; ok && n != "" {
			it.ClientName = n
		}
		out = append(out, it)
	}
	return out, nil
}

// SumCompletedEarnings totals Completed payments for cases the advocate owns,
// plus consultation payments (no case) addressed to the advocate.
func (s *Service) SumCompletedEarnings(ctx context.Context, advocateID uuid.UUID) (decimal.Decimal, error) {
	owned := s.db.Model(&models.Case{}).Select("id").Where("advocate_id = ?", advocateID)

	var rows []models.Payment
	if err := s.db.WithContext(ctx).
		Where("status = ?", models.PayCompleted).
		Where(s.db.Where("case_id IN (?)", owned).Or("case_id IS NULL AND advocate_id = ?", advocateID)).
		Find(&rows).Error; err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for _, p := range rows {
		total = total.Add(p.Amount)
	}
	return total, nil
}

func notFoundOr(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(what)
	}
	return err
}
