package payments

import (
	"crypto/subtle"
	"encoding/json"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/internal/auth"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
	"github.com/aldoetobex/legal-advocate-backend/pkg/utils"
	"github.com/aldoetobex/legal-advocate-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for POST /cases/:id/payments
type CreatePaymentRequest struct {
	Type        string          `json:"type" validate:"required,oneof=advance sitting consultation other"`
	Amount      decimal.Decimal `json:"amount" swaggertype:"number"`
	Description string          `json:"description" validate:"max=255"`
}

// Request body for POST /payment/cancel/:paymentId
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

type mockCompleteReq struct {
	PaymentID string `json:"payment_id"`
}

/* ============================== Handler ================================= */

// WebhookConfig holds what the webhook and dev endpoints need.
type WebhookConfig struct {
	SigningSecret string
	DevMode       bool
	DevSecret     string
}

type Handler struct {
	db  *gorm.DB
	svc *Service
	cfg WebhookConfig
}

func NewHandler(db *gorm.DB, svc *Service, cfg WebhookConfig) *Handler {
	return &Handler{db: db, svc: svc, cfg: cfg}
}

// @Summary      Raise a payment on a case (advocate)
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                true  "Case ID"
// @Param        payload  body  CreatePaymentRequest  true  "Payment"
// @Success      201      {object}  map[string]any
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      403      {object}  models.ErrorResponse
// @Failure      404      {object}  models.ErrorResponse
// @Router       /cases/{id}/payments [post]
func (h *Handler) CreateForCase(c *fiber.Ctx) error {
	advocateID := utils.ParseID(auth.MustUserID(c))
	caseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.NotFound("case")
	}

	var in CreatePaymentRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	if !in.Amount.IsPositive() {
		return validation.Respond(c, map[string][]string{"amount": {"amount must be greater than zero"}})
	}

	var cs models.Case
	if err := h.db.WithContext(c.UserContext()).First(&cs, "id = ?", caseID).Error; err != nil {
		return notFoundOr(err, "case")
	}
	if cs.AdvocateID != advocateID {
		return apperr.Forbidden("not your case")
	}

	input := CreatePaymentInput{
		CaseID:      caseID,
		Type:        models.PaymentType(in.Type),
		Amount:      in.Amount,
		Description: in.Description,
	}
	p, err := h.svc.CreatePayment(c.UserContext(), input)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "payment": p})
}

// @Summary      List payments of a case
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Case ID"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id}/payments [get]
func (h *Handler) ListForCase(c *fiber.Ctx) error {
	userID := utils.ParseID(auth.MustUserID(c))
	caseID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.NotFound("case")
	}

	var cs models.Case
	if err := h.db.WithContext(c.UserContext()).First(&cs, "id = ?", caseID).Error; err != nil {
		return notFoundOr(err, "case")
	}
	if cs.ClientID != userID && cs.AdvocateID != userID {
		return apperr.Forbidden("not your case")
	}

	rows, err := h.svc.ListForCase(c.UserContext(), caseID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "payments": rows})
}

// @Summary      Pending payments raised by the advocate
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /advocate/payments/pending [get]
func (h *Handler) ListPending(c *fiber.Ctx) error {
	advocateID := utils.ParseID(auth.MustUserID(c))
	rows, err := h.svc.ListPendingForAdvocate(c.UserContext(), advocateID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "payments": rows})
}

// @Summary      Total completed earnings of the advocate
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /advocate/earnings [get]
func (h *Handler) Earnings(c *fiber.Ctx) error {
	advocateID := utils.ParseID(auth.MustUserID(c))
	total, err := h.svc.SumCompletedEarnings(c.UserContext(), advocateID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "total": total})
}

/* =============================== Checkout =============================== */

// @Summary      Create a checkout session (client)
// @Description  Returns the processor redirect URL. Success/cancel targets carry the payment id.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        paymentId  path  string  true  "Payment ID"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /payments/{paymentId}/checkout [post]
func (h *Handler) CreateCheckout(c *fiber.Ctx) error {
	p, u, err := h.ownPayment(c)
	if err != nil {
		return err
	}
	redirect, err := h.svc.Checkout(c.UserContext(), p, u.Email)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "url": redirect, "provider": h.svc.ProviderName()})
}

// @Summary      Confirm a payment after checkout success
// @Description  Idempotent: confirming a completed payment returns it unchanged.
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        paymentId  path  string  true  "Payment ID"
// @Success      200  {object}  map[string]any
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /payment/success/{paymentId} [post]
func (h *Handler) ConfirmSuccess(c *fiber.Ctx) error {
	p, _, err := h.ownPayment(c)
	if err != nil {
		return err
	}
	out, err := h.svc.Confirm(c.UserContext(), p)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "payment": out})
}

// @Summary      Cancel a pending payment
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        paymentId  path  string         true   "Payment ID"
// @Param        payload    body  CancelRequest  false  "Reason"
// @Success      200  {object}  models.SuccessResponse
// @Failure      409  {object}  models.ErrorResponse  "payment already completed"
// @Router       /payment/cancel/{paymentId} [post]
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var in CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.ErrBadRequest
		}
		if errs, _ := validation.Validate(in); errs != nil {
			return validation.Respond(c, errs)
		}
	}

	userID := utils.ParseID(auth.MustUserID(c))
	p, err := h.paymentFromPath(c)
	if err != nil {
		return err
	}
	if p.ClientID != userID && p.AdvocateID != userID {
		return apperr.Forbidden("not your payment")
	}

	reason := in.Reason
	if reason == "" {
		reason = "checkout abandoned"
	}
	_, already, err := h.svc.Cancel(c.UserContext(), p.ID, reason)
	if err != nil {
		return err
	}
	msg := "payment cancelled"
	if already {
		msg = "already cancelled"
	}
	return c.JSON(models.SuccessResponse{Success: true, Message: msg})
}

/* =============================== Webhooks =============================== */

// @Summary      Stripe webhook
// @Description  Verifies the Stripe-Signature header before trusting the event.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      400  {object}  models.ErrorResponse
// @Router       /payments/stripe/webhook [post]
func (h *Handler) StripeWebhook(c *fiber.Ctx) error {
	if h.cfg.SigningSecret == "" {
		return fiber.NewError(fiber.StatusServiceUnavailable, "webhook not configured")
	}
	event, err := webhook.ConstructEventWithOptions(
		c.Body(),
		c.Get("Stripe-Signature"),
		h.cfg.SigningSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true},
	)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid signature")
	}

	ctx := c.UserContext()
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
			// async methods settle later
			return c.JSON(fiber.Map{"received": true})
		}
		ref := sess.ID
		if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
			ref = sess.PaymentIntent.ID
		}
		paymentRef := sess.ClientReferenceID
		if paymentRef == "" {
			paymentRef = sess.Metadata["payment_id"]
		}
		if _, _, err := h.svc.CompleteBySession(ctx, sess.ID, paymentRef, ref); err != nil {
			switch apperr.KindOf(err) {
			case apperr.KindNotFound:
				h.svc.log.WarnContext(ctx, "webhook for unknown session", "session_id", sess.ID)
			case apperr.KindInvalidTransition:
				// money was captured for a payment no longer payable; needs a manual refund
				h.svc.log.ErrorContext(ctx, "paid checkout for a cancelled payment",
					"session_id", sess.ID, "payment_ref", paymentRef, "external_reference", ref)
			default:
				return err
			}
		}
	case stripe.EventTypeCheckoutSessionExpired:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
		var p models.Payment
		if err := h.db.WithContext(ctx).First(&p, "stripe_session_id = ?", sess.ID).Error; err == nil {
			if _, _, err := h.svc.Cancel(ctx, p.ID, "checkout expired"); err != nil && apperr.KindOf(err) != apperr.KindInvalidTransition {
				return err
			}
		}
	default:
		h.svc.log.DebugContext(ctx, "ignored webhook event", "type", event.Type)
	}
	return c.JSON(fiber.Map{"received": true})
}

// MockComplete completes a payment without a processor. Dev + mock provider only.
// Header: X-Dev-Secret: <DEV_PAYMENT_SECRET>
func (h *Handler) MockComplete(c *fiber.Ctx) error {
	if !h.cfg.DevMode || h.svc.ProviderName() != "mock" {
		return fiber.ErrNotFound
	}
	got := c.Get("X-Dev-Secret")
	if got == "" || h.cfg.DevSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.cfg.DevSecret)) != 1 {
		return fiber.NewError(fiber.StatusUnauthorized, "missing/invalid X-Dev-Secret")
	}
	var in mockCompleteReq
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	pid, err := uuid.Parse(in.PaymentID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payment id")
	}

	p, changed, err := h.svc.Complete(c.UserContext(), pid, "mock_"+uuid.NewString())
	if err != nil {
		return err
	}
	if !changed {
		return c.JSON(fiber.Map{"ok": true, "message": "already paid (idempotent)", "payment": p})
	}
	return c.JSON(fiber.Map{"ok": true, "payment": p})
}

/* =============================== Helpers ================================ */

func (h *Handler) paymentFromPath(c *fiber.Ctx) (models.Payment, error) {
	id, err := uuid.Parse(c.Params("paymentId"))
	if err != nil {
		return models.Payment{}, apperr.NotFound("payment")
	}
	return h.svc.Get(c.UserContext(), id)
}

// ownPayment loads the path payment and the calling client, who must own it.
func (h *Handler) ownPayment(c *fiber.Ctx) (models.Payment, models.User, error) {
	clientID := utils.ParseID(auth.MustUserID(c))
	p, err := h.paymentFromPath(c)
	if err != nil {
		return models.Payment{}, models.User{}, err
	}
	if p.ClientID != clientID {
		return models.Payment{}, models.User{}, apperr.Forbidden("not your payment")
	}
	var u models.User
	if err := h.db.WithContext(c.UserContext()).First(&u, "id = ? AND role = ?", clientID, models.RoleClient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Payment{}, models.User{}, apperr.ErrInvalidClient
		}
		return models.Payment{}, models.User{}, err
	}
	return p, u, nil
}
