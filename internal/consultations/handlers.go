package consultations

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-advocate-backend/internal/auth"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
	"github.com/aldoetobex/legal-advocate-backend/pkg/utils"
	"github.com/aldoetobex/legal-advocate-backend/pkg/validation"
)

// Query for GET /consultations/booked-slots
type BookedSlotsQuery struct {
	Date       string `query:"date" json:"date" validate:"required,isodate"`
	AdvocateID string `query:"advocateId" json:"advocateId" validate:"required,uuid"`
}

// Request body for POST /consultations
type RequestConsultation struct {
	AdvocateID string `json:"advocateId" validate:"required,uuid"`
	Date       string `json:"date" validate:"required,isodate"`
	TimeSlot   string `json:"timeSlot" validate:"required"`
	Subject    string `json:"subject" validate:"max=500"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// @Summary      All consultation slots
// @Tags         consultations
// @Produce      json
// @Success      200  {object}  map[string]any  "slots"
// @Router       /consultations/slots [get]
func (h *Handler) Slots(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"slots": Slots})
}

// @Summary      Booked slots of an advocate on a day
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        date        query  string  true  "YYYY-MM-DD"
// @Param        advocateId  query  string  true  "Advocate ID"
// @Success      200  {object}  map[string]any  "bookedSlots"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /consultations/booked-slots [get]
func (h *Handler) BookedSlots(c *fiber.Ctx) error {
	var q BookedSlotsQuery
	if err := c.QueryParser(&q); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(q); errs != nil {
		return validation.Respond(c, errs)
	}
	booked, err := h.svc.BookedSlots(c.UserContext(), utils.ParseID(q.AdvocateID), q.Date)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"bookedSlots": booked})
}

// @Summary      Request a consultation (client)
// @Tags         consultations
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  RequestConsultation  true  "Booking"
// @Success      201  {object}  map[string]any
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "SLOT_TAKEN"
// @Router       /consultations [post]
func (h *Handler) Request(c *fiber.Ctx) error {
	var in RequestConsultation
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	cons, err := h.svc.Request(c.UserContext(), utils.ParseID(auth.MustUserID(c)), RequestInput{
		AdvocateID: utils.ParseID(in.AdvocateID),
		Date:       in.Date,
		TimeSlot:   in.TimeSlot,
		Subject:    in.Subject,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "consultation": cons})
}

// @Summary      Accept a consultation (advocate)
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Consultation ID"
// @Success      200  {object}  map[string]any
// @Failure      409  {object}  models.ErrorResponse
// @Router       /consultations/{id}/accept [put]
func (h *Handler) Accept(c *fiber.Ctx) error {
	return h.advocateAction(c, h.svc.Accept)
}

// @Summary      Reject a consultation (advocate)
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Consultation ID"
// @Success      200  {object}  map[string]any
// @Failure      409  {object}  models.ErrorResponse
// @Router       /consultations/{id}/reject [put]
func (h *Handler) Reject(c *fiber.Ctx) error {
	return h.advocateAction(c, h.svc.Reject)
}

// @Summary      Schedule the meeting (advocate)
// @Description  Legal from Paid; the meeting link is derived from the consultation id.
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Consultation ID"
// @Success      200  {object}  map[string]any
// @Failure      409  {object}  models.ErrorResponse
// @Router       /consultations/{id}/schedule [put]
func (h *Handler) Schedule(c *fiber.Ctx) error {
	return h.advocateAction(c, h.svc.Schedule)
}

// @Summary      Pay for an accepted consultation (client)
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Consultation ID"
// @Success      200  {object}  map[string]any  "success, url, payment"
// @Failure      409  {object}  models.ErrorResponse
// @Failure      502  {object}  models.ErrorResponse
// @Router       /consultations/{id}/pay [post]
func (h *Handler) InitiatePayment(c *fiber.Ctx) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cons, pay, url, err := h.svc.InitiatePayment(c.UserContext(), utils.ParseID(auth.MustUserID(c)), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "url": url, "payment": pay, "consultation": cons})
}

// @Summary      My consultations
// @Tags         consultations
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]any
// @Router       /consultations/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	userID := utils.ParseID(auth.MustUserID(c))

	var (
		rows []View
		err  error
	)
	switch auth.MustRole(c) {
	case models.RoleClient:
		rows, err = h.svc.ListForClient(c.UserContext(), userID)
	case models.RoleAdvocate:
		rows, err = h.svc.ListForAdvocate(c.UserContext(), userID)
	default:
		return apperr.Forbidden("only clients and advocates have consultations")
	}
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "consultations": rows})
}

type advocateOp func(ctx context.Context, advocateID, id uuid.UUID) (models.Consultation, error)

func (h *Handler) advocateAction(c *fiber.Ctx, op advocateOp) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	cons, err := op(c.UserContext(), utils.ParseID(auth.MustUserID(c)), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "consultation": cons})
}

func pathID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, apperr.NotFound("consultation")
	}
	return id, nil
}
