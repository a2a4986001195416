package advocates

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aldoetobex/legal-advocate-backend/internal/auth"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/utils"
	"github.com/aldoetobex/legal-advocate-backend/pkg/validation"
)

// Request body for PUT /advocate/profile/fees
type UpdateFeesRequest struct {
	AdvanceFee      *decimal.Decimal `json:"advance_fee"`
	SittingFee      *decimal.Decimal `json:"sitting_fee"`
	ConsultationFee *decimal.Decimal `json:"consultation_fee"`
	Specializations []string         `json:"specializations" validate:"omitempty,max=20,dive,min=2,max=50"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// @Summary      Discover verified advocates
// @Tags         advocates
// @Produce      json
// @Param        specialization  query  string  false  "Filter by specialization"
// @Success      200  {object}  map[string]any  "advocates"
// @Router       /advocates [get]
func (h *Handler) List(c *fiber.Ctx) error {
	rows, err := h.svc.ListVerified(c.UserContext(), c.Query("specialization"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "advocates": rows})
}

// @Summary      Advocate profile
// @Tags         advocates
// @Produce      json
// @Param        id   path  string  true  "Advocate ID"
// @Success      200  {object}  map[string]any  "advocate"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /advocates/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.NotFound("advocate")
	}
	p, err := h.svc.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "advocate": p})
}

// @Summary      Update own fees and specializations (advocate)
// @Tags         advocates
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpdateFeesRequest  true  "Fees"
// @Success      200  {object}  map[string]any  "advocate"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /advocate/profile/fees [put]
func (h *Handler) UpdateFees(c *fiber.Ctx) error {
	var in UpdateFeesRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	a, err := h.svc.UpdateFees(c.UserContext(), utils.ParseID(auth.MustUserID(c)), FeeUpdate{
		AdvanceFee:      in.AdvanceFee,
		SittingFee:      in.SittingFee,
		ConsultationFee: in.ConsultationFee,
		Specializations: in.Specializations,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "advocate": a})
}

// @Summary      Advocates awaiting verification (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]any  "advocates"
// @Router       /admin/advocates/pending [get]
func (h *Handler) ListPending(c *fiber.Ctx) error {
	rows, err := h.svc.ListUnverified(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "advocates": rows})
}

// @Summary      Verify an advocate (admin)
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Advocate ID"
// @Success      200  {object}  map[string]any  "advocate"
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/advocates/{id}/verify [put]
func (h *Handler) Verify(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.NotFound("advocate")
	}
	a, err := h.svc.Verify(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "advocate": a})
}
