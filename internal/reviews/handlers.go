package reviews

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-advocate-backend/internal/auth"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/utils"
	"github.com/aldoetobex/legal-advocate-backend/pkg/validation"
)

// Request body for POST /reviews
type SubmitReviewRequest struct {
	CaseID string `json:"caseId" validate:"required,uuid"`
	Rating int    `json:"rating" validate:"required,gte=1,lte=5"`
	Review string `json:"review" validate:"max=2000"`
}

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// @Summary      Review the advocate of a case (client)
// @Tags         reviews
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  SubmitReviewRequest  true  "Review"
// @Success      201  {object}  map[string]any
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse  "already reviewed"
// @Router       /reviews [post]
func (h *Handler) Submit(c *fiber.Ctx) error {
	var in SubmitReviewRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	r, err := h.svc.Submit(c.UserContext(), utils.ParseID(auth.MustUserID(c)), utils.ParseID(in.CaseID), in.Rating, in.Review)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "review": r})
}

// @Summary      Reviews of an advocate
// @Tags         reviews
// @Produce      json
// @Param        id   path  string  true  "Advocate ID"
// @Success      200  {object}  map[string]any  "reviews, rating"
// @Router       /advocates/{id}/reviews [get]
func (h *Handler) ListForAdvocate(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return apperr.NotFound("advocate")
	}
	rows, err := h.svc.ListForAdvocate(c.UserContext(), id)
	if err != nil {
		return err
	}
	rating, err := h.svc.Aggregate(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "reviews": rows, "rating": rating})
}
