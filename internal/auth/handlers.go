package auth

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
	"github.com/aldoetobex/legal-advocate-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /clients/register
type SignupClientRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=6,max=72"`
	Phone    string `json:"phone" validate:"omitempty,phone"`
	Address  string `json:"address" validate:"max=255"`
}

// Request body for /advocates/register
type SignupAdvocateRequest struct {
	Name            string          `json:"name" validate:"required,min=2,max=80"`
	Email           string          `json:"email" validate:"required,email,max=120"`
	Password        string          `json:"password" validate:"required,min=6,max=72"`
	Phone           string          `json:"phone" validate:"omitempty,phone"`
	BarNumber       string          `json:"bar_number" validate:"omitempty,barnum"`
	Experience      int             `json:"experience" validate:"gte=0,lte=70"`
	Bio             string          `json:"bio" validate:"max=2000"`
	Specializations []string        `json:"specializations" validate:"max=10,dive,max=40"`
	AdvanceFee      decimal.Decimal `json:"advance_fee" swaggertype:"number"`
	SittingFee      decimal.Decimal `json:"sitting_fee" swaggertype:"number"`
	ConsultationFee decimal.Decimal `json:"consultation_fee" swaggertype:"number"`
}

// Request body for every login endpoint
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Request body for PUT /me
type UpdateProfileRequest struct {
	Name            string `json:"name" validate:"omitempty,min=2,max=80"`
	Phone           string `json:"phone" validate:"omitempty,phone"`
	Address         string `json:"address" validate:"max=255"`
	Bio             string `json:"bio" validate:"max=2000"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"omitempty,min=6,max=72"`
}

// Standard auth response
type AuthResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token"`
	Role    string `json:"role"`
	ID      string `json:"id"`
}

/* ============================== Handler ================================= */

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

/* =============================== Signup ================================= */

// @Summary      Register client
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupClientRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /clients/register [post]
func (h *Handler) RegisterClient(c *fiber.Ctx) error {
	var in SignupClientRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	u, err := h.svc.RegisterClient(c.UserContext(), in)
	if err != nil {
		return err
	}

	// Clients may start working right away
	token, err := h.svc.tokens.Issue(u.ID.String(), models.RoleClient)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Success: true, Token: token, Role: string(models.RoleClient), ID: u.ID.String()})
}

// @Summary      Register advocate
// @Description  Advocates are created unverified and cannot log in until an admin verifies them.
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupAdvocateRequest  true  "Signup payload"
// @Success      201      {object}  map[string]any
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse
// @Router       /advocates/register [post]
func (h *Handler) RegisterAdvocate(c *fiber.Ctx) error {
	var in SignupAdvocateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	a, err := h.svc.RegisterAdvocate(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":  true,
		"message":  "Registration received. You can log in once an admin verifies your profile.",
		"id":       a.ID,
		"verified": a.Verified,
	})
}

/* ================================ Login ================================= */

func (h *Handler) login(c *fiber.Ctx, role models.Role) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	token, id, err := h.svc.Login(c.UserContext(), role, in.Email, in.Password)
	if err != nil {
		return err
	}
	return c.JSON(AuthResponse{Success: true, Token: token, Role: string(role), ID: id})
}

// @Summary      Client login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      401      {object}  models.ErrorResponse
// @Failure      404      {object}  models.ErrorResponse
// @Router       /clients/login [post]
func (h *Handler) LoginClient(c *fiber.Ctx) error { return h.login(c, models.RoleClient) }

// @Summary      Advocate login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      401      {object}  models.ErrorResponse
// @Failure      403      {object}  models.ErrorResponse  "NOT_VERIFIED"
// @Router       /advocates/login [post]
func (h *Handler) LoginAdvocate(c *fiber.Ctx) error { return h.login(c, models.RoleAdvocate) }

// @Summary      Admin login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /admin/login [post]
func (h *Handler) LoginAdmin(c *fiber.Ctx) error { return h.login(c, models.RoleAdmin) }

/* ================================= Me =================================== */

// @Summary      Get current profile
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  map[string]any
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	p, err := h.svc.Profile(c.UserContext(), MustUserID(c), MustRole(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"role": MustRole(c), "profile": p})
}

// @Summary      Update current profile
// @Description  Changing the password requires current_password.
// @Tags         auth
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpdateProfileRequest  true  "Profile fields"
// @Success      200  {object}  models.SuccessResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [put]
func (h *Handler) UpdateMe(c *fiber.Ctx) error {
	var in UpdateProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	if err := h.svc.UpdateProfile(c.UserContext(), MustUserID(c), MustRole(c), in); err != nil {
		return err
	}
	return c.JSON(models.SuccessResponse{Success: true, Message: "Profile updated"})
}
