package auth

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects userID and role into the context.
// The Authorization header is the only place an identity is read from.
func RequireAuth(tokens *Tokens) fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(h, "Bearer ") {
			return apperr.Unauthorized("missing bearer token")
		}
		id, err := tokens.Verify(strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")))
		if err != nil {
			return err
		}
		c.Locals("userID", id.SubjectID)
		c.Locals("role", string(id.Role))
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v, ok := c.Locals("userID").(string); ok {
		return v
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) models.Role {
	if v, ok := c.Locals("role").(string); ok {
		return models.Role(v)
	}
	panic(errors.New("role not in context"))
}

// RequireRole ensures the authenticated user has one of the expected roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, _ := c.Locals("role").(string)
		for _, r := range roles {
			if models.Role(role) == r {
				return c.Next()
			}
		}
		return apperr.Forbidden("forbidden for role " + role)
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case fiber.StatusNotImplemented:
		return "NOT_IMPLEMENTED"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// statusForKind maps a domain error kind to an HTTP status.
func statusForKind(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return fiber.StatusNotFound
	case apperr.KindInvalidTransition, apperr.KindDuplicate, apperr.KindSlotTaken:
		return fiber.StatusConflict
	case apperr.KindUnauthorized, apperr.KindInvalidCredential:
		return fiber.StatusUnauthorized
	case apperr.KindForbidden, apperr.KindNotVerified:
		return fiber.StatusForbidden
	case apperr.KindValidation:
		return fiber.StatusBadRequest
	case apperr.KindUpstream:
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

// NewErrorHandler returns a global Fiber error handler that answers with a consistent JSON shape.
// Unclassified failures are logged in full and hidden from the caller.
func NewErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		// Domain errors carry a stable kind
		var ae *apperr.Error
		if errors.As(err, &ae) {
			code := statusForKind(ae.Kind)
			msg := ae.Message
			if code >= fiber.StatusInternalServerError {
				log.ErrorContext(c.UserContext(), "request failed", "path", c.Path(), "kind", ae.Kind, "err", err)
				if ae.Kind != apperr.KindUpstream {
					msg = "Internal Server Error"
				}
			}
			return c.Status(code).JSON(models.ErrorResponse{Error: true, Message: msg, Code: string(ae.Kind)})
		}

		// Defaults
		code := fiber.StatusInternalServerError
		msg := "Internal Server Error"

		// Fiber errors carry status codes
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			if strings.TrimSpace(fe.Message) != "" {
				msg = fe.Message
			}
		} else {
			log.ErrorContext(c.UserContext(), "unhandled error", "path", c.Path(), "err", err)
		}

		return c.Status(code).JSON(models.ErrorResponse{
			Code:    httpCodeToString(code),
			Error:   true,
			Message: msg,
		})
	}
}
