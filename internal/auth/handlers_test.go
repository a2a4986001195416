package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/internal/logging"
	"github.com/aldoetobex/legal-advocate-backend/internal/testutil"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

func newTestApp(t *testing.T) (*fiber.App, *gorm.DB, *Service) {
	t.Helper()
	db := testutil.OpenDB(t)
	tokens := NewTokens("user-secret", "admin-secret", time.Hour)
	svc := NewService(db, tokens, logging.Discard()).WithHashCost(bcrypt.MinCost)
	h := NewHandler(svc)

	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(logging.Discard())})
	app.Post("/api/clients/register", h.RegisterClient)
	app.Post("/api/clients/login", h.LoginClient)
	app.Post("/api/advocates/register", h.RegisterAdvocate)
	app.Post("/api/advocates/login", h.LoginAdvocate)
	app.Post("/api/admin/login", h.LoginAdmin)
	app.Get("/api/me", RequireAuth(tokens), h.Me)
	app.Put("/api/me", RequireAuth(tokens), h.UpdateMe)
	app.Get("/api/admin/ping", RequireAuth(tokens), RequireRole(models.RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendString("pong")
	})
	return app, db, svc
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

/* ============================================================================
   Tests
   ============================================================================ */

func Test_RegisterClient_ThenDuplicate(t *testing.T) {
	app, _, _ := newTestApp(t)
	body := map[string]any{"name": "Asha", "email": "Asha@Example.com", "password": "secret123"}

	resp, out := doJSON(t, app, "POST", "/api/clients/register", "", body)
	require.Equal(t, 201, resp.StatusCode, out)
	assert.NotEmpty(t, out["token"])

	resp, out = doJSON(t, app, "POST", "/api/clients/register", "", body)
	assert.Equal(t, 409, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_ENTITY", out["code"])
}

func Test_RegisterClient_ValidationShape(t *testing.T) {
	app, _, _ := newTestApp(t)
	resp, out := doJSON(t, app, "POST", "/api/clients/register", "", map[string]any{"email": "bad"})
	assert.Equal(t, 400, resp.StatusCode)
	assert.Equal(t, "Validation failed", out["message"])
	errs := out["errors"].(map[string]any)
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "password")
}

func Test_Login_UnknownAndWrongPassword(t *testing.T) {
	app, _, _ := newTestApp(t)
	doJSON(t, app, "POST", "/api/clients/register", "", map[string]any{"name": "Asha", "email": "a@x.com", "password": "secret123"})

	resp, out := doJSON(t, app, "POST", "/api/clients/login", "", map[string]any{"email": "nobody@x.com", "password": "secret123"})
	assert.Equal(t, 404, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", out["code"])

	resp, out = doJSON(t, app, "POST", "/api/clients/login", "", map[string]any{"email": "a@x.com", "password": "wrong-pass"})
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIAL", out["code"])

	resp, out = doJSON(t, app, "POST", "/api/clients/login", "", map[string]any{"email": "A@x.com", "password": "secret123"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "client", out["role"])
}

// An unverified advocate with correct credentials is told to wait for verification.
func Test_AdvocateLogin_NotVerifiedBeatsCredentialCheck(t *testing.T) {
	app, db, _ := newTestApp(t)
	reg := map[string]any{
		"name": "Rao", "email": "rao@x.com", "password": "secret123",
		"specializations": []string{"Civil", "civil", "Family"}, "advance_fee": 5000,
	}
	resp, out := doJSON(t, app, "POST", "/api/advocates/register", "", reg)
	require.Equal(t, 201, resp.StatusCode, out)
	assert.Equal(t, false, out["verified"])

	resp, out = doJSON(t, app, "POST", "/api/advocates/login", "", map[string]any{"email": "rao@x.com", "password": "secret123"})
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "NOT_VERIFIED", out["code"])

	// Wrong password on an unverified account still reports verification
	resp, out = doJSON(t, app, "POST", "/api/advocates/login", "", map[string]any{"email": "rao@x.com", "password": "nope-nope"})
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "NOT_VERIFIED", out["code"])

	var a models.Advocate
	require.NoError(t, db.First(&a, "email = ?", "rao@x.com").Error)
	assert.Equal(t, []string{"civil", "family"}, []string(a.Specializations))
	assert.Equal(t, "5000", a.AdvanceFee.String())
	require.NoError(t, db.Model(&a).Update("verified", true).Error)

	resp, out = doJSON(t, app, "POST", "/api/advocates/login", "", map[string]any{"email": "rao@x.com", "password": "secret123"})
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "advocate", out["role"])
}

func Test_AdminSeedAndRoleGate(t *testing.T) {
	app, _, svc := newTestApp(t)
	require.NoError(t, svc.EnsureAdmin(t.Context(), "Admin@x.com", "root-pass"))
	require.NoError(t, svc.EnsureAdmin(t.Context(), "admin@x.com", "root-pass")) // idempotent

	resp, out := doJSON(t, app, "POST", "/api/admin/login", "", map[string]any{"email": "admin@x.com", "password": "root-pass"})
	require.Equal(t, 200, resp.StatusCode, out)
	adminToken := out["token"].(string)

	_, out = doJSON(t, app, "POST", "/api/clients/register", "", map[string]any{"name": "Asha", "email": "a@x.com", "password": "secret123"})
	clientToken := out["token"].(string)

	resp, _ = doJSON(t, app, "GET", "/api/admin/ping", adminToken, nil)
	assert.Equal(t, 200, resp.StatusCode)

	resp, out = doJSON(t, app, "GET", "/api/admin/ping", clientToken, nil)
	assert.Equal(t, 403, resp.StatusCode)
	assert.Equal(t, "FORBIDDEN", out["code"])

	resp, _ = doJSON(t, app, "GET", "/api/admin/ping", "", nil)
	assert.Equal(t, 401, resp.StatusCode)
}

func Test_UpdateMe_PasswordRotationNeedsCurrent(t *testing.T) {
	app, _, _ := newTestApp(t)
	_, out := doJSON(t, app, "POST", "/api/clients/register", "", map[string]any{"name": "Asha", "email": "a@x.com", "password": "secret123"})
	token := out["token"].(string)

	resp, out := doJSON(t, app, "PUT", "/api/me", token, map[string]any{"new_password": "brandnew1", "current_password": "wrong"})
	assert.Equal(t, 401, resp.StatusCode)
	assert.Equal(t, "INVALID_CREDENTIAL", out["code"])

	resp, _ = doJSON(t, app, "PUT", "/api/me", token, map[string]any{"name": "Asha K", "new_password": "brandnew1", "current_password": "secret123"})
	assert.Equal(t, 200, resp.StatusCode)

	resp, _ = doJSON(t, app, "POST", "/api/clients/login", "", map[string]any{"email": "a@x.com", "password": "brandnew1"})
	assert.Equal(t, 200, resp.StatusCode)

	resp, out = doJSON(t, app, "GET", "/api/me", token, nil)
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "Asha K", out["profile"].(map[string]any)["name"])
}
