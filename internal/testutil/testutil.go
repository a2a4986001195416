// Package testutil provides an in-memory database and auth injection for handler tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aldoetobex/legal-advocate-backend/pkg/database"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

// OpenDB returns a migrated, isolated in-memory database.
// A single connection keeps every query on the same memory database.
func OpenDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// InjectAuth puts the locals RequireAuth would set, without a real JWT.
func InjectAuth(userID uuid.UUID, role models.Role) fiber.Handler {
	id := userID.String()
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", string(role))
		return c.Next()
	}
}

// HashPassword is a low-cost bcrypt hash for seeding.
func HashPassword(t *testing.T, pw string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(h)
}

// SeedClient inserts a client account.
func SeedClient(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	u := models.User{
		Email:        strings.ToLower(name) + "_" + uuid.NewString()[:8] + "@x.com",
		Role:         models.RoleClient,
		Name:         name,
		PasswordHash: HashPassword(t, "secret123"),
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatal(err)
	}
	return u
}

// SeedAdvocate inserts a verified advocate with the given advance fee.
func SeedAdvocate(t *testing.T, db *gorm.DB, name string, advanceFee int64) models.Advocate {
	t.Helper()
	a := models.Advocate{
		Email:           strings.ToLower(name) + "_" + uuid.NewString()[:8] + "@x.com",
		Name:            name,
		PasswordHash:    HashPassword(t, "secret123"),
		Specializations: []string{"civil"},
		AdvanceFee:      decimal.NewFromInt(advanceFee),
		SittingFee:      decimal.NewFromInt(advanceFee / 2),
		ConsultationFee: decimal.NewFromInt(300),
		Verified:        true,
	}
	if err := db.Create(&a).Error; err != nil {
		t.Fatal(err)
	}
	return a
}

// SeedCase inserts a case in the given status.
func SeedCase(t *testing.T, db *gorm.DB, clientID, advocateID uuid.UUID, status models.CaseStatus) models.Case {
	t.Helper()
	cs := models.Case{
		CaseNumber:  "TEMP-" + uuid.NewString()[:8],
		Title:       "Boundary dispute",
		Description: "Neighbour moved the fence",
		ClientID:    clientID,
		AdvocateID:  advocateID,
		CaseType:    models.CaseProperty,
		Status:      status,
	}
	if err := db.Create(&cs).Error; err != nil {
		t.Fatal(err)
	}
	return cs
}

// NewApp is a Fiber app using the given error handler.
func NewApp(h fiber.ErrorHandler) *fiber.App {
	return fiber.New(fiber.Config{ErrorHandler: h})
}

// DoJSON sends body as JSON and decodes a JSON object response (empty map when none).
func DoJSON(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return Send(t, app, req)
}

// Send runs req against app and decodes a JSON object response.
func Send(t *testing.T, app *fiber.App, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	_ = resp.Body.Close()
	return resp, out
}
