package advocates

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/internal/auth"
	"github.com/aldoetobex/legal-advocate-backend/internal/logging"
	"github.com/aldoetobex/legal-advocate-backend/internal/reviews"
	"github.com/aldoetobex/legal-advocate-backend/internal/testutil"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

func setup(t *testing.T) (*gorm.DB, *Service, *reviews.Service) {
	t.Helper()
	db := testutil.OpenDB(t)
	rv := reviews.NewService(db, logging.Discard())
	return db, NewService(db, rv, logging.Discard()), rv
}

func appFor(svc *Service, userID uuid.UUID, role models.Role) *fiber.App {
	h := NewHandler(svc)
	app := testutil.NewApp(auth.NewErrorHandler(logging.Discard()))
	app.Get("/api/advocates", h.List)
	app.Get("/api/advocates/:id", h.Get)
	app.Put("/api/advocate/profile/fees", testutil.InjectAuth(userID, role), h.UpdateFees)
	admin := app.Group("/api/admin", testutil.InjectAuth(userID, role), auth.RequireRole(models.RoleAdmin))
	admin.Get("/advocates/pending", h.ListPending)
	admin.Put("/advocates/:id/verify", h.Verify)
	return app
}

func TestListVerified_FiltersAndRates(t *testing.T) {
	db, svc, rv := setup(t)
	client := testutil.SeedClient(t, db, "Cara")
	civil := testutil.SeedAdvocate(t, db, "Adi", 1000)
	family := testutil.SeedAdvocate(t, db, "Bea", 2000)
	require.NoError(t, db.Model(&family).Update("specializations", datatypes.JSONSlice[string]{"family", "property"}).Error)
	hidden := testutil.SeedAdvocate(t, db, "Cyd", 1000)
	require.NoError(t, db.Model(&hidden).Update("verified", false).Error)

	for _, r := range []int{4, 5} {
		cs := testutil.SeedCase(t, db, client.ID, civil.ID, models.CaseClosed)
		_, err := rv.Submit(t.Context(), client.ID, cs.ID, r, "")
		require.NoError(t, err)
	}

	all, err := svc.ListVerified(t.Context(), "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Adi", all[0].Name)
	assert.InDelta(t, 4.5, all[0].Rating.Average, 0.001)
	assert.Equal(t, int64(2), all[0].Rating.Count)
	assert.Zero(t, all[1].Rating.Count)

	fam, err := svc.ListVerified(t.Context(), " Family ")
	require.NoError(t, err)
	require.Len(t, fam, 1)
	assert.Equal(t, family.ID, fam[0].ID)

	none, err := svc.ListVerified(t.Context(), "tax")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestGet_OnlyVerified(t *testing.T) {
	db, svc, _ := setup(t)
	a := testutil.SeedAdvocate(t, db, "Adi", 1000)
	app := appFor(svc, uuid.New(), models.RoleClient)

	resp, out := testutil.DoJSON(t, app, http.MethodGet, "/api/advocates/"+a.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, out)
	adv := out["advocate"].(map[string]any)
	assert.Equal(t, "Adi", adv["name"])
	assert.NotContains(t, adv, "PasswordHash")

	require.NoError(t, db.Model(&a).Update("verified", false).Error)
	resp, _ = testutil.DoJSON(t, app, http.MethodGet, "/api/advocates/"+a.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = testutil.DoJSON(t, app, http.MethodGet, "/api/advocates/not-a-uuid", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestUpdateFees(t *testing.T) {
	db, svc, _ := setup(t)
	a := testutil.SeedAdvocate(t, db, "Adi", 1000)
	app := appFor(svc, a.ID, models.RoleAdvocate)

	resp, out := testutil.DoJSON(t, app, http.MethodPut, "/api/advocate/profile/fees", map[string]any{
		"advance_fee":     "7500",
		"specializations": []string{" Criminal ", "civil", "criminal"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, out)

	var got models.Advocate
	require.NoError(t, db.First(&got, "id = ?", a.ID).Error)
	assert.True(t, got.AdvanceFee.Equal(decimal.NewFromInt(7500)))
	assert.True(t, got.SittingFee.Equal(decimal.NewFromInt(500)), "untouched fee stays")
	assert.Equal(t, []string{"criminal", "civil"}, []string(got.Specializations))

	neg := decimal.NewFromInt(-1)
	_, err := svc.UpdateFees(t.Context(), a.ID, FeeUpdate{SittingFee: &neg})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = svc.UpdateFees(t.Context(), uuid.New(), FeeUpdate{AdvanceFee: &neg})
	assert.Error(t, err)
}

func TestVerify_AdminOnlyAndIdempotent(t *testing.T) {
	db, svc, _ := setup(t)
	a := testutil.SeedAdvocate(t, db, "Adi", 1000)
	require.NoError(t, db.Model(&a).Update("verified", false).Error)

	resp, _ := testutil.DoJSON(t, appFor(svc, a.ID, models.RoleAdvocate), http.MethodPut, "/api/admin/advocates/"+a.ID.String()+"/verify", nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	app := appFor(svc, uuid.New(), models.RoleAdmin)
	resp, out := testutil.DoJSON(t, app, http.MethodGet, "/api/admin/advocates/pending", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["advocates"], 1)

	for range 2 {
		resp, out = testutil.DoJSON(t, app, http.MethodPut, "/api/admin/advocates/"+a.ID.String()+"/verify", nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, out)
		assert.Equal(t, true, out["advocate"].(map[string]any)["verified"])
	}

	pending, err := svc.ListUnverified(t.Context())
	require.NoError(t, err)
	assert.Empty(t, pending)
}
