package reviews

import (
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/internal/auth"
	"github.com/aldoetobex/legal-advocate-backend/internal/logging"
	"github.com/aldoetobex/legal-advocate-backend/internal/testutil"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/database"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

func setup(t *testing.T) (*gorm.DB, *Service, models.User, models.Advocate) {
	t.Helper()
	db := testutil.OpenDB(t)
	return db, NewService(db, logging.Discard()), testutil.SeedClient(t, db, "Cara"), testutil.SeedAdvocate(t, db, "Adi", 1000)
}

func appFor(svc *Service, userID uuid.UUID) *fiber.App {
	h := NewHandler(svc)
	app := testutil.NewApp(auth.NewErrorHandler(logging.Discard()))
	app.Get("/api/advocates/:id/reviews", h.ListForAdvocate)
	app.Post("/api/reviews", testutil.InjectAuth(userID, models.RoleClient), h.Submit)
	return app
}

func TestSubmit_OncePerCaseAndClient(t *testing.T) {
	db, svc, client, adv := setup(t)
	cs := testutil.SeedCase(t, db, client.ID, adv.ID, models.CaseClosed)
	app := appFor(svc, client.ID)

	resp, out := testutil.DoJSON(t, app, http.MethodPost, "/api/reviews", map[string]any{"caseId": cs.ID, "rating": 5, "review": "Sorted it out fast"})
	require.Equal(t, http.StatusCreated, resp.StatusCode, out)
	r := out["review"].(map[string]any)
	assert.Equal(t, adv.ID.String(), r["advocate_id"])
	assert.Equal(t, "Sorted it out fast", r["review"])

	resp, out = testutil.DoJSON(t, app, http.MethodPost, "/api/reviews", map[string]any{"caseId": cs.ID, "rating": 1})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_ENTITY", out["code"])
	assert.Equal(t, "you have already reviewed this case", out["message"])

	var n int64
	require.NoError(t, db.Model(&models.Review{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestReviewIndex_BlocksConcurrentDuplicate(t *testing.T) {
	db, svc, client, adv := setup(t)
	cs := testutil.SeedCase(t, db, client.ID, adv.ID, models.CaseOpen)
	_, err := svc.Submit(t.Context(), client.ID, cs.ID, 4, "")
	require.NoError(t, err)

	err = db.Create(&models.Review{CaseID: cs.ID, ClientID: client.ID, AdvocateID: adv.ID, Rating: 3}).Error
	require.Error(t, err)
	assert.True(t, database.IsUniqueViolation(err))
}

func TestSubmit_Guards(t *testing.T) {
	db, svc, client, adv := setup(t)
	cs := testutil.SeedCase(t, db, client.ID, adv.ID, models.CaseOpen)

	_, err := svc.Submit(t.Context(), client.ID, uuid.New(), 4, "")
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))

	stranger := testutil.SeedClient(t, db, "Sam")
	_, err = svc.Submit(t.Context(), stranger.ID, cs.ID, 4, "")
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	_, err = svc.Submit(t.Context(), client.ID, cs.ID, 6, "")
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	resp, out := testutil.DoJSON(t, appFor(svc, client.ID), http.MethodPost, "/api/reviews", map[string]any{"caseId": cs.ID, "rating": 0})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, out["errors"], "rating")
}

func TestListForAdvocate_NewestFirstWithAggregate(t *testing.T) {
	db, svc, client, adv := setup(t)
	first := testutil.SeedCase(t, db, client.ID, adv.ID, models.CaseClosed)
	second := testutil.SeedCase(t, db, client.ID, adv.ID, models.CaseClosed)
	r1, err := svc.Submit(t.Context(), client.ID, first.ID, 4, "good")
	require.NoError(t, err)
	r2, err := svc.Submit(t.Context(), client.ID, second.ID, 5, "great")
	require.NoError(t, err)
	require.NoError(t, db.Model(&r1).Update("created_at", time.Now().Add(-time.Hour)).Error)

	// a case that disappeared degrades to a placeholder
	require.NoError(t, db.Delete(&models.Case{}, "id = ?", second.ID).Error)

	resp, out := testutil.DoJSON(t, appFor(svc, client.ID), http.MethodGet, "/api/advocates/"+adv.ID.String()+"/reviews", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := out["reviews"].([]any)
	require.Len(t, rows, 2)
	top := rows[0].(map[string]any)
	assert.Equal(t, r2.ID.String(), top["id"])
	assert.Equal(t, "Unknown", top["case_title"])
	assert.Equal(t, "Cara", top["client_name"])
	assert.Equal(t, "Boundary dispute", rows[1].(map[string]any)["case_title"])

	rating := out["rating"].(map[string]any)
	assert.InDelta(t, 4.5, rating["average"], 0.001)
	assert.EqualValues(t, 2, rating["count"])
}

func TestAggregate_NoReviews(t *testing.T) {
	_, svc, _, adv := setup(t)
	r, err := svc.Aggregate(t.Context(), adv.ID)
	require.NoError(t, err)
	assert.Zero(t, r.Count)
	assert.Zero(t, r.Average)
}
