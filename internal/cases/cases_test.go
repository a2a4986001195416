package cases

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-advocate-backend/internal/auth"
	"github.com/aldoetobex/legal-advocate-backend/internal/config"
	"github.com/aldoetobex/legal-advocate-backend/internal/logging"
	"github.com/aldoetobex/legal-advocate-backend/internal/storage"
	"github.com/aldoetobex/legal-advocate-backend/internal/testutil"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

/* ============================================================================
   Helpers
   ============================================================================ */

type fixture struct {
	db       *gorm.DB
	svc      *Service
	store    *storage.Local
	client   models.User
	advocate models.Advocate
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	store, err := storage.NewLocal(t.TempDir(), "/uploads")
	require.NoError(t, err)
	svc := NewService(db, store, logging.Discard(), config.FeeDefaults{
		AdvanceFee:      decimal.NewFromInt(1000),
		ConsultationFee: decimal.NewFromInt(500),
	})
	return fixture{
		db:       db,
		svc:      svc,
		store:    store,
		client:   testutil.SeedClient(t, db, "Cara"),
		advocate: testutil.SeedAdvocate(t, db, "Adi", 5000),
	}
}

// appFor mounts the case routes as one authenticated user.
// Static paths are registered before /:id so they are not shadowed.
func (f fixture) appFor(userID uuid.UUID, role models.Role) *fiber.App {
	h := NewHandler(f.svc)
	app := testutil.NewApp(auth.NewErrorHandler(logging.Discard()))
	app.Use(testutil.InjectAuth(userID, role))

	app.Post("/api/cases", h.Submit)
	app.Get("/api/cases/mine", h.ListMine)
	app.Put("/api/cases/:id/approve", h.Approve)
	app.Put("/api/cases/:id/reject", h.Reject)
	app.Put("/api/cases/:id/close", h.Close)
	app.Get("/api/cases/:id/history", h.History)
	app.Post("/api/cases/:id/documents", h.UploadDocuments)
	app.Get("/api/cases/:id/documents", h.ListDocuments)
	app.Get("/api/cases/:id", h.Get)
	app.Get("/api/documents/:docID/url", h.DocumentURL)
	app.Patch("/api/documents/:docID", h.RenameDocument)
	app.Delete("/api/documents/:docID", h.DeleteDocument)
	return app
}

func (f fixture) submit(t *testing.T, caseType string) string {
	t.Helper()
	app := f.appFor(f.client.ID, models.RoleClient)
	resp, body := testutil.DoJSON(t, app, http.MethodPost, "/api/cases", map[string]any{
		"caseName": "Tenant will not leave",
		"caseDesc": "Call me on +91 98765 43210 or mail cara@example.com",
		"advocate": map[string]any{"_id": f.advocate.ID},
		"caseType": caseType,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, true, body["success"])
	id, _ := body["caseId"].(string)
	require.NotEmpty(t, id)
	return id
}

func (f fixture) load(t *testing.T, id string) models.Case {
	t.Helper()
	var cs models.Case
	require.NoError(t, f.db.First(&cs, "id = ?", id).Error)
	return cs
}

func multipartBody(t *testing.T, name, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="files[]"; filename="`+name+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := w.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

/* ============================================================================
   Lifecycle
   ============================================================================ */

func TestSubmitThenApprove_RaisesAdvancePayment(t *testing.T) {
	f := setup(t)
	id := f.submit(t, "property")

	cs := f.load(t, id)
	assert.Equal(t, models.CaseNotApproved, cs.Status)
	assert.True(t, strings.HasPrefix(cs.CaseNumber, "TEMP-"))
	assert.Equal(t, models.CaseProperty, cs.CaseType)

	app := f.appFor(f.advocate.ID, models.RoleAdvocate)
	resp, body := testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+id+"/approve", map[string]any{
		"caseNum": "N42", "caseType": "civil",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)

	got := body["case"].(map[string]any)
	assert.Equal(t, "CASE-N42", got["case_number"])
	assert.Equal(t, "Open", got["status"])
	assert.Equal(t, "civil", got["case_type"])

	pay := body["payment"].(map[string]any)
	assert.Equal(t, "5000", pay["amount"])
	assert.Equal(t, "Pending", pay["status"])

	var stored models.Payment
	require.NoError(t, f.db.First(&stored, "id = ?", pay["id"]).Error)
	assert.Equal(t, models.PayAdvance, stored.Type)
	assert.Equal(t, models.PayPending, stored.Status)
	assert.True(t, stored.Amount.Equal(decimal.NewFromInt(5000)))
	assert.Equal(t, f.advocate.ID, stored.AdvocateID)
	assert.Equal(t, f.client.ID, stored.ClientID)
	require.NotNil(t, stored.CaseID)
	assert.Equal(t, id, stored.CaseID.String())
}

func TestSubmit_UnknownCaseTypeDefaultsToCivil(t *testing.T) {
	f := setup(t)
	assert.Equal(t, models.CaseCivil, f.load(t, f.submit(t, "maritime")).CaseType)
	assert.Equal(t, models.CaseCivil, f.load(t, f.submit(t, "")).CaseType)
	assert.Equal(t, models.CaseFamily, f.load(t, f.submit(t, "Family")).CaseType)
}

func TestSubmit_Rejections(t *testing.T) {
	f := setup(t)

	// token subject that is not a client
	ghost := f.appFor(uuid.New(), models.RoleClient)
	resp, body := testutil.DoJSON(t, ghost, http.MethodPost, "/api/cases", map[string]any{
		"caseName": "Ghost case", "advocate": map[string]any{"_id": f.advocate.ID},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	app := f.appFor(f.client.ID, models.RoleClient)
	resp, body = testutil.DoJSON(t, app, http.MethodPost, "/api/cases", map[string]any{"caseName": "No advocate"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["errors"], "_id")

	unverified := testutil.SeedAdvocate(t, f.db, "Una", 100)
	require.NoError(t, f.db.Model(&unverified).Update("verified", false).Error)
	resp, body = testutil.DoJSON(t, app, http.MethodPost, "/api/cases", map[string]any{
		"caseName": "Hidden advocate", "advocate": map[string]any{"_id": unverified.ID},
	})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "advocate not found", body["message"])
}

func TestApprove_Guards(t *testing.T) {
	f := setup(t)
	id := f.submit(t, "civil")

	rival := testutil.SeedAdvocate(t, f.db, "Rita", 100)
	resp, _ := testutil.DoJSON(t, f.appFor(rival.ID, models.RoleAdvocate), http.MethodPut, "/api/cases/"+id+"/approve", map[string]any{"caseNum": "1"})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	app := f.appFor(f.advocate.ID, models.RoleAdvocate)
	resp, _ = testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+uuid.NewString()+"/approve", map[string]any{"caseNum": "1"})
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, body := testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+id+"/approve", map[string]any{})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["errors"], "caseNum")

	resp, _ = testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+id+"/approve", map[string]any{"caseNum": "7"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+id+"/approve", map[string]any{"caseNum": "8"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])

	var n int64
	require.NoError(t, f.db.Model(&models.Payment{}).Where("case_id = ?", id).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestApprove_DuplicateNumberRollsBack(t *testing.T) {
	f := setup(t)
	first := f.submit(t, "civil")
	second := f.submit(t, "civil")
	app := f.appFor(f.advocate.ID, models.RoleAdvocate)

	resp, _ := testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+first+"/approve", map[string]any{"caseNum": "N1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body := testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+second+"/approve", map[string]any{"caseNum": "N1"})
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DUPLICATE_ENTITY", body["code"])

	assert.Equal(t, models.CaseNotApproved, f.load(t, second).Status)
	var n int64
	require.NoError(t, f.db.Model(&models.Payment{}).Where("case_id = ?", second).Count(&n).Error)
	assert.Zero(t, n)
}

func TestApprove_FallsBackToDefaultFee(t *testing.T) {
	f := setup(t)
	require.NoError(t, f.db.Model(&f.advocate).Update("advance_fee", decimal.Zero).Error)
	id := f.submit(t, "civil")

	_, pay, err := f.svc.Approve(t.Context(), f.advocate.ID, utilsID(t, id), ApproveInput{CaseNum: "CASE-9"})
	require.NoError(t, err)
	assert.Equal(t, "1000", pay.Amount.String())
	assert.Equal(t, "CASE-9", f.load(t, id).CaseNumber)
}

func TestReject_OnlyWhileAwaitingApproval(t *testing.T) {
	f := setup(t)
	app := f.appFor(f.advocate.ID, models.RoleAdvocate)

	pending := f.submit(t, "civil")
	resp, body := testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+pending+"/reject", map[string]any{"reason": "conflict of interest"})
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var n int64
	require.NoError(t, f.db.Model(&models.Case{}).Where("id = ?", pending).Count(&n).Error)
	assert.Zero(t, n)

	open := testutil.SeedCase(t, f.db, f.client.ID, f.advocate.ID, models.CaseOpen)
	resp, body = testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+open.ID.String()+"/reject", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
	assert.Equal(t, models.CaseOpen, f.load(t, open.ID.String()).Status)

	resp, _ = testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+pending+"/reject", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestClose_OnlyFromOpen(t *testing.T) {
	f := setup(t)
	app := f.appFor(f.advocate.ID, models.RoleAdvocate)

	pending := testutil.SeedCase(t, f.db, f.client.ID, f.advocate.ID, models.CaseNotApproved)
	resp, _ := testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+pending.ID.String()+"/close", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	open := testutil.SeedCase(t, f.db, f.client.ID, f.advocate.ID, models.CaseOpen)
	resp, body := testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+open.ID.String()+"/close", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Closed", body["case"].(map[string]any)["status"])

	resp, body = testutil.DoJSON(t, app, http.MethodPut, "/api/cases/"+open.ID.String()+"/close", nil)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "INVALID_TRANSITION", body["code"])
}

/* ============================================================================
   Reads
   ============================================================================ */

func TestListMine_NewestFirstAndRedactedForAdvocate(t *testing.T) {
	f := setup(t)
	older := f.submit(t, "civil")
	newer := f.submit(t, "civil")
	now := time.Now()
	require.NoError(t, f.db.Model(&models.Case{}).Where("id = ?", older).Update("created_at", now.Add(-time.Hour)).Error)
	require.NoError(t, f.db.Model(&models.Case{}).Where("id = ?", newer).Update("created_at", now).Error)

	resp, body := testutil.DoJSON(t, f.appFor(f.advocate.ID, models.RoleAdvocate), http.MethodGet, "/api/cases/mine", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := body["cases"].([]any)
	require.Len(t, rows, 2)
	first := rows[0].(map[string]any)
	assert.Equal(t, newer, first["id"])
	assert.Equal(t, older, rows[1].(map[string]any)["id"])
	assert.NotContains(t, first["preview"], "98765")
	assert.NotContains(t, first["preview"], "cara@example.com")
	assert.Equal(t, "Cara", first["client"].(map[string]any)["name"])

	resp, body = testutil.DoJSON(t, f.appFor(f.client.ID, models.RoleClient), http.MethodGet, "/api/cases/mine", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	mine := body["cases"].([]any)[0].(map[string]any)
	assert.Contains(t, mine["preview"], "cara@example.com")
	assert.Equal(t, "Adi", mine["advocate"].(map[string]any)["name"])
}

func TestListMine_StatusFilterAndPages(t *testing.T) {
	f := setup(t)
	for range 3 {
		f.submit(t, "civil")
	}
	open := f.submit(t, "civil")
	require.NoError(t, f.db.Model(&models.Case{}).Where("id = ?", open).Update("status", models.CaseOpen).Error)
	app := f.appFor(f.client.ID, models.RoleClient)

	resp, body := testutil.DoJSON(t, app, http.MethodGet, "/api/cases/mine?status=Open", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body["cases"], 1)
	assert.Equal(t, open, body["cases"].([]any)[0].(map[string]any)["id"])
	assert.EqualValues(t, 1, body["total"])

	resp, body = testutil.DoJSON(t, app, http.MethodGet, "/api/cases/mine?page=2&pageSize=3", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["cases"], 1)
	assert.EqualValues(t, 4, body["total"])
	assert.EqualValues(t, 2, body["pages"])
	assert.EqualValues(t, 2, body["page"])

	resp, body = testutil.DoJSON(t, app, http.MethodGet, "/api/cases/mine?status=Pending", nil)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["errors"], "status")
}

func TestGet_DegradesMissingPartiesToUnknown(t *testing.T) {
	f := setup(t)
	cs := testutil.SeedCase(t, f.db, f.client.ID, f.advocate.ID, models.CaseOpen)
	require.NoError(t, f.db.Delete(&models.Advocate{}, "id = ?", f.advocate.ID).Error)

	resp, body := testutil.DoJSON(t, f.appFor(f.client.ID, models.RoleClient), http.MethodGet, "/api/cases/"+cs.ID.String(), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Unknown", body["advocate"].(map[string]any)["name"])
	assert.Equal(t, "Cara", body["client"].(map[string]any)["name"])
	assert.Empty(t, body["documents"])

	stranger := testutil.SeedClient(t, f.db, "Sam")
	resp, _ = testutil.DoJSON(t, f.appFor(stranger.ID, models.RoleClient), http.MethodGet, "/api/cases/"+cs.ID.String(), nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHistory_RecordsLifecycle(t *testing.T) {
	f := setup(t)
	id := f.submit(t, "civil")
	_, _, err := f.svc.Approve(t.Context(), f.advocate.ID, utilsID(t, id), ApproveInput{CaseNum: "H1"})
	require.NoError(t, err)
	_, err = f.svc.Close(t.Context(), f.advocate.ID, utilsID(t, id))
	require.NoError(t, err)

	rows, err := f.svc.History(t.Context(), utilsID(t, id), f.client.ID, models.RoleClient)
	require.NoError(t, err)
	actions := make([]string, 0, len(rows))
	for _, r := range rows {
		actions = append(actions, r.Action)
	}
	assert.ElementsMatch(t, []string{"submitted", "approved", "closed"}, actions)
}

/* ============================================================================
   Documents
   ============================================================================ */

func TestDocuments_UploadListRenameDelete(t *testing.T) {
	f := setup(t)
	cs := testutil.SeedCase(t, f.db, f.client.ID, f.advocate.ID, models.CaseOpen)
	app := f.appFor(f.advocate.ID, models.RoleAdvocate)

	body, ct := multipartBody(t, "lease.pdf", "application/pdf", []byte("%PDF-1.4 lease"))
	req := httptest.NewRequest(http.MethodPost, "/api/cases/"+cs.ID.String()+"/documents", body)
	req.Header.Set("Content-Type", ct)
	resp, out := testutil.Send(t, app, req)
	require.Equal(t, http.StatusCreated, resp.StatusCode, out)
	results := out["results"].([]any)
	require.Len(t, results, 1)
	first := results[0].(map[string]any)
	require.Empty(t, first["error"])
	docID := first["id"].(string)
	assert.True(t, strings.HasPrefix(first["url"].(string), "/uploads/case/"+cs.ID.String()+"/"))

	var doc models.Document
	require.NoError(t, f.db.First(&doc, "id = ?", docID).Error)
	onDisk := filepath.Join(f.store.Root(), filepath.FromSlash(doc.Key))
	_, err := os.Stat(onDisk)
	require.NoError(t, err)

	// the client can list and download
	clientApp := f.appFor(f.client.ID, models.RoleClient)
	resp, out = testutil.DoJSON(t, clientApp, http.MethodGet, "/api/cases/"+cs.ID.String()+"/documents", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, out["documents"], 1)
	resp, out = testutil.DoJSON(t, clientApp, http.MethodGet, "/api/documents/"+docID+"/url", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "/uploads/"+doc.Key, out["url"])

	// only the advocate manages them
	resp, _ = testutil.DoJSON(t, clientApp, http.MethodDelete, "/api/documents/"+docID, nil)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, out = testutil.DoJSON(t, app, http.MethodPatch, "/api/documents/"+docID, map[string]any{"name": "Signed lease.pdf"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Signed lease.pdf", out["name"])

	resp, _ = testutil.DoJSON(t, app, http.MethodDelete, "/api/documents/"+docID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err = os.Stat(onDisk)
	assert.True(t, os.IsNotExist(err))
}

func TestDocuments_DeleteSurvivesMissingFile(t *testing.T) {
	f := setup(t)
	cs := testutil.SeedCase(t, f.db, f.client.ID, f.advocate.ID, models.CaseOpen)
	doc := models.Document{CaseID: cs.ID, AdvocateID: f.advocate.ID, Name: "gone.pdf", Key: "case/" + cs.ID.String() + "/gone.pdf"}
	require.NoError(t, f.db.Create(&doc).Error)

	require.NoError(t, f.svc.DeleteDocument(t.Context(), doc.ID, f.advocate.ID))
	var n int64
	require.NoError(t, f.db.Model(&models.Document{}).Where("id = ?", doc.ID).Count(&n).Error)
	assert.Zero(t, n)
}

func TestDocuments_RejectsDisallowedType(t *testing.T) {
	f := setup(t)
	cs := testutil.SeedCase(t, f.db, f.client.ID, f.advocate.ID, models.CaseOpen)

	body, ct := multipartBody(t, "run.sh", "text/x-shellscript", []byte("#!/bin/sh"))
	req := httptest.NewRequest(http.MethodPost, "/api/cases/"+cs.ID.String()+"/documents", body)
	req.Header.Set("Content-Type", ct)
	resp, out := testutil.Send(t, f.appFor(f.advocate.ID, models.RoleAdvocate), req)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	first := out["results"].([]any)[0].(map[string]any)
	assert.NotEmpty(t, first["error"])

	var n int64
	require.NoError(t, f.db.Model(&models.Document{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestDisplayNumber(t *testing.T) {
	assert.Equal(t, "CASE-N42", DisplayNumber("N42"))
	assert.Equal(t, "CASE-N42", DisplayNumber("CASE-N42"))
	assert.Equal(t, "CASE-N42", DisplayNumber(" CASE N42 "))
}

func utilsID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	require.NoError(t, err)
	return id
}
