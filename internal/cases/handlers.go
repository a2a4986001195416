package cases

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-advocate-backend/internal/auth"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
	"github.com/aldoetobex/legal-advocate-backend/pkg/utils"
	"github.com/aldoetobex/legal-advocate-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

type advocateRef struct {
	ID string `json:"_id" validate:"required,uuid"`
}

// Request body for POST /cases
type SubmitCaseRequest struct {
	CaseName string      `json:"caseName" validate:"required,min=3,max=120"`
	CaseDesc string      `json:"caseDesc" validate:"max=5000"`
	Advocate advocateRef `json:"advocate"`
	CaseType string      `json:"caseType" validate:"max=20"`
}

// Request body for PUT /cases/:id/approve
type ApproveCaseRequest struct {
	CaseNum  string `json:"caseNum" validate:"omitempty,max=40"`
	CaseID   string `json:"case_id" validate:"omitempty,max=45"` // display number, accepted when caseNum is empty
	CaseType string `json:"caseType" validate:"omitempty,oneof=criminal civil family business property other"`
}

// Request body for PUT /cases/:id/reject
type RejectCaseRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// Request body for PATCH /documents/:docID
type RenameDocumentRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type paymentBrief struct {
	ID     uuid.UUID        `json:"id"`
	Amount string           `json:"amount"`
	Status models.PayStatus `json:"status"`
}

/* ============================== Handler ================================= */

type Handler struct{ svc *Service }

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// @Summary      Submit a case (client)
// @Description  A missing or unknown caseType defaults to civil.
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  SubmitCaseRequest  true  "Case"
// @Success      201  {object}  map[string]any  "success, message, caseId"
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse  "advocate not found"
// @Router       /cases [post]
func (h *Handler) Submit(c *fiber.Ctx) error {
	var in SubmitCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}

	cs, err := h.svc.Submit(c.UserContext(), utils.ParseID(auth.MustUserID(c)), SubmitInput{
		AdvocateID:  utils.ParseID(in.Advocate.ID),
		Title:       in.CaseName,
		Description: in.CaseDesc,
		CaseType:    in.CaseType,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Case submitted successfully",
		"caseId":  cs.ID,
	})
}

// @Summary      Approve a case (advocate)
// @Description  Assigns the final number, opens the case and raises a pending advance payment.
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string              true  "Case ID"
// @Param        payload  body  ApproveCaseRequest  true  "Approval"
// @Success      200  {object}  map[string]any  "success, case, payment"
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/approve [put]
func (h *Handler) Approve(c *fiber.Ctx) error {
	var in ApproveCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	num := in.CaseNum
	if num == "" {
		num = in.CaseID
	}
	if num == "" {
		return validation.Respond(c, map[string][]string{"caseNum": {"caseNum is required"}})
	}

	caseID, err := pathID(c, "id", "case")
	if err != nil {
		return err
	}
	cs, pay, err := h.svc.Approve(c.UserContext(), utils.ParseID(auth.MustUserID(c)), caseID, ApproveInput{
		CaseNum:  num,
		CaseType: in.CaseType,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"success": true,
		"case":    cs,
		"payment": paymentBrief{ID: pay.ID, Amount: pay.Amount.String(), Status: pay.Status},
	})
}

// @Summary      Reject a case awaiting approval (advocate)
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string             true   "Case ID"
// @Param        payload  body  RejectCaseRequest  false  "Reason"
// @Success      200  {object}  models.SuccessResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/reject [put]
func (h *Handler) Reject(c *fiber.Ctx) error {
	var in RejectCaseRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&in); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid json")
		}
		if errs, _ := validation.Validate(in); errs != nil {
			return validation.Respond(c, errs)
		}
	}
	caseID, err := pathID(c, "id", "case")
	if err != nil {
		return err
	}
	if err := h.svc.Reject(c.UserContext(), utils.ParseID(auth.MustUserID(c)), caseID, in.Reason); err != nil {
		return err
	}
	return c.JSON(models.SuccessResponse{Success: true, Message: "Case rejected"})
}

// @Summary      Close an open case (advocate)
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Case ID"
// @Success      200  {object}  map[string]any
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/close [put]
func (h *Handler) Close(c *fiber.Ctx) error {
	caseID, err := pathID(c, "id", "case")
	if err != nil {
		return err
	}
	cs, err := h.svc.Close(c.UserContext(), utils.ParseID(auth.MustUserID(c)), caseID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "case": cs})
}

// @Summary      List my cases
// @Description  Clients see cases they submitted, advocates see cases assigned to them. Newest first.
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        status    query  string  false  "Not Approved | Open | Closed"
// @Param        page      query  int     false  "Page (1-based)"
// @Param        pageSize  query  int     false  "Page size (max 50)"
// @Success      200  {object}  map[string]any
// @Router       /cases/mine [get]
func (h *Handler) ListMine(c *fiber.Ctx) error {
	userID := utils.ParseID(auth.MustUserID(c))
	q := ListQuery{Page: utils.ParsePage(c)}
	switch st := models.CaseStatus(strings.TrimSpace(c.Query("status"))); st {
	case "":
	case models.CaseNotApproved, models.CaseOpen, models.CaseClosed:
		q.Status = st
	default:
		return validation.Respond(c, map[string][]string{"status": {"status must be one of Not Approved, Open, Closed"}})
	}

	var (
		rows  []CaseSummary
		total int64
		err   error
	)
	switch auth.MustRole(c) {
	case models.RoleClient:
		rows, total, err = h.svc.ListForClient(c.UserContext(), userID, q)
	case models.RoleAdvocate:
		rows, total, err = h.svc.ListForAdvocate(c.UserContext(), userID, q)
	default:
		return apperr.Forbidden("only clients and advocates have cases")
	}
	if err != nil {
		return err
	}
	out := q.Page.Meta(total)
	out["success"] = true
	out["cases"] = rows
	return c.JSON(out)
}

// @Summary      Case detail
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Case ID"
// @Success      200  {object}  CaseDetail
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) Get(c *fiber.Ctx) error {
	caseID, err := pathID(c, "id", "case")
	if err != nil {
		return err
	}
	out, err := h.svc.Get(c.UserContext(), caseID, utils.ParseID(auth.MustUserID(c)), auth.MustRole(c))
	if err != nil {
		return err
	}
	return c.JSON(out)
}

// @Summary      Case audit trail
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Case ID"
// @Success      200  {object}  map[string]any
// @Router       /cases/{id}/history [get]
func (h *Handler) History(c *fiber.Ctx) error {
	caseID, err := pathID(c, "id", "case")
	if err != nil {
		return err
	}
	rows, err := h.svc.History(c.UserContext(), caseID, utils.ParseID(auth.MustUserID(c)), auth.MustRole(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "history": rows})
}

/* ============================== Documents =============================== */

// @Summary      Upload case documents (advocate)
// @Description  Up to 10 files, 10MB each. Each file reports its own error.
// @Tags         documents
// @Security     BearerAuth
// @Accept       multipart/form-data
// @Produce      json
// @Param        id     path      string  true  "Case ID"
// @Param        files  formData  []file  true  "PDF/PNG/JPEG/DOC(X) (max 10)"
// @Success      201  {object}  map[string]any  "results"
// @Failure      400  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases/{id}/documents [post]
func (h *Handler) UploadDocuments(c *fiber.Ctx) error {
	caseID, err := pathID(c, "id", "case")
	if err != nil {
		return err
	}
	form, err := c.MultipartForm()
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "multipart form required; use files[]")
	}
	// Swagger UI sends "files" even when "files[]" is documented
	files := form.File["files[]"]
	if len(files) == 0 {
		files = form.File["files"]
	}

	results, err := h.svc.Upload(c.UserContext(), utils.ParseID(auth.MustUserID(c)), caseID, files)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"results": results})
}

// @Summary      List case documents
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        id   path  string  true  "Case ID"
// @Success      200  {object}  map[string]any
// @Router       /cases/{id}/documents [get]
func (h *Handler) ListDocuments(c *fiber.Ctx) error {
	caseID, err := pathID(c, "id", "case")
	if err != nil {
		return err
	}
	docs, err := h.svc.ListDocuments(c.UserContext(), caseID, utils.ParseID(auth.MustUserID(c)), auth.MustRole(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "documents": docs})
}

// @Summary      Document download URL
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        docID  path  string  true  "Document ID"
// @Success      200  {object}  map[string]any  "url"
// @Router       /documents/{docID}/url [get]
func (h *Handler) DocumentURL(c *fiber.Ctx) error {
	docID, err := pathID(c, "docID", "document")
	if err != nil {
		return err
	}
	u, err := h.svc.DocumentURL(c.UserContext(), docID, utils.ParseID(auth.MustUserID(c)), auth.MustRole(c))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"url": u})
}

// @Summary      Rename a document (advocate)
// @Tags         documents
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        docID    path  string                 true  "Document ID"
// @Param        payload  body  RenameDocumentRequest  true  "New name"
// @Success      200  {object}  models.Document
// @Router       /documents/{docID} [patch]
func (h *Handler) RenameDocument(c *fiber.Ctx) error {
	var in RenameDocumentRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if errs, _ := validation.Validate(in); errs != nil {
		return validation.Respond(c, errs)
	}
	docID, err := pathID(c, "docID", "document")
	if err != nil {
		return err
	}
	doc, err := h.svc.RenameDocument(c.UserContext(), docID, utils.ParseID(auth.MustUserID(c)), in.Name)
	if err != nil {
		return err
	}
	return c.JSON(doc)
}

// @Summary      Delete a document (advocate)
// @Description  The record is removed even when the stored file is already gone.
// @Tags         documents
// @Security     BearerAuth
// @Produce      json
// @Param        docID  path  string  true  "Document ID"
// @Success      200  {object}  models.SuccessResponse
// @Router       /documents/{docID} [delete]
func (h *Handler) DeleteDocument(c *fiber.Ctx) error {
	docID, err := pathID(c, "docID", "document")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDocument(c.UserContext(), docID, utils.ParseID(auth.MustUserID(c))); err != nil {
		return err
	}
	return c.JSON(models.SuccessResponse{Success: true, Message: "Document deleted"})
}

// pathID parses a uuid path param; malformed ids read as not found.
func pathID(c *fiber.Ctx, param, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, apperr.NotFound(what)
	}
	return id, nil
}
