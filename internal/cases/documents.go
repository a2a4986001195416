package cases

import (
	"context"
	"mime"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aldoetobex/legal-advocate-backend/internal/storage"
	"github.com/aldoetobex/legal-advocate-backend/pkg/apperr"
	"github.com/aldoetobex/legal-advocate-backend/pkg/models"
)

const (
	maxFiles    = 10
	maxFileSize = 10 * 1024 * 1024
)

var allowedMime = map[string]bool{
	"application/pdf":    true,
	"image/png":          true,
	"image/jpeg":         true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// UploadResult reports one file of a multi-file upload.
type UploadResult struct {
	Name  string     `json:"name"`
	Size  int64      `json:"size"`
	ID    *uuid.UUID `json:"id,omitempty"`
	URL   string     `json:"url,omitempty"`
	Error string     `json:"error,omitempty"`
}

// Upload stores files for a case owned by the advocate. Files fail individually.
func (s *Service) Upload(ctx context.Context, advocateID, caseID uuid.UUID, files []*multipart.FileHeader) ([]UploadResult, error) {
	cs, err := s.authorize(ctx, caseID, advocateID, models.RoleAdvocate)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, apperr.Validation("files are required (use key: files[])")
	}
	if len(files) > maxFiles {
		return nil, apperr.Validation("max 10 files allowed")
	}

	results := make([]UploadResult, 0, len(files))
	for _, fh := range files {
		results = append(results, s.uploadOne(ctx, cs, fh))
	}
	return results, nil
}

func (s *Service) uploadOne(ctx context.Context, cs models.Case, fh *multipart.FileHeader) UploadResult {
	res := UploadResult{Name: fh.Filename, Size: fh.Size}
	if fh.Size <= 0 {
		res.Error = "empty file"
		return res
	}
	if fh.Size > maxFileSize {
		res.Error = "max 10MB per file"
		return res
	}

	ct := fh.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct = mime.TypeByExtension(strings.ToLower(filepath.Ext(fh.Filename)))
	}
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if !allowedMime[ct] {
		res.Error = "only PDF, PNG, JPEG or Word documents are allowed"
		return res
	}

	f, err := fh.Open()
	if err != nil {
		res.Error = "open failed"
		return res
	}
	defer f.Close()

	key := storage.ObjectKey(cs.ID.String(), fh.Filename)
	if err := s.store.Put(ctx, key, f, ct, fh.Size); err != nil {
		s.log.ErrorContext(ctx, "document upload failed", "case_id", cs.ID, "key", key, "err", err)
		res.Error = "upload failed"
		return res
	}
	url, _ := s.store.URL(ctx, key)

	doc := models.Document{
		CaseID:     cs.ID,
		AdvocateID: cs.AdvocateID,
		Name:       fh.Filename,
		Key:        key,
		URL:        url,
		Mime:       ct,
		Size:       fh.Size,
	}
	if err := s.db.WithContext(ctx).Create(&doc).Error; err != nil {
		s.log.ErrorContext(ctx, "document record failed", "case_id", cs.ID, "err", err)
		_ = s.store.Delete(ctx, key)
		res.Error = "database error"
		return res
	}

	res.ID, res.URL = &doc.ID, doc.URL
	return res
}

// ListDocuments returns the documents of a case the viewer may see.
func (s *Service) ListDocuments(ctx context.Context, caseID, viewerID uuid.UUID, role models.Role) ([]models.Document, error) {
	if _, err := s.authorize(ctx, caseID, viewerID, role); err != nil {
		return nil, err
	}
	return s.listDocuments(ctx, caseID)
}

func (s *Service) listDocuments(ctx context.Context, caseID uuid.UUID) ([]models.Document, error) {
	docs := []models.Document{}
	if err := s.db.WithContext(ctx).Where("case_id = ?", caseID).Order("created_at ASC").Find(&docs).Error; err != nil {
		return nil, err
	}
	for i := range docs {
		// presigned links expire; refresh, keep the stored one on failure
		if u, err := s.store.URL(ctx, docs[i].Key); err == nil {
			docs[i].URL = u
		}
	}
	return docs, nil
}

// DocumentURL returns a fresh download link.
func (s *Service) DocumentURL(ctx context.Context, docID, viewerID uuid.UUID, role models.Role) (string, error) {
	doc, err := s.document(ctx, docID)
	if err != nil {
		return "", err
	}
	if _, err := s.authorize(ctx, doc.CaseID, viewerID, role); err != nil {
		return "", err
	}
	u, err := s.store.URL(ctx, doc.Key)
	if err != nil {
		return "", apperr.Wrap(apperr.KindUpstream, "storage unavailable", err)
	}
	return u, nil
}

// RenameDocument changes the display name only; the stored object keeps its key.
func (s *Service) RenameDocument(ctx context.Context, docID, advocateID uuid.UUID, name string) (models.Document, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Document{}, apperr.Validation("name is required")
	}
	doc, err := s.ownDocument(ctx, docID, advocateID)
	if err != nil {
		return models.Document{}, err
	}
	if err := s.db.WithContext(ctx).Model(&doc).Update("name", name).Error; err != nil {
		return models.Document{}, err
	}
	doc.Name = name
	return doc, nil
}

// DeleteDocument removes the record, then the stored file best-effort.
func (s *Service) DeleteDocument(ctx context.Context, docID, advocateID uuid.UUID) error {
	doc, err := s.ownDocument(ctx, docID, advocateID)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&models.Document{}, "id = ?", doc.ID).Error; err != nil {
		return err
	}
	s.removeFile(ctx, doc)
	return nil
}

func (s *Service) removeFile(ctx context.Context, doc models.Document) {
	if err := s.store.Delete(ctx, doc.Key); err != nil {
		s.log.WarnContext(ctx, "stored file not removed", "document_id", doc.ID, "key", doc.Key, "err", err)
	}
}

func (s *Service) document(ctx context.Context, id uuid.UUID) (models.Document, error) {
	var doc models.Document
	if err := s.db.WithContext(ctx).First(&doc, "id = ?", id).Error; err != nil {
		return models.Document{}, notFoundOr(err, "document")
	}
	return doc, nil
}

func (s *Service) ownDocument(ctx context.Context, id, advocateID uuid.UUID) (models.Document, error) {
	doc, err := s.document(ctx, id)
	if err != nil {
		return models.Document{}, err
	}
	if _, err := s.authorize(ctx, doc.CaseID, advocateID, models.RoleAdvocate); err != nil {
		return models.Document{}, err
	}
	return doc, nil
}
