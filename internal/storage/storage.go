// Package storage keeps uploaded case documents behind a small driver interface.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aldoetobex/legal-advocate-backend/internal/config"
)

// Store persists document bytes under an object key.
type Store interface {
	// Put writes r under key.
	Put(ctx context.Context, key string, r io.Reader, contentType string, size int64) error
	// Delete removes key. A missing object is not an error.
	Delete(ctx context.Context, key string) error
	// URL returns a link the frontend can use to download key.
	URL(ctx context.Context, key string) (string, error)
}

// New picks the driver named by cfg.Driver.
func New(ctx context.Context, cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", "local":
		return NewLocal(cfg.UploadDir, cfg.URLPrefix)
	case "s3":
		return NewS3(ctx, cfg)
	case "supabase":
		return NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

// ObjectKey builds a tidy, per-case object key: case/<caseID>/<uuid>-<filename>
func ObjectKey(caseID, filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	if name == "" || name == "." || name == ".." {
		name = "file"
	}
	return path.Join("case", caseID, uuid.NewString()[:8]+"-"+name)
}
