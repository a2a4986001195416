package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey_SanitizesName(t *testing.T) {
	key := ObjectKey("c1", "../../etc/pass wd.pdf")
	assert.True(t, strings.HasPrefix(key, "case/c1/"), key)
	assert.True(t, strings.HasSuffix(key, "-pass_wd.pdf"), key)
	assert.NotContains(t, key, "..")
}

func TestLocal_PutURLDelete(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocal(dir, "uploads")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, l.Put(ctx, "case/c1/a.pdf", strings.NewReader("%PDF"), "application/pdf", 4))
	b, err := os.ReadFile(filepath.Join(dir, "case", "c1", "a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF", string(b))

	u, err := l.URL(ctx, "case/c1/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, "/uploads/case/c1/a.pdf", u)

	require.NoError(t, l.Delete(ctx, "case/c1/a.pdf"))
	// Already gone is fine
	require.NoError(t, l.Delete(ctx, "case/c1/a.pdf"))
}

func TestSupabase_DeleteTreats404AsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		switch r.Method {
		case http.MethodDelete:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPost:
			if strings.Contains(r.URL.Path, "/sign/") {
				_, _ = io.WriteString(w, `{"signedURL":"/object/sign/docs/case/a.pdf?token=t"}`)
				return
			}
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	s := NewSupabase(srv.URL, "key", "docs")
	ctx := context.Background()
	require.NoError(t, s.Put(ctx, "case/a.pdf", strings.NewReader("x"), "application/pdf", 1))
	require.NoError(t, s.Delete(ctx, "case/a.pdf"))

	u, err := s.URL(ctx, "case/a.pdf")
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/storage/v1/object/sign/docs/case/a.pdf?token=t", u)
}
