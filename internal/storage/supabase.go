package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const supabaseSignTTL = 300 // seconds

// Supabase talks to the Supabase Storage REST API. apiKey may be a legacy
// service_role JWT or an sb_secret_ key; both are sent as apikey and bearer.
type Supabase struct {
	endpoint string // <project>/storage/v1
	apiKey   string
	bucket   string
	client   *http.Client
}

func NewSupabase(baseURL, apiKey, bucket string) *Supabase {
	return &Supabase{
		endpoint: strings.TrimRight(baseURL, "/") + "/storage/v1",
		apiKey:   apiKey,
		bucket:   bucket,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Supabase) objectURL(kind, key string) string {
	if kind != "" {
		return fmt.Sprintf("%s/object/%s/%s/%s", s.endpoint, kind, s.bucket, key)
	}
	return fmt.Sprintf("%s/object/%s/%s", s.endpoint, s.bucket, key)
}

// call performs one request and returns the response body of a 2xx reply.
func (s *Supabase) call(ctx context.Context, method, url, contentType string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("apikey", s.apiKey)
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	res, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, res.StatusCode, err
	}
	if res.StatusCode >= 300 {
		return nil, res.StatusCode, fmt.Errorf("supabase %s %s: %s: %s", method, s.bucket, res.Status, bytes.TrimSpace(data))
	}
	return data, res.StatusCode, nil
}

func (s *Supabase) Put(ctx context.Context, key string, r io.Reader, contentType string, _ int64) error {
	_, _, err := s.call(ctx, http.MethodPost, s.objectURL("", key), contentType, r)
	return err
}

// URL returns a signed link valid for five minutes.
func (s *Supabase) URL(ctx context.Context, key string) (string, error) {
	payload, _ := json.Marshal(map[string]int{"expiresIn": supabaseSignTTL})
	data, _, err := s.call(ctx, http.MethodPost, s.objectURL("sign", key), "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return "", err
	}
	if out.SignedURL == "" {
		return "", errors.New("supabase: empty signedURL")
	}
	// signedURL is relative to /storage/v1
	return s.endpoint + out.SignedURL, nil
}

// Delete treats a missing object as already deleted.
func (s *Supabase) Delete(ctx context.Context, key string) error {
	_, status, err := s.call(ctx, http.MethodDelete, s.objectURL("", key), "", nil)
	if status == http.StatusNotFound {
		return nil
	}
	return err
}
