package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// RESTStore implements RecordStore against a PostgREST-style API
// (Supabase and compatible hosted Postgres frontends).
type RESTStore struct {
	baseURL    string
	apiKey     string
	table      string
	httpClient *http.Client
}

// NewRESTStore creates a record store client for the given endpoint and table
func NewRESTStore(baseURL, apiKey, table string) *RESTStore {
	return &RESTStore{
		baseURL: baseURL,
		apiKey:  apiKey,
		table:   table,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// InsertSession inserts a new session row
func (r *RESTStore) InsertSession(ctx context.Context, rec SessionRecord) error {
	return r.do(ctx, http.MethodPost, r.tableURL(""), rec)
}

// UpdateSession patches the row matching the session ID
func (r *RESTStore) UpdateSession(ctx context.Context, sessionID string, fields map[string]any) error {
	filter := "session_id=eq." + url.QueryEscape(sessionID)
	return r.do(ctx, http.MethodPatch, r.tableURL(filter), fields)
}

// tableURL builds the REST endpoint for the configured table
func (r *RESTStore) tableURL(filter string) string {
	u := fmt.Sprintf("%s/rest/v1/%s", r.baseURL, r.table)
	if filter != "" {
		u += "?" + filter
	}
	return u
}

// do performs one JSON request against the REST API
func (r *RESTStore) do(ctx context.Context, method, endpoint string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", r.apiKey)
	req.Header.Set("Authorization", "Bearer "+r.apiKey)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("record store request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("record store HTTP error %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// Compile-time interface check.
var _ RecordStore = (*RESTStore)(nil)
