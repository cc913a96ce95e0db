// Package sync pushes locally-authored mutations to the remote data backend.
package sync

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	apperrors "github.com/clearpath-app/backend/internal/errors"
)

// RemoteStore is the remote data backend, addressed by store name. It is
// reachable only while online and owns canonical record IDs.
type RemoteStore interface {
	// Insert creates a record remotely and returns the backend-assigned ID.
	Insert(ctx context.Context, store string, payload json.RawMessage) (string, error)

	// Update patches the record with the given backend ID.
	Update(ctx context.Context, store, id string, payload json.RawMessage) error

	// Delete removes the record with the given backend ID.
	Delete(ctx context.Context, store, id string) error
}

// TokenSource supplies the bearer token attached to every backend call.
// The hosting application owns the session; this component only consumes it.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token. Useful for tests
// and service-role daemons.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	return string(t), nil
}

// RestClient talks to a Postgres-over-REST backend (PostgREST conventions):
// POST /<store>, PATCH /<store>?id=eq.<id>, DELETE /<store>?id=eq.<id>.
type RestClient struct {
	baseURL string
	apiKey  string
	tokens  TokenSource
	http    *http.Client
}

// NewRestClient creates a backend client. The HTTP client carries no
// request timeout of its own; callers bound individual calls through ctx.
func NewRestClient(baseURL, apiKey string, tokens TokenSource) *RestClient {
	return &RestClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		tokens:  tokens,
		http:    &http.Client{},
	}
}

// localOnlyFields are bookkeeping keys stripped from payloads before they
// go over the wire; the remote schema does not know them.
var localOnlyFields = []string{"local_id", "synced", "operation", "created_at", "updated_at"}

// sanitizePayload strips local bookkeeping from a payload snapshot. When
// dropID is set the "id" key is removed as well (inserts must let the
// backend assign it).
func sanitizePayload(payload json.RawMessage, dropID bool) (json.RawMessage, error) {
	var record map[string]interface{}
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to decode payload: %w", err)
	}
	for _, field := range localOnlyFields {
		delete(record, field)
	}
	if dropID {
		delete(record, "id")
	}
	return json.Marshal(record)
}

// newRequest builds a request with the auth headers every call carries.
func (c *RestClient) newRequest(ctx context.Context, method, rawURL string, body []byte) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrSyncAuthFailed, "failed to obtain session token", err)
	}

	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do executes a request and maps failures to the error taxonomy. The
// response body is returned for callers that need it.
func (c *RestClient) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteUnavailable, "backend unreachable", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrRemoteUnavailable, "failed to read backend response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, apperrors.Newf(apperrors.ErrRemoteRejected,
			"backend rejected %s %s: %d %s", req.Method, req.URL.Path, resp.StatusCode, string(body))
	}
	return body, nil
}

// Insert creates a record remotely. The Prefer header asks PostgREST to
// return the stored representation so the assigned ID can be adopted.
func (c *RestClient) Insert(ctx context.Context, store string, payload json.RawMessage) (string, error) {
	body, err := sanitizePayload(payload, true)
	if err != nil {
		return "", err
	}

	req, err := c.newRequest(ctx, http.MethodPost, c.baseURL+"/"+store, body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Prefer", "return=representation")

	respBody, err := c.do(req)
	if err != nil {
		return "", err
	}

	// PostgREST returns an array of inserted rows.
	var rows []struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(respBody, &rows); err != nil || len(rows) == 0 || rows[0].ID == "" {
		return "", apperrors.Newf(apperrors.ErrRemoteRejected,
			"backend did not return an id for insert into %s", store)
	}
	return rows[0].ID, nil
}

// Update patches the record with the given backend ID.
func (c *RestClient) Update(ctx context.Context, store, id string, payload json.RawMessage) error {
	body, err := sanitizePayload(payload, true)
	if err != nil {
		return err
	}

	rawURL := fmt.Sprintf("%s/%s?id=eq.%s", c.baseURL, store, url.QueryEscape(id))
	req, err := c.newRequest(ctx, http.MethodPatch, rawURL, body)
	if err != nil {
		return err
	}

	_, err = c.do(req)
	return err
}

// Delete removes the record with the given backend ID.
func (c *RestClient) Delete(ctx context.Context, store, id string) error {
	rawURL := fmt.Sprintf("%s/%s?id=eq.%s", c.baseURL, store, url.QueryEscape(id))
	req, err := c.newRequest(ctx, http.MethodDelete, rawURL, nil)
	if err != nil {
		return err
	}

	_, err = c.do(req)
	return err
}
