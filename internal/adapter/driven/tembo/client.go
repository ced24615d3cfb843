// Package tembo implements the TemboClient port against the Tembo HTTP API.
package tembo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gregjones/httpcache"

	"github.com/kestrelworks/tembovault/internal/domain/model"
	"github.com/kestrelworks/tembovault/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.TemboClient = (*Client)(nil)

// Client talks to the Tembo API with plain HTTP calls, bound to a single
// bearer token.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// NewFactory returns a TemboClientFactory minting clients for baseURL.
// timeout is the per-request ceiling; register and authenticate rely on it
// to fail closed when Tembo hangs.
func NewFactory(baseURL string, timeout time.Duration) driven.TemboClientFactory {
	base := strings.TrimRight(baseURL, "/")
	return func(token string) driven.TemboClient {
		return NewClient(base, token, timeout)
	}
}

// NewClient creates a Tembo API client with an httpcache transport for
// ETag-based conditional requests. The cache is scoped to this client so a
// response fetched with one credential is never served to another.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: httpcache.NewMemoryCacheTransport(),
			Timeout:   timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
	}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL, token string) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// whoamiResponse is the JSON shape of GET /v1/users/me.
type whoamiResponse struct {
	TemboUserID string `json:"temboUserId"`
	OrgID       string `json:"orgId"`
	Email       string `json:"email"`
}

// Whoami validates the credential by asking Tembo who it belongs to.
// A 200 response missing the user or org ID counts as a rejection: claims
// that incomplete cannot be trusted.
func (c *Client) Whoami(ctx context.Context) (model.TemboIdentity, error) {
	var resp whoamiResponse
	if err := c.do(ctx, http.MethodGet, "/v1/users/me", nil, &resp); err != nil {
		return model.TemboIdentity{}, err
	}

	id := model.TemboIdentity{UserID: resp.TemboUserID, OrgID: resp.OrgID, Email: resp.Email}
	if !id.Complete() {
		return model.TemboIdentity{}, fmt.Errorf("%w: incomplete identity claims", driven.ErrCredentialRejected)
	}

	return id, nil
}

// taskPayload is the JSON shape Tembo uses for a task.
type taskPayload struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
}

type listTasksResponse struct {
	Tasks []taskPayload `json:"tasks"`
}

// ListTasks returns the tasks visible to the credential. status filters by
// task status when non-empty.
func (c *Client) ListTasks(ctx context.Context, status string) ([]model.Task, error) {
	path := "/v1/tasks"
	if status != "" {
		path += "?status=" + url.QueryEscape(status)
	}

	var resp listTasksResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	tasks := make([]model.Task, 0, len(resp.Tasks))
	for _, t := range resp.Tasks {
		tasks = append(tasks, mapTask(t))
	}
	return tasks, nil
}

type createTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// CreateTask creates a task and returns it as Tembo stored it.
func (c *Client) CreateTask(ctx context.Context, draft model.TaskDraft) (model.Task, error) {
	req := createTaskRequest{Title: draft.Title, Description: draft.Description}

	var resp taskPayload
	if err := c.do(ctx, http.MethodPost, "/v1/tasks", req, &resp); err != nil {
		return model.Task{}, err
	}
	return mapTask(resp), nil
}

// do sends one authenticated request and decodes the JSON response into out.
// Status mapping: 401/403 mean the credential itself was refused; transport
// errors, 5xx, and undecodable bodies mean Tembo is unavailable and say
// nothing about the credential.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", driven.ErrTemboUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return driven.ErrCredentialRejected
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d", driven.ErrTemboUnavailable, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("tembo: unexpected HTTP %d for %s %s", resp.StatusCode, method, path)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", driven.ErrTemboUnavailable, err)
		}
	}
	return nil
}

func mapTask(t taskPayload) model.Task {
	return model.Task{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		CreatedAt:   t.CreatedAt,
	}
}
