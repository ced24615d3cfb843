package httphandler_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/kestrelworks/tembovault/internal/adapter/driving/http"
	"github.com/kestrelworks/tembovault/internal/application"
	"github.com/kestrelworks/tembovault/internal/crypto"
	"github.com/kestrelworks/tembovault/internal/domain/model"
	"github.com/kestrelworks/tembovault/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockCredentialStore struct {
	records   map[string]model.CredentialRecord
	getErr    error
	insertErr error
}

func newMockCredentialStore() *mockCredentialStore {
	return &mockCredentialStore{records: make(map[string]model.CredentialRecord)}
}

func (m *mockCredentialStore) GetRecord(_ context.Context, identity string) (*model.CredentialRecord, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	rec, ok := m.records[identity]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *mockCredentialStore) InsertRecord(_ context.Context, rec model.CredentialRecord) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	if _, ok := m.records[rec.Identity]; ok {
		return driven.ErrAlreadyRegistered
	}
	m.records[rec.Identity] = rec
	return nil
}

func (m *mockCredentialStore) UpdateCiphertext(_ context.Context, identity string, payload model.EncryptedPayload) error {
	rec, ok := m.records[identity]
	if !ok {
		return nil
	}
	rec.Ciphertext = payload.Ciphertext
	rec.IV = payload.IV
	rec.Salt = payload.Salt
	rec.Status = model.ValidationPending
	m.records[identity] = rec
	return nil
}

func (m *mockCredentialStore) UpdateValidationStatus(_ context.Context, identity string, status model.ValidationStatus, claims *model.TemboIdentity) error {
	rec, ok := m.records[identity]
	if !ok {
		return nil
	}
	rec.Status = status
	if claims != nil {
		rec.Claims = claims
	}
	now := time.Now().UTC()
	rec.LastValidatedAt = &now
	m.records[identity] = rec
	return nil
}

func (m *mockCredentialStore) TouchLastUsed(_ context.Context, identity string) {
	if rec, ok := m.records[identity]; ok {
		rec.LastUsedAt = time.Now().UTC()
		m.records[identity] = rec
	}
}

func (m *mockCredentialStore) DeleteRecord(_ context.Context, identity string) error {
	delete(m.records, identity)
	return nil
}

func (m *mockCredentialStore) GetStatus(_ context.Context, identity string) (model.StatusView, error) {
	rec, ok := m.records[identity]
	if !ok {
		return model.StatusView{}, nil
	}
	view := model.StatusView{
		Registered:      true,
		Status:          rec.Status,
		RegisteredAt:    rec.RegisteredAt,
		LastUsedAt:      rec.LastUsedAt,
		LastValidatedAt: rec.LastValidatedAt,
	}
	if rec.Claims != nil {
		view.TemboUserID = rec.Claims.UserID
		view.TemboOrgID = rec.Claims.OrgID
		view.TemboEmail = rec.Claims.Email
	}
	return view, nil
}

type mockAuditStore struct {
	events  []model.AuditEvent
	listErr error
}

func (m *mockAuditStore) Append(_ context.Context, event model.AuditEvent) {
	event.ID = "evt-" + event.Identity
	event.CreatedAt = testTime
	m.events = append(m.events, event)
}

func (m *mockAuditStore) ListByIdentity(_ context.Context, identity string, limit int) ([]model.AuditEvent, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []model.AuditEvent
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Identity != identity {
			continue
		}
		out = append(out, m.events[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// mockTemboClient defaults to accepting the credential with testClaims.
type mockTemboClient struct {
	whoami     func(ctx context.Context) (model.TemboIdentity, error)
	listTasks  func(ctx context.Context, status string) ([]model.Task, error)
	createTask func(ctx context.Context, draft model.TaskDraft) (model.Task, error)
}

func (m *mockTemboClient) Whoami(ctx context.Context) (model.TemboIdentity, error) {
	if m.whoami != nil {
		return m.whoami(ctx)
	}
	return testClaims, nil
}

func (m *mockTemboClient) ListTasks(ctx context.Context, status string) ([]model.Task, error) {
	if m.listTasks != nil {
		return m.listTasks(ctx, status)
	}
	return nil, nil
}

func (m *mockTemboClient) CreateTask(ctx context.Context, draft model.TaskDraft) (model.Task, error) {
	if m.createTask != nil {
		return m.createTask(ctx, draft)
	}
	return model.Task{ID: "t-1", Title: draft.Title, Description: draft.Description, Status: "open", CreatedAt: testTime}, nil
}

// --- Test helpers ---

var (
	testMasterKey = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))
	testClaims    = model.TemboIdentity{UserID: "U1", OrgID: "O1", Email: "u1@example.com"}
	testTime      = time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC)
	testTimeStr   = "2026-02-10T12:00:00Z"
)

type fixture struct {
	mux    http.Handler
	store  *mockCredentialStore
	audit  *mockAuditStore
	client *mockTemboClient
}

// setupMux builds the full handler stack over mock stores and a mock Tembo
// client, with a real AuthService and envelope cipher in between.
func setupMux(t *testing.T) *fixture {
	t.Helper()

	env, err := crypto.NewEnvelope(testMasterKey)
	require.NoError(t, err)

	store := newMockCredentialStore()
	audit := &mockAuditStore{}
	client := &mockTemboClient{}
	svc := application.NewAuthService(env, store, audit, func(_ string) driven.TemboClient { return client })

	h := httphandler.NewHandler(svc, audit, slog.Default())
	return &fixture{
		mux:    httphandler.NewServeMux(h, slog.Default()),
		store:  store,
		audit:  audit,
		client: client,
	}
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	f.mux.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) register(t *testing.T, identity, token string) {
	t.Helper()
	rec := f.do(http.MethodPost, "/api/v1/identities/"+identity+"/credential", `{"token":"`+token+`"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	err := json.NewDecoder(rec.Body).Decode(v)
	require.NoError(t, err)
}

// --- Tests ---

func TestRegisterCredential_Created(t *testing.T) {
	f := setupMux(t)

	rec := f.do(http.MethodPost, "/api/v1/identities/u1/credential", `{"token":"k-abc"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "created", body["outcome"])
	assert.Equal(t, "U1", body["tembo_user_id"])
	assert.Equal(t, "O1", body["tembo_org_id"])

	stored := f.store.records["u1"]
	assert.Equal(t, model.ValidationValid, stored.Status)
	assert.NotContains(t, stored.Ciphertext, "k-abc")
}

func TestRegisterCredential_Updated(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "old-token")

	rec := f.do(http.MethodPost, "/api/v1/identities/u1/credential", `{"token":"new-token"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "updated", body["outcome"])
}

func TestRegisterCredential_Rejected(t *testing.T) {
	f := setupMux(t)
	f.client.whoami = func(_ context.Context) (model.TemboIdentity, error) {
		return model.TemboIdentity{}, driven.ErrCredentialRejected
	}

	rec := f.do(http.MethodPost, "/api/v1/identities/u1/credential", `{"token":"bad"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "credential_rejected", body["code"])

	_, ok := f.store.records["u1"]
	assert.False(t, ok)
}

func TestRegisterCredential_TemboUnavailable(t *testing.T) {
	f := setupMux(t)
	f.client.whoami = func(_ context.Context) (model.TemboIdentity, error) {
		return model.TemboIdentity{}, driven.ErrTemboUnavailable
	}

	rec := f.do(http.MethodPost, "/api/v1/identities/u1/credential", `{"token":"k-abc"}`)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "service_unavailable", body["code"])
}

func TestRegisterCredential_BadRequest(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid JSON", body: `{not json`},
		{name: "empty token", body: `{"token":""}`},
		{name: "missing token", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupMux(t)
			rec := f.do(http.MethodPost, "/api/v1/identities/u1/credential", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRegisterCredential_StorageError(t *testing.T) {
	f := setupMux(t)
	f.store.insertErr = errors.New("db fail")

	rec := f.do(http.MethodPost, "/api/v1/identities/u1/credential", `{"token":"k-abc"}`)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "storage_error", body["code"])
	assert.NotContains(t, rec.Body.String(), "k-abc")
}

func TestUnregisterCredential(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "k-abc")

	rec := f.do(http.MethodDelete, "/api/v1/identities/u1/credential", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	_, ok := f.store.records["u1"]
	assert.False(t, ok)

	// Idempotent.
	rec = f.do(http.MethodDelete, "/api/v1/identities/u1/credential", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestIsRegistered(t *testing.T) {
	f := setupMux(t)

	rec := f.do(http.MethodGet, "/api/v1/identities/u1/credential", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, false, body["registered"])

	f.register(t, "u1", "k-abc")

	rec = f.do(http.MethodGet, "/api/v1/identities/u1/credential", "")
	require.Equal(t, http.StatusOK, rec.Code)
	decodeJSON(t, rec, &body)
	assert.Equal(t, true, body["registered"])
}

func TestGetStatus(t *testing.T) {
	f := setupMux(t)

	rec := f.do(http.MethodGet, "/api/v1/identities/u1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, false, body["registered"])
	assert.NotContains(t, body, "status")

	f.register(t, "u1", "k-abc")

	rec = f.do(http.MethodGet, "/api/v1/identities/u1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body = nil
	decodeJSON(t, rec, &body)
	assert.Equal(t, true, body["registered"])
	assert.Equal(t, "valid", body["status"])
	assert.Equal(t, "U1", body["tembo_user_id"])
	assert.Equal(t, "O1", body["tembo_org_id"])

	registeredAt, ok := body["registered_at"].(string)
	require.True(t, ok)
	_, err := time.Parse(time.RFC3339, registeredAt)
	assert.NoError(t, err)
}

func TestListTasks(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "k-abc")

	var gotStatus string
	f.client.listTasks = func(_ context.Context, status string) ([]model.Task, error) {
		gotStatus = status
		return []model.Task{
			{ID: "t-1", Title: "Ship it", Description: "release", Status: "open", CreatedAt: testTime},
			{ID: "t-2", Title: "Fix it", Status: "open", CreatedAt: testTime},
		}, nil
	}

	rec := f.do(http.MethodGet, "/api/v1/identities/u1/tasks?status=open", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "open", gotStatus)

	var tasks []map[string]any
	decodeJSON(t, rec, &tasks)
	require.Len(t, tasks, 2)
	assert.Equal(t, "t-1", tasks[0]["id"])
	assert.Equal(t, "Ship it", tasks[0]["title"])
	assert.Equal(t, testTimeStr, tasks[0]["created_at"])
}

func TestListTasks_NotRegistered(t *testing.T) {
	f := setupMux(t)

	rec := f.do(http.MethodGet, "/api/v1/identities/nobody/tasks", "")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "not_registered", body["code"])
}

func TestListTasks_CredentialRejected(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "k-abc")

	f.client.whoami = func(_ context.Context) (model.TemboIdentity, error) {
		return model.TemboIdentity{}, driven.ErrCredentialRejected
	}

	rec := f.do(http.MethodGet, "/api/v1/identities/u1/tasks", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "credential_rejected", body["code"])
	assert.Contains(t, body["error"], "register")

	assert.Equal(t, model.ValidationInvalid, f.store.records["u1"].Status)
}

func TestListTasks_TemboUnavailable(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "k-abc")

	f.client.whoami = func(_ context.Context) (model.TemboIdentity, error) {
		return model.TemboIdentity{}, driven.ErrTemboUnavailable
	}

	rec := f.do(http.MethodGet, "/api/v1/identities/u1/tasks", "")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "service_unavailable", body["code"])

	assert.Equal(t, model.ValidationValid, f.store.records["u1"].Status)
}

func TestCreateTask(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "k-abc")

	var gotDraft model.TaskDraft
	f.client.createTask = func(_ context.Context, draft model.TaskDraft) (model.Task, error) {
		gotDraft = draft
		return model.Task{ID: "t-9", Title: draft.Title, Description: draft.Description, Status: "open", CreatedAt: testTime}, nil
	}

	rec := f.do(http.MethodPost, "/api/v1/identities/u1/tasks", `{"title":"Deploy","description":"to prod"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Deploy", gotDraft.Title)
	assert.Equal(t, "to prod", gotDraft.Description)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "t-9", body["id"])
	assert.Equal(t, "Deploy", body["title"])
}

func TestCreateTask_MissingTitle(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "k-abc")

	rec := f.do(http.MethodPost, "/api/v1/identities/u1/tasks", `{"description":"no title"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateTask_RejectedMidFlight(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "k-abc")

	// Whoami still passes but the task call itself is rejected.
	f.client.createTask = func(_ context.Context, _ model.TaskDraft) (model.Task, error) {
		return model.Task{}, driven.ErrCredentialRejected
	}

	rec := f.do(http.MethodPost, "/api/v1/identities/u1/tasks", `{"title":"Deploy"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "credential_rejected", body["code"])
}

func TestListAuditEvents(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "k-abc")
	f.register(t, "u2", "k-def")

	rec := f.do(http.MethodDelete, "/api/v1/identities/u1/credential", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/identities/u1/audit", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []map[string]any
	decodeJSON(t, rec, &events)
	require.Len(t, events, 2, "u2's events are not included")
	assert.Equal(t, "unregister", events[0]["event_type"])
	assert.Equal(t, "register", events[1]["event_type"])
	assert.Equal(t, testTimeStr, events[0]["created_at"])
}

func TestListAuditEvents_Limit(t *testing.T) {
	f := setupMux(t)
	f.register(t, "u1", "k-abc")
	rec := f.do(http.MethodDelete, "/api/v1/identities/u1/credential", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/identities/u1/audit?limit=1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var events []map[string]any
	decodeJSON(t, rec, &events)
	assert.Len(t, events, 1)
}

func TestListAuditEvents_InvalidLimit(t *testing.T) {
	f := setupMux(t)

	rec := f.do(http.MethodGet, "/api/v1/identities/u1/audit?limit=banana", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/api/v1/identities/u1/audit?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListAuditEvents_StoreError(t *testing.T) {
	f := setupMux(t)
	f.audit.listErr = errors.New("db fail")

	rec := f.do(http.MethodGet, "/api/v1/identities/u1/audit", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHealth(t *testing.T) {
	f := setupMux(t)

	rec := f.do(http.MethodGet, "/api/v1/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeJSON(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["time"])
}
