package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/kestrelworks/tembovault/internal/application"
	"github.com/kestrelworks/tembovault/internal/domain/model"
	"github.com/kestrelworks/tembovault/internal/domain/port/driven"
)

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	auth   *application.AuthService
	audit  driven.AuditStore
	logger *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(auth *application.AuthService, audit driven.AuditStore, logger *slog.Logger) *Handler {
	return &Handler{
		auth:   auth,
		audit:  audit,
		logger: logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/identities/{identity}/credential", h.RegisterCredential)
	mux.HandleFunc("DELETE /api/v1/identities/{identity}/credential", h.UnregisterCredential)
	mux.HandleFunc("GET /api/v1/identities/{identity}/credential", h.IsRegistered)
	mux.HandleFunc("GET /api/v1/identities/{identity}/status", h.GetStatus)
	mux.HandleFunc("GET /api/v1/identities/{identity}/tasks", h.ListTasks)
	mux.HandleFunc("POST /api/v1/identities/{identity}/tasks", h.CreateTask)
	mux.HandleFunc("GET /api/v1/identities/{identity}/audit", h.ListAuditEvents)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// RegisterCredential validates and stores a credential for the identity.
// The identity segment is trusted as-is: callers of this API have already
// been authenticated by the router in front of it.
func (h *Handler) RegisterCredential(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	var req RegisterCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	result, err := h.auth.Register(r.Context(), identity, req.Token)
	if err != nil {
		h.logger.Error("failed to register credential", "identity", identity, "error", err)
		writeFailure(w, http.StatusInternalServerError, string(result.Reason), "internal server error")
		return
	}

	switch result.Outcome {
	case application.RegisterOutcomeCreated:
		writeJSON(w, http.StatusCreated, toRegisterResponse(result))
	case application.RegisterOutcomeUpdated:
		writeJSON(w, http.StatusOK, toRegisterResponse(result))
	case application.RegisterOutcomeRejected:
		writeFailure(w, http.StatusUnprocessableEntity, string(result.Reason), "tembo rejected the credential")
	default:
		writeFailure(w, http.StatusBadGateway, string(result.Reason), "could not validate the credential: tembo is unavailable")
	}
}

// UnregisterCredential deletes the identity's credential. Unregistering an
// identity that was never registered is a success.
func (h *Handler) UnregisterCredential(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	if err := h.auth.Unregister(r.Context(), identity); err != nil {
		h.logger.Error("failed to unregister credential", "identity", identity, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// IsRegistered reports whether the identity has a stored credential.
func (h *Handler) IsRegistered(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	registered, err := h.auth.IsRegistered(r.Context(), identity)
	if err != nil {
		h.logger.Error("failed to check registration", "identity", identity, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, RegisteredResponse{Registered: registered})
}

// GetStatus returns the identity's credential status without decrypting
// anything or calling Tembo.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	view, err := h.auth.GetStatus(r.Context(), identity)
	if err != nil {
		h.logger.Error("failed to get status", "identity", identity, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, toStatusResponse(view))
}

// ListTasks authenticates the identity and lists its Tembo tasks, optionally
// filtered by the status query parameter.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	auth := h.authenticate(w, r, identity)
	if auth == nil {
		return
	}

	tasks, err := auth.Client.ListTasks(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeTemboError(w, identity, err)
		return
	}

	resp := make([]TaskResponse, 0, len(tasks))
	for _, task := range tasks {
		resp = append(resp, toTaskResponse(task))
	}

	writeJSON(w, http.StatusOK, resp)
}

// CreateTask authenticates the identity and creates a Tembo task on its behalf.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	auth := h.authenticate(w, r, identity)
	if auth == nil {
		return
	}

	task, err := auth.Client.CreateTask(r.Context(), model.TaskDraft{
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		h.writeTemboError(w, identity, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

// ListAuditEvents returns the identity's audit trail, newest first. The limit
// query parameter caps the result; omitted or zero means no cap.
func (h *Handler) ListAuditEvents(w http.ResponseWriter, r *http.Request) {
	identity := r.PathValue("identity")

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	events, err := h.audit.ListByIdentity(r.Context(), identity, limit)
	if err != nil {
		h.logger.Error("failed to list audit events", "identity", identity, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]AuditEventResponse, 0, len(events))
	for _, event := range events {
		resp = append(resp, toAuditEventResponse(event))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// authenticate resolves the identity's Tembo client, writing the failure
// response itself when authentication does not succeed. Callers must return
// immediately on a nil result.
func (h *Handler) authenticate(w http.ResponseWriter, r *http.Request, identity string) *application.AuthResult {
	result, err := h.auth.Authenticate(r.Context(), identity)
	if err != nil {
		h.logger.Error("authentication failed", "identity", identity, "error", err)
		writeFailure(w, http.StatusInternalServerError, string(result.Reason), "internal server error")
		return nil
	}

	switch result.Outcome {
	case application.AuthOutcomeAuthenticated:
		return &result
	case application.AuthOutcomeNotRegistered:
		writeFailure(w, http.StatusNotFound, string(application.AuthOutcomeNotRegistered), "identity is not registered")
		return nil
	default:
		if result.Reason == application.FailureServiceUnavailable {
			writeFailure(w, http.StatusServiceUnavailable, string(result.Reason), "tembo is unavailable, try again later")
			return nil
		}
		writeFailure(w, http.StatusUnauthorized, string(result.Reason), "stored credential is no longer valid, register a new one")
		return nil
	}
}

// writeTemboError maps a Tembo call failure after successful authentication
// to a response.
func (h *Handler) writeTemboError(w http.ResponseWriter, identity string, err error) {
	switch {
	case errors.Is(err, driven.ErrCredentialRejected):
		writeFailure(w, http.StatusUnauthorized, string(application.FailureCredentialRejected), "tembo rejected the credential, register a new one")
	case errors.Is(err, driven.ErrTemboUnavailable):
		writeFailure(w, http.StatusServiceUnavailable, string(application.FailureServiceUnavailable), "tembo is unavailable, try again later")
	default:
		h.logger.Error("tembo request failed", "identity", identity, "error", err)
		writeError(w, http.StatusBadGateway, "tembo request failed")
	}
}
