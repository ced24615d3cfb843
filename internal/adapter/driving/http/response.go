package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kestrelworks/tembovault/internal/application"
	"github.com/kestrelworks/tembovault/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeFailure writes a JSON error response carrying a machine-readable
// failure code alongside the human-readable message.
func writeFailure(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// RegisterCredentialRequest is the JSON body for the register endpoint.
type RegisterCredentialRequest struct {
	Token string `json:"token"`
}

// CreateTaskRequest is the JSON body for the create task endpoint.
type CreateTaskRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// RegisterResponse is the JSON representation of a successful registration.
type RegisterResponse struct {
	Outcome     string `json:"outcome"`
	TemboUserID string `json:"tembo_user_id"`
	TemboOrgID  string `json:"tembo_org_id"`
	TemboEmail  string `json:"tembo_email,omitempty"`
}

// RegisteredResponse is the JSON representation of the registration check.
type RegisteredResponse struct {
	Registered bool `json:"registered"`
}

// StatusResponse is the JSON representation of an identity's credential status.
// All fields except registered are omitted for unregistered identities.
type StatusResponse struct {
	Registered      bool   `json:"registered"`
	Status          string `json:"status,omitempty"`
	TemboUserID     string `json:"tembo_user_id,omitempty"`
	TemboOrgID      string `json:"tembo_org_id,omitempty"`
	TemboEmail      string `json:"tembo_email,omitempty"`
	RegisteredAt    string `json:"registered_at,omitempty"`
	LastUsedAt      string `json:"last_used_at,omitempty"`
	LastValidatedAt string `json:"last_validated_at,omitempty"`
}

// TaskResponse is the JSON representation of a Tembo task.
type TaskResponse struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	CreatedAt   string `json:"created_at"`
}

// AuditEventResponse is the JSON representation of a single audit event.
type AuditEventResponse struct {
	ID        string            `json:"id"`
	EventType string            `json:"event_type"`
	Metadata  map[string]string `json:"metadata"`
	CreatedAt string            `json:"created_at"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// toRegisterResponse converts a registration result to its JSON representation.
func toRegisterResponse(result application.RegisterResult) RegisterResponse {
	resp := RegisterResponse{Outcome: string(result.Outcome)}
	if result.Claims != nil {
		resp.TemboUserID = result.Claims.UserID
		resp.TemboOrgID = result.Claims.OrgID
		resp.TemboEmail = result.Claims.Email
	}
	return resp
}

// toStatusResponse converts a domain StatusView to its JSON representation.
func toStatusResponse(view model.StatusView) StatusResponse {
	if !view.Registered {
		return StatusResponse{}
	}

	resp := StatusResponse{
		Registered:   true,
		Status:       string(view.Status),
		TemboUserID:  view.TemboUserID,
		TemboOrgID:   view.TemboOrgID,
		TemboEmail:   view.TemboEmail,
		RegisteredAt: view.RegisteredAt.UTC().Format(time.RFC3339),
		LastUsedAt:   view.LastUsedAt.UTC().Format(time.RFC3339),
	}
	if view.LastValidatedAt != nil {
		resp.LastValidatedAt = view.LastValidatedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// toTaskResponse converts a domain Task to its JSON representation.
func toTaskResponse(task model.Task) TaskResponse {
	return TaskResponse{
		ID:          task.ID,
		Title:       task.Title,
		Description: task.Description,
		Status:      task.Status,
		CreatedAt:   task.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// toAuditEventResponse converts a domain AuditEvent to its JSON representation.
func toAuditEventResponse(event model.AuditEvent) AuditEventResponse {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	return AuditEventResponse{
		ID:        event.ID,
		EventType: string(event.EventType),
		Metadata:  metadata,
		CreatedAt: event.CreatedAt.UTC().Format(time.RFC3339),
	}
}
