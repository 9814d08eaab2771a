// Package api exposes the analysis engine over HTTP: submit a
// contract, poll its task, cancel it, list supported languages.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/contractclarity/engine/internal/domain"
	"github.com/contractclarity/engine/internal/prompt"
	"github.com/contractclarity/engine/internal/server"
	"github.com/contractclarity/engine/internal/task"
)

// Submitter accepts contract submissions and cancels running tasks.
type Submitter interface {
	Submit(ctx context.Context, contractText, category, language string) (string, error)
	Cancel(id string) error
}

type Handler struct {
	pipeline Submitter
	store    task.Store
	logger   *slog.Logger
}

func NewHandler(pipeline Submitter, store task.Store, logger *slog.Logger) *Handler {
	return &Handler{pipeline: pipeline, store: store, logger: logger}
}

// Mount attaches the engine routes to the router.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/analyze", h.handleAnalyze)
	r.Get("/status/{taskID}", h.handleStatus)
	r.Delete("/tasks/{taskID}", h.handleCancel)
	r.Get("/languages", h.handleLanguages)
	r.Get("/categories", h.handleCategories)
}

type analyzeRequest struct {
	Text     string `json:"text"`
	Category string `json:"category"`
	Language string `json:"language"`
}

type analyzeResponse struct {
	TaskID string `json:"task_id"`
}

func (h *Handler) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeAPIError(w, r, domain.ErrEmptyInput("request body must be a JSON object"))
		return
	}

	id, err := h.pipeline.Submit(r.Context(), req.Text, req.Category, req.Language)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}

	server.AddLogField(r.Context(), "task_id", id)
	writeJSON(w, http.StatusAccepted, analyzeResponse{TaskID: id})
}

type errorBody struct {
	Kind       domain.ErrorKind `json:"kind"`
	Message    string           `json:"message"`
	Stage      domain.Stage     `json:"stage,omitempty"`
	Violations []string         `json:"violations,omitempty"`
}

type statusResponse struct {
	TaskID    string                 `json:"task_id"`
	State     domain.TaskState       `json:"state"`
	Progress  string                 `json:"progress"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Result    *domain.AnalysisResult `json:"result,omitempty"`
	Error     *errorBody             `json:"error,omitempty"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	t, err := h.store.Get(id)
	if err != nil {
		h.writeAPIError(w, r, err)
		return
	}

	resp := statusResponse{
		TaskID:    t.ID,
		State:     t.State,
		Progress:  t.Progress,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
		Result:    t.Result,
	}
	if t.Err != nil {
		resp.Error = &errorBody{
			Kind:       t.Err.Kind,
			Message:    t.Err.Message,
			Stage:      t.Err.Stage,
			Violations: t.Err.Violations,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskID")
	if err := h.pipeline.Cancel(id); err != nil {
		h.writeAPIError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": id, "state": string(domain.StateFailed)})
}

func (h *Handler) handleLanguages(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, prompt.Languages())
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, domain.Categories)
}

// writeAPIError renders an error through the canonical kind-to-status
// mapping. Errors without a kind render as internal without leaking
// detail.
func (h *Handler) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	server.AddError(r.Context(), err)

	var apiErr *domain.APIError
	if !errors.As(err, &apiErr) {
		apiErr = domain.ErrInternal("internal error", err)
	}
	writeJSON(w, apiErr.HTTPStatusCode(), map[string]errorBody{
		"error": {
			Kind:       apiErr.Kind,
			Message:    apiErr.Message,
			Stage:      apiErr.Stage,
			Violations: apiErr.Violations,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
