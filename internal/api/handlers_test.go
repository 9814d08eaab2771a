package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contractclarity/engine/internal/domain"
	"github.com/contractclarity/engine/internal/task"
)

// fakeSubmitter scripts the pipeline surface the handlers depend on.
type fakeSubmitter struct {
	submitID  string
	submitErr error
	cancelErr error

	gotText     string
	gotCategory string
	gotLanguage string
	canceledID  string
}

func (f *fakeSubmitter) Submit(_ context.Context, text, category, language string) (string, error) {
	f.gotText, f.gotCategory, f.gotLanguage = text, category, language
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return f.submitID, nil
}

func (f *fakeSubmitter) Cancel(id string) error {
	f.canceledID = id
	return f.cancelErr
}

// storeCanceller cancels the way the orchestrator does: by failing the
// task in the store.
type storeCanceller struct {
	store task.Store
}

func (c *storeCanceller) Submit(context.Context, string, string, string) (string, error) {
	return "", fmt.Errorf("not implemented")
}

func (c *storeCanceller) Cancel(id string) error {
	return c.store.Fail(id, domain.ErrInternal("analysis canceled by client", nil))
}

func newTestRouter(pipeline Submitter, store task.Store) *chi.Mux {
	r := chi.NewRouter()
	h := NewHandler(pipeline, store, slog.New(slog.DiscardHandler))
	h.Mount(r)
	return r
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	decoded := map[string]json.RawMessage{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded), "body: %s", rec.Body.String())
	}
	return rec, decoded
}

func errorKind(t *testing.T, decoded map[string]json.RawMessage) domain.ErrorKind {
	t.Helper()
	var body struct {
		Kind domain.ErrorKind `json:"kind"`
	}
	require.NoError(t, json.Unmarshal(decoded["error"], &body))
	return body.Kind
}

func TestHandleAnalyze_Accepted(t *testing.T) {
	pipeline := &fakeSubmitter{submitID: "task-1"}
	router := newTestRouter(pipeline, task.NewMemoryStore())

	rec, decoded := doJSON(t, router, "POST", "/analyze",
		`{"text": "合同正文", "category": "LaborEmployment", "language": "zh-CN"}`)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, `"task-1"`, string(decoded["task_id"]))
	assert.Equal(t, "合同正文", pipeline.gotText)
	assert.Equal(t, "LaborEmployment", pipeline.gotCategory)
	assert.Equal(t, "zh-CN", pipeline.gotLanguage)
}

func TestHandleAnalyze_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		submitErr  error
		wantStatus int
		wantKind   domain.ErrorKind
	}{
		{
			name:       "malformed body",
			body:       `{"text": `,
			wantStatus: http.StatusBadRequest,
			wantKind:   domain.ErrorKindEmptyInput,
		},
		{
			name:       "empty text",
			body:       `{"text": "", "category": "General"}`,
			submitErr:  domain.ErrEmptyInput("contract text must not be empty"),
			wantStatus: http.StatusBadRequest,
			wantKind:   domain.ErrorKindEmptyInput,
		},
		{
			name:       "unknown category",
			body:       `{"text": "x", "category": "maritime-salvage"}`,
			submitErr:  domain.ErrInvalidCategory("maritime-salvage"),
			wantStatus: http.StatusBadRequest,
			wantKind:   domain.ErrorKindInvalidCategory,
		},
		{
			name:       "unclassified failure",
			body:       `{"text": "x", "category": "General"}`,
			submitErr:  fmt.Errorf("boom"),
			wantStatus: http.StatusInternalServerError,
			wantKind:   domain.ErrorKindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newTestRouter(&fakeSubmitter{submitErr: tt.submitErr}, task.NewMemoryStore())
			rec, decoded := doJSON(t, router, "POST", "/analyze", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantKind, errorKind(t, decoded))
		})
	}
}

// completeTask walks a stored task through the full lifecycle.
func completeTask(t *testing.T, store task.Store, id string, result domain.AnalysisResult) {
	t.Helper()
	require.NoError(t, store.Transition(id, domain.StateRetrieving, "retrieving"))
	require.NoError(t, store.Transition(id, domain.StateAnalyzingRisk, "risk"))
	require.NoError(t, store.Transition(id, domain.StateNegotiating, "negotiation"))
	require.NoError(t, store.Transition(id, domain.StateRevising, "revising"))
	require.NoError(t, store.Complete(id, result))
}

func TestHandleStatus(t *testing.T) {
	store := task.NewMemoryStore()
	router := newTestRouter(&fakeSubmitter{}, store)

	pending := task.New("text", domain.CategoryGeneral, "zh-CN")
	require.NoError(t, store.Create(pending))

	completed := task.New("text", domain.CategoryGeneral, "zh-CN")
	require.NoError(t, store.Create(completed))
	completeTask(t, store, completed.ID, domain.AnalysisResult{
		ContractType: "service agreement",
		OverallRisk:  domain.SeverityMedium,
		RiskScore:    55,
	})

	failed := task.New("text", domain.CategoryGeneral, "zh-CN")
	require.NoError(t, store.Create(failed))
	require.NoError(t, store.Transition(failed.ID, domain.StateRetrieving, "retrieving"))
	require.NoError(t, store.Fail(failed.ID, domain.ErrSchemaViolation(
		domain.StageRisk, []string{"/issues: too short"}, `{"partial": true}`)))

	t.Run("pending", func(t *testing.T) {
		rec, decoded := doJSON(t, router, "GET", "/status/"+pending.ID, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `"PENDING"`, string(decoded["state"]))
		assert.NotContains(t, decoded, "result")
		assert.NotContains(t, decoded, "error")
	})

	t.Run("completed carries result", func(t *testing.T) {
		rec, decoded := doJSON(t, router, "GET", "/status/"+completed.ID, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `"COMPLETED"`, string(decoded["state"]))

		var result domain.AnalysisResult
		require.NoError(t, json.Unmarshal(decoded["result"], &result))
		assert.Equal(t, 55, result.RiskScore)
	})

	t.Run("failed carries error, never a result", func(t *testing.T) {
		rec, decoded := doJSON(t, router, "GET", "/status/"+failed.ID, "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, `"FAILED"`, string(decoded["state"]))
		assert.NotContains(t, decoded, "result")
		assert.Equal(t, domain.ErrorKindSchemaViolation, errorKind(t, decoded))

		// Raw model output is operator-only diagnostics.
		assert.NotContains(t, rec.Body.String(), "partial")
	})

	t.Run("unknown task", func(t *testing.T) {
		rec, decoded := doJSON(t, router, "GET", "/status/no-such-task", "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, domain.ErrorKindNotFound, errorKind(t, decoded))
	})
}

func TestHandleCancel(t *testing.T) {
	pipeline := &fakeSubmitter{}
	router := newTestRouter(pipeline, task.NewMemoryStore())

	rec, _ := doJSON(t, router, "DELETE", "/tasks/task-9", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "task-9", pipeline.canceledID)

	pipeline.cancelErr = domain.ErrNotFound("task-9")
	rec, decoded := doJSON(t, router, "DELETE", "/tasks/task-9", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, domain.ErrorKindNotFound, errorKind(t, decoded))

	// Cancelling a task that already settled is a client-side race,
	// not a server fault.
	pipeline.cancelErr = domain.ErrConflict("task task-9 is already COMPLETED")
	rec, decoded = doJSON(t, router, "DELETE", "/tasks/task-9", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.ErrorKindConflict, errorKind(t, decoded))
}

// TestHandleCancel_TerminalTask drives the real store and pipeline
// cancel path end to end: the second DELETE must surface a conflict.
func TestHandleCancel_TerminalTask(t *testing.T) {
	store := task.NewMemoryStore()
	tk := task.New("text", domain.CategoryGeneral, "zh-CN")
	require.NoError(t, store.Create(tk))
	router := newTestRouter(&storeCanceller{store: store}, store)

	rec, _ := doJSON(t, router, "DELETE", "/tasks/"+tk.ID, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, decoded := doJSON(t, router, "DELETE", "/tasks/"+tk.ID, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, domain.ErrorKindConflict, errorKind(t, decoded))
}

func TestHandleLanguages(t *testing.T) {
	router := newTestRouter(&fakeSubmitter{}, task.NewMemoryStore())

	req := httptest.NewRequest("GET", "/languages", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var langs map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &langs))
	assert.Equal(t, "Simplified Chinese (简体中文)", langs["zh-CN"])
	assert.Contains(t, langs, "en")
}

func TestHandleCategories(t *testing.T) {
	router := newTestRouter(&fakeSubmitter{}, task.NewMemoryStore())

	req := httptest.NewRequest("GET", "/categories", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var categories []domain.Category
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &categories))
	assert.Equal(t, domain.Categories, categories)
}
