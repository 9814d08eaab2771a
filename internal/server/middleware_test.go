package server

import (
	"bytes"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = r.Context().Value(RequestIDKey).(string)
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/status/abc", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if seen == "" {
		t.Fatal("expected request ID in context")
	}
	if got := rec.Header().Get("X-Request-ID"); got != seen {
		t.Errorf("header X-Request-ID = %q, want %q", got, seen)
	}
}

func TestRequestIDMiddleware_UniquePerRequest(t *testing.T) {
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	ids := make(map[string]bool)
	for i := 0; i < 10; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
		ids[rec.Header().Get("X-Request-ID")] = true
	}
	if len(ids) != 10 {
		t.Errorf("expected 10 unique request IDs, got %d", len(ids))
	}
}

func TestLoggingMiddleware(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AddLogField(r.Context(), "task_id", "task-123")
		AddError(r.Context(), errors.New("boom"))
		w.WriteHeader(http.StatusAccepted)
	}))

	req := httptest.NewRequest("POST", "/analyze", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	out := buf.String()
	if !strings.Contains(out, "request started") || !strings.Contains(out, "request completed") {
		t.Fatalf("expected start and completion logs, got: %s", out)
	}
	if !strings.Contains(out, "status=202") {
		t.Errorf("expected captured status code in log, got: %s", out)
	}
	if !strings.Contains(out, "task_id=task-123") {
		t.Errorf("expected handler-attached log field, got: %s", out)
	}
	if !strings.Contains(out, "error=boom") {
		t.Errorf("expected attached error field, got: %s", out)
	}
}

func TestTimeoutMiddleware(t *testing.T) {
	handler := TimeoutMiddleware(50 * time.Millisecond)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadline, ok := r.Context().Deadline()
		if !ok {
			t.Error("expected a deadline on the request context")
		}
		if time.Until(deadline) > 50*time.Millisecond {
			t.Error("deadline exceeds the configured timeout")
		}
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
}

func TestAddLogField_WithoutMiddleware(t *testing.T) {
	// Must be a no-op, not a panic.
	req := httptest.NewRequest("GET", "/", nil)
	AddLogField(req.Context(), "key", "value")
	AddError(req.Context(), errors.New("ignored"))
}
