package httpserver

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequestID_GeneratesWhenAbsent(t *testing.T) {
	var gotID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestIDFromContext(r.Context())
	}))

	r := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if gotID == "" {
		t.Error("RequestIDFromContext() should be populated when no header is sent")
	}
	if w.Header().Get("X-Request-ID") != gotID {
		t.Errorf("response header = %q, want %q", w.Header().Get("X-Request-ID"), gotID)
	}
}

func TestRequestID_PropagatesExisting(t *testing.T) {
	var gotID string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = RequestIDFromContext(r.Context())
	}))

	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Request-ID", "fixed-id-1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if gotID != "fixed-id-1" {
		t.Errorf("request ID = %q, want %q", gotID, "fixed-id-1")
	}
	if w.Header().Get("X-Request-ID") != "fixed-id-1" {
		t.Errorf("response header = %q, want %q", w.Header().Get("X-Request-ID"), "fixed-id-1")
	}
}

func TestRequestIDFromContext_EmptyWhenAbsent(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	if got := RequestIDFromContext(r.Context()); got != "" {
		t.Errorf("RequestIDFromContext() = %q, want empty", got)
	}
}

func TestLogger_DoesNotAlterResponse(t *testing.T) {
	handler := Logger(slog.Default())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	r := httptest.NewRequest("GET", "/brew", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", w.Code, http.StatusTeapot)
	}
}

func TestMetrics_DoesNotAlterResponse(t *testing.T) {
	handler := Metrics(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	r := httptest.NewRequest("POST", "/stacks", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want %d", w.Code, http.StatusCreated)
	}
}

func TestStatusWriter_CapturesWrittenStatus(t *testing.T) {
	w := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}

	sw.WriteHeader(http.StatusAccepted)

	if sw.status != http.StatusAccepted {
		t.Errorf("sw.status = %d, want %d", sw.status, http.StatusAccepted)
	}
	if w.Code != http.StatusAccepted {
		t.Errorf("underlying recorder status = %d, want %d", w.Code, http.StatusAccepted)
	}
}
