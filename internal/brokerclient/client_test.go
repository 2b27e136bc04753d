package brokerclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/brokkr-io/brokkr/pkg/workorder"
)

func TestAPIError_Error(t *testing.T) {
	err := &APIError{StatusCode: 404, Code: "not_found", Message: "no such agent"}
	want := "broker returned HTTP 404 (not_found): no such agent"
	if got := err.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

func TestIsNotFound(t *testing.T) {
	if IsNotFound(nil) {
		t.Error("IsNotFound(nil) should be false")
	}
	if IsNotFound(&APIError{StatusCode: 500}) {
		t.Error("IsNotFound() on a 500 APIError should be false")
	}
	if !IsNotFound(&APIError{StatusCode: 404}) {
		t.Error("IsNotFound() on a 404 APIError should be true")
	}
	if IsNotFound(http.ErrBodyNotAllowed) {
		t.Error("IsNotFound() on a non-APIError should be false")
	}
}

func TestClient_Heartbeat_SendsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/agents/agent-1/heartbeat" {
			t.Errorf("path = %q, want /agents/agent-1/heartbeat", r.URL.Path)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-pak", "agent-1")
	if err := c.Heartbeat(t.Context()); err != nil {
		t.Fatalf("Heartbeat() error = %v", err)
	}
	if gotAuth != "Bearer secret-pak" {
		t.Errorf("Authorization header = %q, want %q", gotAuth, "Bearer secret-pak")
	}
}

func TestClient_ClaimWorkOrder_NotFoundReturnsNilNil(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "not_found", "message": "nothing pending"})
	}))
	defer srv.Close()

	c := New(srv.URL, "pak", "agent-1")
	wo, err := c.ClaimWorkOrder(t.Context())
	if err != nil {
		t.Fatalf("ClaimWorkOrder() error = %v, want nil", err)
	}
	if wo != nil {
		t.Errorf("ClaimWorkOrder() = %+v, want nil", wo)
	}
}

func TestClient_ClaimWorkOrder_DecodesBody(t *testing.T) {
	id := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(workorder.WorkOrder{ID: id, Status: workorder.StatusClaimed})
	}))
	defer srv.Close()

	c := New(srv.URL, "pak", "agent-1")
	wo, err := c.ClaimWorkOrder(t.Context())
	if err != nil {
		t.Fatalf("ClaimWorkOrder() error = %v", err)
	}
	if wo == nil || wo.ID != id {
		t.Errorf("ClaimWorkOrder() = %+v, want ID %v", wo, id)
	}
}

func TestClient_CompleteWorkOrder_UnexpectedStatusIsAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "internal", "message": "boom"})
	}))
	defer srv.Close()

	c := New(srv.URL, "pak", "agent-1")
	err := c.CompleteWorkOrder(t.Context(), uuid.New(), true, "done")
	if err == nil {
		t.Fatal("CompleteWorkOrder() should return an error on unexpected status")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("error type = %T, want *APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError || apiErr.Code != "internal" {
		t.Errorf("APIError = %+v", apiErr)
	}
}
