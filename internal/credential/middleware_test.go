package credential

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestRequireType_AllowsMatchingPrincipal(t *testing.T) {
	called := false
	handler := RequireType(PrincipalAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	principal := &Principal{Type: PrincipalAdmin, ID: uuid.New(), Name: "root"}
	r = r.WithContext(NewContext(r.Context(), principal))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if !called {
		t.Error("handler should have been called for an allowed principal type")
	}
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestRequireType_RejectsWrongType(t *testing.T) {
	called := false
	handler := RequireType(PrincipalAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest("GET", "/", nil)
	principal := &Principal{Type: PrincipalAgent, ID: uuid.New(), Name: "agent-1"}
	r = r.WithContext(NewContext(r.Context(), principal))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if called {
		t.Error("handler should not have been called for a disallowed principal type")
	}
	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRequireType_RejectsMissingPrincipal(t *testing.T) {
	handler := RequireType(PrincipalAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called without a principal in context")
	}))

	r := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
}

func TestRequireType_AllowsAnyOfMultipleTypes(t *testing.T) {
	handler := RequireType(PrincipalAdmin, PrincipalGenerator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("GET", "/", nil)
	principal := &Principal{Type: PrincipalGenerator, ID: uuid.New(), Name: "gen-1"}
	r = r.WithContext(NewContext(r.Context(), principal))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
