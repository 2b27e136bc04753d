package tenant

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestContext_RoundTrip(t *testing.T) {
	ctx := t.Context()

	if got := FromContext(ctx); got != (Info{}) {
		t.Fatalf("FromContext() on empty context = %+v, want zero value", got)
	}

	want := Info{Schema: "tenant_acme"}
	ctx = NewContext(ctx, want)

	if got := FromContext(ctx); got != want {
		t.Errorf("FromContext() = %+v, want %+v", got, want)
	}
}

func TestMiddleware_DefaultSchema(t *testing.T) {
	var captured Info
	handler := Middleware("tenant_default")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if captured.Schema != "tenant_default" {
		t.Errorf("Schema = %q, want %q", captured.Schema, "tenant_default")
	}
}

func TestMiddleware_HeaderOverride(t *testing.T) {
	var captured Info
	handler := Middleware("tenant_default")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = FromContext(r.Context())
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Tenant-Schema", "tenant_override")
	handler.ServeHTTP(httptest.NewRecorder(), r)

	if captured.Schema != "tenant_override" {
		t.Errorf("Schema = %q, want %q", captured.Schema, "tenant_override")
	}
}
