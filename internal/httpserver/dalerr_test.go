package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

func TestRespondDALErr(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantErr    string
	}{
		{"not found", dalerr.Wrap(dalerr.NotFound, "agent %s", "x"), http.StatusNotFound, "not_found"},
		{"forbidden", dalerr.Wrap(dalerr.Forbidden, "denied"), http.StatusForbidden, "forbidden"},
		{"invalid credential", dalerr.Wrap(dalerr.InvalidCredential, "bad pak"), http.StatusUnauthorized, "invalid_credential"},
		{"conflict", dalerr.Wrap(dalerr.Conflict, "duplicate"), http.StatusConflict, "conflict"},
		{"invalid input", dalerr.Wrap(dalerr.InvalidInput, "bad schema"), http.StatusUnprocessableEntity, "invalid_input"},
		{"connection pool", dalerr.Wrap(dalerr.ConnectionPool, "pool exhausted"), http.StatusServiceUnavailable, "connection_pool"},
		{"transient", dalerr.Wrap(dalerr.Transient, "retry"), http.StatusBadGateway, "transient"},
		{"unmapped error", errFatal(), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			RespondDALErr(w, tt.err)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding body: %v", err)
			}
			if body.Error != tt.wantErr {
				t.Errorf("error = %q, want %q", body.Error, tt.wantErr)
			}
		})
	}
}

func errFatal() error {
	return dalerr.Wrap(dalerr.Fatal, "unexpected")
}
