package httpserver

import (
	"errors"
	"net/http"

	"github.com/brokkr-io/brokkr/internal/dalerr"
)

// RespondDALErr maps the shared dalerr taxonomy (spec §7) onto HTTP status
// codes, generalizing incident/handler.go's pgx.ErrNoRows-to-404 mapping
// to every error kind in the taxonomy.
func RespondDALErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dalerr.NotFound):
		RespondError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, dalerr.Forbidden):
		RespondError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, dalerr.InvalidCredential):
		RespondError(w, http.StatusUnauthorized, "invalid_credential", err.Error())
	case errors.Is(err, dalerr.Conflict):
		RespondError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, dalerr.InvalidInput):
		RespondError(w, http.StatusUnprocessableEntity, "invalid_input", err.Error())
	case errors.Is(err, dalerr.ConnectionPool):
		RespondError(w, http.StatusServiceUnavailable, "connection_pool", err.Error())
	case errors.Is(err, dalerr.Transient):
		RespondError(w, http.StatusBadGateway, "transient", err.Error())
	default:
		RespondError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
