package httpserver

import (
	"encoding/json"
	"net/http"
)

// Respond writes v as a JSON response body with the given status code.
func Respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorResponse is the standard JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// RespondError writes a standard error envelope.
func RespondError(w http.ResponseWriter, status int, errStr, message string) {
	Respond(w, status, ErrorResponse{Error: errStr, Message: message})
}
