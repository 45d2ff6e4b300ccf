package http

import (
	"encoding/json"
	"net/http"

	"github.com/txn2/sql-gateway/pkg/apperror"
)

// ErrorBody is the JSON envelope of a failed request.
type ErrorBody struct {
	Error apperror.Public `json:"error"`
}

// WriteJSON writes v with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes err as a typed error body with its mapped status.
// Wrapped causes are not exposed.
func WriteError(w http.ResponseWriter, err error) {
	appErr := apperror.From(err)
	WriteJSON(w, apperror.HTTPStatus(appErr.Kind), ErrorBody{Error: appErr.Public()})
}
