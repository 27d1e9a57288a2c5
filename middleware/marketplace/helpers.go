package marketplace

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vinccirom/taskforce-platform-sub001/core/marketplace"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// Error sends a standardized error response
func Error(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Error: message})
}

// JSON sends a JSON response with the given status code
func JSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// Fail maps domain errors onto HTTP status codes.
func Fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, marketplace.ErrNotFound):
		Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, marketplace.ErrConflict):
		Error(w, http.StatusConflict, err.Error())
	case errors.Is(err, marketplace.ErrValidation):
		Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, marketplace.ErrForbidden):
		Error(w, http.StatusForbidden, err.Error())
	default:
		Error(w, http.StatusInternalServerError, err.Error())
	}
}
