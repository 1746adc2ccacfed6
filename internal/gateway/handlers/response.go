// Package handlers provides HTTP handler utilities for the gateway.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"runbox/internal/catalog"
	"runbox/internal/progress"
)

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error code and message.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// SendJSON writes a JSON response with the given status code.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// SendError writes an error response with the given status code, error code, and message.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// Common error codes.
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeMethodNotAllowed = "METHOD_NOT_ALLOWED"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
	ErrCodeUnknownModule    = "UNKNOWN_MODULE"
	ErrCodeUnknownExercise  = "UNKNOWN_EXERCISE"
)

// SendLookupError maps catalog and progress lookup failures to 404s and
// anything else to a 500.
func SendLookupError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrUnknownModule):
		SendError(w, http.StatusNotFound, ErrCodeUnknownModule, err.Error())
	case errors.Is(err, catalog.ErrUnknownExercise), errors.Is(err, progress.ErrUnknownExercise):
		SendError(w, http.StatusNotFound, ErrCodeUnknownExercise, err.Error())
	default:
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
