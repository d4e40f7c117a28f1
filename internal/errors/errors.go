package errors

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	return e.Message
}

func New(status int, code, message string, details any) *APIError {
	return &APIError{Message: message, Code: code, Details: details, Status: status}
}

func Validation(details any) *APIError {
	return New(http.StatusBadRequest, "VALIDATION_ERROR", "Invalid input", details)
}

func NotFound(message string) *APIError {
	if message == "" {
		message = "Not found"
	}
	return New(http.StatusNotFound, "NOT_FOUND", message, nil)
}

// Unavailable is returned when a backend needed for the request is not
// configured or not running.
func Unavailable(message string) *APIError {
	if message == "" {
		message = "Service unavailable"
	}
	return New(http.StatusServiceUnavailable, "UNAVAILABLE", message, nil)
}

func Upstream(err error) *APIError {
	if errors.Is(err, context.DeadlineExceeded) {
		return New(http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Upstream request timed out", nil)
	}
	return New(http.StatusBadGateway, "UPSTREAM_ERROR", err.Error(), nil)
}

func Internal(err error) *APIError {
	if err == nil {
		return New(http.StatusInternalServerError, "INTERNAL_ERROR", "Internal error", nil)
	}
	return New(http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), nil)
}

func Write(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		apiErr = Internal(err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	_ = json.NewEncoder(w).Encode(apiErr)
}
