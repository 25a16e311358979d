// Package apierr defines the typed errors returned by the HTTP API and the
// helper that renders them.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Error is an API error with a stable code and an HTTP status.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"error"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// WithMessage returns a copy of the error carrying message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{Code: e.Code, Message: message, Status: e.Status}
}

var (
	ErrBadRequest = &Error{
		Code:    "bad_request",
		Message: "Invalid request",
		Status:  http.StatusBadRequest,
	}
	ErrUnauthorized = &Error{
		Code:    "unauthorized",
		Message: "Authentication required",
		Status:  http.StatusUnauthorized,
	}
	ErrForbidden = &Error{
		Code:    "forbidden",
		Message: "You don't have permission to perform this action",
		Status:  http.StatusForbidden,
	}
	ErrNotFound = &Error{
		Code:    "not_found",
		Message: "Resource not found",
		Status:  http.StatusNotFound,
	}
	ErrConflict = &Error{
		Code:    "conflict",
		Message: "Resource already exists",
		Status:  http.StatusConflict,
	}
	ErrPayloadTooLarge = &Error{
		Code:    "payload_too_large",
		Message: "File is too large",
		Status:  http.StatusRequestEntityTooLarge,
	}
	ErrUnsupportedMedia = &Error{
		Code:    "unsupported_media",
		Message: "The file could not be analyzed",
		Status:  http.StatusUnprocessableEntity,
	}
	ErrRateLimited = &Error{
		Code:    "rate_limited",
		Message: "Too many requests. Please try again later.",
		Status:  http.StatusTooManyRequests,
	}
	ErrStorage = &Error{
		Code:    "storage_error",
		Message: "Could not store the file",
		Status:  http.StatusBadGateway,
	}
	ErrModel = &Error{
		Code:    "model_error",
		Message: "Analysis failed",
		Status:  http.StatusInternalServerError,
	}
	ErrInternal = &Error{
		Code:    "internal_error",
		Message: "An internal error occurred",
		Status:  http.StatusInternalServerError,
	}
	ErrUnavailable = &Error{
		Code:    "service_unavailable",
		Message: "Service temporarily unavailable",
		Status:  http.StatusServiceUnavailable,
	}
)

// Validation builds a 400 error for a failed field check.
func Validation(message string) *Error {
	return &Error{Code: "validation_error", Message: message, Status: http.StatusBadRequest}
}

// As returns err as an *Error, or ErrInternal when it is not one.
func As(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return ErrInternal
}

// Write renders err as {"error": ..., "code": ...}.
func Write(w http.ResponseWriter, err error) {
	apiErr := As(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apiErr.Status)
	json.NewEncoder(w).Encode(apiErr)
}
