// Package http provides the JSON API server and its handlers.
//
// This file implements the Builder Pattern for constructing JSON responses. Every
// body shares one envelope: the payload under "data", a failure under "error" and
// the ledger notices raised while serving the request under "notices".

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"moodtracker/internal/auth"
	"moodtracker/internal/core"
	"moodtracker/internal/ledger"
	"moodtracker/internal/notify"
)

// Error codes carried in the "error.code" field.
const (
	CodeBadRequest   = "bad_request"
	CodeValidation   = "validation"
	CodeUnauthorized = "unauthorized"
	CodeNotFound     = "not_found"
	CodeConflict     = "conflict"
	CodeRateLimited  = "rate_limited"
	CodeUnavailable  = "unavailable"
	CodeInternal     = "internal"
)

type envelope struct {
	Data    any             `json:"data,omitempty"`
	Error   *apiError       `json:"error,omitempty"`
	Notices []notify.Notice `json:"notices,omitempty"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	headers    map[string]string
	body       envelope
	empty      bool
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

// Status sets the HTTP status code for the response.
func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

// Data sets the payload.
func (b *JSONResponseBuilder) Data(v any) *JSONResponseBuilder {
	b.body.Data = v
	return b
}

// Error sets the failure description.
func (b *JSONResponseBuilder) Error(code, message, field string) *JSONResponseBuilder {
	b.body.Error = &apiError{Code: code, Message: message, Field: field}
	return b
}

// Notices attaches the notices recorded for the request, if any.
func (b *JSONResponseBuilder) Notices(r *http.Request) *JSONResponseBuilder {
	if rec, ok := notify.RecorderFrom(r.Context()); ok {
		b.body.Notices = rec.Notices()
	}
	return b
}

// NoContent drops the body; the status becomes 204 unless notices were recorded.
func (b *JSONResponseBuilder) NoContent() *JSONResponseBuilder {
	b.empty = true
	return b
}

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.empty && len(b.body.Notices) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	payload, err := json.Marshal(b.body)
	if err != nil {
		slog.Error("Failed to encode response", "component", "http", "error", err)
		http.Error(w, `{"error":{"code":"internal","message":"encoding failed"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(append(payload, '\n'))
}

// ErrorResponse creates a response carrying only an error.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Error(code, message, "")
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// UnauthorizedError creates a 401 response with a bearer challenge.
func UnauthorizedError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnauthorized, CodeUnauthorized, message).
		Header("WWW-Authenticate", `Bearer realm="moodtracker"`)
}

// TooManyRequestsError creates a 429 response.
func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, CodeRateLimited, "Rate limit exceeded. Please try again later.")
}

// errBadRequest marks malformed input that never reached the domain layer.
var errBadRequest = errors.New("bad request")

// ErrorFor maps a domain or service error to its response.
func ErrorFor(err error) *JSONResponseBuilder {
	var ve *core.ValidationError
	switch {
	case errors.As(err, &ve):
		return NewJSONResponse().Status(http.StatusUnprocessableEntity).Error(CodeValidation, ve.Message, ve.Field)
	case errors.Is(err, errBadRequest):
		return BadRequestError(err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		return UnauthorizedError("Invalid email or password")
	case errors.Is(err, auth.ErrInvalidToken):
		return UnauthorizedError("Invalid or expired session")
	case errors.Is(err, core.ErrNoEntry):
		return ErrorResponse(http.StatusNotFound, CodeNotFound, "No mood recorded for this date")
	case errors.Is(err, core.ErrUserNotFound):
		return ErrorResponse(http.StatusNotFound, CodeNotFound, "User not found")
	case errors.Is(err, core.ErrEmailTaken):
		return ErrorResponse(http.StatusConflict, CodeConflict, "Email already registered")
	case errors.Is(err, ledger.ErrSuperseded), errors.Is(err, ledger.ErrNotReady):
		return ErrorResponse(http.StatusConflict, CodeConflict, "Session changed, please retry")
	case errors.Is(err, core.ErrRemoteUnavailable):
		return ErrorResponse(http.StatusServiceUnavailable, CodeUnavailable, "Storage is unavailable, please retry later").
			Header("Retry-After", "5")
	default:
		return ErrorResponse(http.StatusInternalServerError, CodeInternal, "Internal server error")
	}
}
