// Package http exposes the roster tracker as a JSON API.
//
// This file implements the Builder Pattern for constructing JSON responses
// and maps the error taxonomy onto HTTP status codes.

package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"rette/internal/core"
	"rette/internal/log"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
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

// Header adds a custom header to the response.
func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body != nil {
		_ = json.NewEncoder(w).Encode(b.body)
	}
}

// Error codes carried in error bodies.
const (
	CodeSetupRequired   = "setup_required"
	CodeBusy            = "busy"
	CodeMutationFailed  = "mutation_failed"
	CodeLoadFailed      = "load_failed"
	CodeEmptyDate       = "empty_date"
	CodeNotFound        = "not_found"
	CodeBadRequest      = "bad_request"
	CodeRateLimited     = "rate_limited"
	CodeJournalDisabled = "journal_disabled"
	CodeInternal        = "internal"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse creates a standard error response.
func ErrorResponse(statusCode int, code, message string) *JSONResponseBuilder {
	return NewJSONResponse().
		Status(statusCode).
		Body(errorBody{Error: errorDetail{Code: code, Message: message}})
}

// BadRequestError creates a 400 Bad Request error response.
func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, CodeBadRequest, message)
}

// errBadRequest marks request parsing failures.
var errBadRequest = errors.New("bad request")

// classify maps an error onto a status, a code and the message shown to
// the client.
func classify(err error) (int, string, string) {
	var le *core.LoadError
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, CodeBadRequest, err.Error()
	case errors.Is(err, core.ErrEmptyDate):
		return http.StatusBadRequest, CodeEmptyDate, "a payment date is required"
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, CodeNotFound, err.Error()
	case errors.Is(err, core.ErrSetupRequired):
		return http.StatusServiceUnavailable, CodeSetupRequired, err.Error()
	case errors.Is(err, core.ErrMutationInProgress):
		return http.StatusConflict, CodeBusy, err.Error()
	case errors.Is(err, core.ErrMutationFailure):
		return http.StatusBadGateway, CodeMutationFailed, err.Error()
	case errors.As(err, &le):
		return http.StatusBadGateway, CodeLoadFailed, le.Message()
	default:
		return http.StatusInternalServerError, CodeInternal, "internal error"
	}
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := classify(err)
	logger := log.FromContext(r.Context())
	switch {
	case status >= 500:
		logger.ErrorContext(r.Context(), "Request failed", log.FieldError, err, "code", code)
	case status == http.StatusConflict:
		logger.InfoContext(r.Context(), "Request rejected", log.FieldError, err, "code", code)
	}
	ErrorResponse(status, code, msg).Write(w)
}
