// Package http provides the JSON API server and its handlers.
//
// This file implements the Builder Pattern for constructing JSON responses.
// Handlers describe status, headers and body fluently and Write sends them
// in one step, so the error shape stays the same everywhere.

package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"fintrack/internal/core"
	applog "fintrack/internal/log"
	"fintrack/internal/rates"
	"fintrack/internal/services"
	"fintrack/internal/transfer"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
	indent     bool
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value to encode. A nil body writes no content.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Attachment marks the response as a download named filename.
func (b *JSONResponseBuilder) Attachment(filename string) *JSONResponseBuilder {
	b.indent = true
	return b.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
}

// Write sends the built response. The body is encoded before any header is
// written so an encoding failure still yields a clean 500.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}

	if b.body == nil || b.statusCode == http.StatusNoContent {
		w.WriteHeader(b.statusCode)
		return
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	if b.indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(b.body); err != nil {
		slog.Error("Failed to encode response body",
			applog.FieldComponent, applog.ComponentHTTP, applog.FieldError, err.Error())
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal error"}` + "\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	_, _ = w.Write(buf.Bytes())
}

// errorBody is the JSON shape of every error answer.
type errorBody struct {
	Error string `json:"error"`
}

// ErrorResponse creates a standard {"error": message} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

func BadRequestError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusBadRequest, message)
}

func UnprocessableEntityError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusUnprocessableEntity, message)
}

func NotFoundError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusNotFound, message)
}

func InternalServerError(message string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusInternalServerError, message)
}

func TooManyRequestsError() *JSONResponseBuilder {
	return ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

var validationErrors = []error{
	core.ErrInvalidType,
	core.ErrInvalidAmount,
	core.ErrEmptyCategory,
	core.ErrCategoryTooLong,
	core.ErrInvalidDate,
	core.ErrInvalidCurrency,
	core.ErrInvalidGoal,
	core.ErrEmptyID,
	services.ErrInvalidTheme,
	services.ErrDuplicateID,
}

// ErrorFromDomain maps a service error to its response. Unknown errors are
// logged and hidden behind a generic 500.
func ErrorFromDomain(r *http.Request, err error) *JSONResponseBuilder {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return ErrorResponse(reqErr.Status, reqErr.Message)
	case errors.Is(err, services.ErrTransactionNotFound):
		return NotFoundError(err.Error())
	case errors.Is(err, transfer.ErrInvalidFormat), errors.Is(err, rates.ErrInvalidBase):
		return BadRequestError(err.Error())
	}
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return UnprocessableEntityError(err.Error())
		}
	}

	applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
		applog.FieldMethod, r.Method,
		applog.FieldPath, r.URL.Path,
		applog.FieldError, err.Error())
	return InternalServerError("internal error")
}
