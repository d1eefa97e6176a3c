// Package handlers holds the JSON response helpers and the health probe
// shared by the gateway routes.
package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"

	"sinhome/internal/provider"
	"sinhome/pkg/logger"
)

// Error codes of ErrorDetail. Backend failures use the provider codes.
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMITED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	ErrCodeCanceled           = "CANCELED"
)

// requestIDHeader is set on the response by the logging middleware before
// any handler runs.
const requestIDHeader = "X-Request-ID"

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail names what went wrong.
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// SendJSON encodes data and writes it with status. A nil data writes no
// body. When data cannot be encoded the client gets a 500 instead of a
// truncated document.
func SendJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	if data == nil {
		w.WriteHeader(status)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(data); err != nil {
		logger.Error().Err(err).Msg("Failed to encode response")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"code":"INTERNAL_ERROR","message":"failed to encode response"}}` + "\n"))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// SendError writes an ErrorResponse tagged with the request ID.
func SendError(w http.ResponseWriter, status int, code, message string) {
	SendJSON(w, status, ErrorResponse{Error: ErrorDetail{
		Code:      code,
		Message:   message,
		RequestID: w.Header().Get(requestIDHeader),
	}})
}

// SendBackendError answers with the status mapped from a completion
// error. Backend failures carry their provider code; anything else is an
// internal error.
func SendBackendError(w http.ResponseWriter, err error) {
	status := provider.HTTPStatus(err)

	var pe *provider.ProviderError
	if errors.As(err, &pe) {
		SendError(w, status, string(pe.Code), pe.Error())
		return
	}
	if status == provider.StatusClientClosedRequest {
		SendError(w, status, ErrCodeCanceled, "request canceled")
		return
	}
	logger.Error().Err(err).Str("request_id", w.Header().Get(requestIDHeader)).Msg("Request failed")
	SendError(w, status, ErrCodeInternalError, "internal server error")
}
