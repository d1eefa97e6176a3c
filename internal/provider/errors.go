package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorCode defines Provider error codes
type ErrorCode string

const (
	// Authentication errors
	ErrCodeAuthFailed ErrorCode = "AUTH_FAILED" // Invalid or missing credentials

	// Rate limiting
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED" // Too many requests

	// Service availability
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE" // Backend returned 5xx
	ErrCodeModelNotFound      ErrorCode = "MODEL_NOT_FOUND"     // Requested model not found

	// Network and request
	ErrCodeNetworkError    ErrorCode = "NETWORK_ERROR"    // Connection refused, DNS, reset
	ErrCodeTimeout         ErrorCode = "TIMEOUT"          // Request timeout
	ErrCodeCanceled        ErrorCode = "CANCELED"         // Caller canceled the request
	ErrCodeInvalidRequest  ErrorCode = "INVALID_REQUEST"  // Backend rejected the payload
	ErrCodeInvalidResponse ErrorCode = "INVALID_RESPONSE" // Malformed or empty completion payload

	// Unknown
	ErrCodeUnknown ErrorCode = "UNKNOWN" // Unclassified error
)

// StatusClientClosedRequest is reported when the caller went away mid-call.
const StatusClientClosedRequest = 499

// ProviderError is the transport error of a completion call. It always
// aborts the retry ladder; it is never used for semantic retries.
type ProviderError struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	Provider   string    `json:"provider"`
	Retryable  bool      `json:"retryable"`
	StatusCode int       `json:"status_code,omitempty"` // upstream HTTP status, if any
	Err        error     `json:"-"`
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Provider, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewProviderError creates a new ProviderError
func NewProviderError(code ErrorCode, message, provider string, retryable bool) *ProviderError {
	return &ProviderError{
		Code:      code,
		Message:   message,
		Provider:  provider,
		Retryable: retryable,
	}
}

// IsTransport reports whether err is (or wraps) a ProviderError.
func IsTransport(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe)
}

// CodeOf returns the ErrorCode carried by err, or ErrCodeUnknown.
func CodeOf(err error) ErrorCode {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ErrCodeUnknown
}

// HTTPStatus maps err to the status a request handler should answer with.
func HTTPStatus(err error) int {
	var pe *ProviderError
	if !errors.As(err, &pe) {
		if errors.Is(err, context.Canceled) {
			return StatusClientClosedRequest
		}
		return http.StatusInternalServerError
	}
	switch pe.Code {
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeNetworkError, ErrCodeServiceUnavailable:
		return http.StatusServiceUnavailable
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	case ErrCodeCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusBadGateway
	}
}

// ClassifyStatus builds a ProviderError for a non-200 backend response.
func ClassifyStatus(provider string, status int, body string) *ProviderError {
	if len(body) > 500 {
		body = body[:500]
	}
	pe := &ProviderError{
		Message:    fmt.Sprintf("status %d: %s", status, body),
		Provider:   provider,
		StatusCode: status,
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		pe.Code = ErrCodeAuthFailed
	case status == http.StatusNotFound:
		pe.Code = ErrCodeModelNotFound
	case status == http.StatusTooManyRequests:
		pe.Code = ErrCodeRateLimited
		pe.Retryable = true
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		pe.Code = ErrCodeTimeout
		pe.Retryable = true
	case status >= 500:
		pe.Code = ErrCodeServiceUnavailable
		pe.Retryable = true
	case status >= 400:
		pe.Code = ErrCodeInvalidRequest
	default:
		pe.Code = ErrCodeUnknown
	}
	return pe
}

// ClassifyTransport wraps an error returned by http.Client.Do.
func ClassifyTransport(provider string, err error) *ProviderError {
	pe := &ProviderError{Provider: provider, Message: err.Error(), Err: err}
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		pe.Code = ErrCodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		pe.Code = ErrCodeTimeout
		pe.Retryable = true
	case errors.As(err, &netErr) && netErr.Timeout():
		pe.Code = ErrCodeTimeout
		pe.Retryable = true
	default:
		pe.Code = ErrCodeNetworkError
		pe.Retryable = true
	}
	return pe
}
