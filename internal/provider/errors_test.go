package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		code   ErrorCode
	}{
		{http.StatusUnauthorized, ErrCodeAuthFailed},
		{http.StatusForbidden, ErrCodeAuthFailed},
		{http.StatusNotFound, ErrCodeModelNotFound},
		{http.StatusTooManyRequests, ErrCodeRateLimited},
		{http.StatusGatewayTimeout, ErrCodeTimeout},
		{http.StatusBadGateway, ErrCodeServiceUnavailable},
		{http.StatusBadRequest, ErrCodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			pe := ClassifyStatus("vllm", tt.status, "boom")
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Equal(t, "vllm", pe.Provider)
		})
	}
}

func TestClassifyStatus_TruncatesBody(t *testing.T) {
	body := make([]byte, 2000)
	for i := range body {
		body[i] = 'x'
	}
	pe := ClassifyStatus("grok", 500, string(body))
	assert.Less(t, len(pe.Message), 600)
}

func TestClassifyTransport(t *testing.T) {
	assert.Equal(t, ErrCodeCanceled, ClassifyTransport("vllm", context.Canceled).Code)
	assert.Equal(t, ErrCodeTimeout, ClassifyTransport("vllm", fmt.Errorf("do: %w", context.DeadlineExceeded)).Code)
	assert.Equal(t, ErrCodeNetworkError, ClassifyTransport("vllm", errors.New("connection refused")).Code)
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(&ProviderError{Code: ErrCodeTimeout}))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(&ProviderError{Code: ErrCodeNetworkError}))
	assert.Equal(t, http.StatusBadGateway, HTTPStatus(&ProviderError{Code: ErrCodeInvalidResponse}))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(fmt.Errorf("wrapped: %w", &ProviderError{Code: ErrCodeServiceUnavailable})))
	assert.Equal(t, StatusClientClosedRequest, HTTPStatus(context.Canceled))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("other")))
}

func TestIsTransport(t *testing.T) {
	assert.True(t, IsTransport(fmt.Errorf("x: %w", NewProviderError(ErrCodeTimeout, "slow", "vllm", true))))
	assert.False(t, IsTransport(errors.New("plain")))
	assert.False(t, IsTransport(nil))
	assert.Equal(t, ErrCodeUnknown, CodeOf(errors.New("plain")))
}
