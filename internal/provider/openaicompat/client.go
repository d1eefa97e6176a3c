// Package openaicompat is the HTTP client shared by completion backends that
// speak the OpenAI chat/completions protocol.
package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"sinhome/internal/provider"
	"sinhome/pkg/logger"
)

const (
	chatPath   = "/v1/chat/completions"
	modelsPath = "/v1/models"

	pingTimeout = 3 * time.Second
)

// Options configures a Client.
type Options struct {
	Name     string
	Endpoint string
	APIKey   string
	Model    string
	Timeout  time.Duration
}

// Client posts chat completions to an OpenAI-compatible server.
type Client struct {
	name       string
	endpoint   string
	apiKey     string
	httpClient *http.Client

	modelMu sync.Mutex
	model   string
}

// NormalizeEndpoint strips surrounding space, trailing slashes and a
// trailing /v1 so paths are never duplicated (/v1/v1/chat/completions).
func NormalizeEndpoint(endpoint string) string {
	normalized := strings.TrimRight(strings.TrimSpace(endpoint), "/")
	return strings.TrimSuffix(normalized, "/v1")
}

// NewClient creates a Client.
func NewClient(opts Options) *Client {
	return &Client{
		name:     opts.Name,
		endpoint: NormalizeEndpoint(opts.Endpoint),
		apiKey:   opts.APIKey,
		model:    opts.Model,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}
}

// Name returns the backend name.
func (c *Client) Name() string {
	return c.name
}

// Endpoint returns the normalized base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Complete sends messages and returns the trimmed content of the first
// choice.
func (c *Client) Complete(ctx context.Context, messages []provider.Turn, params provider.Params) (string, error) {
	model, err := c.resolveModel(ctx)
	if err != nil {
		return "", err
	}

	chatReq := &chatRequest{
		Model:       model,
		Messages:    messages,
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
		Stop:        params.Stop,
	}

	logger.Debug().
		Str("backend", c.name).
		Str("model", model).
		Int("message_count", len(messages)).
		Msg("Chat completion request")

	body, status, err := c.do(ctx, http.MethodPost, chatPath, chatReq)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		logger.Warn().Str("backend", c.name).Int("status", status).Msg("Chat completion error response")
		return "", c.handleErrorResponse(status, body)
	}
	if len(body) == 0 {
		return "", c.invalidResponse("empty body")
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", c.invalidResponse(fmt.Sprintf("decode response: %v", err))
	}
	if chatResp.Error != nil {
		return "", c.invalidResponse(fmt.Sprintf("[%s] %s", chatResp.Error.Type, chatResp.Error.Message))
	}
	if len(chatResp.Choices) == 0 {
		return "", c.invalidResponse("no choices")
	}
	content := chatResp.Choices[0].Message.Content
	if content == nil {
		return "", c.invalidResponse("missing message content")
	}
	return strings.TrimSpace(*content), nil
}

// ListModels returns the model IDs served by the backend.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	body, status, err := c.do(ctx, http.MethodGet, modelsPath, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, c.handleErrorResponse(status, body)
	}

	var modelsResp modelsResponse
	if err := json.Unmarshal(body, &modelsResp); err != nil {
		return nil, c.invalidResponse(fmt.Sprintf("decode models: %v", err))
	}
	models := make([]string, 0, len(modelsResp.Data))
	for _, m := range modelsResp.Data {
		models = append(models, m.ID)
	}
	return models, nil
}

// Ping checks that the backend answers its models endpoint.
func (c *Client) Ping(ctx context.Context) error {
	checkCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	_, err := c.ListModels(checkCtx)
	return err
}

// resolveModel returns the configured model, or the first model served by
// the backend when none is configured. The discovered model is cached.
func (c *Client) resolveModel(ctx context.Context) (string, error) {
	c.modelMu.Lock()
	defer c.modelMu.Unlock()
	if c.model != "" {
		return c.model, nil
	}

	models, err := c.ListModels(ctx)
	if err != nil {
		return "", err
	}
	if len(models) == 0 {
		return "", provider.NewProviderError(provider.ErrCodeModelNotFound, "backend serves no model", c.name, false)
	}
	c.model = models[0]
	logger.Info().Str("backend", c.name).Str("model", c.model).Msg("Auto-detected model")
	return c.model, nil
}

// do sends one request and reads the whole response body.
func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, provider.ClassifyTransport(c.name, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, provider.ClassifyTransport(c.name, err)
	}
	return body, resp.StatusCode, nil
}

// handleErrorResponse converts an HTTP error response to a ProviderError,
// preferring the message of an OpenAI error envelope.
func (c *Client) handleErrorResponse(status int, body []byte) error {
	msg := string(body)
	var errResp chatResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}
	return provider.ClassifyStatus(c.name, status, msg)
}

func (c *Client) invalidResponse(msg string) error {
	return provider.NewProviderError(provider.ErrCodeInvalidResponse, msg, c.name, false)
}
