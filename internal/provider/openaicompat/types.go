package openaicompat

import "sinhome/internal/provider"

// chatRequest represents an OpenAI-compatible chat completion request.
// Turns marshal their content as a string or an OpenAI content array.
type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []provider.Turn `json:"messages"`
	Temperature float64         `json:"temperature"`
	TopP        float64         `json:"top_p,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Stop        []string        `json:"stop,omitempty"`
}

// chatMessage represents a response message in OpenAI format.
type chatMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"` // Pointer to detect null
}

// chatResponse represents an OpenAI-compatible chat completion response.
type chatResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []chatChoice   `json:"choices"`
	Usage   *chatUsage     `json:"usage,omitempty"`
	Error   *chatErrorInfo `json:"error,omitempty"`
}

// chatChoice represents a choice in an OpenAI-compatible response.
type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// chatUsage represents token usage in an OpenAI-compatible response.
type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatErrorInfo represents an error in the response.
type chatErrorInfo struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code,omitempty"`
}

// modelsResponse represents the response from /v1/models.
type modelsResponse struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

// modelInfo represents a model entry from the API.
type modelInfo struct {
	ID      string `json:"id"`
	OwnedBy string `json:"owned_by"`
}
