package openaicompat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"sinhome/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url, model string) *Client {
	return NewClient(Options{
		Name:     "test",
		Endpoint: url,
		APIKey:   "secret",
		Model:    model,
		Timeout:  5 * time.Second,
	})
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":    "cmpl-1",
		"model": "m",
		"choices": []map[string]any{
			{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
		},
	})
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "http://vllm:8000", NormalizeEndpoint("http://vllm:8000/v1"))
	assert.Equal(t, "http://vllm:8000", NormalizeEndpoint(" http://vllm:8000/v1/ "))
	assert.Equal(t, "https://api.x.ai", NormalizeEndpoint("https://api.x.ai"))
}

func TestClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req["model"])
		assert.Equal(t, 0.65, req["temperature"])
		assert.Equal(t, 0.9, req["top_p"])
		assert.Equal(t, float64(200), req["max_tokens"])
		assert.Equal(t, []any{"\nuser:"}, req["stop"])

		msgs := req["messages"].([]any)
		require.Len(t, msgs, 3)
		assert.Equal(t, map[string]any{"role": "system", "content": "persona"}, msgs[0])
		assert.Equal(t, map[string]any{
			"role": "user",
			"content": []any{
				map[string]any{"type": "text", "text": "look"},
				map[string]any{"type": "image_url", "image_url": map[string]any{"url": "http://img"}},
			},
		}, msgs[2])

		writeCompletion(w, "  Bonjour toi  \n")
	}))
	defer server.Close()

	c := newTestClient(server.URL+"/v1", "test-model")
	text, err := c.Complete(context.Background(), []provider.Turn{
		provider.Text(provider.RoleSystem, "persona"),
		provider.Text(provider.RoleAssistant, "hey"),
		{Role: provider.RoleUser, Content: provider.PartsContent(provider.TextPart("look"), provider.ImagePart("http://img"))},
	}, provider.Params{Temperature: 0.65, TopP: 0.9, MaxTokens: 200, Stop: []string{"\nuser:"}})

	require.NoError(t, err)
	assert.Equal(t, "Bonjour toi", text)
	assert.Equal(t, "test", c.Name())
}

func TestClient_CompleteOmitsEmptyStop(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		_, hasStop := req["stop"]
		assert.False(t, hasStop)
		writeCompletion(w, "ok")
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, "m").Complete(context.Background(), nil, provider.Params{Temperature: 0.3})
	require.NoError(t, err)
}

func TestClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		status int
		code   provider.ErrorCode
	}{
		{http.StatusUnauthorized, provider.ErrCodeAuthFailed},
		{http.StatusNotFound, provider.ErrCodeModelNotFound},
		{http.StatusTooManyRequests, provider.ErrCodeRateLimited},
		{http.StatusBadRequest, provider.ErrCodeInvalidRequest},
		{http.StatusBadGateway, provider.ErrCodeServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":{"message":"nope","type":"server_error"}}`))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, "m").Complete(context.Background(), nil, provider.Params{})
			require.Error(t, err)
			var pe *provider.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.code, pe.Code)
			assert.Equal(t, tt.status, pe.StatusCode)
			assert.Contains(t, pe.Message, "nope")
		})
	}
}

func TestClient_InvalidResponses(t *testing.T) {
	bodies := map[string]string{
		"no choices":   `{"choices":[]}`,
		"null content": `{"choices":[{"message":{"role":"assistant","content":null}}]}`,
		"not json":     `<html>`,
		"empty":        ``,
		"error field":  `{"error":{"message":"bad","type":"x"}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(body))
			}))
			defer server.Close()

			_, err := newTestClient(server.URL, "m").Complete(context.Background(), nil, provider.Params{})
			require.Error(t, err)
			assert.Equal(t, provider.ErrCodeInvalidResponse, provider.CodeOf(err))
			assert.True(t, provider.IsTransport(err))
		})
	}
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	_, err := newTestClient(url, "m").Complete(context.Background(), nil, provider.Params{})
	require.Error(t, err)
	assert.Equal(t, provider.ErrCodeNetworkError, provider.CodeOf(err))
}

func TestClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeCompletion(w, "late")
	}))
	defer server.Close()

	c := NewClient(Options{Name: "test", Endpoint: server.URL, Model: "m", Timeout: 20 * time.Millisecond})
	_, err := c.Complete(context.Background(), nil, provider.Params{})
	require.Error(t, err)
	assert.Equal(t, provider.ErrCodeTimeout, provider.CodeOf(err))
}

func TestClient_Canceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := newTestClient(server.URL, "m").Complete(ctx, nil, provider.Params{})
	require.Error(t, err)
	assert.Equal(t, provider.ErrCodeCanceled, provider.CodeOf(err))
}

func TestClient_AutoDetectModel(t *testing.T) {
	var modelCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			modelCalls.Add(1)
			w.Write([]byte(`{"object":"list","data":[{"id":"served-model"},{"id":"other"}]}`))
		case "/v1/chat/completions":
			var req map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "served-model", req["model"])
			writeCompletion(w, "ok")
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	c := newTestClient(server.URL, "")
	for i := 0; i < 2; i++ {
		_, err := c.Complete(context.Background(), nil, provider.Params{})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), modelCalls.Load(), "model is cached")
}

func TestClient_NoModelServed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"object":"list","data":[]}`))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, "").Complete(context.Background(), nil, provider.Params{})
	assert.Equal(t, provider.ErrCodeModelNotFound, provider.CodeOf(err))
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/models") {
			w.Write([]byte(`{"data":[{"id":"m"}]}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	assert.NoError(t, newTestClient(server.URL, "m").Ping(context.Background()))

	server.Close()
	assert.Error(t, newTestClient(server.URL, "m").Ping(context.Background()))
}
