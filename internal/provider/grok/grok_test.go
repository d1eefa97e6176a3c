package grok

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"sinhome/internal/provider"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = New(Config{APIKey: "   "})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNew_Defaults(t *testing.T) {
	c, err := New(Config{APIKey: "xai-key"})
	require.NoError(t, err)
	assert.Equal(t, Name, c.Name())
	assert.Equal(t, DefaultEndpoint, c.Endpoint())
}

func TestCompleter_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer xai-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" ok "}}]}`))
	}))
	defer server.Close()

	c, err := New(Config{APIKey: "xai-key", Endpoint: server.URL})
	require.NoError(t, err)
	text, err := c.Complete(context.Background(), []provider.Turn{provider.Text(provider.RoleUser, "hi")}, provider.Params{})
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestFactory_PropagatesError(t *testing.T) {
	provider.Reset()
	defer provider.Reset()

	provider.Register(Name, Factory(Config{}))
	_, err := provider.New(Name)
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
