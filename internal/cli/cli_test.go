package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	v1 "sinhome/api/v1"
	"sinhome/internal/chat"
	"sinhome/internal/config"
	"sinhome/internal/runner"
)

// fakeVLLM answers every chat completion with reply.
func fakeVLLM(t *testing.T, reply string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": reply}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

// writeConfig writes a config file pointing every path into a temp dir.
func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := strings.Join([]string{
		"vllm:",
		"  endpoint: " + endpoint,
		"  model: test-model",
		"storage:",
		"  path: " + filepath.Join(dir, "data.db"),
		"convlog:",
		"  dir: " + filepath.Join(dir, "logs"),
		"log:",
		"  level: error",
		"",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	config.Reset()
	t.Cleanup(config.Reset)

	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestChatCmd_JSONOutput(t *testing.T) {
	backend := fakeVLLM(t, "Coucou toi")
	cfgPath := writeConfig(t, backend.URL)

	out, err := execute(t, "", "-c", cfgPath, "chat", "--session", "s1", "salut")
	require.NoError(t, err)

	var resp v1.ChatResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "Coucou toi", resp.Response)
	assert.Equal(t, "vllm", resp.Meta.Backend)
	assert.NotEmpty(t, resp.Meta.RequestID)

	out, err = execute(t, "", "-c", cfgPath, "logs", "--session", "s1", "--json")
	require.NoError(t, err)
	var logs []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "Coucou toi", logs[0]["response"])
}

func TestChatCmd_FromStdin(t *testing.T) {
	backend := fakeVLLM(t, "viens")
	cfgPath := writeConfig(t, backend.URL)

	body := `{"message":"et là ?","history":[{"role":"user","content":"a"},{"role":"assistant","content":"b"}]}`
	out, err := execute(t, body, "-c", cfgPath, "chat", "--script")
	require.NoError(t, err)
	assert.Contains(t, out, `"response": "viens"`)
}

func TestChatCmd_MissingMessage(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	_, err := execute(t, `{"session_id":"x"}`, "-c", cfgPath, "chat")
	assert.EqualError(t, err, "message is required")
}

func TestLogsCmd_Empty(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	out, err := execute(t, "", "-c", cfgPath, "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "No conversation logs.")
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	home := t.TempDir()
	t.Setenv("HOME", home)

	out, err := execute(t, "", "-c", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)
	assert.FileExists(t, path)

	_, err = execute(t, "", "-c", path, "config", "init")
	assert.Error(t, err)

	t.Setenv("SINHOME_GROK_API_KEY", "xai-secret-key-123")
	out, err = execute(t, "", "-c", path, "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "couples_to_keep: 15")
	assert.Contains(t, out, "xai-****-123")
	assert.NotContains(t, out, "secret")
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version", "--json")
	require.NoError(t, err)

	var info BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, Version, info.Version)
	assert.Equal(t, []string{"vllm", "grok"}, info.Backends)
}

func TestPrintChatResponse_Text(t *testing.T) {
	var buf bytes.Buffer
	resp := &chat.Response{Text: "ok", Meta: runner.Meta{DupReprompts: 2, UsedSummary: true}}

	require.NoError(t, printChatResponse(&buf, resp, false))
	assert.Equal(t, "ok\n  (reprompts: 2, summary: true)\n", buf.String())
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"short", "****"},
		{"abcdefghijkl", "abcd****ijkl"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, maskValue(tt.in))
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "héllo", truncate("héllo", 5))
	assert.Equal(t, "hé...", truncate("héllo wörld", 5))
}

func TestConfigPathCmd(t *testing.T) {
	home := t.TempDir()
	t.Setenv(config.HomeEnv, home)

	out, err := execute(t, "", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "config.yaml")+"\n", out)

	out, err = execute(t, "", "-c", "/etc/sinhome.yaml", "config", "path")
	require.NoError(t, err)
	assert.Equal(t, "/etc/sinhome.yaml\n", out)
}
