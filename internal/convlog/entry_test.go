package convlog

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sinhome/internal/provider"
)

var fixedTime = time.Date(2026, 5, 4, 10, 30, 0, 0, time.UTC)

func TestFormat(t *testing.T) {
	block := Format(Entry{
		Endpoint:     "chat",
		SessionID:    "s-1",
		RequestID:    "r-1",
		SystemPrompt: "Tu es Lola.",
		History: []provider.Turn{
			provider.Text(provider.RoleUser, "salut"),
			{Role: provider.RoleUser, Content: provider.PartsContent(provider.TextPart("regarde"), provider.ImagePart("http://x"))},
			provider.Text(provider.RoleAssistant, "coucou"),
		},
		UserMessage: "ça va ?",
		Response:    "oui et toi",
		Payload:     map[string]any{"message": "ça va ?", "history": []any{"hidden"}},
		Extra:       map[string]any{"dup_reprompts": 1, "summary": "line1\nline2"},
	}, fixedTime)

	lines := strings.Split(block, "\n")
	assert.Equal(t, strings.Repeat("=", 80), lines[0])
	assert.Equal(t, "[2026-05-04 10:30:00] ENDPOINT: chat", lines[1])
	assert.Equal(t, "SESSION: s-1", lines[2])
	assert.Equal(t, "REQUEST: r-1", lines[3])

	assert.Contains(t, block, "--- SYSTEM PROMPT ---\nTu es Lola.\n")
	assert.Contains(t, block, "--- HISTORY ---\n[USER]: salut\n[USER]: regarde [IMAGE]\n[ASSISTANT]: coucou\n")
	assert.Contains(t, block, "--- USER MESSAGE ---\nça va ?\n")
	assert.Contains(t, block, "--- RESPONSE ---\noui et toi\n")
	assert.Contains(t, block, "--- EXTRA ---\ndup_reprompts: 1\nsummary:\nline1\nline2\n")
	assert.Contains(t, block, `"message": "ça va ?"`)
	assert.NotContains(t, block, "hidden")
	assert.True(t, strings.HasSuffix(block, strings.Repeat("=", 80)+"\n"))
}

func TestFormat_Minimal(t *testing.T) {
	block := Format(Entry{Endpoint: "script"}, fixedTime)
	assert.NotContains(t, block, "SESSION:")
	assert.NotContains(t, block, "--- PAYLOAD")
	assert.NotContains(t, block, "--- EXTRA ---")
	assert.Contains(t, block, "--- HISTORY ---\n(no history)\n")
}

func TestFormatHistory_UnknownRole(t *testing.T) {
	got := FormatHistory([]provider.Turn{{Content: provider.TextContent("x")}})
	assert.Equal(t, "[UNKNOWN]: x", got)
}

func TestFormatError_Truncates(t *testing.T) {
	block := FormatError("chat", "", strings.Repeat("é", 600), fixedTime)
	assert.Contains(t, block, "[2026-05-04 10:30:00] ERROR - ENDPOINT: chat")
	assert.NotContains(t, block, "SESSION:")
	assert.Contains(t, block, strings.Repeat("é", MaxErrorChars)+"\n")
	assert.NotContains(t, block, strings.Repeat("é", MaxErrorChars+1))
}
