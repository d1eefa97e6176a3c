// Package convlog records every answered conversation as a human readable
// block in per-session and daily files, a sqlite row and a live stream.
package convlog

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"sinhome/internal/provider"
)

const (
	separatorWidth  = 80
	timestampLayout = "2006-01-02 15:04:05"
	dateLayout      = "2006-01-02"

	// MaxErrorChars bounds the message of an error block.
	MaxErrorChars = 500
)

// Entry is one answered request.
type Entry struct {
	Endpoint     string
	SessionID    string
	RequestID    string
	SystemPrompt string
	History      []provider.Turn
	UserMessage  string
	Response     string
	// Payload is the decoded request body, shown without its history.
	Payload map[string]any
	// Extra holds free-form details (retry counters, summary, audit).
	Extra map[string]any
	// Meta is stored as the row's meta_json.
	Meta any
}

func separator() string {
	return strings.Repeat("=", separatorWidth)
}

// FormatHistory renders turns as "[ROLE]: text" lines.
func FormatHistory(history []provider.Turn) string {
	if len(history) == 0 {
		return "(no history)"
	}
	lines := make([]string, 0, len(history))
	for _, t := range history {
		role := strings.ToUpper(string(t.Role))
		if role == "" {
			role = "UNKNOWN"
		}
		lines = append(lines, fmt.Sprintf("[%s]: %s", role, t.Content.PlainText()))
	}
	return strings.Join(lines, "\n")
}

// Format renders e as a log block stamped with ts.
func Format(e Entry, ts time.Time) string {
	parts := []string{
		separator(),
		fmt.Sprintf("[%s] ENDPOINT: %s", ts.Format(timestampLayout), e.Endpoint),
	}
	if e.SessionID != "" {
		parts = append(parts, "SESSION: "+e.SessionID)
	}
	if e.RequestID != "" {
		parts = append(parts, "REQUEST: "+e.RequestID)
	}
	parts = append(parts, separator())

	if len(e.Payload) > 0 {
		parts = append(parts, "", "--- PAYLOAD (request body, without history) ---", formatPayload(e.Payload))
	}

	parts = append(parts,
		"", "--- SYSTEM PROMPT ---", e.SystemPrompt,
		"", "--- HISTORY ---", FormatHistory(e.History),
		"", "--- USER MESSAGE ---", e.UserMessage,
		"", "--- RESPONSE ---", e.Response,
	)

	if len(e.Extra) > 0 {
		parts = append(parts, "", "--- EXTRA ---")
		keys := make([]string, 0, len(e.Extra))
		for k := range e.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			parts = append(parts, formatExtra(k, e.Extra[k]))
		}
	}

	parts = append(parts, "", separator(), "")
	return strings.Join(parts, "\n")
}

// FormatError renders an error block stamped with ts. The message is cut
// to MaxErrorChars.
func FormatError(endpoint, sessionID, message string, ts time.Time) string {
	parts := []string{
		separator(),
		fmt.Sprintf("[%s] ERROR - ENDPOINT: %s", ts.Format(timestampLayout), endpoint),
	}
	if sessionID != "" {
		parts = append(parts, "SESSION: "+sessionID)
	}
	parts = append(parts,
		separator(),
		"", "--- ERROR ---", truncateRunes(message, MaxErrorChars),
		"", separator(), "",
	)
	return strings.Join(parts, "\n")
}

func formatPayload(payload map[string]any) string {
	shown := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != "history" {
			shown[k] = v
		}
	}
	data, err := json.MarshalIndent(shown, "", "  ")
	if err != nil {
		return fmt.Sprint(shown)
	}
	return string(data)
}

func formatExtra(key string, value any) string {
	switch v := value.(type) {
	case string:
		if strings.Contains(v, "\n") {
			return key + ":\n" + v
		}
		return key + ": " + v
	case []string:
		return key + ":\n" + strings.Join(v, "\n")
	default:
		return fmt.Sprintf("%s: %v", key, v)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
