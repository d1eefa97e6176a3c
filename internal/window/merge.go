// Package window bounds conversation history and shapes it into the
// message list sent to the completion backend.
package window

import (
	"strings"

	"sinhome/internal/provider"
)

// MergeContent joins two contents of the same logical turn. If either side
// is multimodal, the other is coerced to a single text part and the part
// lists are concatenated, a before b. Otherwise both texts are trimmed and
// joined by a newline, or whichever is non-empty is returned.
func MergeContent(a, b provider.Content) provider.Content {
	if a.IsParts() || b.IsParts() {
		parts := make([]provider.Part, 0, len(a.Parts)+len(b.Parts)+2)
		parts = append(parts, asParts(a)...)
		parts = append(parts, asParts(b)...)
		return provider.PartsContent(parts...)
	}

	s1 := strings.TrimSpace(a.Text)
	s2 := strings.TrimSpace(b.Text)
	switch {
	case s1 == "":
		return provider.TextContent(s2)
	case s2 == "":
		return provider.TextContent(s1)
	default:
		return provider.TextContent(s1 + "\n" + s2)
	}
}

func asParts(c provider.Content) []provider.Part {
	if c.IsParts() {
		return c.Parts
	}
	return []provider.Part{provider.TextPart(c.Text)}
}

// sameText reports whether both contents are plain text with identical
// trimmed values.
func sameText(a, b provider.Content) bool {
	if a.IsParts() || b.IsParts() {
		return false
	}
	return strings.TrimSpace(a.Text) == strings.TrimSpace(b.Text)
}

// BuildMessages returns the optional system turn followed by history with
// consecutive same-role turns merged, always ending in one user turn that
// carries userText. Turns with other roles or blank content are skipped.
// When the history already ends with the same user text it is not
// repeated.
func BuildMessages(system *provider.Turn, history []provider.Turn, userText provider.Content) []provider.Turn {
	msgs := make([]provider.Turn, 0, len(history)+2)
	if system != nil && system.Role == provider.RoleSystem {
		msgs = append(msgs, *system)
	}

	collapsed := make([]provider.Turn, 0, len(history)+1)
	for _, t := range history {
		if t.Role != provider.RoleUser && t.Role != provider.RoleAssistant {
			continue
		}
		if t.Content.IsEmpty() {
			continue
		}
		if n := len(collapsed); n > 0 && collapsed[n-1].Role == t.Role {
			collapsed[n-1].Content = MergeContent(collapsed[n-1].Content, t.Content)
			continue
		}
		collapsed = append(collapsed, t)
	}

	if n := len(collapsed); n > 0 && collapsed[n-1].Role == provider.RoleUser {
		if !sameText(collapsed[n-1].Content, userText) {
			collapsed[n-1].Content = MergeContent(collapsed[n-1].Content, userText)
		}
	} else {
		collapsed = append(collapsed, provider.Turn{Role: provider.RoleUser, Content: userText})
	}

	return append(msgs, collapsed...)
}

// BuildScriptMessages is the script-endpoint variant: history is bounded
// with the couple-trim policy and kept as is, without merging, and the
// user turn is appended unless the trimmed history already ends with it.
func (s *Selector) BuildScriptMessages(system *provider.Turn, history []provider.Turn, userText provider.Content, couplesToKeep int) []provider.Turn {
	msgs := make([]provider.Turn, 0, len(history)+2)
	if system != nil && system.Role == provider.RoleSystem {
		msgs = append(msgs, *system)
	}
	msgs = append(msgs, s.TrimToLastCouples(history, couplesToKeep)...)

	if n := len(msgs); n > 0 && msgs[n-1].Role == provider.RoleUser && sameText(msgs[n-1].Content, userText) {
		return msgs
	}
	return append(msgs, provider.Turn{Role: provider.RoleUser, Content: userText})
}
