package provider

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Role identifies the author of a turn.
type Role string

// Role constants.
const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the three known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	default:
		return false
	}
}

// PartKind is the type of a multimodal content part.
type PartKind string

// Part kinds.
const (
	PartText  PartKind = "text"
	PartImage PartKind = "image_url"
)

// ImagePlaceholder stands in for an image part wherever text is required.
const ImagePlaceholder = "[IMAGE]"

// Part is one element of a multimodal content list.
type Part struct {
	Kind  PartKind
	Value string // text for PartText, URL for PartImage
}

// TextPart returns a text part.
func TextPart(s string) Part { return Part{Kind: PartText, Value: s} }

// ImagePart returns an image reference part.
func ImagePart(url string) Part { return Part{Kind: PartImage, Value: url} }

// Content is either plain text or an ordered list of parts.
// A non-nil Parts slice marks multimodal content; Text is ignored then.
type Content struct {
	Text  string
	Parts []Part
}

// TextContent wraps s as plain text content.
func TextContent(s string) Content { return Content{Text: s} }

// PartsContent wraps parts as multimodal content.
func PartsContent(parts ...Part) Content {
	if parts == nil {
		parts = []Part{}
	}
	return Content{Parts: parts}
}

// IsParts reports whether c is multimodal.
func (c Content) IsParts() bool { return c.Parts != nil }

// IsEmpty reports whether c carries nothing: whitespace-only text, or a
// part list with no image and only blank text parts.
func (c Content) IsEmpty() bool {
	if !c.IsParts() {
		return strings.TrimSpace(c.Text) == ""
	}
	for _, p := range c.Parts {
		if p.Kind == PartImage || strings.TrimSpace(p.Value) != "" {
			return false
		}
	}
	return true
}

// PlainText flattens c into a single string. Image parts become
// ImagePlaceholder; empty pieces are skipped and the rest joined by spaces.
func (c Content) PlainText() string {
	if !c.IsParts() {
		return c.Text
	}
	pieces := make([]string, 0, len(c.Parts))
	for _, p := range c.Parts {
		var s string
		switch p.Kind {
		case PartImage:
			s = ImagePlaceholder
		default:
			s = p.Value
		}
		if s != "" {
			pieces = append(pieces, s)
		}
	}
	return strings.Join(pieces, " ")
}

type wirePart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

// MarshalJSON encodes text content as a JSON string and multimodal content
// as an OpenAI-style content array.
func (c Content) MarshalJSON() ([]byte, error) {
	if !c.IsParts() {
		return json.Marshal(c.Text)
	}
	out := make([]wirePart, 0, len(c.Parts))
	for _, p := range c.Parts {
		switch p.Kind {
		case PartImage:
			out = append(out, wirePart{Type: string(PartImage), ImageURL: &imageURL{URL: p.Value}})
		default:
			out = append(out, wirePart{Type: string(PartText), Text: p.Value})
		}
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts a string, null, or a list of typed parts.
// Unknown part types are kept as text holding their raw JSON.
func (c *Content) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*c = Content{}
		return nil
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = TextContent(s)
		return nil
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parts := make([]Part, 0, len(raw))
		for _, r := range raw {
			var wp wirePart
			if err := json.Unmarshal(r, &wp); err != nil {
				parts = append(parts, TextPart(string(r)))
				continue
			}
			switch wp.Type {
			case string(PartText):
				parts = append(parts, TextPart(wp.Text))
			case string(PartImage):
				url := ""
				if wp.ImageURL != nil {
					url = wp.ImageURL.URL
				}
				parts = append(parts, ImagePart(url))
			default:
				parts = append(parts, TextPart(string(r)))
			}
		}
		*c = PartsContent(parts...)
		return nil
	default:
		// Numbers and booleans are stringified.
		*c = TextContent(string(data))
		return nil
	}
}

// Turn is one message of a conversation.
type Turn struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// Text returns a plain-text turn.
func Text(role Role, s string) Turn {
	return Turn{Role: role, Content: TextContent(s)}
}

// StopSequences decodes from either a single string or a list of strings.
type StopSequences []string

// UnmarshalJSON implements json.Unmarshaler.
func (s *StopSequences) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = nil
		return nil
	}
	if data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = StopSequences{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("stop must be a string or a list of strings: %w", err)
	}
	*s = many
	return nil
}

// Params are the sampling parameters of one completion call.
type Params struct {
	Temperature float64
	TopP        float64
	MaxTokens   int
	Stop        []string
}
