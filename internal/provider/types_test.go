package provider

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContent_UnmarshalString(t *testing.T) {
	var turn Turn
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"hello"}`), &turn))
	assert.Equal(t, RoleUser, turn.Role)
	assert.False(t, turn.Content.IsParts())
	assert.Equal(t, "hello", turn.Content.Text)
}

func TestContent_UnmarshalParts(t *testing.T) {
	raw := `{"role":"user","content":[{"type":"text","text":"look"},{"type":"image_url","image_url":{"url":"https://x/y.png"}}]}`
	var turn Turn
	require.NoError(t, json.Unmarshal([]byte(raw), &turn))
	require.True(t, turn.Content.IsParts())
	assert.Equal(t, []Part{TextPart("look"), ImagePart("https://x/y.png")}, turn.Content.Parts)
	assert.Equal(t, "look [IMAGE]", turn.Content.PlainText())
}

func TestContent_UnmarshalNull(t *testing.T) {
	var turn Turn
	require.NoError(t, json.Unmarshal([]byte(`{"role":"assistant","content":null}`), &turn))
	assert.True(t, turn.Content.IsEmpty())
}

func TestContent_MarshalParts(t *testing.T) {
	c := PartsContent(TextPart("a"), ImagePart("u"))
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"text","text":"a"},{"type":"image_url","image_url":{"url":"u"}}]`, string(data))

	data, err = json.Marshal(TextContent("plain"))
	require.NoError(t, err)
	assert.Equal(t, `"plain"`, string(data))
}

func TestContent_IsEmpty(t *testing.T) {
	assert.True(t, TextContent("  \n ").IsEmpty())
	assert.False(t, TextContent("x").IsEmpty())
	assert.True(t, PartsContent().IsEmpty())
	assert.False(t, PartsContent(ImagePart("u")).IsEmpty())
	assert.True(t, PartsContent(TextPart(""), TextPart(" \n")).IsEmpty())
	assert.False(t, PartsContent(TextPart(" "), TextPart("hi")).IsEmpty())
}

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleSystem.Valid())
	assert.True(t, RoleAssistant.Valid())
	assert.False(t, Role("tool").Valid())
	assert.False(t, Role("").Valid())
}

func TestStopSequences(t *testing.T) {
	var s StopSequences
	require.NoError(t, json.Unmarshal([]byte(`"\nuser:"`), &s))
	assert.Equal(t, StopSequences{"\nuser:"}, s)

	require.NoError(t, json.Unmarshal([]byte(`["a","b"]`), &s))
	assert.Equal(t, StopSequences{"a", "b"}, s)

	require.NoError(t, json.Unmarshal([]byte(`null`), &s))
	assert.Nil(t, s)

	assert.Error(t, json.Unmarshal([]byte(`42`), &s))
}
