package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"string", `"  warehouse  "`, "warehouse"},
		{"null", `null`, ""},
		{"blocks", `[{"type":"text","text":"line one"},{"type":"image"},{"type":"text","text":"line two"}]`, "line one\nline two"},
		{"bare strings in list", `["a", "b"]`, "a\nb"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Content
			require.NoError(t, json.Unmarshal([]byte(tt.in), &c))
			assert.Equal(t, tt.want, c.Flatten())
		})
	}
}

func TestContentMarshalRoundTripsShape(t *testing.T) {
	b, err := json.Marshal(Text("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `"hi"`, string(b))

	b, err = json.Marshal(Content{Blocks: []Block{{Type: "text", Text: "hi"}}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"type":"text","text":"hi"}]`, string(b))
}

func TestMessageIsEmpty(t *testing.T) {
	assert.True(t, Message{}.IsEmpty())
	assert.False(t, Message{Role: RoleAssistant}.IsEmpty())
	assert.False(t, Message{ToolCalls: []ToolCall{{Function: FunctionCall{Name: "web_search"}}}}.IsEmpty())
}

func TestArgumentsMap(t *testing.T) {
	assert.Equal(t, map[string]any{"query": "acme"}, ArgumentsMap(json.RawMessage(`{"query":"acme"}`)))
	assert.Equal(t, map[string]any{"url": "https://acme.test"}, ArgumentsMap(json.RawMessage(`"{\"url\":\"https://acme.test\"}"`)))
	assert.Empty(t, ArgumentsMap(json.RawMessage(`"not json"`)))
	assert.Empty(t, ArgumentsMap(nil))
	assert.Empty(t, ArgumentsMap(json.RawMessage(`[1,2]`)))
}
