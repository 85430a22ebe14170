package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/shpitdev/site-classifier/pkg/pipeline/worker"
)

func TestClassifyErr(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		httpErr   bool
		transient bool
	}{
		{"rate limited", genai.APIError{Code: 429, Message: "slow down"}, true, true},
		{"server error", genai.APIError{Code: 503}, true, true},
		{"bad request", genai.APIError{Code: 400, Message: "bad schema"}, true, false},
		{"other", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyErr(tt.err)
			assert.Equal(t, tt.httpErr, IsHTTPError(got))
			assert.Equal(t, tt.transient, worker.IsTransient(got))
		})
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{})
	require.Error(t, err)
}

func TestToGeminiContents(t *testing.T) {
	system, contents := toGeminiContents([]Message{
		{Role: RoleSystem, Content: Text("classify sites")},
		{Role: RoleUser, Content: Text("Acme, 1 Main St")},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Function: FunctionCall{Name: "web_search", Arguments: []byte(`{"query":"acme"}`)}}}},
		{Role: RoleTool, Name: "web_search", ToolCallID: "c1", Content: Text(`{"results":[]}`)},
	})
	assert.Equal(t, "classify sites", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	require.NotNil(t, contents[1].Parts[0].FunctionCall)
	assert.Equal(t, "acme", contents[1].Parts[0].FunctionCall.Args["query"])
	require.NotNil(t, contents[2].Parts[0].FunctionResponse)
	assert.Equal(t, "web_search", contents[2].Parts[0].FunctionResponse.Name)
}

func TestFromGeminiResponse(t *testing.T) {
	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{
			{Text: "checking"},
			{FunctionCall: &genai.FunctionCall{Name: "fetch_url", Args: map[string]any{"url": "https://acme.test"}}},
		}},
	}}}
	msg := fromGeminiResponse(resp)
	assert.Equal(t, RoleAssistant, msg.Role)
	assert.Equal(t, "checking", msg.Content.Flatten())
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "fetch_url", msg.ToolCalls[0].Function.Name)
	assert.Equal(t, "https://acme.test", ArgumentsMap(msg.ToolCalls[0].Function.Arguments)["url"])

	assert.True(t, fromGeminiResponse(&genai.GenerateContentResponse{}).IsEmpty())
}

func TestToGeminiSchema(t *testing.T) {
	s := toGeminiSchema(map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "search query"},
			"count": map[string]any{"type": "integer"},
		},
		"required": []string{"query"},
	})
	assert.Equal(t, genai.TypeObject, s.Type)
	assert.Equal(t, genai.TypeString, s.Properties["query"].Type)
	assert.Equal(t, genai.TypeInteger, s.Properties["count"].Type)
	assert.Equal(t, []string{"query"}, s.Required)
}
