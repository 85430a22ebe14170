package summarize

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/site-classifier/internal/llm"
	"github.com/shpitdev/site-classifier/internal/research"
)

type stubClient struct {
	text    string
	err     error
	prompts []string
}

func (c *stubClient) Generate(_ context.Context, _ string, prompt string, _ llm.Options) (string, error) {
	c.prompts = append(c.prompts, prompt)
	return c.text, c.err
}

func (c *stubClient) Chat(context.Context, string, []llm.Message, []llm.ToolSpec, llm.Options) (llm.ChatResponse, error) {
	return llm.ChatResponse{}, errors.New("not used")
}

var docs = []research.EvidenceDocument{
	{URL: "https://a.test", Title: "Acme DC", Snippet: "regional distribution", Content: strings.Repeat("pallet ", 200)},
	{URL: "https://b.test", Title: "Acme Jobs", Snippet: "forklift operators", Content: "hiring"},
	{URL: "https://c.test", Title: "Zoning", Snippet: "industrial zone", Content: "I-2"},
	{URL: "https://d.test", Title: "Extra", Snippet: "ignored", Content: "ignored"},
}

func TestSummarizeEmpty(t *testing.T) {
	c := &stubClient{}
	got := New(c, "m", Options{}, nil).Summarize(context.Background(), "Acme", "1 Main St", nil)
	assert.Equal(t, NoEvidenceText, got.Text)
	assert.False(t, got.UsedModel)
	assert.Zero(t, got.SourceCount)
	assert.Empty(t, c.prompts)
}

func TestSummarizeUsesModel(t *testing.T) {
	c := &stubClient{text: "  - Doc 1 shows a distribution center.  "}
	got := New(c, "m", Options{MaxDocuments: 3, MaxCharsPerDoc: 200}, nil).Summarize(context.Background(), "Acme", "", docs)
	assert.True(t, got.UsedModel)
	assert.Equal(t, "- Doc 1 shows a distribution center.", got.Text)
	assert.Equal(t, 3, got.SourceCount)

	require.Len(t, c.prompts, 1)
	prompt := c.prompts[0]
	assert.Contains(t, prompt, "Document 3: Zoning")
	assert.NotContains(t, prompt, "Document 4")
	assert.NotContains(t, prompt, strings.Repeat("pallet ", 40))
	assert.Contains(t, prompt, "Unknown address")
}

func TestSummarizeFallsBackOnError(t *testing.T) {
	c := &stubClient{err: errors.New("timeout")}
	got := New(c, "m", Options{MaxDocuments: 2}, nil).Summarize(context.Background(), "Acme", "1 Main St", docs)
	assert.False(t, got.UsedModel)
	assert.Equal(t, "1. Acme DC — regional distribution; 2. Acme Jobs — forklift operators", got.Text)
	assert.Equal(t, got.Text, got.Raw)
	assert.Equal(t, 2, got.SourceCount)
}

func TestSummarizeFallsBackOnBlankOutput(t *testing.T) {
	got := New(&stubClient{text: "   "}, "m", Options{MaxDocuments: 1}, nil).Summarize(context.Background(), "Acme", "", docs)
	assert.False(t, got.UsedModel)
	assert.Equal(t, "1. Acme DC — regional distribution", got.Text)
}
