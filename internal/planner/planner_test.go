package planner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shpitdev/site-classifier/internal/llm"
)

type scriptedClient struct {
	replies []reply
	prompts []string
	opts    []llm.Options
}

type reply struct {
	text string
	err  error
}

func (c *scriptedClient) Generate(_ context.Context, _ string, prompt string, opts llm.Options) (string, error) {
	c.prompts = append(c.prompts, prompt)
	c.opts = append(c.opts, opts)
	if len(c.replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	r := c.replies[0]
	c.replies = c.replies[1:]
	return r.text, r.err
}

func (c *scriptedClient) Chat(context.Context, string, []llm.Message, []llm.ToolSpec, llm.Options) (llm.ChatResponse, error) {
	return llm.ChatResponse{}, errors.New("not used")
}

var defaults = []string{"d1", "d2", "d3", "d4", "d5", "d6"}

func TestPlanUsesModelQueries(t *testing.T) {
	c := &scriptedClient{replies: []reply{{text: `{"queries":["acme plant", " ", "acme plant", "acme permits"],"rationale":"facility clues"}`}}}
	p := New(c, "m", Options{MaxQueries: 5, MaxRetries: 2}, nil)

	plan := p.Plan(context.Background(), "Acme", "1 Main St", defaults)
	assert.True(t, plan.UsedModel)
	assert.Equal(t, []string{"acme plant", "acme permits"}, plan.Queries)
	assert.Equal(t, "facility clues", plan.Rationale)
	require.Len(t, c.opts, 1)
	assert.True(t, c.opts[0].JSON)
}

func TestPlanFallsBackAfterInvalidJSONTwice(t *testing.T) {
	c := &scriptedClient{replies: []reply{{text: "not json"}, {text: "still not json"}}}
	p := New(c, "m", Options{MaxQueries: 3, MaxRetries: 2}, nil)

	plan := p.Plan(context.Background(), "Acme", "1 Main St", defaults)
	assert.False(t, plan.UsedModel)
	assert.Equal(t, []string{"d1", "d2", "d3"}, plan.Queries)
	assert.Equal(t, "Fallback to heuristic queries", plan.Rationale)

	require.Len(t, c.prompts, 2)
	assert.Contains(t, c.prompts[1], "previous response was not valid JSON")
	assert.Contains(t, c.prompts[1], "not json")
}

func TestPlanRepairsOnSecondAttempt(t *testing.T) {
	c := &scriptedClient{replies: []reply{{text: "Sure! here you go"}, {text: "```json\n{\"queries\":[\"acme dc\"]}\n```"}}}
	p := New(c, "m", Options{}, nil)

	plan := p.Plan(context.Background(), "Acme", "", defaults)
	assert.True(t, plan.UsedModel)
	assert.Equal(t, []string{"acme dc"}, plan.Queries)
}

func TestPlanTransportErrorsFallBack(t *testing.T) {
	c := &scriptedClient{replies: []reply{{err: errors.New("connection refused")}, {err: errors.New("connection refused")}}}
	p := New(c, "m", Options{MaxQueries: 2}, nil)

	plan := p.Plan(context.Background(), "Acme", "", defaults)
	assert.False(t, plan.UsedModel)
	assert.Equal(t, []string{"d1", "d2"}, plan.Queries)
	assert.Len(t, c.prompts, 2)
}

func TestPlanRetriesWithoutJSONOnHTTPError(t *testing.T) {
	c := &scriptedClient{replies: []reply{
		{err: &llm.HTTPError{StatusCode: 400, Body: "format unsupported"}},
		{text: `{"queries":["acme"]}`},
	}}
	p := New(c, "m", Options{}, nil)

	plan := p.Plan(context.Background(), "Acme", "", defaults)
	assert.Equal(t, []string{"acme"}, plan.Queries)
	require.Len(t, c.opts, 2)
	assert.True(t, c.opts[0].JSON)
	assert.False(t, c.opts[1].JSON)
}

func TestPlanPromptMentionsLimit(t *testing.T) {
	p := New(&scriptedClient{}, "m", Options{MaxQueries: 4}, nil)
	prompt := p.prompt("", "")
	assert.True(t, strings.Contains(prompt, "at most 4 focused queries"))
	assert.Contains(t, prompt, "Unknown company")
	assert.Contains(t, prompt, "Unknown address")
}
