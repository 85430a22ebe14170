// Package llm defines the inference backend contract used by the planner,
// summarizer, classifier and tool agent, plus the Ollama and Gemini backends.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
)

// Role is a chat transcript role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Options are per-call inference settings.
type Options struct {
	Temperature float64
	// NumCtx is the context window size hint. Backends without the notion ignore it.
	NumCtx int
	// JSON requests strict JSON output from the backend.
	JSON bool
}

// WithoutJSON returns a copy of o with the JSON constraint removed.
func (o Options) WithoutJSON() Options {
	o.JSON = false
	return o
}

// Client is an inference backend.
type Client interface {
	Generate(ctx context.Context, model, prompt string, opts Options) (string, error)
	Chat(ctx context.Context, model string, messages []Message, tools []ToolSpec, opts Options) (ChatResponse, error)
}

// ToolSpec describes a callable tool offered to the model.
type ToolSpec struct {
	Name        string
	Description string
	// Parameters is a JSON schema object.
	Parameters map[string]any
}

// ChatResponse is the model's reply to one chat turn.
type ChatResponse struct {
	Message Message
}

// Message is one transcript entry.
type Message struct {
	Role       Role       `json:"role"`
	Content    Content    `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

// IsEmpty reports whether the message carries no role, content or tool calls.
func (m Message) IsEmpty() bool {
	return m.Role == "" && m.Content.IsZero() && len(m.ToolCalls) == 0
}

// ToolCall is a model request to invoke a tool.
type ToolCall struct {
	ID       string       `json:"id,omitempty"`
	Function FunctionCall `json:"function"`
}

// FunctionCall names the tool and carries its raw arguments. Arguments may be a
// JSON object or a JSON string that itself encodes an object.
type FunctionCall struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Block is one element of list-shaped message content.
type Block struct {
	Type string `json:"type,omitempty"`
	Text string `json:"text,omitempty"`
}

// Content is message content. Backends return either a plain string or a list of
// blocks mixing text and structured parts.
type Content struct {
	Text   string
	Blocks []Block
}

// Text builds string content.
func Text(s string) Content {
	return Content{Text: s}
}

// IsZero reports whether the content is empty.
func (c Content) IsZero() bool {
	return c.Text == "" && len(c.Blocks) == 0
}

// Flatten returns the textual content: string content trimmed, or the text of
// every block joined by newlines.
func (c Content) Flatten() string {
	if c.Blocks == nil {
		return strings.TrimSpace(c.Text)
	}
	parts := make([]string, 0, len(c.Blocks))
	for _, b := range c.Blocks {
		if b.Text != "" {
			parts = append(parts, b.Text)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

func (c Content) MarshalJSON() ([]byte, error) {
	if c.Blocks != nil {
		return json.Marshal(c.Blocks)
	}
	return json.Marshal(c.Text)
}

func (c *Content) UnmarshalJSON(b []byte) error {
	*c = Content{}
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	switch trimmed[0] {
	case '"':
		return json.Unmarshal(trimmed, &c.Text)
	case '[':
		var raw []json.RawMessage
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return err
		}
		c.Blocks = make([]Block, 0, len(raw))
		for _, item := range raw {
			item = bytes.TrimSpace(item)
			if len(item) == 0 {
				continue
			}
			switch item[0] {
			case '"':
				var s string
				if err := json.Unmarshal(item, &s); err == nil {
					c.Blocks = append(c.Blocks, Block{Type: "text", Text: s})
				}
			case '{':
				var blk Block
				if err := json.Unmarshal(item, &blk); err == nil {
					c.Blocks = append(c.Blocks, blk)
				}
			}
		}
		return nil
	default:
		// Numbers and objects are not content we can show; keep them as text.
		c.Text = string(trimmed)
		return nil
	}
}
