package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

const maxErrorBody = 2048

// Ollama talks to an Ollama server's /api/generate and /api/chat endpoints.
type Ollama struct {
	baseURL    string
	httpClient *http.Client
}

type OllamaOption func(*Ollama)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) OllamaOption {
	return func(o *Ollama) {
		if c != nil {
			o.httpClient = c
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) OllamaOption {
	return func(o *Ollama) {
		if d > 0 {
			o.httpClient = &http.Client{Timeout: d}
		}
	}
}

func NewOllama(baseURL string, opts ...OllamaOption) *Ollama {
	o := &Ollama{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: 300 * time.Second},
	}
	if o.baseURL == "" {
		o.baseURL = "http://localhost:11434"
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx,omitempty"`
}

type ollamaGenerateRequest struct {
	Model   string        `json:"model"`
	Prompt  string        `json:"prompt"`
	Stream  bool          `json:"stream"`
	Format  string        `json:"format,omitempty"`
	Options ollamaOptions `json:"options"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

type ollamaTool struct {
	Type     string             `json:"type"`
	Function ollamaToolFunction `json:"function"`
}

type ollamaToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type ollamaMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	Name       string     `json:"name,omitempty"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
	Stream   bool            `json:"stream"`
	Format   string          `json:"format,omitempty"`
	Options  ollamaOptions   `json:"options"`
}

type ollamaChatResponse struct {
	Message Message `json:"message"`
}

func (o *Ollama) Generate(ctx context.Context, model, prompt string, opts Options) (string, error) {
	req := ollamaGenerateRequest{
		Model:   model,
		Prompt:  prompt,
		Options: ollamaOptions{Temperature: opts.Temperature, NumCtx: opts.NumCtx},
	}
	if opts.JSON {
		req.Format = "json"
	}
	var resp ollamaGenerateResponse
	if err := o.post(ctx, "/api/generate", req, &resp); err != nil {
		return "", err
	}
	return resp.Response, nil
}

func (o *Ollama) Chat(ctx context.Context, model string, messages []Message, tools []ToolSpec, opts Options) (ChatResponse, error) {
	req := ollamaChatRequest{
		Model:    model,
		Messages: make([]ollamaMessage, 0, len(messages)),
		Options:  ollamaOptions{Temperature: opts.Temperature, NumCtx: opts.NumCtx},
	}
	if opts.JSON {
		req.Format = "json"
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, ollamaMessage{
			Role:       string(m.Role),
			Content:    m.Content.Flatten(),
			ToolCalls:  m.ToolCalls,
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		})
	}
	for _, t := range tools {
		req.Tools = append(req.Tools, ollamaTool{
			Type: "function",
			Function: ollamaToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}
	var resp ollamaChatResponse
	if err := o.post(ctx, "/api/chat", req, &resp); err != nil {
		return ChatResponse{}, err
	}
	return ChatResponse{Message: resp.Message}, nil
}

func (o *Ollama) post(ctx context.Context, path string, body any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "ollama: encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "ollama: build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(err, "ollama: POST %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return markTransient(&HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(b))})
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(err, "ollama: decode %s response", path)
	}
	return nil
}
