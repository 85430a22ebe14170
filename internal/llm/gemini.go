package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/rotisserie/eris"
	"google.golang.org/genai"

	"github.com/shpitdev/site-classifier/pkg/pipeline/core"
)

// Gemini runs inference through the Gemini API.
type Gemini struct {
	client *genai.Client
}

type GeminiConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint (for example to point at a local mock server).
	BaseURL string
}

func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, eris.New("gemini: api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, eris.Wrap(err, "gemini: create client")
	}
	return &Gemini{client: client}, nil
}

func (g *Gemini) Generate(ctx context.Context, model, prompt string, opts Options) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, model, genai.Text(prompt), generateConfig(opts))
	if err != nil {
		return "", classifyErr(err)
	}
	return resp.Text(), nil
}

func (g *Gemini) Chat(ctx context.Context, model string, messages []Message, tools []ToolSpec, opts Options) (ChatResponse, error) {
	cfg := generateConfig(opts)
	system, contents := toGeminiContents(messages)
	if system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}
	if len(tools) > 0 {
		cfg.Tools = toGeminiTools(tools)
	}
	resp, err := g.client.Models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return ChatResponse{}, classifyErr(err)
	}
	return ChatResponse{Message: fromGeminiResponse(resp)}, nil
}

func generateConfig(opts Options) *genai.GenerateContentConfig {
	temp := float32(opts.Temperature)
	cfg := &genai.GenerateContentConfig{
		Temperature:    &temp,
		CandidateCount: 1,
	}
	if opts.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// toGeminiContents splits out system messages into a single instruction and maps
// the remaining transcript onto user/model turns. Tool results travel as
// function responses on the user side.
func toGeminiContents(messages []Message) (string, []*genai.Content) {
	var system []string
	var out []*genai.Content
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			if s := m.Content.Flatten(); s != "" {
				system = append(system, s)
			}
		case RoleAssistant:
			c := &genai.Content{Role: "model"}
			if s := m.Content.Flatten(); s != "" {
				c.Parts = append(c.Parts, &genai.Part{Text: s})
			}
			for _, tc := range m.ToolCalls {
				c.Parts = append(c.Parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					Name: tc.Function.Name,
					Args: ArgumentsMap(tc.Function.Arguments),
				}})
			}
			if len(c.Parts) > 0 {
				out = append(out, c)
			}
		case RoleTool:
			out = append(out, &genai.Content{
				Role: "user",
				Parts: []*genai.Part{{FunctionResponse: &genai.FunctionResponse{
					Name:     m.Name,
					Response: map[string]any{"output": m.Content.Flatten()},
				}}},
			})
		default:
			out = append(out, &genai.Content{
				Role:  "user",
				Parts: []*genai.Part{{Text: m.Content.Flatten()}},
			})
		}
	}
	return strings.Join(system, "\n\n"), out
}

func toGeminiTools(tools []ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{
			Name:        t.Name,
			Description: t.Description,
		}
		if t.Parameters != nil {
			decl.Parameters = toGeminiSchema(t.Parameters)
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toGeminiSchema(params map[string]any) *genai.Schema {
	schema := &genai.Schema{}
	switch params["type"] {
	case "object":
		schema.Type = genai.TypeObject
	case "array":
		schema.Type = genai.TypeArray
	case "string":
		schema.Type = genai.TypeString
	case "number":
		schema.Type = genai.TypeNumber
	case "integer":
		schema.Type = genai.TypeInteger
	case "boolean":
		schema.Type = genai.TypeBoolean
	}
	if desc, ok := params["description"].(string); ok {
		schema.Description = desc
	}
	if props, ok := params["properties"].(map[string]any); ok {
		schema.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if pm, ok := prop.(map[string]any); ok {
				schema.Properties[name] = toGeminiSchema(pm)
			}
		}
	}
	switch req := params["required"].(type) {
	case []string:
		schema.Required = req
	case []any:
		for _, r := range req {
			if s, ok := r.(string); ok {
				schema.Required = append(schema.Required, s)
			}
		}
	}
	return schema
}

func fromGeminiResponse(resp *genai.GenerateContentResponse) Message {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].Content == nil {
		return Message{}
	}
	msg := Message{Role: RoleAssistant}
	var text strings.Builder
	for i, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		text.WriteString(part.Text)
		if part.FunctionCall != nil {
			args, err := json.Marshal(part.FunctionCall.Args)
			if err != nil || part.FunctionCall.Args == nil {
				args = []byte("{}")
			}
			msg.ToolCalls = append(msg.ToolCalls, ToolCall{
				ID: fmt.Sprintf("call_%s_%d", part.FunctionCall.Name, i),
				Function: FunctionCall{
					Name:      part.FunctionCall.Name,
					Arguments: args,
				},
			})
		}
	}
	msg.Content = Text(text.String())
	return msg
}

// classifyErr maps API rejections onto HTTPError and marks retryable failures
// so worker pools back off.
func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return markTransient(&HTTPError{StatusCode: apiErr.Code, Body: apiErr.Message, Err: err})
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &core.TransientError{Err: err}
	}
	return eris.Wrap(err, "gemini: generate content")
}
