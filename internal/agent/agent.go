// Package agent runs a bounded tool-calling conversation in which the model
// may search and fetch pages before answering with a JSON verdict.
package agent

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shpitdev/site-classifier/internal/llm"
	"github.com/shpitdev/site-classifier/internal/logging"
)

var (
	// ErrExhausted means the iteration bound was hit without a final answer.
	ErrExhausted = eris.New("agent: loop exhausted without final response")
	// ErrEmptyMessage means the model replied with a structurally empty message.
	ErrEmptyMessage = eris.New("agent: model returned an empty message")
)

const DefaultMaxIterations = 6

type State int

const (
	AwaitingModel State = iota
	ToolExecuting
	Done
	Exhausted
)

func (s State) String() string {
	switch s {
	case AwaitingModel:
		return "awaiting_model"
	case ToolExecuting:
		return "tool_executing"
	case Done:
		return "done"
	case Exhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CallRecord is one executed tool call.
type CallRecord struct {
	Iteration int
	ID        string
	Name      string
	Arguments map[string]any
	Output    string
}

// Transcript is the conversation of one run. It is owned by that run.
type Transcript struct {
	Messages []llm.Message
	Calls    []CallRecord
}

type Agent struct {
	client        llm.Client
	model         string
	registry      *Registry
	maxIterations int
	logger        *zap.Logger
}

func New(client llm.Client, model string, registry *Registry, maxIterations int, logger *zap.Logger) *Agent {
	if maxIterations < 1 {
		maxIterations = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Agent{
		client:        client,
		model:         model,
		registry:      registry,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// Run drives the conversation to a final answer. It returns ErrExhausted when
// the model keeps calling tools past the iteration bound, ErrEmptyMessage on
// an empty reply, and a wrapped error when the chat call itself fails.
//
// guidance, when non-empty, is appended to the system prompt (category hints).
func (a *Agent) Run(ctx context.Context, company, address, guidance string) (string, *Transcript, error) {
	logger := logging.FromContext(ctx, a.logger)
	tr := &Transcript{Messages: initialMessages(company, address, guidance)}
	specs := a.registry.Specs()
	opts := llm.Options{Temperature: 0.2, NumCtx: 4096}

	state := AwaitingModel
	iteration := 0
	var pending []llm.ToolCall
	var final string
	for {
		switch state {
		case AwaitingModel:
			if iteration >= a.maxIterations {
				state = Exhausted
				continue
			}
			iteration++
			logger.Debug("agent: iteration", zap.Int("iteration", iteration), zap.Int("max_iterations", a.maxIterations))

			resp, err := a.client.Chat(ctx, a.model, tr.Messages, specs, opts)
			if err != nil {
				return "", tr, eris.Wrap(err, "agent: chat request failed")
			}
			msg := resp.Message
			if msg.IsEmpty() {
				logger.Warn("agent: empty message from model", zap.Int("iteration", iteration))
				return "", tr, ErrEmptyMessage
			}
			if msg.Role == "" {
				msg.Role = llm.RoleAssistant
			}
			tr.Messages = append(tr.Messages, msg)

			if len(msg.ToolCalls) > 0 {
				logger.Debug("agent: model requested tools", zap.Int("calls", len(msg.ToolCalls)))
				pending = msg.ToolCalls
				state = ToolExecuting
				continue
			}
			if text := msg.Content.Flatten(); text != "" {
				final = text
				state = Done
			}

		case ToolExecuting:
			for i, call := range pending {
				out, args := a.registry.Execute(ctx, call)
				id := call.ID
				if id == "" {
					id = fmt.Sprintf("call_%d_%d", iteration, i)
				}
				tr.Calls = append(tr.Calls, CallRecord{
					Iteration: iteration,
					ID:        id,
					Name:      call.Function.Name,
					Arguments: args,
					Output:    out,
				})
				tr.Messages = append(tr.Messages, llm.Message{
					Role:       llm.RoleTool,
					ToolCallID: id,
					Name:       call.Function.Name,
					Content:    llm.Text(out),
				})
			}
			pending = nil
			state = AwaitingModel

		case Done:
			logger.Debug("agent: final response", zap.Int("iterations", iteration), zap.Int("tool_calls", len(tr.Calls)))
			return final, tr, nil

		case Exhausted:
			logger.Warn("agent: exhausted", zap.Int("iterations", iteration), zap.Int("tool_calls", len(tr.Calls)))
			return "", tr, ErrExhausted
		}
	}
}

func initialMessages(company, address, guidance string) []llm.Message {
	if company == "" {
		company = "Unknown company"
	}
	if address == "" {
		address = "Unknown address"
	}
	return []llm.Message{
		{
			Role: llm.RoleSystem,
			Content: llm.Text("You are an investigative assistant that classifies business facilities. " +
				"Use the available tools to research the company/address before answering. " +
				"When you have enough evidence, respond with strict JSON:\n" +
				"{\n  \"site_type\": \"...\",\n  \"confidence\": \"...\",\n  \"notes\": \"...\"\n}\n" +
				"If evidence is insufficient, set site_type to \"unknown\" and explain why." +
				guidanceSuffix(guidance)),
		},
		{
			Role: llm.RoleUser,
			Content: llm.Text("Company: " + company + "\n" +
				"Address: " + address + "\n" +
				"Instructions:\n" +
				"1. Call web_search to find relevant pages.\n" +
				"2. Use fetch_url on promising links to gather context.\n" +
				"3. Summarize the evidence briefly.\n" +
				"4. Return ONLY the JSON object described above."),
		},
	}
}

func guidanceSuffix(guidance string) string {
	if guidance == "" {
		return ""
	}
	return "\n\n" + guidance
}
