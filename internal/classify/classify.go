// Package classify turns a company/address pair and its evidence into a site
// classification, either single-shot or through the tool agent.
package classify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/site-classifier/internal/agent"
	"github.com/shpitdev/site-classifier/internal/jsonx"
	"github.com/shpitdev/site-classifier/internal/llm"
	"github.com/shpitdev/site-classifier/internal/logging"
	"github.com/shpitdev/site-classifier/internal/research"
	"github.com/shpitdev/site-classifier/internal/util"
)

const (
	NoteInvalidJSON = "model did not return valid JSON"
	NoteNoInput     = "no company or address provided"

	evidencePreviewChars = 500
)

// Result is one classification verdict. RawModelOutput is kept verbatim.
type Result struct {
	SiteType       string
	Confidence     string
	Notes          string
	RawModelOutput string
}

// Request carries everything a classification needs.
type Request struct {
	Company    string
	Address    string
	Evidence   []research.EvidenceDocument
	Summary    string
	Categories []Category
	// Agentic asks for the tool agent. It is ignored when no agent is configured.
	Agentic bool
}

// AgentRunner is the tool agent as seen by the classifier.
type AgentRunner interface {
	Run(ctx context.Context, company, address, guidance string) (string, *agent.Transcript, error)
}

type Classifier struct {
	client llm.Client
	model  string
	agent  AgentRunner
	logger *zap.Logger
}

// New builds a classifier. runner may be nil when no search backend exists.
func New(client llm.Client, model string, runner AgentRunner, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{client: client, model: model, agent: runner, logger: logger}
}

// Classify never fails: every failure mode resolves to a Result whose Notes
// explain what went wrong.
func (c *Classifier) Classify(ctx context.Context, req Request) Result {
	logger := logging.FromContext(ctx, c.logger)
	company := strings.TrimSpace(req.Company)
	address := strings.TrimSpace(req.Address)
	if company == "" && address == "" {
		return Result{Notes: NoteNoInput}
	}

	if req.Agentic && c.agent != nil {
		raw, tr, err := c.agent.Run(ctx, company, address, Guidance(req.Categories))
		if err == nil {
			if tr != nil {
				logger.Debug("classify: agent verdict", zap.Int("tool_calls", len(tr.Calls)))
			}
			return ParseResult(raw)
		}
		logger.Warn("classify: agent failed; falling back to single-shot",
			zap.String("error", util.RedactSecrets(err.Error())),
		)
	}

	prompt := c.prompt(company, address, req)
	logger.Debug("classify: prompt", zap.String("prompt", prompt))
	opts := llm.Options{Temperature: 0.1, NumCtx: 4096, JSON: true}
	raw, err := c.client.Generate(ctx, c.model, prompt, opts)
	if err != nil && llm.IsHTTPError(err) {
		logger.Warn("classify: JSON mode rejected; retrying without format",
			zap.String("error", util.RedactSecrets(err.Error())),
		)
		raw, err = c.client.Generate(ctx, c.model, prompt, opts.WithoutJSON())
	}
	if err != nil {
		msg := util.RedactSecrets(err.Error())
		logger.Warn("classify: request failed", zap.String("error", msg))
		return Result{Notes: "classification request failed: " + msg}
	}
	return ParseResult(raw)
}

// ParseResult recovers the verdict object from raw model output.
func ParseResult(raw string) Result {
	obj, _, err := jsonx.DecodeObject(raw)
	if err != nil {
		return Result{Notes: NoteInvalidJSON, RawModelOutput: raw}
	}
	return Result{
		SiteType:       jsonx.String(obj["site_type"]),
		Confidence:     jsonx.String(obj["confidence"]),
		Notes:          jsonx.String(obj["notes"]),
		RawModelOutput: raw,
	}
}

func (c *Classifier) prompt(company, address string, req Request) string {
	if company == "" {
		company = "Unknown company"
	}
	if address == "" {
		address = "Unknown address"
	}
	var b strings.Builder
	b.WriteString("You are classifying the type of business facility at a given location.\n\n")
	b.WriteString("Company: " + company + "\n")
	b.WriteString("Address: " + address + "\n\n")
	b.WriteString(Guidance(req.Categories) + "\n\n")

	if len(req.Evidence) == 0 {
		b.WriteString("Research evidence: none collected.\n\n")
	} else {
		b.WriteString("Research evidence:\n")
		for i, d := range req.Evidence {
			fmt.Fprintf(&b, "[%d] %s\nURL: %s\nSnippet: %s\nExcerpt: %s\n\n",
				i+1, d.Title, d.URL, d.Snippet, util.Truncate(d.Content, evidencePreviewChars))
		}
	}
	if s := strings.TrimSpace(req.Summary); s != "" {
		b.WriteString("Evidence summary:\n" + s + "\n\n")
	}
	b.WriteString("Return ONLY strict JSON with these keys:\n")
	b.WriteString("{\n  \"site_type\": \"...\",\n  \"confidence\": \"low|medium|high\",\n  \"notes\": \"short justification citing evidence numbers\"\n}\n")
	b.WriteString("If the evidence is insufficient, set site_type to \"unknown\" and say so in notes.\n")
	b.WriteString("Do not include any extra commentary.")
	return b.String()
}
