// Package planner asks a model for targeted web-search queries and falls back
// to heuristic queries when the model cannot produce usable ones.
package planner

import (
	"context"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/shpitdev/site-classifier/internal/jsonx"
	"github.com/shpitdev/site-classifier/internal/llm"
	"github.com/shpitdev/site-classifier/internal/logging"
	"github.com/shpitdev/site-classifier/internal/research"
	"github.com/shpitdev/site-classifier/internal/util"
)

const fallbackRationale = "Fallback to heuristic queries"

type Options struct {
	MaxQueries int
	MaxRetries int
}

// Planner implements research.QueryPlanner over an inference backend.
type Planner struct {
	client llm.Client
	model  string
	opts   Options
	logger *zap.Logger
}

var _ research.QueryPlanner = (*Planner)(nil)

func New(client llm.Client, model string, opts Options, logger *zap.Logger) *Planner {
	if opts.MaxQueries < 1 {
		opts.MaxQueries = 5
	}
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{client: client, model: model, opts: opts, logger: logger}
}

// Plan returns model-generated queries, or defaults truncated to MaxQueries
// with UsedModel=false when every attempt fails. Backend failures count as
// empty attempts.
func (p *Planner) Plan(ctx context.Context, company, address string, defaults []string) research.QueryPlan {
	logger := logging.FromContext(ctx, p.logger)
	prompt := p.prompt(company, address)
	plan := research.QueryPlan{Rationale: "planner request failed"}

	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		raw, err := p.call(ctx, prompt)
		if err != nil {
			logger.Warn("planner: request failed",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.opts.MaxRetries),
				zap.String("error", util.RedactSecrets(err.Error())),
			)
			plan = research.QueryPlan{Rationale: "planner request failed"}
			if ctx.Err() != nil {
				break
			}
		} else {
			candidate := p.parse(raw)
			candidate.Raw = raw
			candidate.UsedModel = true
			plan = candidate
			if len(candidate.Queries) > 0 {
				break
			}
		}
		if attempt < p.opts.MaxRetries {
			logger.Info("planner: retrying after unusable response",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", p.opts.MaxRetries),
			)
			prompt = p.repairPrompt(company, address, plan.Raw)
		}
	}

	plan.Queries = p.clean(plan.Queries)
	if len(plan.Queries) == 0 {
		logger.Debug("planner: falling back to heuristic queries")
		return research.QueryPlan{
			Queries:   p.clean(defaults),
			Rationale: fallbackRationale,
			Raw:       plan.Raw,
			UsedModel: false,
		}
	}
	return plan
}

// call issues one JSON-constrained generation. A plain HTTP rejection of the
// constraint is retried once without it.
func (p *Planner) call(ctx context.Context, prompt string) (string, error) {
	opts := llm.Options{Temperature: 0.2, NumCtx: 2048, JSON: true}
	raw, err := p.client.Generate(ctx, p.model, prompt, opts)
	if err == nil || !llm.IsHTTPError(err) {
		return raw, err
	}
	logging.FromContext(ctx, p.logger).Warn("planner: JSON mode rejected; retrying without format",
		zap.String("error", util.RedactSecrets(err.Error())),
	)
	return p.client.Generate(ctx, p.model, prompt, opts.WithoutJSON())
}

func (p *Planner) parse(raw string) research.QueryPlan {
	obj, _, err := jsonx.DecodeObject(raw)
	if err != nil {
		return research.QueryPlan{Rationale: "planner returned invalid JSON"}
	}
	return research.QueryPlan{
		Queries:   jsonx.Strings(obj["queries"]),
		Rationale: jsonx.String(obj["rationale"]),
	}
}

// clean drops blank and repeated queries and caps the list at MaxQueries.
func (p *Planner) clean(queries []string) []string {
	out := make([]string, 0, len(queries))
	seen := make(map[string]struct{}, len(queries))
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		if _, ok := seen[q]; ok {
			continue
		}
		seen[q] = struct{}{}
		out = append(out, q)
		if len(out) >= p.opts.MaxQueries {
			break
		}
	}
	return out
}

func (p *Planner) prompt(company, address string) string {
	if company == "" {
		company = "Unknown company"
	}
	if address == "" {
		address = "Unknown address"
	}
	var b strings.Builder
	b.WriteString("You are a research planner helping classify industrial facilities.\n")
	b.WriteString("Given a company and address, produce targeted web search queries that will reveal facility type, operations, and any regulatory information.\n\n")
	b.WriteString("Company: " + company + "\n")
	b.WriteString("Address: " + address + "\n\n")
	b.WriteString("Return STRICT JSON with this shape:\n")
	b.WriteString("{\n  \"queries\": [\"...\"],\n  \"rationale\": \"why these queries help\"\n}\n")
	b.WriteString("- Include at most " + strconv.Itoa(p.opts.MaxQueries) + " focused queries.\n")
	b.WriteString("- Blend company, address, and facility keywords (e.g., manufacturing, distribution, headquarters).\n")
	b.WriteString("- Do not include commentary outside the JSON object.")
	return b.String()
}

func (p *Planner) repairPrompt(company, address, previous string) string {
	return p.prompt(company, address) +
		"\nThe previous response was not valid JSON. Re-read the instructions and respond with ONLY the JSON object. Do not add commentary. Previous attempt was:\n" +
		previous + "\n"
}
