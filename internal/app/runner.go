package app

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shpitdev/site-classifier/internal/classify"
	"github.com/shpitdev/site-classifier/internal/logging"
	"github.com/shpitdev/site-classifier/internal/pipeline"
	"github.com/shpitdev/site-classifier/internal/research"
)

// Options controls one CSV run.
type Options struct {
	Input       string
	Output      string
	Columns     pipeline.Columns
	BatchSize   int
	Limit       int
	IgnoreCache bool
	// RowTimeout bounds each row's pipeline. Zero means no deadline.
	RowTimeout time.Duration
	Categories []classify.Category

	Escalation       bool
	EscalationFactor int
}

// Stats summarizes a run.
type Stats struct {
	Rows       int
	Cached     int
	Classified int
	Escalated  int
}

// Runner classifies every input row and checkpoints the output file.
type Runner struct {
	pipe   *Pipeline
	opts   Options
	logger *zap.Logger
}

func NewRunner(pipe *Pipeline, opts Options, logger *zap.Logger) (*Runner, error) {
	if pipe == nil || pipe.Classifier == nil {
		return nil, eris.New("app: a classifier is required")
	}
	if opts.Input == "" || opts.Output == "" {
		return nil, eris.New("app: input and output paths are required")
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 1
	}
	if opts.EscalationFactor < 1 {
		opts.EscalationFactor = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{pipe: pipe, opts: opts, logger: logger}, nil
}

// Run reads the input, reuses cached rows whose category signature matches,
// classifies the rest in input order and writes the output every BatchSize
// classified rows and once at the end. Per-row failures never abort the run;
// only unreadable input, unwritable output or a cancelled ctx do.
func (r *Runner) Run(ctx context.Context) (Stats, error) {
	runID := logging.NewCorrelationID()
	logger := r.logger.With(zap.String("run", runID))
	runStart := time.Now()

	input, err := pipeline.ReadInput(r.opts.Input, r.opts.Columns)
	if err != nil {
		return Stats{}, err
	}
	rows := input.Rows
	if r.opts.Limit > 0 && len(rows) > r.opts.Limit {
		rows = rows[:r.opts.Limit]
	}

	cache := pipeline.NewCache()
	if !r.opts.IgnoreCache {
		cache, err = pipeline.LoadCache(r.opts.Output, r.opts.Columns)
		if err != nil {
			return Stats{}, err
		}
	}
	signature := classify.Signature(r.opts.Categories)

	plan := buildIncrementalPlan(rows, cache, signature, r.opts.Columns)
	logger.Info("run start",
		zap.String("input", r.opts.Input),
		zap.String("output", r.opts.Output),
		zap.Int("input_rows", len(rows)),
		zap.Int("prior_output_rows", cache.Len()),
		zap.Int("cached_rows", plan.cachedRows),
		zap.Int("rows_to_classify", plan.pendingRows),
		zap.Int("unique_sites_to_classify", len(plan.pendingKeys)),
		zap.Bool("agentic", r.pipe.Agentic),
		zap.Int("batch_size", r.opts.BatchSize),
	)

	stats := Stats{Rows: len(rows), Cached: plan.cachedRows}
	out := make([]pipeline.Row, 0, len(rows))
	seen := make(map[string]struct{}, len(rows))
	fresh := make(map[string]pipeline.Row, len(plan.pendingKeys))
	sinceCheckpoint := 0

	checkpoint := func(reason string) error {
		all := append(append([]pipeline.Row(nil), out...), cache.Remaining(seen)...)
		if err := pipeline.WriteOutput(r.opts.Output, input.Header, all); err != nil {
			return err
		}
		logger.Info("checkpoint written",
			zap.String("reason", reason),
			zap.Int("processed", len(out)),
			zap.Int("rows_written", len(all)),
		)
		sinceCheckpoint = 0
		return nil
	}

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			if werr := checkpoint("cancelled"); werr != nil {
				logger.Warn("checkpoint on cancel failed", zap.Error(werr))
			}
			return stats, err
		}
		key := row.Key(r.opts.Columns)
		seen[key] = struct{}{}

		if cached := plan.rows[i]; cached.Values != nil {
			out = append(out, cached)
			continue
		}
		if prev, ok := fresh[key]; ok {
			out = append(out, prev)
			stats.Cached++
			continue
		}

		classified, escalated := r.processRow(ctx, logger, i, row, signature)
		if err := ctx.Err(); err != nil {
			// An interrupted row is left for the next run.
			delete(seen, key)
			if werr := checkpoint("cancelled"); werr != nil {
				logger.Warn("checkpoint on cancel failed", zap.Error(werr))
			}
			return stats, err
		}
		fresh[key] = classified
		out = append(out, classified)
		stats.Classified++
		if escalated {
			stats.Escalated++
		}

		sinceCheckpoint++
		if sinceCheckpoint >= r.opts.BatchSize {
			if err := checkpoint("batch"); err != nil {
				return stats, err
			}
		}
	}

	if err := checkpoint("final"); err != nil {
		return stats, err
	}
	logger.Info("run complete",
		zap.Int("rows", stats.Rows),
		zap.Int("cached", stats.Cached),
		zap.Int("classified", stats.Classified),
		zap.Int("escalated", stats.Escalated),
		zap.Duration("duration", time.Since(runStart).Round(time.Millisecond)),
	)
	return stats, nil
}

// processRow runs the research and classification pipeline for one row and
// reports whether an escalation pass ran.
func (r *Runner) processRow(ctx context.Context, logger *zap.Logger, idx int, row pipeline.Row, signature string) (pipeline.Row, bool) {
	company := row.Company(r.opts.Columns)
	address := row.Address(r.opts.Columns)
	rowLogger := logger.With(
		zap.String("row_id", logging.NewCorrelationID()),
		zap.Int("row", idx),
		zap.String("company", company),
		zap.String("address", address),
	)
	ctx = logging.WithLogger(ctx, rowLogger)
	if r.opts.RowTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.RowTimeout)
		defer cancel()
	}
	start := time.Now()

	pass := r.runPass(ctx, company, address, r.thresholds(), r.pipe.Agentic)
	escalated := false
	hasInput := company != "" || address != ""
	if r.opts.Escalation && hasInput && r.pipe.Collector != nil && classify.IsInconclusive(pass.result) {
		wider := r.thresholds().Widen(r.opts.EscalationFactor)
		rowLogger.Info("escalating inconclusive verdict",
			zap.String("site_type", pass.result.SiteType),
			zap.Int("max_search_results", wider.MaxSearchResults),
			zap.Int("max_documents", wider.MaxDocuments),
		)
		escalated = true
		second := passResult{collection: r.pipe.Collector.CollectWith(ctx, company, address, r.pipe.Planner, wider)}
		if len(second.collection.Documents) > 0 {
			r.classifyPass(ctx, company, address, &second, false)
			pass = second
		} else {
			rowLogger.Info("escalation found no new evidence; keeping first verdict")
		}
	}

	rowLogger.Info("row classified",
		zap.String("site_type", pass.result.SiteType),
		zap.String("confidence", pass.result.Confidence),
		zap.Int("documents", len(pass.collection.Documents)),
		zap.Int("search_calls", pass.collection.SearchCalls),
		zap.Int("fetch_calls", pass.collection.FetchCalls),
		zap.Bool("escalated", escalated),
		zap.Duration("duration", time.Since(start).Round(time.Millisecond)),
	)
	return row.WithOutput(pipeline.Output{
		SiteType:            pass.result.SiteType,
		Confidence:          pass.result.Confidence,
		Notes:               pass.result.Notes,
		RawModelOutput:      pass.result.RawModelOutput,
		QueryPlan:           queryPlanJSON(pass.collection.Plan),
		EvidenceSummary:     pass.summary,
		CategorySuggestions: signature,
	}), escalated
}

type passResult struct {
	collection research.Collection
	summary    string
	result     classify.Result
}

func (r *Runner) runPass(ctx context.Context, company, address string, th research.Thresholds, agentic bool) passResult {
	var pr passResult
	if r.pipe.Collector != nil {
		pr.collection = r.pipe.Collector.CollectWith(ctx, company, address, r.pipe.Planner, th)
	}
	r.classifyPass(ctx, company, address, &pr, agentic)
	return pr
}

// classifyPass summarizes pr's collected evidence and classifies the row.
func (r *Runner) classifyPass(ctx context.Context, company, address string, pr *passResult, agentic bool) {
	if r.pipe.Collector != nil && r.pipe.Summarizer != nil {
		pr.summary = r.pipe.Summarizer.Summarize(ctx, company, address, pr.collection.Documents).Text
	}
	pr.result = r.pipe.Classifier.Classify(ctx, classify.Request{
		Company:    company,
		Address:    address,
		Evidence:   pr.collection.Documents,
		Summary:    pr.summary,
		Categories: r.opts.Categories,
		Agentic:    agentic,
	})
}

func (r *Runner) thresholds() research.Thresholds {
	if r.pipe.Collector == nil {
		return research.Thresholds{}
	}
	return r.pipe.Collector.Thresholds()
}

func queryPlanJSON(plan research.QueryPlan) string {
	if len(plan.Queries) == 0 {
		return ""
	}
	b, err := json.Marshal(plan.Queries)
	if err != nil {
		return ""
	}
	return string(b)
}

// incrementalPlan marks which input rows can be served from prior output.
type incrementalPlan struct {
	// rows holds the cached row per input index; pending indexes stay zero.
	rows        []pipeline.Row
	pendingKeys []string
	pendingIdx  map[string][]int
	cachedRows  int
	pendingRows int
}

func buildIncrementalPlan(rows []pipeline.Row, cache *pipeline.Cache, signature string, cols pipeline.Columns) incrementalPlan {
	plan := incrementalPlan{
		rows:       make([]pipeline.Row, len(rows)),
		pendingIdx: make(map[string][]int),
	}
	for i, row := range rows {
		key := row.Key(cols)
		if prev, ok := cache.Lookup(key, signature); ok {
			plan.rows[i] = prev.Row
			plan.cachedRows++
			continue
		}
		if _, seen := plan.pendingIdx[key]; !seen {
			plan.pendingKeys = append(plan.pendingKeys, key)
		}
		plan.pendingIdx[key] = append(plan.pendingIdx[key], i)
		plan.pendingRows++
	}
	return plan
}
