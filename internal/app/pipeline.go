package app

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/shpitdev/site-classifier/internal/agent"
	"github.com/shpitdev/site-classifier/internal/classify"
	"github.com/shpitdev/site-classifier/internal/config"
	"github.com/shpitdev/site-classifier/internal/llm"
	"github.com/shpitdev/site-classifier/internal/pagecache"
	"github.com/shpitdev/site-classifier/internal/planner"
	"github.com/shpitdev/site-classifier/internal/research"
	"github.com/shpitdev/site-classifier/internal/summarize"
)

// Collector gathers evidence for one row.
type Collector interface {
	Thresholds() research.Thresholds
	CollectWith(ctx context.Context, company, address string, planner research.QueryPlanner, th research.Thresholds) research.Collection
}

type Summarizer interface {
	Summarize(ctx context.Context, company, address string, docs []research.EvidenceDocument) summarize.Summary
}

type Classifier interface {
	Classify(ctx context.Context, req classify.Request) classify.Result
}

// Pipeline bundles the per-row capabilities. Collector, Planner and
// Summarizer are nil when research is disabled; Classifier is required.
type Pipeline struct {
	Collector  Collector
	Planner    research.QueryPlanner
	Summarizer Summarizer
	Classifier Classifier
	// Agentic routes classification through the tool agent.
	Agentic bool

	closers []func() error
}

// Close releases resources opened by Build.
func (p *Pipeline) Close() error {
	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// ResolveAgentic decides whether the tool agent classifies rows. "auto"
// enables it when the model name contains one of hints, case-insensitively.
// The agent needs a search backend, so research must be enabled.
func ResolveAgentic(mode, model string, hints []string, researchEnabled bool) bool {
	if !researchEnabled {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "on":
		return true
	case "auto":
		m := strings.ToLower(model)
		for _, h := range hints {
			h = strings.ToLower(strings.TrimSpace(h))
			if h != "" && strings.Contains(m, h) {
				return true
			}
		}
	}
	return false
}

// NewClient builds the configured inference backend.
func NewClient(ctx context.Context, cfg *config.Config) (llm.Client, error) {
	switch cfg.Inference.Backend {
	case "ollama":
		return llm.NewOllama(cfg.Ollama.URL, llm.WithTimeout(cfg.Inference.Timeout)), nil
	case "gemini":
		g, err := llm.NewGemini(ctx, llm.GeminiConfig{APIKey: cfg.Gemini.APIKey, BaseURL: cfg.Gemini.BaseURL})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, eris.Wrapf(config.ErrInvalid, "unknown inference.backend %q", cfg.Inference.Backend)
	}
}

// NewSearchBackend builds the configured search backend.
func NewSearchBackend(cfg *config.Config) (research.Backend, error) {
	switch cfg.Search.Backend {
	case "duckduckgo":
		return research.NewDuckDuckGo(cfg.Search.URL, research.WithSafeSearch(cfg.Search.SafeSearch)), nil
	case "jina":
		j, err := research.NewJina(cfg.Search.APIKey)
		if err != nil {
			return nil, err
		}
		return j, nil
	default:
		return nil, eris.Wrapf(config.ErrInvalid, "unknown search.backend %q", cfg.Search.Backend)
	}
}

// Build wires the pipeline described by cfg. Callers must Close the result.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := NewClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	model := cfg.Inference.Model
	p := &Pipeline{}

	agentic := ResolveAgentic(cfg.Agent.Mode, model, cfg.Agent.ModelHints, cfg.Research.Enabled)
	if cfg.Agent.Mode == "on" && !cfg.Research.Enabled {
		logger.Warn("agent mode is on but research is disabled; using single-shot classification")
	}

	var runner classify.AgentRunner
	if cfg.Research.Enabled {
		backend, err := NewSearchBackend(cfg)
		if err != nil {
			return nil, err
		}
		var pages research.Fetcher = research.NewPageFetcher(cfg.Research.FetchTimeout)
		if cfg.Cache.PageCachePath != "" {
			store, err := pagecache.Open(ctx, cfg.Cache.PageCachePath, cfg.Cache.PageCacheTTL)
			if err != nil {
				return nil, err
			}
			p.closers = append(p.closers, store.Close)
			if n, err := store.Prune(ctx); err != nil {
				logger.Warn("page cache prune failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("page cache pruned", zap.Int("expired", n))
			}
			pages = pagecache.NewCachedFetcher(pages, store, logger)
		}

		collector, err := research.NewCollector(backend, pages, research.Config{
			MaxSearchResults:        cfg.Research.MaxSearchResults,
			MaxDocuments:            cfg.Research.MaxDocuments,
			MaxContentChars:         cfg.Research.MaxContentChars,
			SearchWorkers:           cfg.Research.SearchWorkers,
			FetchWorkersPerDocument: cfg.Research.FetchWorkersPerDocument,
			SearchRetries:           cfg.Research.SearchRetries,
			SearchTimeout:           cfg.Research.SearchTimeout,
			FetchTimeout:            cfg.Research.FetchTimeout,
			SearchRateLimitRPS:      cfg.Search.RateLimitRPS,
		}, logger)
		if err != nil {
			_ = p.Close()
			return nil, err
		}
		p.Collector = collector
		if cfg.Research.UsePlanner {
			p.Planner = planner.New(client, model, planner.Options{
				MaxQueries: cfg.Planner.MaxQueries,
				MaxRetries: cfg.Planner.MaxRetries,
			}, logger)
		}
		p.Summarizer = summarize.New(client, model, summarize.Options{
			MaxDocuments:   cfg.Summarizer.MaxDocuments,
			MaxCharsPerDoc: cfg.Summarizer.MaxCharsPerDoc,
		}, logger)
		if agentic {
			runner = agent.New(client, model, agent.DefaultRegistry(collector, logger), cfg.Agent.MaxIterations, logger)
		}
	}

	p.Classifier = classify.New(client, model, runner, logger)
	p.Agentic = agentic
	logger.Info("pipeline ready",
		zap.String("inference_backend", cfg.Inference.Backend),
		zap.String("model", model),
		zap.Bool("research", cfg.Research.Enabled),
		zap.Bool("planner", p.Planner != nil),
		zap.Bool("agentic", agentic),
		zap.Bool("page_cache", cfg.Cache.PageCachePath != ""),
	)
	return p, nil
}
