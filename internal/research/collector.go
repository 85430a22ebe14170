package research

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/shpitdev/site-classifier/internal/logging"
	"github.com/shpitdev/site-classifier/internal/util"
	"github.com/shpitdev/site-classifier/pkg/pipeline/worker"
)

// Config bounds one collection call.
type Config struct {
	MaxSearchResults int
	MaxDocuments     int
	// MaxContentChars truncates each document's page text.
	MaxContentChars int
	SearchWorkers   int
	// FetchWorkersPerDocument scales fetch parallelism with MaxDocuments.
	FetchWorkersPerDocument int
	SearchRetries           int
	SearchTimeout           time.Duration
	FetchTimeout            time.Duration
	// SearchRateLimitRPS paces every search issued by the collector, across
	// rows and the agent's web_search tool. Zero disables it.
	SearchRateLimitRPS float64
}

func (c Config) withDefaults() Config {
	if c.MaxSearchResults < 1 {
		c.MaxSearchResults = 5
	}
	if c.MaxDocuments < 1 {
		c.MaxDocuments = 3
	}
	if c.MaxContentChars < 1 {
		c.MaxContentChars = 8000
	}
	if c.SearchWorkers < 1 {
		c.SearchWorkers = 4
	}
	if c.FetchWorkersPerDocument < 1 {
		c.FetchWorkersPerDocument = 2
	}
	if c.SearchRetries < 0 {
		c.SearchRetries = 0
	}
	if c.SearchTimeout <= 0 {
		c.SearchTimeout = 20 * time.Second
	}
	if c.FetchTimeout <= 0 {
		c.FetchTimeout = 20 * time.Second
	}
	if c.SearchRateLimitRPS < 0 {
		c.SearchRateLimitRPS = 0
	}
	return c
}

// Thresholds are the per-call limits a collection runs with.
type Thresholds struct {
	MaxSearchResults int
	MaxDocuments     int
	// Expanded adds facility-type query variants to the baseline queries.
	Expanded bool
}

// Widen scales both limits by factor with query expansion on. The result is
// always strictly larger than t.
func (t Thresholds) Widen(factor int) Thresholds {
	grow := func(n int) int {
		w := n * factor
		if w <= n {
			w = n + 1
		}
		return w
	}
	return Thresholds{
		MaxSearchResults: grow(t.MaxSearchResults),
		MaxDocuments:     grow(t.MaxDocuments),
		Expanded:         true,
	}
}

// Collector gathers evidence documents for a company/address pair.
type Collector struct {
	backend Backend
	pages   Fetcher
	cfg     Config
	logger  *zap.Logger
	// limiter is nil when searches are not rate limited.
	limiter *rate.Limiter
}

// NewCollector builds a collector over a search backend and a page fetcher.
// pages may be nil, in which case the backend's content path is the only one.
func NewCollector(backend Backend, pages Fetcher, cfg Config, logger *zap.Logger) (*Collector, error) {
	if backend == nil {
		return nil, eris.New("research: search backend is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		backend: backend,
		pages:   pages,
		cfg:     cfg.withDefaults(),
		logger:  logger,
	}
	if c.cfg.SearchRateLimitRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(c.cfg.SearchRateLimitRPS), 1)
	}
	return c, nil
}

// Thresholds returns the collector's configured limits.
func (c *Collector) Thresholds() Thresholds {
	return Thresholds{
		MaxSearchResults: c.cfg.MaxSearchResults,
		MaxDocuments:     c.cfg.MaxDocuments,
	}
}

// Collect runs one collection with the configured thresholds.
func (c *Collector) Collect(ctx context.Context, company, address string, planner QueryPlanner) Collection {
	return c.CollectWith(ctx, company, address, planner, c.Thresholds())
}

// CollectWith runs one collection. It never fails: search and fetch failures
// are logged and contribute nothing. planner may be nil.
func (c *Collector) CollectWith(ctx context.Context, company, address string, planner QueryPlanner, th Thresholds) Collection {
	company = strings.TrimSpace(company)
	address = strings.TrimSpace(address)
	logger := logging.FromContext(ctx, c.logger)

	if company == "" && address == "" {
		logger.Debug("research: no company or address; skipping collection")
		return Collection{Plan: QueryPlan{Rationale: "Missing company and address"}}
	}
	if th.MaxSearchResults < 1 {
		th.MaxSearchResults = c.cfg.MaxSearchResults
	}
	if th.MaxDocuments < 1 {
		th.MaxDocuments = c.cfg.MaxDocuments
	}

	baseline := BuildQueries(company, address, th.Expanded)
	plan := QueryPlan{Queries: baseline, Rationale: "Heuristic queries"}
	if planner != nil {
		p := planner.Plan(ctx, company, address, baseline)
		p.Queries = dedupeQueries(p.Queries)
		if len(p.Queries) == 0 {
			p.Queries = baseline
		} else if th.Expanded {
			p.Queries = dedupeQueries(append(p.Queries, baseline...))
		}
		plan = p
	}
	logger.Debug("research: query plan",
		zap.Strings("queries", plan.Queries),
		zap.Bool("used_model", plan.UsedModel),
	)

	hits, searchCalls := c.searchAll(ctx, plan.Queries, th.MaxSearchResults)
	candidates := dedupeResults(hits)
	docs, fetchCalls := c.fetchAll(ctx, candidates, th.MaxDocuments)

	logger.Info("research: evidence collected",
		zap.Int("documents", len(docs)),
		zap.Int("candidates", len(candidates)),
		zap.Int("search_calls", searchCalls),
		zap.Int("fetch_calls", fetchCalls),
	)
	return Collection{
		Documents:   docs,
		Plan:        plan,
		SearchCalls: searchCalls,
		FetchCalls:  fetchCalls,
	}
}

// Search runs a single search against the backend.
func (c *Collector) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	sctx, cancel := context.WithTimeout(ctx, c.cfg.SearchTimeout)
	defer cancel()
	return c.backend.Search(sctx, query, maxResults)
}

// FetchPage retrieves a page's text, falling back to the backend's content
// path when the direct fetch fails or yields nothing.
func (c *Collector) FetchPage(ctx context.Context, url string) (string, error) {
	return c.fetchWithFallback(ctx, url, func() {})
}

// searchAll submits every query concurrently. Results are returned in query
// order so deduplication is first-seen by query position.
func (c *Collector) searchAll(ctx context.Context, queries []string, maxResults int) ([]SearchResult, int) {
	if len(queries) == 0 {
		return nil, 0
	}
	logger := logging.FromContext(ctx, c.logger)
	out, _ := worker.ProcessAllWithCallback(ctx, queries, func(ctx context.Context, q string) ([]SearchResult, error) {
		return c.backend.Search(ctx, q, maxResults)
	}, func(r worker.Result[string, []SearchResult]) error {
		if r.Err != nil {
			logger.Warn("research: search failed",
				zap.String("query", r.Input),
				zap.Int("attempts", r.Attempts),
				zap.Bool("transient", worker.IsTransient(r.Err)),
				zap.String("error", util.RedactSecrets(r.Err.Error())),
			)
			return nil
		}
		logger.Debug("research: search done", zap.String("query", r.Input), zap.Int("results", len(r.Output)))
		return nil
	}, worker.Options{
		Workers:        c.cfg.SearchWorkers,
		MaxRetries:     c.cfg.SearchRetries,
		RequestTimeout: c.cfg.SearchTimeout,
		Limiter:        c.limiter,
		Logger:         logger,
	})

	var hits []SearchResult
	calls := 0
	for _, r := range out {
		calls += r.Attempts
		if r.Err == nil {
			hits = append(hits, r.Output...)
		}
	}
	return hits, calls
}

// fetchAll fetches candidates concurrently until maxDocs documents are
// accepted. Reaching the quota cancels the fan-out: no new fetch starts and
// in-flight fetches are abandoned with their results discarded. Documents
// are appended in completion order.
func (c *Collector) fetchAll(ctx context.Context, candidates []SearchResult, maxDocs int) ([]EvidenceDocument, int) {
	if len(candidates) == 0 || maxDocs < 1 {
		return nil, 0
	}
	workers := maxDocs * c.cfg.FetchWorkersPerDocument
	if workers > len(candidates) {
		workers = len(candidates)
	}

	fetchCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(fetchCtx)
	g.SetLimit(workers)

	var (
		mu    sync.Mutex
		docs  []EvidenceDocument
		calls atomic.Int64
	)
	logger := logging.FromContext(ctx, c.logger)
	count := func() { calls.Add(1) }

	for _, cand := range candidates {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			content, err := c.fetchWithFallback(gctx, cand.URL, count)
			if err != nil {
				if gctx.Err() == nil {
					logger.Warn("research: fetch failed",
						zap.String("url", cand.URL),
						zap.String("error", util.RedactSecrets(err.Error())),
					)
				}
				return nil
			}

			mu.Lock()
			defer mu.Unlock()
			if len(docs) >= maxDocs {
				return nil
			}
			docs = append(docs, EvidenceDocument{
				URL:     cand.URL,
				Title:   cand.Title,
				Snippet: cand.Snippet,
				Content: util.Truncate(content, c.cfg.MaxContentChars),
			})
			if len(docs) >= maxDocs {
				logger.Debug("research: document quota reached; cancelling outstanding fetches", zap.Int("max_documents", maxDocs))
				cancel()
			}
			return nil
		})
	}
	_ = g.Wait()
	return docs, int(calls.Load())
}

func (c *Collector) fetchWithFallback(ctx context.Context, url string, count func()) (string, error) {
	var primaryErr error
	if c.pages != nil {
		count()
		fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
		text, err := c.pages.Fetch(fctx, url)
		cancel()
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = eris.Errorf("fetch %s: empty page", url)
		}
		primaryErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.FromContext(ctx, c.logger).Debug("research: direct fetch failed; trying backend content",
			zap.String("url", url),
			zap.String("error", util.RedactSecrets(err.Error())),
		)
	}

	count()
	fctx, cancel := context.WithTimeout(ctx, c.cfg.FetchTimeout)
	defer cancel()
	text, err := c.backend.FetchContent(fctx, url)
	if err != nil {
		if primaryErr != nil {
			return "", eris.Wrapf(err, "fallback after %v", primaryErr)
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", eris.Errorf("fetch %s: no content", url)
	}
	return text, nil
}

func dedupeResults(hits []SearchResult) []SearchResult {
	seen := make(map[string]struct{}, len(hits))
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		if _, ok := seen[h.URL]; ok {
			continue
		}
		seen[h.URL] = struct{}{}
		out = append(out, h)
	}
	return out
}
