package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shpitdev/site-classifier/internal/app"
	"github.com/shpitdev/site-classifier/internal/classify"
	"github.com/shpitdev/site-classifier/internal/config"
	"github.com/shpitdev/site-classifier/internal/pipeline"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Classify every row of an input CSV",
	Long: `Classifies each company/address row of --input and writes --output.

Rows already present in --output with the same category hints are reused
without any model or search calls. Output is rewritten every --batch-size
classified rows.

Examples:
  # Single-shot classification with a local Ollama
  siteclassify run --input sites.csv --output sites_classified.csv

  # Web research, category hints and the agent forced on
  siteclassify run --input sites.csv --output out.csv --research --categories cats.yaml --agent-mode on`,
	RunE: runClassify,
}

// runFlags maps config keys to run flags.
var runFlags = map[string]string{
	"run.input":           "input",
	"run.output":          "output",
	"run.limit":           "limit",
	"run.batch_size":      "batch-size",
	"run.ignore_cache":    "ignore-cache",
	"run.categories_file": "categories",
	"run.company_column":  "company-column",
	"run.address_column":  "address-column",
	"run.row_timeout":     "row-timeout",

	"inference.backend":           "inference-backend",
	"inference.model":             "model",
	"ollama.url":                  "ollama-url",
	"search.backend":              "search-backend",
	"search.url":                  "search-url",
	"research.enabled":            "research",
	"research.max_documents":      "max-documents",
	"research.max_search_results": "max-search-results",
	"agent.mode":                  "agent-mode",
	"agent.max_iterations":        "agent-max-iterations",
	"cache.page_cache_path":       "page-cache",
}

func init() {
	f := runCmd.Flags()
	f.String("input", "", "input CSV path (required)")
	f.String("output", "", "output CSV path, also read as the cache (required)")
	f.Int("limit", 0, "classify at most this many input rows (0 = all)")
	f.Int("batch-size", 0, "rows between output checkpoints (default 5)")
	f.Bool("ignore-cache", false, "reclassify rows already present in the output")
	f.String("categories", "", "YAML or JSON file of category hints")
	f.String("company-column", "", `input column holding the company (default "Company Name")`)
	f.String("address-column", "", `input column holding the address (default "Full Address")`)
	f.Duration("row-timeout", 0, "deadline for one row's pipeline (0 = none)")
	f.String("inference-backend", "", "ollama or gemini (default ollama)")
	f.String("model", "", "model name (default llama3.1:70b-instruct-q4_0)")
	f.String("ollama-url", "", "Ollama base URL (default http://localhost:11434)")
	f.String("search-backend", "", "duckduckgo or jina (default duckduckgo)")
	f.String("search-url", "", "DuckDuckGo search bridge URL (default http://localhost:8000)")
	f.Bool("research", false, "gather web evidence before classifying")
	f.Int("max-documents", 0, "documents fetched per row (default 3)")
	f.Int("max-search-results", 0, "results requested per query (default 5)")
	f.String("agent-mode", "", "auto, on or off (default auto)")
	f.Int("agent-max-iterations", 0, "tool-call iterations per agent run (default 6)")
	f.String("page-cache", "", "SQLite file caching fetched pages (disabled when empty)")

	for key, name := range runFlags {
		_ = v.BindPFlag(key, f.Lookup(name))
	}
}

func runClassify(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return configError(err)
	}
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		return configError(err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Run.Input == "" || cfg.Run.Output == "" {
		return configError(eris.New("run requires --input and --output"))
	}
	cats, err := classify.LoadCategories(cfg.Run.CategoriesFile)
	if err != nil {
		return configError(err)
	}

	pipe, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return configError(err)
	}
	defer func() {
		if err := pipe.Close(); err != nil {
			logger.Warn("close pipeline", zap.Error(err))
		}
	}()

	runner, err := app.NewRunner(pipe, app.Options{
		Input:            cfg.Run.Input,
		Output:           cfg.Run.Output,
		Columns:          pipeline.Columns{Company: cfg.Run.CompanyColumn, Address: cfg.Run.AddressColumn},
		BatchSize:        cfg.Run.BatchSize,
		Limit:            cfg.Run.Limit,
		IgnoreCache:      cfg.Run.IgnoreCache,
		RowTimeout:       cfg.Run.RowTimeout,
		Categories:       cats,
		Escalation:       cfg.Escalation.Enabled,
		EscalationFactor: cfg.Escalation.Factor,
	}, logger)
	if err != nil {
		return configError(err)
	}

	stats, err := runner.Run(ctx)
	if err != nil {
		return runError(err)
	}
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Done. Wrote %s (rows=%d cached=%d classified=%d escalated=%d)\n",
		cfg.Run.Output, stats.Rows, stats.Cached, stats.Classified, stats.Escalated)
	return nil
}
