package app_test

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/shpitdev/site-classifier/internal/app"
	"github.com/shpitdev/site-classifier/internal/config"
	"github.com/shpitdev/site-classifier/internal/mockbackend"
	"github.com/shpitdev/site-classifier/internal/pipeline"
	"github.com/shpitdev/site-classifier/pkg/pipeline/schema"
)

func mockConfig(t *testing.T, url string, set map[string]any) *config.Config {
	t.Helper()
	v := config.New()
	v.Set("ollama.url", url)
	v.Set("search.url", url)
	v.Set("research.enabled", true)
	v.Set("agent.mode", "off")
	for k, val := range set {
		v.Set(k, val)
	}
	cfg, err := config.Load(v, "")
	require.NoError(t, err)
	return cfg
}

func runOptions(cfg *config.Config, input, output string) app.Options {
	return app.Options{
		Input:            input,
		Output:           output,
		Columns:          pipeline.Columns{Company: cfg.Run.CompanyColumn, Address: cfg.Run.AddressColumn},
		BatchSize:        cfg.Run.BatchSize,
		Escalation:       cfg.Escalation.Enabled,
		EscalationFactor: cfg.Escalation.Factor,
	}
}

func TestRun_EndToEndAgainstMock(t *testing.T) {
	mock := mockbackend.New(mockbackend.DefaultSites()...)
	ts := httptest.NewServer(mock.Handler())
	defer ts.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "sites.csv")
	output := filepath.Join(dir, "sites_classified.csv")
	require.NoError(t, os.WriteFile(input, []byte(
		"Company Name,Full Address,Region\n"+
			"Acme Logistics,\"1 Main St, Springfield\",West\n"+
			"Borealis Steel,\"77 Mill Rd, Gary\",Midwest\n"+
			"Cobalt Health,\"9 Elm Ave, Boston\",East\n"+
			",,\n",
	), 0o644))

	ctx := context.Background()
	cfg := mockConfig(t, ts.URL, nil)
	pipe, err := app.Build(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pipe.Close()
	assert.False(t, pipe.Agentic)

	runner, err := app.NewRunner(pipe, runOptions(cfg, input, output), zaptest.NewLogger(t))
	require.NoError(t, err)
	stats, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 4, stats.Classified)
	assert.Equal(t, 1, stats.Escalated)

	in, err := pipeline.ReadInput(output, pipeline.Columns{})
	require.NoError(t, err)
	require.Len(t, in.Rows, 4)
	assert.Equal(t, schema.OutputHeader([]string{"Company Name", "Full Address", "Region"}), in.Header)

	byCompany := map[string]pipeline.Row{}
	for _, r := range in.Rows {
		byCompany[r.Company(pipeline.Columns{})] = r
	}
	assert.Equal(t, "warehouse", byCompany["Acme Logistics"].Get(schema.ColSiteType))
	assert.Equal(t, "West", byCompany["Acme Logistics"].Get("Region"))
	assert.NotEmpty(t, byCompany["Acme Logistics"].Get(schema.ColQueryPlan))
	assert.NotEmpty(t, byCompany["Acme Logistics"].Get(schema.ColEvidenceSummary))
	assert.Equal(t, "manufacturing plant", byCompany["Borealis Steel"].Get(schema.ColSiteType))
	assert.Equal(t, "office", byCompany["Cobalt Health"].Get(schema.ColSiteType))
	assert.Equal(t, "no company or address provided", byCompany[""].Get(schema.ColNotes))

	// A second run is served entirely from the output file.
	generateCalls := mock.CountCalls("/api/generate")
	searchCalls := mock.CountCalls("/duckduckgo_web_search")
	stats, err = runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Classified)
	assert.Equal(t, 4, stats.Cached)
	assert.Equal(t, generateCalls, mock.CountCalls("/api/generate"))
	assert.Equal(t, searchCalls, mock.CountCalls("/duckduckgo_web_search"))
}

func TestRun_AgenticEndToEndAgainstMock(t *testing.T) {
	mock := mockbackend.New(mockbackend.DefaultSites()...)
	ts := httptest.NewServer(mock.Handler())
	defer ts.Close()

	dir := t.TempDir()
	input := filepath.Join(dir, "sites.csv")
	output := filepath.Join(dir, "out.csv")
	require.NoError(t, os.WriteFile(input, []byte("Company Name,Full Address\nAcme Logistics,1 Main St\n"), 0o644))

	ctx := context.Background()
	cfg := mockConfig(t, ts.URL, map[string]any{
		"agent.mode":            "on",
		"cache.page_cache_path": filepath.Join(dir, "pages.db"),
	})
	pipe, err := app.Build(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer pipe.Close()
	require.True(t, pipe.Agentic)

	runner, err := app.NewRunner(pipe, runOptions(cfg, input, output), zaptest.NewLogger(t))
	require.NoError(t, err)
	stats, err := runner.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Escalated)

	in, err := pipeline.ReadInput(output, pipeline.Columns{})
	require.NoError(t, err)
	require.Len(t, in.Rows, 1)
	assert.Equal(t, "warehouse", in.Rows[0].Get(schema.ColSiteType))
	assert.Equal(t, 2, mock.CountCalls("/api/chat"))
}

func TestBuild_ConfigErrors(t *testing.T) {
	cfg := &config.Config{}
	cfg.Inference.Backend = "gemini"
	_, err := app.Build(context.Background(), cfg, nil)
	assert.Error(t, err)

	cfg = &config.Config{}
	cfg.Inference.Backend = "ollama"
	cfg.Research.Enabled = true
	cfg.Search.Backend = "jina"
	_, err = app.Build(context.Background(), cfg, nil)
	assert.Error(t, err)
}
