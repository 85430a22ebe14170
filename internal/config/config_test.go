package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "ollama", cfg.Inference.Backend)
	assert.Equal(t, "llama3.1:70b-instruct-q4_0", cfg.Inference.Model)
	assert.Equal(t, 300*time.Second, cfg.Inference.Timeout)
	assert.Equal(t, "http://localhost:11434", cfg.Ollama.URL)
	assert.Equal(t, "duckduckgo", cfg.Search.Backend)
	assert.Equal(t, "moderate", cfg.Search.SafeSearch)
	assert.False(t, cfg.Research.Enabled)
	assert.Equal(t, 5, cfg.Research.MaxSearchResults)
	assert.Equal(t, 3, cfg.Research.MaxDocuments)
	assert.Equal(t, 8000, cfg.Research.MaxContentChars)
	assert.Equal(t, 4, cfg.Research.SearchWorkers)
	assert.Equal(t, 2, cfg.Research.FetchWorkersPerDocument)
	assert.Equal(t, 20*time.Second, cfg.Research.SearchTimeout)
	assert.Equal(t, 20*time.Second, cfg.Research.FetchTimeout)
	assert.True(t, cfg.Research.UsePlanner)
	assert.Equal(t, 5, cfg.Planner.MaxQueries)
	assert.Equal(t, 2, cfg.Planner.MaxRetries)
	assert.Equal(t, 600, cfg.Summarizer.MaxCharsPerDoc)
	assert.Equal(t, "auto", cfg.Agent.Mode)
	assert.Equal(t, []string{"llama3", "llama-3", "llama4", "llama-4", "deepseek"}, cfg.Agent.ModelHints)
	assert.Equal(t, 6, cfg.Agent.MaxIterations)
	assert.True(t, cfg.Escalation.Enabled)
	assert.Equal(t, 2, cfg.Escalation.Factor)
	assert.Equal(t, "Company Name", cfg.Run.CompanyColumn)
	assert.Equal(t, "Full Address", cfg.Run.AddressColumn)
	assert.Equal(t, 5, cfg.Run.BatchSize)
	assert.Equal(t, time.Duration(0), cfg.Run.RowTimeout)
	assert.Equal(t, 24*time.Hour, cfg.Cache.PageCacheTTL)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
log:
  level: debug
  format: console
research:
  enabled: true
  max_documents: 7
  search_timeout: 5s
agent:
  mode: "ON"
run:
  batch_size: 0
  row_timeout: 90s
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "siteclassify.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Research.Enabled)
	assert.Equal(t, 7, cfg.Research.MaxDocuments)
	assert.Equal(t, 5*time.Second, cfg.Research.SearchTimeout)
	assert.Equal(t, "on", cfg.Agent.Mode)
	assert.Equal(t, 1, cfg.Run.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.Run.RowTimeout)
}

func TestLoadExplicitMissingFile(t *testing.T) {
	chdirTemp(t)
	_, err := Load(New(), "does-not-exist.yaml")
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("SITECLASSIFY_RUN_BATCH_SIZE", "11")
	t.Setenv("SITECLASSIFY_INFERENCE_BACKEND", "gemini")
	t.Setenv("GEMINI_API_KEY", "k")

	cfg, err := Load(New(), "")
	require.NoError(t, err)
	assert.Equal(t, 11, cfg.Run.BatchSize)
	assert.Equal(t, "gemini", cfg.Inference.Backend)
	assert.Equal(t, "k", cfg.Gemini.APIKey)
}

func TestValidate(t *testing.T) {
	chdirTemp(t)

	tests := []struct {
		name string
		set  map[string]any
	}{
		{"gemini without key", map[string]any{"inference.backend": "gemini"}},
		{"jina without key", map[string]any{"search.backend": "jina"}},
		{"unknown inference backend", map[string]any{"inference.backend": "bogus"}},
		{"unknown search backend", map[string]any{"search.backend": "bogus"}},
		{"bad agent mode", map[string]any{"agent.mode": "sometimes"}},
		{"non-positive factor", map[string]any{"escalation.factor": 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GEMINI_API_KEY", "")
			t.Setenv("JINA_API_KEY", "")
			v := New()
			for k, val := range tt.set {
				v.Set(k, val)
			}
			_, err := Load(v, "")
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	logger, err = NewLogger(LogConfig{})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = NewLogger(LogConfig{Level: "loud"})
	assert.Error(t, err)
}
