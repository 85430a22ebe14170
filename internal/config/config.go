package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvPrefix prefixes every environment override, e.g. SITECLASSIFY_RUN_BATCH_SIZE.
const EnvPrefix = "SITECLASSIFY"

// ErrInvalid marks configuration that cannot produce a working run.
var ErrInvalid = eris.New("invalid configuration")

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Inference  InferenceConfig  `yaml:"inference" mapstructure:"inference"`
	Ollama     OllamaConfig     `yaml:"ollama" mapstructure:"ollama"`
	Gemini     GeminiConfig     `yaml:"gemini" mapstructure:"gemini"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Research   ResearchConfig   `yaml:"research" mapstructure:"research"`
	Planner    PlannerConfig    `yaml:"planner" mapstructure:"planner"`
	Summarizer SummarizerConfig `yaml:"summarizer" mapstructure:"summarizer"`
	Agent      AgentConfig      `yaml:"agent" mapstructure:"agent"`
	Escalation EscalationConfig `yaml:"escalation" mapstructure:"escalation"`
	Run        RunConfig        `yaml:"run" mapstructure:"run"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// InferenceConfig selects the model backend.
type InferenceConfig struct {
	Backend string        `yaml:"backend" mapstructure:"backend"`
	Model   string        `yaml:"model" mapstructure:"model"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type OllamaConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

type GeminiConfig struct {
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// SearchConfig selects the search backend.
type SearchConfig struct {
	Backend      string  `yaml:"backend" mapstructure:"backend"`
	URL          string  `yaml:"url" mapstructure:"url"`
	SafeSearch   string  `yaml:"safe_search" mapstructure:"safe_search"`
	APIKey       string  `yaml:"api_key" mapstructure:"api_key"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// ResearchConfig tunes evidence collection.
type ResearchConfig struct {
	Enabled                 bool          `yaml:"enabled" mapstructure:"enabled"`
	MaxSearchResults        int           `yaml:"max_search_results" mapstructure:"max_search_results"`
	MaxDocuments            int           `yaml:"max_documents" mapstructure:"max_documents"`
	MaxContentChars         int           `yaml:"max_content_chars" mapstructure:"max_content_chars"`
	SearchWorkers           int           `yaml:"search_workers" mapstructure:"search_workers"`
	FetchWorkersPerDocument int           `yaml:"fetch_workers_per_document" mapstructure:"fetch_workers_per_document"`
	SearchRetries           int           `yaml:"search_retries" mapstructure:"search_retries"`
	SearchTimeout           time.Duration `yaml:"search_timeout" mapstructure:"search_timeout"`
	FetchTimeout            time.Duration `yaml:"fetch_timeout" mapstructure:"fetch_timeout"`
	UsePlanner              bool          `yaml:"use_planner" mapstructure:"use_planner"`
}

type PlannerConfig struct {
	MaxQueries int `yaml:"max_queries" mapstructure:"max_queries"`
	MaxRetries int `yaml:"max_retries" mapstructure:"max_retries"`
}

type SummarizerConfig struct {
	MaxDocuments   int `yaml:"max_documents" mapstructure:"max_documents"`
	MaxCharsPerDoc int `yaml:"max_chars_per_doc" mapstructure:"max_chars_per_doc"`
}

// AgentConfig controls agentic classification.
type AgentConfig struct {
	Mode          string   `yaml:"mode" mapstructure:"mode"`
	ModelHints    []string `yaml:"model_hints" mapstructure:"model_hints"`
	MaxIterations int      `yaml:"max_iterations" mapstructure:"max_iterations"`
}

type EscalationConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	Factor  int  `yaml:"factor" mapstructure:"factor"`
}

// RunConfig controls a single CSV run.
type RunConfig struct {
	Input          string        `yaml:"input" mapstructure:"input"`
	Output         string        `yaml:"output" mapstructure:"output"`
	CompanyColumn  string        `yaml:"company_column" mapstructure:"company_column"`
	AddressColumn  string        `yaml:"address_column" mapstructure:"address_column"`
	BatchSize      int           `yaml:"batch_size" mapstructure:"batch_size"`
	Limit          int           `yaml:"limit" mapstructure:"limit"`
	IgnoreCache    bool          `yaml:"ignore_cache" mapstructure:"ignore_cache"`
	RowTimeout     time.Duration `yaml:"row_timeout" mapstructure:"row_timeout"`
	CategoriesFile string        `yaml:"categories_file" mapstructure:"categories_file"`
}

// CacheConfig configures the optional SQLite page cache.
type CacheConfig struct {
	PageCachePath string        `yaml:"page_cache_path" mapstructure:"page_cache_path"`
	PageCacheTTL  time.Duration `yaml:"page_cache_ttl" mapstructure:"page_cache_ttl"`
}

// New returns a viper instance with defaults and environment overrides set.
// Callers may bind flags on it before passing it to Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("gemini.api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("search.api_key", EnvPrefix+"_SEARCH_API_KEY", "JINA_API_KEY")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("inference.backend", "ollama")
	v.SetDefault("inference.model", "llama3.1:70b-instruct-q4_0")
	v.SetDefault("inference.timeout", "300s")
	v.SetDefault("ollama.url", "http://localhost:11434")
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.base_url", "")
	v.SetDefault("search.backend", "duckduckgo")
	v.SetDefault("search.url", "http://localhost:8000")
	v.SetDefault("search.safe_search", "moderate")
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.rate_limit_rps", 0)
	v.SetDefault("research.enabled", false)
	v.SetDefault("research.max_search_results", 5)
	v.SetDefault("research.max_documents", 3)
	v.SetDefault("research.max_content_chars", 8000)
	v.SetDefault("research.search_workers", 4)
	v.SetDefault("research.fetch_workers_per_document", 2)
	v.SetDefault("research.search_retries", 1)
	v.SetDefault("research.search_timeout", "20s")
	v.SetDefault("research.fetch_timeout", "20s")
	v.SetDefault("research.use_planner", true)
	v.SetDefault("planner.max_queries", 5)
	v.SetDefault("planner.max_retries", 2)
	v.SetDefault("summarizer.max_documents", 3)
	v.SetDefault("summarizer.max_chars_per_doc", 600)
	v.SetDefault("agent.mode", "auto")
	v.SetDefault("agent.model_hints", []string{"llama3", "llama-3", "llama4", "llama-4", "deepseek"})
	v.SetDefault("agent.max_iterations", 6)
	v.SetDefault("escalation.enabled", true)
	v.SetDefault("escalation.factor", 2)
	v.SetDefault("run.input", "")
	v.SetDefault("run.output", "")
	v.SetDefault("run.company_column", "Company Name")
	v.SetDefault("run.address_column", "Full Address")
	v.SetDefault("run.batch_size", 5)
	v.SetDefault("run.limit", 0)
	v.SetDefault("run.ignore_cache", false)
	v.SetDefault("run.row_timeout", "0s")
	v.SetDefault("run.categories_file", "")
	v.SetDefault("cache.page_cache_path", "")
	v.SetDefault("cache.page_cache_ttl", "24h")

	return v
}

// Load reads the optional config file into v and decodes the result. An empty
// path looks for siteclassify.yaml in the working directory; a missing default
// file is not an error, a missing explicit file is.
func Load(v *viper.Viper, path string) (*Config, error) {
	if v == nil {
		v = New()
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("siteclassify")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Inference.Backend = strings.ToLower(strings.TrimSpace(c.Inference.Backend))
	c.Search.Backend = strings.ToLower(strings.TrimSpace(c.Search.Backend))
	c.Agent.Mode = strings.ToLower(strings.TrimSpace(c.Agent.Mode))
	if c.Run.BatchSize < 1 {
		c.Run.BatchSize = 1
	}
	if c.Run.Limit < 0 {
		c.Run.Limit = 0
	}
	hints := c.Agent.ModelHints[:0]
	for _, h := range c.Agent.ModelHints {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			hints = append(hints, h)
		}
	}
	c.Agent.ModelHints = hints
}

// Validate reports settings that no run could use.
func (c *Config) Validate() error {
	switch c.Inference.Backend {
	case "ollama":
	case "gemini":
		if strings.TrimSpace(c.Gemini.APIKey) == "" {
			return eris.Wrap(ErrInvalid, "gemini.api_key is required when inference.backend=gemini")
		}
	default:
		return eris.Wrapf(ErrInvalid, "unknown inference.backend %q", c.Inference.Backend)
	}
	if strings.TrimSpace(c.Inference.Model) == "" {
		return eris.Wrap(ErrInvalid, "inference.model is required")
	}

	switch c.Search.Backend {
	case "duckduckgo":
	case "jina":
		if strings.TrimSpace(c.Search.APIKey) == "" {
			return eris.Wrap(ErrInvalid, "search.api_key is required when search.backend=jina")
		}
	default:
		return eris.Wrapf(ErrInvalid, "unknown search.backend %q", c.Search.Backend)
	}

	switch c.Agent.Mode {
	case "auto", "on", "off":
	default:
		return eris.Wrapf(ErrInvalid, "agent.mode must be auto, on or off, got %q", c.Agent.Mode)
	}
	if c.Escalation.Factor <= 0 {
		return eris.Wrapf(ErrInvalid, "escalation.factor must be positive, got %d", c.Escalation.Factor)
	}
	return nil
}

// NewLogger builds a zap logger from cfg. Format "console" selects the
// development encoder, anything else JSON.
func NewLogger(cfg LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level := cfg.Level
	if level == "" {
		level = "info"
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(lvl)

	logger, err := zapCfg.Build()
	if err != nil {
		return nil, eris.Wrap(err, "config: build logger")
	}
	return logger, nil
}
