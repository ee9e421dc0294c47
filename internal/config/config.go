package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Extraction ExtractionConfig `yaml:"extraction" mapstructure:"extraction"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
	Feedback   FeedbackConfig   `yaml:"feedback" mapstructure:"feedback"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string     `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string     `yaml:"database_url" mapstructure:"database_url"`
	Pool        PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// PoolConfig holds optional Postgres connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NotionConfig holds Notion API credentials and database IDs.
type NotionConfig struct {
	Token     string `yaml:"token" mapstructure:"token"`
	SectionDB string `yaml:"section_db" mapstructure:"section_db"`
	ReviewDB  string `yaml:"review_db" mapstructure:"review_db"`
}

// AnthropicConfig holds Anthropic API settings. Models are named by role so
// each pipeline stage can be tuned independently.
type AnthropicConfig struct {
	Key                 string  `yaml:"key" mapstructure:"key"`
	ExtractModel        string  `yaml:"extract_model" mapstructure:"extract_model"`
	GenerateModel       string  `yaml:"generate_model" mapstructure:"generate_model"`
	AnalyzeModel        string  `yaml:"analyze_model" mapstructure:"analyze_model"`
	MaxBatchSize        int     `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	NoBatch             bool    `yaml:"no_batch" mapstructure:"no_batch"`
	SmallBatchThreshold int     `yaml:"small_batch_threshold" mapstructure:"small_batch_threshold"`
	TimeoutSecs         int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRPS              float64 `yaml:"max_rps" mapstructure:"max_rps"`
}

// ExtractionConfig configures the multi-pass transcript extraction.
type ExtractionConfig struct {
	MaxPasses          int     `yaml:"max_passes" mapstructure:"max_passes"`
	CoverageThreshold  float64 `yaml:"coverage_threshold" mapstructure:"coverage_threshold"`
	MinImprovement     float64 `yaml:"min_improvement" mapstructure:"min_improvement"`
	MaxTranscriptChars int     `yaml:"max_transcript_chars" mapstructure:"max_transcript_chars"`
}

// GenerationConfig configures proposal generation and the retry loop.
type GenerationConfig struct {
	MaxAttempts        int    `yaml:"max_attempts" mapstructure:"max_attempts"`
	SectionConcurrency int    `yaml:"section_concurrency" mapstructure:"section_concurrency"`
	WeightsFile        string `yaml:"weights_file" mapstructure:"weights_file"`
	RulesFile          string `yaml:"rules_file" mapstructure:"rules_file"`
	SectionsFile       string `yaml:"sections_file" mapstructure:"sections_file"`
}

// FeedbackConfig configures feedback validation.
type FeedbackConfig struct {
	HistoryLimit int `yaml:"history_limit" mapstructure:"history_limit"`
}

// MonitoringConfig configures the health watchdog and alert webhook.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	ExhaustedRateThreshold float64 `yaml:"exhausted_rate_threshold" mapstructure:"exhausted_rate_threshold"`
	SuspectFeedbackRate    float64 `yaml:"suspect_feedback_rate" mapstructure:"suspect_feedback_rate"`
	CostThresholdUSD       float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	ReviewQueueThreshold   int     `yaml:"review_queue_threshold" mapstructure:"review_queue_threshold"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
}

// PricingConfig holds per-model pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	BatchDiscount float64 `yaml:"batch_discount" mapstructure:"batch_discount"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ServerConfig configures the webhook server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.proposal-cli")

	// Environment
	v.SetEnvPrefix("PROPOSAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. AutomaticEnv only surfaces keys viper already knows, so
	// every key gets a default here, zero-valued for the env-only ones,
	// or its PROPOSAL_* override is silently dropped.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "proposal-cli.db")
	v.SetDefault("store.pool.max_conns", 0)
	v.SetDefault("store.pool.min_conns", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("notion.token", "")
	v.SetDefault("notion.section_db", "")
	v.SetDefault("notion.review_db", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.no_batch", false)
	v.SetDefault("anthropic.extract_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.generate_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.analyze_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_batch_size", 100)
	v.SetDefault("anthropic.small_batch_threshold", 10)
	v.SetDefault("anthropic.timeout_secs", 120)
	v.SetDefault("anthropic.max_rps", 5)
	v.SetDefault("extraction.max_passes", 3)
	v.SetDefault("extraction.coverage_threshold", 0.6)
	v.SetDefault("extraction.min_improvement", 0.05)
	v.SetDefault("extraction.max_transcript_chars", 24000)
	v.SetDefault("generation.max_attempts", 3)
	v.SetDefault("generation.section_concurrency", 10)
	v.SetDefault("generation.weights_file", "")
	v.SetDefault("generation.rules_file", "")
	v.SetDefault("generation.sections_file", "")
	v.SetDefault("feedback.history_limit", 50)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.cost_threshold_usd", 0)
	v.SetDefault("monitoring.exhausted_rate_threshold", 0.25)
	v.SetDefault("monitoring.suspect_feedback_rate", 0.30)
	v.SetDefault("monitoring.review_queue_threshold", 20)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the configuration required for the given mode is
// present and within bounds. Modes: "generate" (extraction + generation),
// "feedback" (validation only), "serve" (webhook server), "review"
// (Notion publishing).
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "generate":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
		problems = append(problems, c.boundsProblems()...)
	case "feedback":
		if c.Feedback.HistoryLimit < 0 {
			problems = append(problems, "feedback.history_limit must be >= 0")
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be > 0 and <= 65535")
		}
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for the postgres driver")
		}
		problems = append(problems, c.boundsProblems()...)
	case "review":
		if c.Notion.Token == "" {
			problems = append(problems, "notion.token is required")
		}
		if c.Notion.ReviewDB == "" {
			problems = append(problems, "notion.review_db is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid configuration for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) boundsProblems() []string {
	var problems []string
	if c.Generation.MaxAttempts < 1 {
		problems = append(problems, "generation.max_attempts must be >= 1")
	}
	if c.Generation.SectionConcurrency < 1 {
		problems = append(problems, "generation.section_concurrency must be >= 1")
	}
	if c.Extraction.MaxPasses < 1 {
		problems = append(problems, "extraction.max_passes must be >= 1")
	}
	if c.Extraction.CoverageThreshold < 0 || c.Extraction.CoverageThreshold > 1 {
		problems = append(problems, "extraction.coverage_threshold must be between 0 and 1")
	}
	return problems
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
