package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Pipeline   PipelineConfig   `yaml:"pipeline" mapstructure:"pipeline"`
	Geocode    GeocodeConfig    `yaml:"geocode" mapstructure:"geocode"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the Postgres connection pool.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	Model      string `yaml:"model" mapstructure:"model"`
	MaxTokens  int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	UserAgent        string   `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs      int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts      int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int      `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int      `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	MaxBodyBytes     int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	HostRateLimit    float64  `yaml:"host_rate_limit" mapstructure:"host_rate_limit"`
	TLSAllowlist     []string `yaml:"tls_allowlist" mapstructure:"tls_allowlist"`
}

// PipelineConfig configures extraction, verification and run behavior.
type PipelineConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	ChunkSize           int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	CallDelayMs         int     `yaml:"call_delay_ms" mapstructure:"call_delay_ms"`
	SourceTimeoutSecs   int     `yaml:"source_timeout_secs" mapstructure:"source_timeout_secs"`
	VerifyConcurrency   int     `yaml:"verify_concurrency" mapstructure:"verify_concurrency"`
	Geocode             bool    `yaml:"geocode" mapstructure:"geocode"`
	BreakerThreshold    int     `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerResetSecs    int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// GeocodeConfig configures the Census geocoder.
type GeocodeConfig struct {
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	BatchSize int     `yaml:"batch_size" mapstructure:"batch_size"`
}

// MonitoringConfig configures run-health alerting.
type MonitoringConfig struct {
	WebhookURL              string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold    float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD        float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	OverdueSourcesThreshold int     `yaml:"overdue_sources_threshold" mapstructure:"overdue_sources_threshold"`
	LookbackWindowHours     int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs       int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
}

// PricingConfig holds per-model token pricing overrides.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// ServerConfig configures the read-only query API.
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

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("COURTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv only resolves keys viper already knows about.
	v.SetDefault("store.database_url", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("monitoring.webhook_url", "")

	v.SetDefault("store.max_conns", 20)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.max_retries", 2)
	v.SetDefault("fetch.user_agent", "court-inventory/1.0 (+https://github.com/sells-group/court-inventory)")
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("fetch.initial_backoff_ms", 1000)
	v.SetDefault("fetch.max_backoff_ms", 10000)
	v.SetDefault("fetch.max_body_bytes", 5<<20)
	v.SetDefault("fetch.host_rate_limit", 2.0)
	v.SetDefault("fetch.tls_allowlist", []string{})
	v.SetDefault("pipeline.confidence_threshold", 0.7)
	v.SetDefault("pipeline.chunk_size", 6000)
	v.SetDefault("pipeline.call_delay_ms", 1000)
	v.SetDefault("pipeline.source_timeout_secs", 180)
	v.SetDefault("pipeline.verify_concurrency", 1)
	v.SetDefault("pipeline.geocode", true)
	v.SetDefault("pipeline.breaker_threshold", 5)
	v.SetDefault("pipeline.breaker_reset_secs", 60)
	v.SetDefault("geocode.rate_limit", 5.0)
	v.SetDefault("geocode.batch_size", 500)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.cost_threshold_usd", 25.0)
	v.SetDefault("monitoring.overdue_sources_threshold", 50)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command mode needs before it touches any
// external system. Modes: "store" (database only), "pipeline" (database and
// model API), "serve" (database and a listen port).
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "pipeline":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
		if c.Anthropic.MaxRetries < 0 {
			errs = append(errs, fmt.Sprintf("anthropic.max_retries must not be negative, got %d", c.Anthropic.MaxRetries))
		}
		if c.Pipeline.ConfidenceThreshold < 0 || c.Pipeline.ConfidenceThreshold > 1 {
			errs = append(errs, fmt.Sprintf("pipeline.confidence_threshold must be within [0,1], got %.2f", c.Pipeline.ConfidenceThreshold))
		}
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", c.Server.Port))
		}
	case "store":
	default:
		return eris.Errorf("config: unknown validation mode %q", mode)
	}

	// A run holds one connection for its lock and needs another for writes.
	if c.Store.MaxConns < 2 {
		errs = append(errs, fmt.Sprintf("store.max_conns must be at least 2, got %d", c.Store.MaxConns))
	}
	if c.Store.MinConns > c.Store.MaxConns {
		errs = append(errs, fmt.Sprintf("store.min_conns (%d) exceeds store.max_conns (%d)", c.Store.MinConns, c.Store.MaxConns))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
