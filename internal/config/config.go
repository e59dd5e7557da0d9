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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Scorer    FitConfig       `yaml:"scorer" mapstructure:"scorer"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Website   WebsiteConfig   `yaml:"website" mapstructure:"website"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// CacheConfig configures the entity read-through cache.
type CacheConfig struct {
	Driver    string `yaml:"driver" mapstructure:"driver"` // "memory", "redis" or "none"
	RedisAddr string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB   int    `yaml:"redis_db" mapstructure:"redis_db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
	TTLSecs   int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FitConfig is the declarative rule table for buyer/deal fit scoring.
// Component weights sum to 100; every threshold the scorer consults lives here.
type FitConfig struct {
	SizeWeight        float64 `yaml:"size_weight" mapstructure:"size_weight"`
	ServiceWeight     float64 `yaml:"service_weight" mapstructure:"service_weight"`
	GeographyWeight   float64 `yaml:"geography_weight" mapstructure:"geography_weight"`
	BuyerTypeWeight   float64 `yaml:"buyer_type_weight" mapstructure:"buyer_type_weight"`
	DataQualityWeight float64 `yaml:"data_quality_weight" mapstructure:"data_quality_weight"`

	// Size decay floors applied when a deal falls outside the buyer's range,
	// keyed by the tracker's size importance.
	SizeFloorHigh   float64 `yaml:"size_floor_high" mapstructure:"size_floor_high"`
	SizeFloorMedium float64 `yaml:"size_floor_medium" mapstructure:"size_floor_medium"`
	SizeFloorLow    float64 `yaml:"size_floor_low" mapstructure:"size_floor_low"`
	// SizeOutOfRangeMul scales the proportional credit for out-of-range deals.
	SizeOutOfRangeMul float64 `yaml:"size_out_of_range_mul" mapstructure:"size_out_of_range_mul"`

	// Service blend when the buyer lists required services.
	ServiceRequiredShare float64 `yaml:"service_required_share" mapstructure:"service_required_share"`

	// Geography score when deal and buyer footprints do not overlap.
	GeoMissStrict   float64 `yaml:"geo_miss_strict" mapstructure:"geo_miss_strict"`
	GeoMissModerate float64 `yaml:"geo_miss_moderate" mapstructure:"geo_miss_moderate"`
	GeoMissRelaxed  float64 `yaml:"geo_miss_relaxed" mapstructure:"geo_miss_relaxed"`
	// GeoPartialBase is the floor for a partial (non-HQ) footprint overlap.
	GeoPartialBase float64 `yaml:"geo_partial_base" mapstructure:"geo_partial_base"`

	// Data completeness label thresholds (ratio of populated checklist fields).
	CompletenessHigh   float64 `yaml:"completeness_high" mapstructure:"completeness_high"`
	CompletenessMedium float64 `yaml:"completeness_medium" mapstructure:"completeness_medium"`
}

// BatchConfig configures bulk scoring.
type BatchConfig struct {
	InterItemDelayMs int `yaml:"inter_item_delay_ms" mapstructure:"inter_item_delay_ms"`
}

// RetryConfig configures retries and the circuit breaker around LLM calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
	FailureThreshold int     `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int     `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// WebsiteConfig configures website fetching for extraction.
type WebsiteConfig struct {
	JinaKey     string `yaml:"jina_key" mapstructure:"jina_key"`
	JinaBaseURL string `yaml:"jina_base_url" mapstructure:"jina_base_url"`
	// DisableJina skips the reader fallback and fetches pages directly only.
	DisableJina bool `yaml:"disable_jina" mapstructure:"disable_jina"`
	TimeoutSecs int  `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxChars    int  `yaml:"max_chars" mapstructure:"max_chars"`
}

// ServerConfig configures the HTTP API.
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

	// Environment
	v.SetEnvPrefix("UNIVERSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Every key needs one, even if empty, or AutomaticEnv never
	// reaches it during Unmarshal.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "universe.db")
	v.SetDefault("store.max_conns", 0)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.redis_addr", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.key_prefix", "universe:")
	v.SetDefault("cache.ttl_secs", 300)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("batch.inter_item_delay_ms", 250)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("retry.failure_threshold", 5)
	v.SetDefault("retry.reset_timeout_secs", 30)
	v.SetDefault("website.jina_key", "")
	v.SetDefault("website.jina_base_url", "https://r.jina.ai")
	v.SetDefault("website.disable_jina", false)
	v.SetDefault("website.timeout_secs", 15)
	v.SetDefault("website.max_chars", 30000)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("scorer.size_weight", 40)
	v.SetDefault("scorer.service_weight", 30)
	v.SetDefault("scorer.geography_weight", 20)
	v.SetDefault("scorer.buyer_type_weight", 5)
	v.SetDefault("scorer.data_quality_weight", 5)
	v.SetDefault("scorer.size_floor_high", 0)
	v.SetDefault("scorer.size_floor_medium", 0.25)
	v.SetDefault("scorer.size_floor_low", 0.5)
	v.SetDefault("scorer.size_out_of_range_mul", 0.8)
	v.SetDefault("scorer.service_required_share", 0.6)
	v.SetDefault("scorer.geo_miss_strict", 0)
	v.SetDefault("scorer.geo_miss_moderate", 0.3)
	v.SetDefault("scorer.geo_miss_relaxed", 0.8)
	v.SetDefault("scorer.geo_partial_base", 0.6)
	v.SetDefault("scorer.completeness_high", 0.75)
	v.SetDefault("scorer.completeness_medium", 0.4)

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

// Validate checks that the settings required by the named command are present.
// Modes: "store" (any command touching the database), "ai" (commands calling
// Anthropic) and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch c.Cache.Driver {
	case "", "none", "memory":
	case "redis":
		if c.Cache.RedisAddr == "" {
			errs = append(errs, "cache.redis_addr is required")
		}
	default:
		errs = append(errs, "cache.driver must be none, memory or redis")
	}

	switch mode {
	case "store":
	case "ai":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Batch.InterItemDelayMs < 0 {
		errs = append(errs, "batch.inter_item_delay_ms must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
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
