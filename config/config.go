package config

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	AppEnv   string `env:"APP_ENV"   envDefault:"dev"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat is "text" for colored tint output or "json" for log shippers.
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	MaxTextLength int `env:"MAX_TEXT_LENGTH" envDefault:"10000"`
	MaxKeywords   int `env:"MAX_KEYWORDS"    envDefault:"10"`

	ProviderTimeoutMs int `env:"PROVIDER_TIMEOUT_MS" envDefault:"5000"`
	OverallDeadlineMs int `env:"OVERALL_DEADLINE_MS" envDefault:"8000"`
	RetryCount        int `env:"RETRY_COUNT"         envDefault:"2"`
	RetryBaseMs       int `env:"RETRY_BASE_MS"       envDefault:"200"`

	CircuitBreakerThreshold       int `env:"CIRCUIT_BREAKER_THRESHOLD"        envDefault:"5"`
	CircuitBreakerWindowSeconds   int `env:"CIRCUIT_BREAKER_WINDOW_SECONDS"   envDefault:"60"`
	CircuitBreakerCooldownSeconds int `env:"CIRCUIT_BREAKER_COOLDOWN_SECONDS" envDefault:"30"`

	CacheTTLSeconds int `env:"CACHE_TTL_SECONDS" envDefault:"3600"`
	CacheCapacity   int `env:"CACHE_CAPACITY"    envDefault:"10000"`
	// CacheRemoteTimeoutMs bounds each Valkey/Redis round trip on the request path.
	CacheRemoteTimeoutMs int `env:"CACHE_REMOTE_TIMEOUT_MS" envDefault:"200"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:5173" envSeparator:","`

	EnabledProviders  []string `env:"ENABLED_PROVIDERS"  envDefault:"vader,keywords" envSeparator:","`
	DefaultProviders  []string `env:"DEFAULT_PROVIDERS"  envDefault:"vader,keywords" envSeparator:","`
	FallbackProviders []string `env:"FALLBACK_PROVIDERS" envDefault:"vader"          envSeparator:","`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIModel   string `env:"OPENAI_MODEL"    envDefault:"gpt-4o-mini"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	AnthropicAPIKey  string `env:"ANTHROPIC_API_KEY"`
	AnthropicModel   string `env:"ANTHROPIC_MODEL"`
	AnthropicBaseURL string `env:"ANTHROPIC_BASE_URL"`

	HFSentimentEndpoint string `env:"HF_SENTIMENT_ENDPOINT"`
	HFHealthEndpoint    string `env:"HF_HEALTH_ENDPOINT"`

	ValkeyInitAddress string `env:"VALKEY_INIT_ADDRESS"`
	ValkeyPassword    string `env:"VALKEY_PASSWORD"`
	ValkeyTLS         bool   `env:"VALKEY_TLS"`
	RedisURL          string `env:"REDIS_URL"`

	KafkaBroker       string `env:"KAFKA_BROKER"`
	KafkaResultsTopic string `env:"KAFKA_RESULTS_TOPIC" envDefault:"analysis-results"`

	DynamoDBTable string `env:"DYNAMODB_TABLE"`
	AWSRegion     string `env:"AWS_REGION"   envDefault:"us-west-2"`
	AWSEndpoint   string `env:"AWS_ENDPOINT"`

	RecorderBatchSize    int `env:"RECORDER_BATCH_SIZE"    envDefault:"25"`
	RecorderFlushSeconds int `env:"RECORDER_FLUSH_SECONDS" envDefault:"5"`

	HealthcheckIntervalSeconds int `env:"HEALTHCHECK_INTERVAL_SECONDS" envDefault:"15"`
}

var knownProviders = []string{"openai", "anthropic", "vader", "keywords", "huggingface"}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	cfg.normalizeLists()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalizeLists() {
	c.EnabledProviders = cleanList(c.EnabledProviders)
	c.DefaultProviders = cleanList(c.DefaultProviders)
	c.FallbackProviders = cleanList(c.FallbackProviders)
	c.CORSAllowedOrigins = cleanList(c.CORSAllowedOrigins)
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func (c Config) Validate() error {
	var errs []error

	positive := map[string]int{
		"MAX_TEXT_LENGTH":                  c.MaxTextLength,
		"MAX_KEYWORDS":                     c.MaxKeywords,
		"PROVIDER_TIMEOUT_MS":              c.ProviderTimeoutMs,
		"OVERALL_DEADLINE_MS":              c.OverallDeadlineMs,
		"RETRY_BASE_MS":                    c.RetryBaseMs,
		"CIRCUIT_BREAKER_THRESHOLD":        c.CircuitBreakerThreshold,
		"CIRCUIT_BREAKER_WINDOW_SECONDS":   c.CircuitBreakerWindowSeconds,
		"CIRCUIT_BREAKER_COOLDOWN_SECONDS": c.CircuitBreakerCooldownSeconds,
		"CACHE_TTL_SECONDS":                c.CacheTTLSeconds,
		"CACHE_CAPACITY":                   c.CacheCapacity,
		"CACHE_REMOTE_TIMEOUT_MS":          c.CacheRemoteTimeoutMs,
		"RECORDER_BATCH_SIZE":              c.RecorderBatchSize,
		"RECORDER_FLUSH_SECONDS":           c.RecorderFlushSeconds,
		"HEALTHCHECK_INTERVAL_SECONDS":     c.HealthcheckIntervalSeconds,
	}
	names := make([]string, 0, len(positive))
	for name := range positive {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if positive[name] <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, positive[name]))
		}
	}

	if c.RetryCount < 0 {
		errs = append(errs, fmt.Errorf("RETRY_COUNT must not be negative, got %d", c.RetryCount))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	if len(c.EnabledProviders) == 0 {
		errs = append(errs, errors.New("ENABLED_PROVIDERS must name at least one provider"))
	}
	for _, p := range c.EnabledProviders {
		if !slices.Contains(knownProviders, p) {
			errs = append(errs, fmt.Errorf("ENABLED_PROVIDERS: unknown provider %q", p))
		}
	}
	if len(c.DefaultProviders) == 0 {
		errs = append(errs, errors.New("DEFAULT_PROVIDERS must name at least one provider"))
	}
	for _, p := range c.DefaultProviders {
		if !slices.Contains(c.EnabledProviders, p) {
			errs = append(errs, fmt.Errorf("DEFAULT_PROVIDERS: provider %q is not enabled", p))
		}
	}
	for _, p := range c.FallbackProviders {
		if !slices.Contains(c.EnabledProviders, p) {
			errs = append(errs, fmt.Errorf("FALLBACK_PROVIDERS: provider %q is not enabled", p))
		}
	}

	if c.ProviderEnabled("openai") && c.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required when the openai provider is enabled"))
	}
	if c.ProviderEnabled("anthropic") && c.AnthropicAPIKey == "" {
		errs = append(errs, errors.New("ANTHROPIC_API_KEY is required when the anthropic provider is enabled"))
	}

	return errors.Join(errs...)
}

func (c Config) ProviderEnabled(id string) bool {
	return slices.Contains(c.EnabledProviders, id)
}

func (c Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutMs) * time.Millisecond
}

func (c Config) OverallDeadline() time.Duration {
	return time.Duration(c.OverallDeadlineMs) * time.Millisecond
}

func (c Config) RetryBase() time.Duration {
	return time.Duration(c.RetryBaseMs) * time.Millisecond
}

func (c Config) BreakerWindow() time.Duration {
	return time.Duration(c.CircuitBreakerWindowSeconds) * time.Second
}

func (c Config) BreakerCooldown() time.Duration {
	return time.Duration(c.CircuitBreakerCooldownSeconds) * time.Second
}

func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}

func (c Config) CacheRemoteTimeout() time.Duration {
	return time.Duration(c.CacheRemoteTimeoutMs) * time.Millisecond
}

func (c Config) RecorderFlushInterval() time.Duration {
	return time.Duration(c.RecorderFlushSeconds) * time.Second
}

func (c Config) HealthcheckInterval() time.Duration {
	return time.Duration(c.HealthcheckIntervalSeconds) * time.Second
}

func ParseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(level)))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: unknown level %q", level)
	}
	return l, nil
}
