package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	internal "github.com/ZanzyTHEbar/sangamner-ai/sai"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Provider ProviderConfig `mapstructure:"provider"`
	Google   GoogleConfig   `mapstructure:"google"`
	Nearby   NearbyConfig   `mapstructure:"nearby"`
	Harness  HarnessConfig  `mapstructure:"harness"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

// ServerConfig stores HTTP API settings.
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AllowOrigin  string        `mapstructure:"allow_origin"` // CORS Access-Control-Allow-Origin
}

// ProviderConfig selects the reasoning backend.
type ProviderConfig struct {
	Type        string  `mapstructure:"type"` // "gemini", "anthropic", "openai", "ollama", "rules"
	Model       string  `mapstructure:"model"`
	BaseURL     string  `mapstructure:"base_url"`
	APIKey      string  `mapstructure:"api_key"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// GoogleConfig stores credentials for the Gemini API, used by the gemini
// provider and the grounded search tool.
type GoogleConfig struct {
	APIKey      string `mapstructure:"api_key"`
	SearchModel string `mapstructure:"search_model"`
}

// NearbyConfig stores the nearby lookup service settings.
type NearbyConfig struct {
	Endpoint      string        `mapstructure:"endpoint"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"` // outbound pacing, 0 disables
	Burst         int           `mapstructure:"burst"`
}

// HarnessConfig stores reasoning loop settings.
type HarnessConfig struct {
	// Cache settings (nearby lookups)
	CacheEnabled    bool   `mapstructure:"cache_enabled"`
	CacheBackend    string `mapstructure:"cache_backend"` // "lru" or "redis"
	CacheCapacity   int    `mapstructure:"cache_capacity"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	RedisAddr       string `mapstructure:"redis_addr"`
	RedisPassword   string `mapstructure:"redis_password"`
	RedisDB         int    `mapstructure:"redis_db"`

	// Rate limiting of provider calls
	RateLimitEnabled    bool          `mapstructure:"rate_limit_enabled"`
	RateLimitCapacity   int           `mapstructure:"rate_limit_capacity"`
	RateLimitRefillRate time.Duration `mapstructure:"rate_limit_refill_rate"`

	// Policies
	MaxToolDepth    int           `mapstructure:"max_tool_depth"`    // tool rounds per turn
	MaxIterations   int           `mapstructure:"max_iterations"`    // provider calls per turn
	MaxParseRetries int           `mapstructure:"max_parse_retries"` // malformed replies tolerated per turn
	ToolTimeout     time.Duration `mapstructure:"tool_timeout"`
	RetryCount      int           `mapstructure:"retry_count"` // provider call retries
	RetryBackoff    time.Duration `mapstructure:"retry_backoff"`

	// Safety and validation
	EnableGuardrails bool `mapstructure:"enable_guardrails"`

	// Telemetry
	EnableTracing bool `mapstructure:"enable_tracing"`
}

// DatabaseConfig stores the turn log database settings.
type DatabaseConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// LogConfig stores logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// SearchAPIKey returns the key used for Gemini calls.
func (c *Config) SearchAPIKey() string {
	return c.Google.APIKey
}

// ProviderAPIKey returns the provider key, falling back to the Google key
// for the gemini provider.
func (c *Config) ProviderAPIKey() string {
	if c.Provider.APIKey == "" && c.Provider.Type == "gemini" {
		return c.Google.APIKey
	}
	return c.Provider.APIKey
}

// Loader reads configuration into Config and can watch the file for changes.
type Loader struct {
	mu sync.Mutex
	v  *viper.Viper
}

// NewLoader creates a loader with its own viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.New()}
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	return NewLoader().Load(configPath)
}

// Load reads configuration from configPath, or from the default search
// paths when configPath is empty. A missing config file is not an error.
func (l *Loader) Load(configPath string) (*Config, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	v := l.v
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("..")
		v.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		v.AddConfigPath(internal.DefaultConfigPath)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. harness.max_iterations becomes HARNESS_MAX_ITERATIONS
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	if err := v.BindEnv("google.api_key", "GOOGLE_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind GOOGLE_API_KEY: %w", err)
	}
	if err := v.BindEnv("provider.api_key", "PROVIDER_API_KEY", "ANTHROPIC_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, fmt.Errorf("failed to bind provider api key: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; defaults and environment are used.
	}

	return l.decode()
}

// Watch re-decodes the configuration whenever the loaded file changes.
// It must be called after Load found a config file.
func (l *Loader) Watch(onChange func(*Config, error)) {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.mu.Lock()
		cfg, err := l.decode()
		l.mu.Unlock()
		onChange(cfg, err)
	})
	l.v.WatchConfig()
}

// ConfigFileUsed reports the file Load read, if any.
func (l *Loader) ConfigFileUsed() string {
	return l.v.ConfigFileUsed()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", internal.DefaultServerAddr)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "120s")
	v.SetDefault("server.allow_origin", "*")

	v.SetDefault("provider.type", "gemini")
	v.SetDefault("provider.model", internal.DefaultGeminiModel)
	v.SetDefault("provider.base_url", "")
	v.SetDefault("provider.temperature", 0)
	v.SetDefault("provider.max_tokens", 1024)

	v.SetDefault("google.search_model", internal.DefaultGeminiModel)

	v.SetDefault("nearby.endpoint", internal.DefaultNearbyEndpoint)
	v.SetDefault("nearby.timeout", "30s")
	v.SetDefault("nearby.rate_per_second", 5.0)
	v.SetDefault("nearby.burst", 5)

	// Harness defaults
	v.SetDefault("harness.cache_enabled", true)
	v.SetDefault("harness.cache_backend", "lru")
	v.SetDefault("harness.cache_capacity", 1000)
	v.SetDefault("harness.cache_ttl_seconds", 300)
	v.SetDefault("harness.redis_addr", "localhost:6379")
	v.SetDefault("harness.redis_db", 0)
	v.SetDefault("harness.rate_limit_enabled", true)
	v.SetDefault("harness.rate_limit_capacity", 10)
	v.SetDefault("harness.rate_limit_refill_rate", "1s")
	v.SetDefault("harness.max_tool_depth", 3)
	v.SetDefault("harness.max_iterations", 10)
	v.SetDefault("harness.max_parse_retries", 3)
	v.SetDefault("harness.tool_timeout", "30s")
	v.SetDefault("harness.retry_count", 2)
	v.SetDefault("harness.retry_backoff", "200ms")
	v.SetDefault("harness.enable_guardrails", true)
	v.SetDefault("harness.enable_tracing", true)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.path", internal.DefaultDatabasePath)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}
