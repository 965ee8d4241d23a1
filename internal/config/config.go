// Package config loads service configuration from the environment and
// optional YAML files. Missing credentials disable the owning subsystem
// rather than failing startup; /healthz reports each subsystem's mode.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full runtime configuration.
type Config struct {
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Search     SearchConfig     `mapstructure:"search"`
	Embeddings EmbeddingsConfig `mapstructure:"embeddings"`
	Email      EmailConfig      `mapstructure:"email"`
	Economy    EconomyConfig    `mapstructure:"economy"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	AppURL     string           `mapstructure:"app_url"`
	LogLevel   string           `mapstructure:"log_level"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig selects the document store. Empty URL means the in-memory
// store.
type DatabaseConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Enabled reports whether Postgres is configured.
func (c DatabaseConfig) Enabled() bool { return c.URL != "" }

// RedisConfig selects the cache backend. Empty addr and URL means the
// in-memory cache.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether Redis is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" || c.URL != "" }

// SearchConfig points at the vector index service. Empty endpoint selects
// the in-memory index.
type SearchConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	Index    string `mapstructure:"index"`
}

// Enabled reports whether the external index is configured.
func (c SearchConfig) Enabled() bool { return c.Endpoint != "" }

// EmbeddingsConfig points at the embedding provider. Empty endpoint selects
// the deterministic hashing encoder (dev/test only).
type EmbeddingsConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Deployment string `mapstructure:"deployment"`
	APIVersion string `mapstructure:"api_version"`
	VectorDim  int    `mapstructure:"vector_dim"`
}

// Enabled reports whether the external provider is configured.
func (c EmbeddingsConfig) Enabled() bool { return c.Endpoint != "" }

// EmailConfig configures the transactional email sender. Disabled or
// keyless configs select the log-only notifier.
type EmailConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
	APIKey   string `mapstructure:"api_key"`
	From     string `mapstructure:"from"`
}

// Active reports whether real email delivery is on.
func (c EmailConfig) Active() bool { return c.Enabled && c.APIKey != "" && c.From != "" }

// EconomyConfig locates the optional weights override file.
type EconomyConfig struct {
	WeightsFile string `mapstructure:"weights_file"`
}

// SchedulerConfig locates the optional jobs file.
type SchedulerConfig struct {
	ConfigFile string `mapstructure:"config_file"`
}

// Load reads configuration from the environment. Variables use the SWAPD_
// prefix with dots replaced by underscores (SWAPD_HTTP_PORT); the
// conventional unprefixed names are bound explicitly so deploy manifests
// keep working.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("SWAPD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindConventional(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 30*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("database.timeout", 5*time.Second)

	v.SetDefault("search.index", "profiles-index")

	v.SetDefault("embeddings.deployment", "text-embedding-3-small")
	v.SetDefault("embeddings.api_version", "2024-02-01")
	v.SetDefault("embeddings.vector_dim", 1536)

	v.SetDefault("email.enabled", false)
	v.SetDefault("email.endpoint", "https://api.resend.com")

	v.SetDefault("app_url", "http://localhost:3000")
	v.SetDefault("log_level", "info")
}

// bindConventional maps the unprefixed names operators expect onto the
// structured keys. viper.BindEnv's extra arguments are fallbacks, so the
// SWAPD_ form still wins when both are set.
func bindConventional(v *viper.Viper) {
	v.BindEnv("http.host", "SWAPD_HTTP_HOST", "HTTP_HOST")
	v.BindEnv("http.port", "SWAPD_HTTP_PORT", "HTTP_PORT")
	v.BindEnv("database.url", "SWAPD_DATABASE_URL", "DATABASE_URL")
	v.BindEnv("redis.addr", "SWAPD_REDIS_ADDR", "REDIS_ADDR")
	v.BindEnv("redis.url", "SWAPD_REDIS_URL", "REDIS_URL")
	v.BindEnv("redis.password", "SWAPD_REDIS_PASSWORD", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "SWAPD_REDIS_DB", "REDIS_DB")
	v.BindEnv("search.endpoint", "SWAPD_SEARCH_ENDPOINT", "SEARCH_ENDPOINT")
	v.BindEnv("search.api_key", "SWAPD_SEARCH_API_KEY", "SEARCH_API_KEY")
	v.BindEnv("search.index", "SWAPD_SEARCH_INDEX", "SEARCH_INDEX")
	v.BindEnv("embeddings.endpoint", "SWAPD_EMBEDDINGS_ENDPOINT", "EMBEDDINGS_ENDPOINT")
	v.BindEnv("embeddings.api_key", "SWAPD_EMBEDDINGS_API_KEY", "EMBEDDINGS_API_KEY")
	v.BindEnv("embeddings.deployment", "SWAPD_EMBEDDINGS_DEPLOYMENT", "EMBEDDINGS_DEPLOYMENT")
	v.BindEnv("embeddings.api_version", "SWAPD_EMBEDDINGS_API_VERSION", "EMBEDDINGS_API_VERSION")
	v.BindEnv("embeddings.vector_dim", "SWAPD_EMBEDDINGS_VECTOR_DIM", "VECTOR_DIM")
	v.BindEnv("email.enabled", "SWAPD_EMAIL_ENABLED", "EMAIL_ENABLED")
	v.BindEnv("email.endpoint", "SWAPD_EMAIL_ENDPOINT", "EMAIL_ENDPOINT")
	v.BindEnv("email.api_key", "SWAPD_EMAIL_API_KEY", "EMAIL_API_KEY")
	v.BindEnv("email.from", "SWAPD_EMAIL_FROM", "EMAIL_FROM")
	v.BindEnv("app_url", "SWAPD_APP_URL", "APP_URL")
	v.BindEnv("log_level", "SWAPD_LOG_LEVEL", "LOG_LEVEL")
	v.BindEnv("economy.weights_file", "SWAPD_ECONOMY_WEIGHTS_FILE", "ECONOMY_WEIGHTS_FILE")
	v.BindEnv("scheduler.config_file", "SWAPD_SCHEDULER_CONFIG", "SCHEDULER_CONFIG")
}

func validate(cfg *Config) error {
	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		return fmt.Errorf("http port %d out of range", cfg.HTTP.Port)
	}
	if cfg.Embeddings.VectorDim < 1 {
		return fmt.Errorf("vector dim %d out of range", cfg.Embeddings.VectorDim)
	}
	if cfg.Email.Enabled && cfg.Email.APIKey != "" && cfg.Email.From == "" {
		return fmt.Errorf("email enabled with api key but no from address")
	}
	return nil
}
