// Package config loads enricher settings from defaults, an optional YAML file, an optional
// .env file and the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Sources  SourcesConfig  `mapstructure:"sources"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	HTTP     HTTPConfig     `mapstructure:"http"`
}

type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type PipelineConfig struct {
	Workers         int           `mapstructure:"workers"`
	FetchWorkers    int           `mapstructure:"fetch_workers"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	RateLimitRPS    float64       `mapstructure:"rate_limit_rps"`
	MaxPayloadBytes int           `mapstructure:"max_payload_bytes"`
	CatalogFile     string        `mapstructure:"catalog_file"`
	Prefetch        bool          `mapstructure:"prefetch"`
}

type SourceConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type SourcesConfig struct {
	LinkedIn       SourceConfig `mapstructure:"linkedin"`
	Crunchbase     SourceConfig `mapstructure:"crunchbase"`
	CompaniesHouse SourceConfig `mapstructure:"companies_house"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Addr         string  `mapstructure:"addr"`
	RateLimitRPS float64 `mapstructure:"rate_limit_rps"`
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string]string{
	"gemini.api_key":                   "GEMINI_API_KEY",
	"gemini.model":                     "GEMINI_MODEL",
	"gemini.base_url":                  "GEMINI_BASE_URL",
	"pipeline.workers":                 "WORKERS",
	"pipeline.fetch_workers":           "FETCH_WORKERS",
	"pipeline.max_retries":             "MAX_RETRIES",
	"pipeline.request_timeout":         "REQUEST_TIMEOUT",
	"pipeline.rate_limit_rps":          "RATE_LIMIT_RPS",
	"pipeline.max_payload_bytes":       "MAX_PAYLOAD_BYTES",
	"pipeline.catalog_file":            "CATALOG_FILE",
	"pipeline.prefetch":                "PREFETCH_SOURCES",
	"sources.linkedin.api_key":         "LINKEDIN_API_KEY",
	"sources.linkedin.base_url":        "LINKEDIN_BASE_URL",
	"sources.crunchbase.api_key":       "CRUNCHBASE_API_KEY",
	"sources.crunchbase.base_url":      "CRUNCHBASE_BASE_URL",
	"sources.companies_house.api_key":  "COMPANIES_HOUSE_API_KEY",
	"sources.companies_house.base_url": "COMPANIES_HOUSE_BASE_URL",
	"redis.addr":                       "REDIS_ADDR",
	"redis.password":                   "REDIS_PASSWORD",
	"redis.db":                         "REDIS_DB",
	"redis.ttl":                        "CACHE_TTL",
	"database.url":                     "DATABASE_URL",
	"log.level":                        "LOG_LEVEL",
	"log.format":                       "LOG_FORMAT",
	"http.addr":                        "HTTP_ADDR",
	"http.rate_limit_rps":              "HTTP_RATE_LIMIT_RPS",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("pipeline.workers", 10)
	v.SetDefault("pipeline.fetch_workers", 8)
	v.SetDefault("pipeline.max_retries", 3)
	v.SetDefault("pipeline.request_timeout", 30*time.Second)
	v.SetDefault("pipeline.rate_limit_rps", 0.0)
	v.SetDefault("pipeline.max_payload_bytes", 16<<10)
	v.SetDefault("redis.ttl", 7*24*time.Hour)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.rate_limit_rps", 5.0)
}

// Options selects the files Load reads. Empty ConfigFile looks for enricher.yaml in the working
// directory; empty EnvFile looks for .env. Explicitly named files must exist.
type Options struct {
	ConfigFile string
	EnvFile    string
}

func Load(opts Options) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("enricher")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if opts.ConfigFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := applyDotenv(v, opts.EnvFile); err != nil {
		return nil, err
	}

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.trim()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyDotenv reads a .env file without mutating the process environment. Values already
// present in the environment win.
func applyDotenv(v *viper.Viper, path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("error reading env file %s: %w", path, err)
	}
	for key, env := range envBindings {
		if _, set := os.LookupEnv(env); set {
			continue
		}
		if val, ok := values[env]; ok {
			v.Set(key, val)
		}
	}
	return nil
}

func (c *Config) trim() {
	for _, s := range []*string{
		&c.Gemini.APIKey, &c.Gemini.Model, &c.Gemini.BaseURL,
		&c.Pipeline.CatalogFile,
		&c.Sources.LinkedIn.APIKey, &c.Sources.LinkedIn.BaseURL,
		&c.Sources.Crunchbase.APIKey, &c.Sources.Crunchbase.BaseURL,
		&c.Sources.CompaniesHouse.APIKey, &c.Sources.CompaniesHouse.BaseURL,
		&c.Redis.Addr, &c.Database.URL,
		&c.Log.Level, &c.Log.Format, &c.HTTP.Addr,
	} {
		*s = strings.TrimSpace(*s)
	}
}

// Validate checks values that do not depend on which command runs.
func (c *Config) Validate() error {
	var errs []error
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, fmt.Errorf("WORKERS must be > 0, got %d", c.Pipeline.Workers))
	}
	if c.Pipeline.FetchWorkers <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_WORKERS must be > 0, got %d", c.Pipeline.FetchWorkers))
	}
	if c.Pipeline.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("MAX_RETRIES must be >= 0, got %d", c.Pipeline.MaxRetries))
	}
	if c.Pipeline.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("REQUEST_TIMEOUT must be > 0, got %s", c.Pipeline.RequestTimeout))
	}
	if c.Pipeline.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS must be >= 0, got %g", c.Pipeline.RateLimitRPS))
	}
	if c.Pipeline.MaxPayloadBytes <= 0 {
		errs = append(errs, fmt.Errorf("MAX_PAYLOAD_BYTES must be > 0, got %d", c.Pipeline.MaxPayloadBytes))
	}
	if c.HTTP.RateLimitRPS < 0 {
		errs = append(errs, fmt.Errorf("HTTP_RATE_LIMIT_RPS must be >= 0, got %g", c.HTTP.RateLimitRPS))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// RequireOracle reports missing Gemini settings; commands that call the model use it.
func (c *Config) RequireOracle() error {
	if c.Gemini.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("GEMINI_MODEL is required")
	}
	return nil
}

// CacheEnabled reports whether a Redis address was configured.
func (c *Config) CacheEnabled() bool { return c.Redis.Addr != "" }

// StoreEnabled reports whether a database URL was configured.
func (c *Config) StoreEnabled() bool { return c.Database.URL != "" }
