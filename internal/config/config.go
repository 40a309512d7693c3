// Package config loads the server configuration from the environment, an
// optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingStoreURL is returned by Load when REDIS_URL is not set.
var ErrMissingStoreURL = errors.New("REDIS_URL is required")

type Config struct {
	Store     StoreConfig     `mapstructure:"store"`
	APIKey    string          `mapstructure:"api_key" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Log       LogConfig       `mapstructure:"log"`
	Tracing   TracingConfig   `mapstructure:"tracing"`
	Mock      MockConfig      `mapstructure:"mock"`
}

type StoreConfig struct {
	URL               string        `mapstructure:"url" validate:"required"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"min=1ms"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval" validate:"min=1ms"`
}

type RateLimitConfig struct {
	Requests      int64         `mapstructure:"requests" validate:"gt=0"`
	Window        time.Duration `mapstructure:"window" validate:"min=1ms"`
	Prefix        string        `mapstructure:"prefix" validate:"required"`
	FailurePolicy string        `mapstructure:"failure_policy" validate:"oneof=fail-open fail-closed"`
	Headers       bool          `mapstructure:"headers"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
}

type LogConfig struct {
	Level       string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Development bool   `mapstructure:"development"`
}

type TracingConfig struct {
	Exporter string `mapstructure:"exporter" validate:"oneof=none stdout"`
}

type MockConfig struct {
	Seed        int64         `mapstructure:"seed"`
	LookupDelay time.Duration `mapstructure:"lookup_delay" validate:"min=0s"`
}

// envKeys maps configuration keys to the environment variables overriding them.
var envKeys = map[string]string{
	"store.url":                 "REDIS_URL",
	"store.timeout":             "STORE_TIMEOUT",
	"store.reconnect_interval":  "STORE_RECONNECT_INTERVAL",
	"api_key":                   "API_KEY",
	"rate_limit.requests":       "RATE_LIMIT_REQUESTS",
	"rate_limit.window":         "RATE_LIMIT_WINDOW",
	"rate_limit.prefix":         "RATE_LIMIT_PREFIX",
	"rate_limit.failure_policy": "RATE_LIMIT_FAILURE_POLICY",
	"rate_limit.headers":        "RATE_LIMIT_HEADERS",
	"http.addr":                 "HTTP_ADDR",
	"log.level":                 "LOG_LEVEL",
	"log.development":           "LOG_DEVELOPMENT",
	"tracing.exporter":          "TRACING_EXPORTER",
	"mock.seed":                 "MOCK_SEED",
	"mock.lookup_delay":         "MOCK_LOOKUP_DELAY",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("store.timeout", 2*time.Second)
	v.SetDefault("store.reconnect_interval", time.Second)
	v.SetDefault("rate_limit.requests", 20)
	v.SetDefault("rate_limit.window", 30*time.Second)
	v.SetDefault("rate_limit.prefix", "flight_api_ratelimit")
	v.SetDefault("rate_limit.failure_policy", "fail-open")
	v.SetDefault("rate_limit.headers", true)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("mock.seed", 0)
	v.SetDefault("mock.lookup_delay", 250*time.Millisecond)
}

// LoadDotEnv copies variables from the given files, ".env" by default, into
// the environment without overriding variables already set. Missing files
// are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

// Load reads the configuration once. configFile may be empty.
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	for key, env := range envKeys {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.normalize()

	if cfg.Store.URL == "" {
		return nil, ErrMissingStoreURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() {
	c.Store.URL = strings.TrimSpace(c.Store.URL)
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.RateLimit.FailurePolicy = strings.ToLower(strings.TrimSpace(c.RateLimit.FailurePolicy))
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Tracing.Exporter = strings.ToLower(strings.TrimSpace(c.Tracing.Exporter))
}

// Validate checks the struct tags of c.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return formatValidationErrors(err)
	}
	return nil
}

func formatValidationErrors(err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}

	messages := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		messages = append(messages, formatSingleValidationError(e))
	}
	return fmt.Errorf("invalid configuration: %s", strings.Join(messages, "; "))
}

func formatSingleValidationError(e validator.FieldError) string {
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	default:
		return fmt.Sprintf("%s failed validation: %s", field, e.Tag())
	}
}
