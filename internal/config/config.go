// Package config loads the service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port     int
	LogLevel string

	// Outbound calls to Supabase
	HTTPTimeout    time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxConcurrency int

	// CacheTTL bounds how long a resolved savings category id is reused.
	CacheTTL time.Duration

	OTLPEndpoint string
	OTelEnabled  bool

	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string
	SupabaseJWTSecret  string
	ReceiptsBucket     string

	// LocalDBPath is the sqlite file holding the savings configuration.
	LocalDBPath string

	CORSAllowedOrigins []string

	ExportTimezone string
	BaseCurrency   string

	// Invalid lists variables that were set but could not be parsed; their
	// defaults were used instead.
	Invalid []string
}

// Load reads the configuration from environment variables. Unset or
// unparsable variables fall back to their defaults.
func Load() *Config {
	e := &env{}
	cfg := &Config{
		Port:     e.Int("PORT", 8080),
		LogLevel: e.Str("LOG_LEVEL", "info"),

		HTTPTimeout:    e.Duration("HTTP_TIMEOUT", 10*time.Second),
		MaxRetries:     e.Int("MAX_RETRIES", 3),
		InitialBackoff: e.Duration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxBackoff:     e.Duration("MAX_BACKOFF", 2*time.Second),
		MaxConcurrency: e.Int("MAX_CONCURRENCY", 50),

		CacheTTL: e.Duration("CACHE_TTL", 5*time.Minute),

		OTLPEndpoint: e.Str("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTelEnabled:  e.Bool("OTEL_ENABLED", false),

		SupabaseURL:        strings.TrimRight(e.Str("SUPABASE_URL", ""), "/"),
		SupabaseAnonKey:    e.Str("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: e.Str("SUPABASE_SERVICE_ROLE_KEY", ""),
		SupabaseJWTSecret:  e.Str("SUPABASE_JWT_SECRET", ""),
		ReceiptsBucket:     e.Str("RECEIPTS_BUCKET", "receipts"),

		LocalDBPath: e.Str("LOCAL_DB_PATH", "./data/finanzas.db"),

		CORSAllowedOrigins: e.List("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "capacitor://localhost"}),

		ExportTimezone: e.Str("EXPORT_TIMEZONE", "Europe/Madrid"),
		BaseCurrency:   strings.ToUpper(e.Str("BASE_CURRENCY", "EUR")),
	}
	cfg.Invalid = e.invalid
	return cfg
}

// Validate reports missing settings the service cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.SupabaseURL == "" {
		errs = append(errs, errors.New("SUPABASE_URL is required"))
	}
	if c.SupabaseServiceKey == "" {
		errs = append(errs, errors.New("SUPABASE_SERVICE_ROLE_KEY is required"))
	}
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d out of range", c.Port))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, errors.New("CACHE_TTL must be positive"))
	}
	return errors.Join(errs...)
}

// env reads typed variables and remembers which ones failed to parse.
type env struct {
	invalid []string
}

func (e *env) Str(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func (e *env) Int(key string, fallback int) int {
	return parse(e, key, fallback, strconv.Atoi)
}

func (e *env) Bool(key string, fallback bool) bool {
	return parse(e, key, fallback, strconv.ParseBool)
}

func (e *env) Duration(key string, fallback time.Duration) time.Duration {
	return parse(e, key, fallback, time.ParseDuration)
}

func (e *env) List(key string, fallback []string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}

func parse[T any](e *env, key string, fallback T, fn func(string) (T, error)) T {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := fn(raw)
	if err != nil {
		e.invalid = append(e.invalid, key)
		return fallback
	}
	return v
}
