package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// Load builds the configuration from the environment and validates it.
// Every malformed variable is reported, not just the first.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := loadEnv(cfg); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// envVar binds one tagged field to its variable names and default.
type envVar struct {
	names []string
	def   string
	dst   reflect.Value
}

// raw returns the first non-empty variable, else the default.
func (e envVar) raw() string {
	for _, name := range e.names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return e.def
}

// loadEnv fills every field of *target tagged with `env` (and optionally
// `envAlt` and `default`).
func loadEnv(target any) error {
	var errs []error
	for _, ev := range envVars(reflect.ValueOf(target).Elem(), nil) {
		raw := ev.raw()
		if raw == "" {
			continue
		}
		if err := parseInto(ev.dst, raw); err != nil {
			errs = append(errs, fmt.Errorf("invalid value for %s=%q: %w", ev.names[0], raw, err))
		}
	}
	return errors.Join(errs...)
}

// envVars walks nested structs depth first and collects tagged fields.
func envVars(v reflect.Value, out []envVar) []envVar {
	for i := range v.NumField() {
		sf, fv := v.Type().Field(i), v.Field(i)
		if !fv.CanSet() {
			continue
		}
		if sf.Type.Kind() == reflect.Struct {
			out = envVars(fv, out)
			continue
		}
		name := sf.Tag.Get("env")
		if name == "" {
			continue
		}
		ev := envVar{names: []string{name}, def: sf.Tag.Get("default"), dst: fv}
		if alt := sf.Tag.Get("envAlt"); alt != "" {
			ev.names = append(ev.names, alt)
		}
		out = append(out, ev)
	}
	return out
}

var durationType = reflect.TypeFor[time.Duration]()

// parseInto converts raw to the field's type and stores it. Slices of
// strings are comma separated with blanks dropped.
func parseInto(dst reflect.Value, raw string) error {
	if dst.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		dst.SetInt(int64(d))
		return nil
	}

	switch dst.Kind() {
	case reflect.String:
		dst.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, dst.Type().Bits())
		if err != nil {
			return err
		}
		dst.SetInt(n)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		dst.SetBool(b)
	case reflect.Slice:
		if dst.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice of %s", dst.Type().Elem())
		}
		var items []string
		for item := range strings.SplitSeq(raw, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		dst.Set(reflect.ValueOf(items))
	default:
		return fmt.Errorf("unsupported type %s", dst.Type())
	}
	return nil
}

// Validate checks that the configuration is valid.
// Returns an error describing all validation failures.
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	switch strings.ToLower(c.Database.Driver) {
	case "postgres":
		if c.Database.URL == "" {
			errs = append(errs, "DATABASE_URL is required when DB_DRIVER is postgres")
		}
		if c.Database.MaxConns < c.Database.MinConns {
			errs = append(errs, fmt.Sprintf("DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)",
				c.Database.MaxConns, c.Database.MinConns))
		}
		if c.Database.MinConns < 0 {
			errs = append(errs, "DB_MIN_CONNS must be non-negative")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			errs = append(errs, "SQLITE_PATH is required when DB_DRIVER is sqlite")
		}
	case "memory":
	default:
		errs = append(errs, fmt.Sprintf("DB_DRIVER (%q) must be one of: postgres, sqlite, memory", c.Database.Driver))
	}
	if c.Database.MaxConns <= 0 {
		errs = append(errs, "DB_MAX_CONNS must be positive")
	}

	// Server validation
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT (%d) must be 1-65535", c.Server.Port))
	}
	if c.Server.ReadTimeout < 0 {
		errs = append(errs, "SERVER_READ_TIMEOUT must be non-negative")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, "SERVER_SHUTDOWN_TIMEOUT must be positive")
	}
	if c.Server.MaxBodySize <= 0 {
		errs = append(errs, "SERVER_MAX_BODY_SIZE must be positive")
	}

	// Query validation
	if c.Query.DefaultLimit <= 0 {
		errs = append(errs, "QUERY_DEFAULT_LIMIT must be positive")
	}
	if c.Query.MaxLimit < c.Query.DefaultLimit {
		errs = append(errs, fmt.Sprintf("QUERY_MAX_LIMIT (%d) must be >= QUERY_DEFAULT_LIMIT (%d)",
			c.Query.MaxLimit, c.Query.DefaultLimit))
	}
	if c.Query.Timeout <= 0 {
		errs = append(errs, "QUERY_TIMEOUT must be positive")
	}

	// Ingest validation
	if c.Ingest.BatchSize <= 0 {
		errs = append(errs, "INGEST_BATCH_SIZE must be positive")
	}
	if c.Ingest.MaxConcurrent <= 0 {
		errs = append(errs, "INGEST_MAX_CONCURRENT must be positive")
	}
	if c.Ingest.MaxWaitTime <= 0 {
		errs = append(errs, "INGEST_MAX_WAIT_TIME must be positive")
	}
	if c.Ingest.Timeout <= 0 {
		errs = append(errs, "INGEST_TIMEOUT must be positive")
	}

	// Rate limit validation
	if c.Rate.Enabled && c.Rate.RequestsPerMinute <= 0 {
		errs = append(errs, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	}
	if c.Rate.Enabled && c.Rate.SaveLimit <= 0 {
		errs = append(errs, "RATE_LIMIT_SAVE must be positive when rate limiting is enabled")
	}

	// Security validation
	if c.Security.RequireAPIKey && len(c.Security.APIKeys) == 0 {
		errs = append(errs, "REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, fmt.Sprintf("LOG_LEVEL (%q) must be one of: debug, info, warn, error", c.Logging.Level))
	}

	validFormats := map[string]bool{"text": true, "json": true, "console": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, fmt.Sprintf("LOG_FORMAT (%q) must be one of: text, json, console", c.Logging.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}

	return nil
}

// LogValue reports the settings worth logging at startup. Secrets are
// masked.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(c.summary()...)
}

// String renders the same summary as LogValue.
func (c *Config) String() string {
	attrs := c.summary()
	parts := make([]string, len(attrs))
	for i, a := range attrs {
		parts[i] = a.Key + "=" + a.Value.String()
	}
	return "Config{" + strings.Join(parts, " ") + "}"
}

func (c *Config) summary() []slog.Attr {
	return []slog.Attr{
		slog.String("addr", c.Server.Addr()),
		slog.String("db.driver", c.Database.Driver),
		slog.String("db.url", masked(c.Database.URL)),
		slog.String("db.sqlite_path", c.Database.SQLitePath),
		slog.Int("db.max_conns", c.Database.MaxConns),
		slog.Int("query.default_limit", c.Query.DefaultLimit),
		slog.Int("query.max_limit", c.Query.MaxLimit),
		slog.Int("ingest.batch_size", c.Ingest.BatchSize),
		slog.Int("ingest.max_concurrent", c.Ingest.MaxConcurrent),
		slog.Bool("rate.enabled", c.Rate.Enabled),
		slog.Bool("security.require_api_key", c.Security.RequireAPIKey),
		slog.Int("security.api_keys", len(c.Security.APIKeys)),
		slog.String("log.level", c.Logging.Level),
		slog.String("log.format", c.Logging.Format),
	}
}

func masked(s string) string {
	if s == "" {
		return ""
	}
	return "[MASKED]"
}
