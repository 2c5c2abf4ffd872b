// Package config provides environment-variable loading with validation and
// fail-open fallback to defaults, plus the validators shared by the worker
// and the CLI.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadResult represents the result of loading a configuration value.
//
// When the environment value is missing, Value is the default and no
// warning is produced. When it is present but unparseable or invalid, Value
// is the default, FallbackApplied is true and Warning explains why.
type LoadResult[T any] struct {
	Value           T
	Warning         string
	FallbackApplied bool
}

// LoadEnv reads envKey, parses it with parse and validates it with validate
// (nil skips validation). It never returns an error.
//
// Warning format:
//
//	"Invalid {envKey}='{value}': {error}, falling back to default '{default}'"
func LoadEnv[T any](envKey string, defaultValue T, parse func(string) (T, error), validate func(T) error) LoadResult[T] {
	raw := os.Getenv(envKey)
	if raw == "" {
		return LoadResult[T]{Value: defaultValue}
	}

	v, err := parse(raw)
	if err == nil && validate != nil {
		err = validate(v)
	}
	if err != nil {
		return LoadResult[T]{
			Value:           defaultValue,
			Warning:         fmt.Sprintf("Invalid %s='%s': %v, falling back to default '%v'", envKey, raw, err, defaultValue),
			FallbackApplied: true,
		}
	}
	return LoadResult[T]{Value: v}
}

// LoadEnvString loads a string value from an environment variable.
// If the environment variable is not set, the default value is returned.
// No validation is performed.
//
// Example:
//
//	driver := LoadEnvString("DATABASE_DRIVER", "postgres")
func LoadEnvString(envKey, defaultValue string) string {
	value := os.Getenv(envKey)
	if value == "" {
		return defaultValue
	}
	return value
}

// LoadEnvWithFallback loads a validated string value.
//
// Example:
//
//	result := LoadEnvWithFallback("CRON_SCHEDULE", "0 * * * *", ValidateCronSchedule)
//	schedule := result.Value
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) LoadResult[string] {
	return LoadEnv(envKey, defaultValue, parseString, validator)
}

// LoadEnvDuration loads a Go duration string ("30s", "5m", "1h30m").
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) LoadResult[time.Duration] {
	return LoadEnv(envKey, defaultValue, time.ParseDuration, validator)
}

// LoadEnvInt loads a base-10 integer.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) LoadResult[int] {
	return LoadEnv(envKey, defaultValue, parseInt, validator)
}

// LoadEnvBool loads a boolean. Accepted values are those of strconv.ParseBool.
func LoadEnvBool(envKey string, defaultValue bool) LoadResult[bool] {
	return LoadEnv(envKey, defaultValue, parseBool, nil)
}

func parseString(s string) (string, error) { return s, nil }

func parseInt(s string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid integer format")
	}
	return v, nil
}

func parseBool(s string) (bool, error) {
	v, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid boolean format, expected 'true' or 'false'")
	}
	return v, nil
}

// Fallbacks collects the fallbacks applied while loading a component's
// configuration, logging each one and recording it on metrics.
//
// Example:
//
//	fb := config.NewFallbacks(logger, metrics)
//	cfg.Timezone = config.Track(fb, "timezone", config.LoadEnvWithFallback("WORKER_TIMEZONE", "UTC", config.ValidateTimezone))
//	metrics.SetFallbackActive(fb.Applied())
type Fallbacks struct {
	logger  *slog.Logger
	metrics *ConfigMetrics
	fields  []string
}

// NewFallbacks creates a collector. metrics may be nil.
func NewFallbacks(logger *slog.Logger, metrics *ConfigMetrics) *Fallbacks {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fallbacks{logger: logger, metrics: metrics}
}

// Track returns r.Value, recording a fallback for field when one was applied.
func Track[T any](f *Fallbacks, field string, r LoadResult[T]) T {
	if r.FallbackApplied {
		f.fields = append(f.fields, field)
		if f.metrics != nil {
			f.metrics.RecordValidationError(field)
			f.metrics.RecordFallback(field)
		}
		f.logger.Warn("Configuration fallback applied",
			slog.String("field", field),
			slog.String("warning", r.Warning))
	}
	return r.Value
}

// Applied reports whether any fallback was applied.
func (f *Fallbacks) Applied() bool { return len(f.fields) > 0 }

// Fields lists the fields that fell back, in load order.
func (f *Fallbacks) Fields() []string { return f.fields }
