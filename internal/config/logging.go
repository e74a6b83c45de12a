package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const (
	// EnvLoggingLevel overrides the log level.
	EnvLoggingLevel = "LOGGING_LEVEL"

	// EnvLoggingFormat overrides the log output format.
	EnvLoggingFormat = "LOGGING_FORMAT"
)

// Log output formats.
const (
	LogFormatJSON = "json"
	LogFormatText = "text"
)

// LogLevel is a configuration-friendly log level name.
type LogLevel string

// ToSlogLevel maps the configured level name to a slog.Level.
// Unknown names map to slog.LevelInfo.
func (l LogLevel) ToSlogLevel() slog.Level {
	switch strings.ToLower(string(l)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// LoggingConfig contains structured logging configuration.
type LoggingConfig struct {
	Level  LogLevel `toml:"level"`
	Format string   `toml:"format"`
}

// Finalize applies defaults, loads environment overrides, and validates the logging configuration.
func (c *LoggingConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()
	return c.validate()
}

// Merge applies values from overlay configuration that differ from zero values.
func (c *LoggingConfig) Merge(overlay *LoggingConfig) {
	if overlay.Level != "" {
		c.Level = overlay.Level
	}
	if overlay.Format != "" {
		c.Format = overlay.Format
	}
}

func (c *LoggingConfig) loadDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
	if c.Format == "" {
		c.Format = LogFormatJSON
	}
}

func (c *LoggingConfig) loadEnv() {
	if v := os.Getenv(EnvLoggingLevel); v != "" {
		c.Level = LogLevel(v)
	}
	if v := os.Getenv(EnvLoggingFormat); v != "" {
		c.Format = v
	}
}

func (c *LoggingConfig) validate() error {
	switch c.Format {
	case LogFormatJSON, LogFormatText:
		return nil
	default:
		return fmt.Errorf("invalid format: %q", c.Format)
	}
}
