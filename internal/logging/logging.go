// Package logging provides structured logging construction from configuration.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/medx/lab-extractor/internal/config"
)

// New creates a slog.Logger writing to stdout per the logging configuration.
func New(cfg *config.LoggingConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stdout)
}

// NewWithWriter creates a slog.Logger writing to w per the logging configuration.
func NewWithWriter(cfg *config.LoggingConfig, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.Level.ToSlogLevel(),
	}

	var handler slog.Handler
	if cfg.Format == config.LogFormatText {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler)
}
