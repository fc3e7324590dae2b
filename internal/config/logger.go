package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger when LOG_FORMAT=json and a text logger otherwise.
func NewLogger(cfg Config) *slog.Logger {
	return newLogger(cfg, os.Stdout)
}

func newLogger(cfg Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: !cfg.IsProduction()}
	if cfg.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)).With(slog.String("env", cfg.AppEnv))
	}
	return slog.New(slog.NewTextHandler(w, opts)).With(slog.String("env", cfg.AppEnv))
}
