package app

import (
	"log/slog"
	"os"
)

// NewLogger returns the process-wide slog.Logger. LOG_FORMAT=json
// selects structured output; every record carries a service attribute
// so API and worker logs stay distinguishable in a shared stream.
func NewLogger(cfg *Config, service string) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	var handler slog.Handler = slog.NewTextHandler(os.Stdout, opts)
	if cfg != nil && cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler).With(slog.String("service", service))
}
