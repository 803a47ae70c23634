package logger

import (
	"context"
	"log/slog"
	"os"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// SentryConfig holds Sentry integration configuration.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
	// MinLevel selects what reaches Sentry: slog.LevelError sends only
	// errors, anything lower also keeps warnings as Sentry logs.
	MinLevel slog.Level `yaml:"min_level"`
}

// NewWithSentry creates a logger writing JSON to stdout and forwarding
// warnings and errors to Sentry. Persistence failures of a snapshot are
// logged at error level and become Sentry issues.
//
// With an empty DSN, or when the SDK fails to initialize, only stdout is used.
func NewWithSentry(cfg SentryConfig, opts ...Option) *slog.Logger {
	o := &options{output: os.Stdout, format: FormatJSON, level: slog.LevelInfo}
	for _, opt := range opts {
		opt(o)
	}
	stdout := newHandler(o.output, o.format, o.level)

	if cfg.DSN == "" {
		return slog.New(NewLogHandlerDecorator(stdout, o.allExtractors()...))
	}

	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		EnableLogs:  true,
	}); err != nil {
		slog.New(stdout).Error("failed to initialize sentry", slog.String("error", err.Error()))
		return slog.New(NewLogHandlerDecorator(stdout, o.allExtractors()...))
	}

	logLevel := []slog.Level{slog.LevelWarn, slog.LevelError}
	if cfg.MinLevel >= slog.LevelError {
		logLevel = []slog.Level{slog.LevelError}
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   logLevel,
	}.NewSentryHandler(context.Background())

	return slog.New(NewLogHandlerDecorator(newMultiHandler(stdout, sentryHandler), o.allExtractors()...))
}
