package logger

import (
	"io"
	"log/slog"
	"os"
)

// Format selects the output encoding of a logger.
type Format string

const (
	FormatJSON Format = "json"
	FormatText Format = "text"
)

// Option configures a logger created by New.
type Option func(*options)

type options struct {
	output     io.Writer
	format     Format
	extractors []ContextExtractor
	level      slog.Level
}

// WithLevel sets the minimum level. Default: info.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithFormat sets the output format. Default: JSON.
func WithFormat(f Format) Option {
	return func(o *options) {
		o.format = f
	}
}

// WithOutput sets the destination writer. Default: stdout.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		if w != nil {
			o.output = w
		}
	}
}

// WithExtractors adds context extractors on top of the built-in one that
// reads attributes stored with WithAttrs.
func WithExtractors(extractors ...ContextExtractor) Option {
	return func(o *options) {
		o.extractors = append(o.extractors, extractors...)
	}
}

// New creates a structured logger. Attributes stored in a context with
// WithAttrs are added to every record logged with that context.
func New(opts ...Option) *slog.Logger {
	o := &options{
		output: os.Stdout,
		format: FormatJSON,
		level:  slog.LevelInfo,
	}
	for _, opt := range opts {
		opt(o)
	}

	return slog.New(NewLogHandlerDecorator(newHandler(o.output, o.format, o.level), o.allExtractors()...))
}

func (o *options) allExtractors() []ContextExtractor {
	return append([]ContextExtractor{contextAttrs}, o.extractors...)
}

func newHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	hopts := &slog.HandlerOptions{Level: level}
	if format == FormatText {
		return slog.NewTextHandler(w, hopts)
	}
	return slog.NewJSONHandler(w, hopts)
}
