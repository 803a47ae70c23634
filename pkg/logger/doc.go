// Package logger builds the log/slog loggers used across memocache.
//
// [New] returns a JSON (or text) logger whose records pick up attributes
// stored in the context with [WithAttrs]. The snapshot layer uses this to tag
// every line about a document with its name:
//
//	log := logger.New(logger.WithLevel(slog.LevelDebug))
//	ctx := logger.WithAttrs(ctx, slog.String("snapshot", "images.json"))
//	log.InfoContext(ctx, "snapshot saved", slog.Int("entries", 120))
//
// [NewWithSentry] also forwards warnings and errors to Sentry and falls back
// to stdout only when no DSN is configured. [NewNope] discards everything and
// is the default for library components that were not given a logger.
//
// Custom [ContextExtractor] functions can add request-scoped attributes, and
// [NewLogHandlerDecorator] applies them to any slog.Handler.
package logger
