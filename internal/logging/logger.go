// Package logging defines the structured logger used by the client, the
// server and the sync engine, with a log/slog implementation.
package logging

import "context"

// Logger logs a message with key-value args:
//
//	log.Info(ctx, "download applied", "table", name, "rows", n)
//
// Args attached to ctx with ContextWith are logged as well.
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes args.
	With(args ...any) Logger
}
