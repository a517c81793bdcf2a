package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/dmitrijs2005/offsync/internal/common"
)

// Format selects the slog handler.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// ParseLevel parses "debug", "info", "warn" or "error" (any case, with an
// optional offset such as "info+2").
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("%w: log level %q", common.ErrorValidation, s)
	}
	return l, nil
}

type SlogLogger struct {
	l *slog.Logger
}

func NewSlogLogger(l *slog.Logger) *SlogLogger {
	return &SlogLogger{l: l}
}

// New returns a logger writing to w in format at level. Anything other
// than FormatJSON is written as text.
func New(w io.Writer, format Format, level slog.Level) *SlogLogger {
	opts := &slog.HandlerOptions{Level: level}
	if format == FormatJSON {
		return NewSlogLogger(slog.New(slog.NewJSONHandler(w, opts)))
	}
	return NewSlogLogger(slog.New(slog.NewTextHandler(w, opts)))
}

// Discard returns a logger that drops everything.
func Discard() *SlogLogger {
	return NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1})))
}

type ctxArgsKey struct{}

// ContextWith returns a copy of ctx carrying key-value pairs. Every
// SlogLogger call made with that context appends them to its own args.
func ContextWith(ctx context.Context, args ...any) context.Context {
	return context.WithValue(ctx, ctxArgsKey{}, withContextArgs(ctx, args))
}

func withContextArgs(ctx context.Context, args []any) []any {
	if ctx == nil {
		return args
	}
	carried, _ := ctx.Value(ctxArgsKey{}).([]any)
	if len(carried) == 0 {
		return args
	}
	out := make([]any, 0, len(carried)+len(args))
	out = append(out, carried...)
	return append(out, args...)
}

func (s *SlogLogger) Debug(ctx context.Context, msg string, args ...any) {
	s.l.DebugContext(ctx, msg, withContextArgs(ctx, args)...)
}

func (s *SlogLogger) Info(ctx context.Context, msg string, args ...any) {
	s.l.InfoContext(ctx, msg, withContextArgs(ctx, args)...)
}

func (s *SlogLogger) Warn(ctx context.Context, msg string, args ...any) {
	s.l.WarnContext(ctx, msg, withContextArgs(ctx, args)...)
}

func (s *SlogLogger) Error(ctx context.Context, msg string, args ...any) {
	s.l.ErrorContext(ctx, msg, withContextArgs(ctx, args)...)
}

func (s *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{l: s.l.With(args...)}
}
