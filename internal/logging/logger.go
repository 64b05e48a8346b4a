// Package logging provides the structured logger used across finlern.
//
// The Logger interface mirrors the shape of the call sites: informational
// messages take key/value pairs, warnings and errors additionally carry the
// error that caused them. The implementation is backed by zerolog.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the structured logging interface used by all packages.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...interface{})
	Info(ctx context.Context, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
	Error(ctx context.Context, err error, msg string, fields ...interface{})

	With(fields ...interface{}) Logger
	WithComponent(component string) Logger
}

// Config holds logger configuration.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "console"
	Output io.Writer
}

type zeroLogger struct {
	zl zerolog.Logger
}

// New creates a zerolog-backed Logger.
func New(cfg Config) Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	zl := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &zeroLogger{zl: zl}
}

// Nop returns a logger that discards everything.
func Nop() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

func (l *zeroLogger) Debug(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, l.zl.Debug(), msg, fields)
}

func (l *zeroLogger) Info(ctx context.Context, msg string, fields ...interface{}) {
	l.emit(ctx, l.zl.Info(), msg, fields)
}

func (l *zeroLogger) Warn(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, l.zl.Warn().Err(err), msg, fields)
}

func (l *zeroLogger) Error(ctx context.Context, err error, msg string, fields ...interface{}) {
	l.emit(ctx, l.zl.Error().Err(err), msg, fields)
}

// With creates a new logger with additional fields
func (l *zeroLogger) With(fields ...interface{}) Logger {
	return &zeroLogger{zl: l.zl.With().Fields(pairs(fields)).Logger()}
}

// WithComponent creates a new logger with component context
func (l *zeroLogger) WithComponent(component string) Logger {
	return &zeroLogger{zl: l.zl.With().Str("component", component).Logger()}
}

func (l *zeroLogger) emit(ctx context.Context, ev *zerolog.Event, msg string, fields []interface{}) {
	if ev == nil {
		return
	}
	if id := RequestIDFromContext(ctx); id != "" {
		ev = ev.Str("request_id", id)
	}
	ev.Fields(pairs(fields)).Msg(msg)
}

// pairs drops a trailing key without a value and any non-string key.
func pairs(fields []interface{}) []interface{} {
	out := make([]interface{}, 0, len(fields))
	for i := 0; i+1 < len(fields); i += 2 {
		if _, ok := fields[i].(string); !ok {
			continue
		}
		out = append(out, fields[i], fields[i+1])
	}
	return out
}

type ctxKey int

const requestIDKey ctxKey = 1

// ContextWithRequestID stores the request id so every log line for the
// request carries it.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext returns the request id or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
