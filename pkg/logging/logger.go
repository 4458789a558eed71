package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/run-bigpig/plan-context/pkg/scope"
)

// Logger is an interface for logging
type Logger interface {
	Info(ctx context.Context, msg string, fields map[string]interface{})
	Warn(ctx context.Context, msg string, fields map[string]interface{})
	Error(ctx context.Context, msg string, fields map[string]interface{})
	Debug(ctx context.Context, msg string, fields map[string]interface{})
}

type traceKey string

// TraceIDKey is the context key read for the trace_id field
const TraceIDKey traceKey = "trace_id"

// WithTraceID adds a trace ID to the context so it is attached to every log entry
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// ZeroLogger implements Logger using zerolog
type ZeroLogger struct {
	logger zerolog.Logger
	level  zerolog.Level
	out    io.Writer
	json   bool
}

// Option configures a ZeroLogger
type Option func(*ZeroLogger)

// New creates a new ZeroLogger
func New(options ...Option) *ZeroLogger {
	l := &ZeroLogger{out: os.Stdout, level: zerolog.InfoLevel}
	for _, option := range options {
		option(l)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: l.out, TimeFormat: time.RFC3339}
	if l.json {
		output = l.out
	}
	l.logger = zerolog.New(output).With().Timestamp().Logger().Level(l.level)
	return l
}

// NewNop creates a logger that discards everything
func NewNop() *ZeroLogger {
	return &ZeroLogger{logger: zerolog.Nop(), out: io.Discard}
}

// WithLevel sets the minimum level: debug, info, warn or error
func WithLevel(level string) Option {
	return func(l *ZeroLogger) {
		switch level {
		case "debug":
			l.level = zerolog.DebugLevel
		case "info":
			l.level = zerolog.InfoLevel
		case "warn":
			l.level = zerolog.WarnLevel
		case "error":
			l.level = zerolog.ErrorLevel
		default:
			l.level = zerolog.InfoLevel
		}
	}
}

// WithOutput sets the destination writer (stdout by default)
func WithOutput(w io.Writer) Option {
	return func(l *ZeroLogger) {
		l.out = w
	}
}

// WithJSON switches from console output to raw JSON lines
func WithJSON() Option {
	return func(l *ZeroLogger) {
		l.json = true
	}
}

// Info logs an info message
func (l *ZeroLogger) Info(ctx context.Context, msg string, fields map[string]interface{}) {
	decorate(ctx, l.logger.Info(), fields).Msg(msg)
}

// Warn logs a warning message
func (l *ZeroLogger) Warn(ctx context.Context, msg string, fields map[string]interface{}) {
	decorate(ctx, l.logger.Warn(), fields).Msg(msg)
}

// Error logs an error message
func (l *ZeroLogger) Error(ctx context.Context, msg string, fields map[string]interface{}) {
	decorate(ctx, l.logger.Error(), fields).Msg(msg)
}

// Debug logs a debug message
func (l *ZeroLogger) Debug(ctx context.Context, msg string, fields map[string]interface{}) {
	decorate(ctx, l.logger.Debug(), fields).Msg(msg)
}

// decorate attaches the scope and trace identifiers found in ctx plus the given fields.
// A nil event means the level is disabled.
func decorate(ctx context.Context, event *zerolog.Event, fields map[string]interface{}) *zerolog.Event {
	if event == nil {
		return nil
	}
	if ctx != nil {
		if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
			event = event.Str("trace_id", traceID)
		}
		if projectID, err := scope.GetProjectID(ctx); err == nil {
			event = event.Str("project_id", projectID)
		}
		if sessionID, ok := scope.GetSessionID(ctx); ok {
			event = event.Str("session_id", sessionID)
		}
	}
	for k, v := range fields {
		event = event.Interface(k, v)
	}
	return event
}
