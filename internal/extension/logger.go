package extension

import (
	"context"
	"log/slog"

	"github.com/roach88/minirx/internal/engine"
	"github.com/roach88/minirx/internal/ir"
)

// Logger writes every transition to a structured logger.
type Logger struct {
	logger    *slog.Logger
	level     slog.Level
	withState bool
	session   string
}

// LoggerOption configures a Logger.
type LoggerOption func(*Logger)

// WithLevel sets the record level. Default: slog.LevelInfo.
func WithLevel(l slog.Level) LoggerOption {
	return func(x *Logger) {
		x.level = l
	}
}

// WithState includes the full state tree in each record. By default only
// the state hash is logged.
func WithState() LoggerOption {
	return func(x *Logger) {
		x.withState = true
	}
}

// NewLogger creates a logging extension writing to l.
func NewLogger(l *slog.Logger, opts ...LoggerOption) *Logger {
	if l == nil {
		l = slog.Default()
	}
	x := &Logger{logger: l, level: slog.LevelInfo}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// Name implements engine.Named.
func (x *Logger) Name() string { return "logger" }

// Init implements engine.Extension.
func (x *Logger) Init(h engine.Host) error {
	x.session = h.Session()
	return nil
}

// OnActionAndState implements engine.Extension.
func (x *Logger) OnActionAndState(a ir.Action, s ir.State) error {
	attrs := []slog.Attr{
		slog.String("session", x.session),
		slog.String("type", a.Type),
	}
	if a.Payload != nil {
		attrs = append(attrs, slog.Any("payload", a.Payload))
	}
	if x.withState {
		attrs = append(attrs, slog.Any("state", s))
	} else {
		hash, err := ir.StateHash(s)
		if err != nil {
			return err
		}
		attrs = append(attrs, slog.String("state_hash", hash))
	}
	x.logger.LogAttrs(context.Background(), x.level, "action", attrs...)
	return nil
}
