// Package logging wraps zap the way pkg/logger is used across the
// teacher's services: a process-wide base logger configured once at
// startup, with per-component children handed to constructors.
package logging

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu   sync.RWMutex
	base *zap.Logger
)

// Init configures the package-level logger. level is one of
// "debug", "info", "warn", "error"; unknown values fall back to "info".
func Init(level string) error {
	lvl := zapcore.InfoLevel
	_ = lvl.UnmarshalText([]byte(level))

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "ts"

	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	base = l
	mu.Unlock()
	return nil
}

// L returns the process-wide logger, defaulting to a no-op development
// logger if Init was never called (keeps unit tests quiet).
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if base == nil {
		return zap.NewNop()
	}
	return base
}

// ForComponent returns a child logger tagged with "component".
func ForComponent(name string) *zap.Logger {
	return L().With(zap.String("component", name))
}

// Sync flushes buffered log entries. Call on shutdown.
func Sync() {
	_ = L().Sync()
}

// Logger is the minimal logging surface components in this module depend
// on, mirroring pkg/saga.Logger so a zap logger or a no-op test double can
// both satisfy it.
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})
}

// ZapLogger adapts *zap.Logger (via SugaredLogger) to the Logger interface.
type ZapLogger struct {
	s *zap.SugaredLogger
}

// NewZapLogger wraps a *zap.Logger.
func NewZapLogger(l *zap.Logger) *ZapLogger {
	return &ZapLogger{s: l.Sugar()}
}

func (z *ZapLogger) Info(msg string, fields ...interface{})  { z.s.Infow(msg, fields...) }
func (z *ZapLogger) Warn(msg string, fields ...interface{})  { z.s.Warnw(msg, fields...) }
func (z *ZapLogger) Error(msg string, fields ...interface{}) { z.s.Errorw(msg, fields...) }

func (z *ZapLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	z.s.Infow(msg, append(fields, "correlation_id", correlationFrom(ctx))...)
}

func (z *ZapLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	z.s.Warnw(msg, append(fields, "correlation_id", correlationFrom(ctx))...)
}

func (z *ZapLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	z.s.Errorw(msg, append(fields, "correlation_id", correlationFrom(ctx))...)
}

type correlationKey struct{}

// WithCorrelationID attaches a correlation id to ctx for log/error propagation.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey{}, id)
}

func correlationFrom(ctx context.Context) string {
	if v, ok := ctx.Value(correlationKey{}).(string); ok {
		return v
	}
	return ""
}

// NoOpLogger discards everything; used in tests, mirroring pkg/saga.NoOpLogger.
type NoOpLogger struct{}

func (NoOpLogger) Info(string, ...interface{})                             {}
func (NoOpLogger) Warn(string, ...interface{})                             {}
func (NoOpLogger) Error(string, ...interface{})                            {}
func (NoOpLogger) InfoContext(context.Context, string, ...interface{})     {}
func (NoOpLogger) WarnContext(context.Context, string, ...interface{})     {}
func (NoOpLogger) ErrorContext(context.Context, string, ...interface{})    {}

var _ Logger = (*ZapLogger)(nil)
var _ Logger = NoOpLogger{}
