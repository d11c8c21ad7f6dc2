package utils

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Tracer emits lifecycle events for a single component. Every event carries
// the component and action names so log consumers can filter on them.
type Tracer struct {
	component string
	logger    *zap.Logger
}

// NewTracer wraps l for component. A nil logger yields a no-op tracer.
func NewTracer(l *zap.Logger, component string) *Tracer {
	if l == nil {
		l = zap.NewNop()
	}
	return &Tracer{
		component: component,
		logger:    l.With(zap.String("component", component)),
	}
}

// Logger returns the underlying component logger.
func (t *Tracer) Logger() *zap.Logger {
	return t.logger
}

// Event logs action at level with the given data fields.
func (t *Tracer) Event(level zapcore.Level, action string, data ...zap.Field) {
	if ce := t.logger.Check(level, action); ce != nil {
		ce.Write(append(data, zap.String("action", action))...)
	}
}

// Debug is shorthand for Event at debug level.
func (t *Tracer) Debug(action string, data ...zap.Field) {
	t.Event(zapcore.DebugLevel, action, data...)
}

// Info is shorthand for Event at info level.
func (t *Tracer) Info(action string, data ...zap.Field) {
	t.Event(zapcore.InfoLevel, action, data...)
}

// Warn logs action at warn level with err attached.
func (t *Tracer) Warn(action string, err error, data ...zap.Field) {
	if err != nil {
		data = append(data, zap.Error(err))
	}
	t.Event(zapcore.WarnLevel, action, data...)
}

// Error logs action at error level with err attached.
func (t *Tracer) Error(action string, err error, data ...zap.Field) {
	if err != nil {
		data = append(data, zap.Error(err))
	}
	t.Event(zapcore.ErrorLevel, action, data...)
}

// Timed logs action with the elapsed time since start as duration_ms.
func (t *Tracer) Timed(level zapcore.Level, action string, start time.Time, data ...zap.Field) {
	t.Event(level, action, append(data, DurationMs(time.Since(start)))...)
}

// DurationMs renders d as a duration_ms field.
func DurationMs(d time.Duration) zap.Field {
	return zap.Int64("duration_ms", d.Milliseconds())
}
