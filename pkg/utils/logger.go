package utils

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns the logger for the ragcore server and CLI. debug selects
// the human-readable development encoder at debug level; otherwise entries are
// JSON at info level.
func NewLogger(debug bool) (*zap.Logger, error) {
	return buildLogger(debug, "stderr")
}

// NewWorkerLogger returns a logger for an embedding worker. It never writes to
// stdout, which carries the JSON-lines protocol.
func NewWorkerLogger(debug bool) (*zap.Logger, error) {
	return buildLogger(debug, "stderr", zap.Fields(zap.String("process", "embedding_worker")))
}

func buildLogger(debug bool, sink string, opts ...zap.Option) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{sink}
	cfg.ErrorOutputPaths = []string{sink}
	return cfg.Build(opts...)
}
