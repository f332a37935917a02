// Package logging builds the zap loggers used by every node.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a console logger at the named level ("debug", "info", "warn",
// "error").
func New(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	return cfg.Build()
}

// ForNode tags log with the node id.
func ForNode(log *zap.Logger, id int) *zap.Logger {
	if log == nil {
		return zap.NewNop()
	}
	return log.With(zap.Int("node", id))
}
