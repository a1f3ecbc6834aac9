package logging

import (
	"strings"

	"github.com/canopy-network/hyperboard/pkg/utils"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New builds the service logger from LOG_LEVEL (debug, info, warn, error) and
// LOG_ENCODING (json, console).
func New() (*zap.Logger, error) {
	return Build(utils.Env("LOG_LEVEL", "info"), utils.Env("LOG_ENCODING", "json"))
}

// Build returns a production logger at the given level and encoding. Unknown levels
// fall back to info.
func Build(level, encoding string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = encoding
	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(level))
	if cfg.Level.Level() == zapcore.DebugLevel {
		cfg.Development = true
	}

	cfg.OutputPaths = []string{"stdout"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// ParseLevel maps a LOG_LEVEL value to a zap level.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}
