package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"mongoconn/internal/common"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// New builds a logger for the given level and format ("json" or "console").
func New(level, format string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, &common.ConfigError{Op: "parse log level", Reason: err.Error(), Err: err}
	}

	var encoderConfig zapcore.EncoderConfig
	switch format {
	case FormatConsole:
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	case FormatJSON, "":
		format = FormatJSON
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	default:
		return nil, &common.ConfigError{Op: "parse log format", Reason: "unknown log format '" + format + "'"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(lvl),
		Development:      format == FormatConsole,
		Encoding:         format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := zapConfig.Build(zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		return nil, &common.ConfigError{Op: "build logger", Reason: err.Error(), Err: err}
	}
	return logger, nil
}
