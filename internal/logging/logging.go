// Package logging builds the zap loggers shared by the binaries.
package logging

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const defaultLevel = "info"

// New returns a JSON logger at the given level tagged with the service name.
// An unknown level falls back to info.
func New(level, service string) (*zap.Logger, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(level)))); err != nil || level == "" {
		_ = lvl.UnmarshalText([]byte(defaultLevel))
	}

	cfg := zap.Config{
		Level:    lvl,
		Encoding: "json",
		EncoderConfig: zapcore.EncoderConfig{
			MessageKey:    "message",
			TimeKey:       "timestamp",
			LevelKey:      "severity",
			NameKey:       "logger",
			CallerKey:     "caller",
			StacktraceKey: "stacktrace",
			EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
			EncodeLevel:   zapcore.CapitalLevelEncoder,
			EncodeCaller:  zapcore.ShortCallerEncoder,
		},
		OutputPaths:       []string{"stdout"},
		ErrorOutputPaths:  []string{"stderr"},
		DisableStacktrace: true,
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.With(zap.String("service", service)), nil
}

// Printf adapts a zap logger to printf-style hooks such as kafka-go's
// Logger and ErrorLogger.
type Printf struct {
	logger   *zap.SugaredLogger
	errLevel bool
}

func NewPrintf(logger *zap.Logger, errorLevel bool) Printf {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Printf{logger: logger.Sugar(), errLevel: errorLevel}
}

func (p Printf) Printf(format string, args ...any) {
	if p.errLevel {
		p.logger.Errorf(format, args...)
		return
	}
	p.logger.Debugf(format, args...)
}
