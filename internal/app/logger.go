package app

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. Production emits JSON; everything else
// gets the colourised console encoder. An unparsable level falls back to info.
func NewLogger(env, level string) *zap.Logger {
	var config zap.Config

	if env == "production" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	if level != "" {
		if lvl, err := zapcore.ParseLevel(level); err == nil {
			config.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	config.OutputPaths = []string{"stdout"}

	logger, err := config.Build()
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}

	return logger.With(zap.String("env", env))
}
