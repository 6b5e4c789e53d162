// Package logging provides zap logger helpers.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options selects the encoder and minimum level.
type Options struct {
	// Development switches to the colored console encoder.
	Development bool
	// Level is a zap level name (debug, info, warn, error). Empty keeps the preset's level.
	Level string
}

// New builds a zap.Logger configured for development or production.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	mode := "prod"
	if opts.Development {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		mode = "dev"
	}
	cfg.EncoderConfig.TimeKey = "ts"

	if lvl := strings.TrimSpace(opts.Level); lvl != "" {
		parsed, err := zapcore.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("parse log level: %w", err)
		}
		cfg.Level = zap.NewAtomicLevelAt(parsed)
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build %s logger: %w", mode, err)
	}
	return logger, nil
}
