// Package logging builds the root zap logger. Components receive named
// child loggers by injection; there is no package-level global.
package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options control logger construction.
type Options struct {
	Debug   bool   // debug level and development encoding
	Format  string // "json" or "console", defaults to console
	Outputs []string
}

// New constructs the root logger. The zero Options value yields an
// info-level console logger on stderr.
func New(opts Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.OutputPaths = []string{"stderr"}

	if opts.Format == "json" {
		cfg.Encoding = "json"
		cfg.EncoderConfig = zap.NewProductionEncoderConfig()
	}
	if opts.Debug {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		cfg.Development = true
	}
	if len(opts.Outputs) > 0 {
		cfg.OutputPaths = opts.Outputs
	}

	return cfg.Build()
}
