// Package applog is the process-wide logging singleton used across the
// acquisition pipeline. It wraps zap the way the teacher's hand-rolled
// leveled logger did: InitLogger once at startup, L() anywhere after.
package applog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	global  *zap.SugaredLogger
	initFn  sync.Once
	rawOnce *zap.Logger
)

// Options controls how the singleton logger is built.
type Options struct {
	// Development enables human-readable, colorized console output
	// instead of structured JSON (used by cmd/camacq when --log-json
	// is not passed).
	Development bool
	// FilePath, if non-empty, additionally writes logs to this file.
	FilePath string
}

// Init builds the global logger. Safe to call more than once; only the
// first call takes effect, matching the teacher's sync.Once singleton.
func Init(opts Options) *zap.SugaredLogger {
	initFn.Do(func() {
		var cfg zap.Config
		if opts.Development {
			cfg = zap.NewDevelopmentConfig()
		} else {
			cfg = zap.NewProductionConfig()
		}
		if opts.FilePath != "" {
			cfg.OutputPaths = append(cfg.OutputPaths, opts.FilePath)
		}
		logger, err := cfg.Build()
		if err != nil {
			// Fall back to a no-op logger rather than crash the acquisition
			// engine over a logging misconfiguration.
			logger = zap.NewNop()
		}
		rawOnce = logger
		global = logger.Sugar()
	})
	return global
}

// L returns the global logger, lazily initializing a development logger
// if Init was never called (mirrors the teacher's InitLogger fallback).
func L() *zap.SugaredLogger {
	if global == nil {
		return Init(Options{Development: true})
	}
	return global
}

// Close flushes any buffered log entries. Call once at shutdown.
func Close() {
	if rawOnce != nil {
		_ = rawOnce.Sync()
	}
}
