// Package logger provides structured logging for GitVan.
//
// A single global *zap.SugaredLogger is shared by the CLI and the daemon.
// Console output uses a minimal single-line encoder; --json switches to
// zap's production JSON encoder for machine consumption.
package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Logger is the global logger instance.
	Logger *zap.SugaredLogger
	// JSONOutput tracks whether structured JSON output is enabled.
	JSONOutput bool
)

func init() {
	// Safe no-op logger at package load time so early callers never panic.
	Logger = zap.NewNop().Sugar()
}

// Initialize sets up the global logger.
//
// jsonOutput selects JSON structured output; otherwise a human-readable
// single-line console format is used. The level defaults to Info and is
// raised to Debug when GITVAN_DEBUG is set.
func Initialize(jsonOutput bool) error {
	JSONOutput = jsonOutput

	level := zap.InfoLevel
	if os.Getenv("GITVAN_DEBUG") != "" {
		level = zap.DebugLevel
	}

	var zapLogger *zap.Logger
	if jsonOutput {
		config := zap.NewProductionConfig()
		config.Level = zap.NewAtomicLevelAt(level)
		config.OutputPaths = []string{"stderr"}
		built, err := config.Build()
		if err != nil {
			return err
		}
		zapLogger = built
	} else {
		// Diagnostics go to stderr so stdout stays clean for command output
		// and piped consumers.
		zapLogger = zap.New(
			zapcore.NewCore(
				newMinimalEncoder(),
				zapcore.AddSync(os.Stderr),
				level,
			),
		)
	}

	Logger = zapLogger.Sugar()
	return nil
}

// Named returns a child of the global logger with the given name.
func Named(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}

// Sync flushes buffered log entries. Called on process exit.
func Sync() {
	_ = Logger.Sync()
}
