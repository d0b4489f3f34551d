// Package log wraps zerolog with the defaults this service wants:
// console output in development, JSON in production, a level read from
// RANKCHOICE_LOG_LEVEL.
package log

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Init replaces it; until Init runs
// it writes human-readable output to stderr at info level, so packages
// that log during early startup (before configuration is read) don't
// panic on a zero Logger.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel).With().Timestamp().Logger()

// Init configures Logger from a level name ("debug", "info", "warn",
// "error") and a mode: "console" for human-readable output (the
// default, suited to a terminal) or anything else for JSON (suited to
// a log aggregator).
func Init(level, mode string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stderr
	if mode == "console" {
		w = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	Logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}
