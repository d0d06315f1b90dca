// Package chainlog provides the node's structured logging, one
// zerolog.Logger per component, following the per-service wrapper
// pattern the pack's teranode util/logger.go uses (NewZeroLogger),
// simplified to this node's needs: a console writer and a single
// debug/info level gate driven by the -D/--debug flag.
package chainlog

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Component names used to tag loggers, matching the node's major
// building blocks.
const (
	Node     = "node"
	Miner    = "miner"
	Chain    = "chain"
	Protocol = "protocol"
	Overlay  = "overlay"
)

var debug bool

// SetDebug toggles the process-wide log level; -D/--debug sets it to
// true before any component logger is constructed.
func SetDebug(enabled bool) {
	debug = enabled
}

// New returns a zerolog.Logger tagged with component, writing
// human-readable console output. Level is Debug when SetDebug(true) was
// called, Info otherwise.
func New(component string) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
