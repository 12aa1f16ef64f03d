// control/log.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Structured logging for the runtime's programming-error and recoverable-
// OS-error taxonomy, built on zerolog.

package control

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	logMu  sync.RWMutex
	logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
)

// Log returns the process-wide structured logger used by scheduler,
// timer, and iomanager for their error taxonomy.
func Log() *zerolog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return &logger
}

// SetLogOutput redirects the logger to w as line-delimited JSON (e.g. a
// log file in production, or io.Discard in tests that expect noisy fatal
// paths). The default logger is a human-readable console writer on
// os.Stderr; call this to switch to machine-readable output.
func SetLogOutput(w io.Writer) {
	logMu.Lock()
	defer logMu.Unlock()
	logger = zerolog.New(w).With().Timestamp().Logger()
}
