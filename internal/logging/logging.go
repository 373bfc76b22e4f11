// Package logging configures memepool's structured logger. Every
// component receives a zerolog.Logger scoped with a "component" field
// so log lines can be filtered per §7's requirement for structured
// context (component, requestId, blockNumber, txHash).
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the root logger. level is parsed with zerolog.ParseLevel;
// an empty or invalid level falls back to info.
func New(level string, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// For returns a child logger scoped to a single component.
func For(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
