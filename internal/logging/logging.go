// Package logging builds the zerolog loggers used by the command-line tools.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Output receives log lines. Tests replace it.
var Output io.Writer = os.Stderr

// New returns a logger tagged with app at the named level ("debug", "info",
// "warn", "error" or "disabled"; empty means "info"). JSON output writes
// one object per line, otherwise lines are formatted for a terminal.
func New(app, level string, json bool) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if s := strings.TrimSpace(level); s != "" {
		var err error
		if lvl, err = zerolog.ParseLevel(strings.ToLower(s)); err != nil {
			return zerolog.Nop(), fmt.Errorf("logging: level %q: %w", level, err)
		}
	}
	w := Output
	if !json {
		w = zerolog.ConsoleWriter{
			Out:        Output,
			TimeFormat: time.RFC3339,
			NoColor:    true,
		}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("app", app).Logger(), nil
}
