// Package logging sets up the charmbracelet/log-backed structured
// logger used throughout the bridge player, grounded on the corpus's
// use of charmbracelet/log (pulled in via doismellburning-samoyed's
// go.mod) in place of the teacher's bare log.Printf calls
// (internal/audio/streaming.go, internal/audio/player.go).
package logging

import (
	"os"

	"github.com/charmbracelet/log"
)

// New builds the root logger, writing to stderr at the given level
// ("debug", "info", "warn", "error").
func New(level string, debug bool) *log.Logger {
	l := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		ReportCaller:    debug,
	})

	parsed, err := log.ParseLevel(level)
	if err != nil {
		parsed = log.InfoLevel
	}
	if debug {
		parsed = log.DebugLevel
	}
	l.SetLevel(parsed)

	return l
}

// ForComponent returns a sub-logger tagging every line with
// component=name, used to tell the bridge, the mp3 plugin and the
// player apart in interleaved output.
func ForComponent(l *log.Logger, name string) *log.Logger {
	return l.With("component", name)
}
