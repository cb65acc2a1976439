// Package logging builds the process logger.
package logging

import (
	"io"
	"strings"

	"github.com/kataras/golog"
)

// Levels accepted by New.
var Levels = []string{"debug", "info", "warn", "error", "disable"}

// New returns a logger at the named level writing to out. An unknown level
// falls back to info; a nil out keeps stderr.
func New(level string, out io.Writer) *golog.Logger {
	l := golog.New()
	if out != nil {
		l.SetOutput(out)
	}
	l.SetTimeFormat("2006-01-02 15:04:05")
	l.SetLevel(Normalize(level))
	return l
}

// Normalize lowercases a level name and maps unknown names to info.
func Normalize(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		return "warn"
	}
	for _, l := range Levels {
		if l == level {
			return level
		}
	}
	return "info"
}
