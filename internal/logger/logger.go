package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const maxLogFieldLength = 100

// Sanitize makes a user-supplied value safe to log: control characters are
// stripped and the result is capped at 100 characters. Identifiers arrive
// from untrusted request bodies and would otherwise flow into terminal
// escape sequences or unbounded log lines.
func Sanitize(value string) string {
	var b strings.Builder
	n := 0
	for _, r := range value {
		if r <= 0x1f || (r >= 0x7f && r <= 0x9f) {
			continue
		}
		b.WriteRune(r)
		n++
		if n == maxLogFieldLength {
			break
		}
	}
	return b.String()
}

// New builds the process logger writing human-readable output to stdout.
func New(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}).Level(parseLevel(level)).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}
