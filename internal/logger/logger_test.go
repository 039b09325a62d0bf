package logger_test

import (
	"strings"
	"testing"

	"propcheck/internal/logger"
)

func TestSanitizeStripsControlCharacters(t *testing.T) {
	if got := logger.Sanitize("user\x1b[2J-1"); got != "user[2J-1" {
		t.Fatalf("escape sequence survived: %q", got)
	}
	if got := logger.Sanitize("a\x00b\nc\x7fd"); got != "abcd" {
		t.Fatalf("control characters survived: %q", got)
	}
}

func TestSanitizeCapsLength(t *testing.T) {
	long := strings.Repeat("x", 10_000)
	if got := logger.Sanitize(long); len(got) != 100 {
		t.Fatalf("len = %d, want 100", len(got))
	}
}

func TestSanitizeKeepsCleanValues(t *testing.T) {
	if got := logger.Sanitize("challenge-42"); got != "challenge-42" {
		t.Fatalf("clean value changed: %q", got)
	}
}
