package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// New returns the process-wide structured logger writing JSON to stdout.
// level comes from the LOG_LEVEL config value; unknown values fall back to
// info rather than failing startup.
func New(level string) *slog.Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter is New with an explicit sink, for tests and tooling.
// Debug level additionally records source positions so dispatch races can
// be traced to a call site.
func NewWithWriter(level string, w io.Writer) *slog.Logger {
	lv := Level(level)
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     lv,
		AddSource: lv == slog.LevelDebug,
	}))
}

// Level maps a config string to a slog level.
func Level(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
