// Package logging sets up the structured logger shared by the CLI and the
// bake driver. It wraps log/slog; the level comes from SPRINGMAGIC_LOG_LEVEL.
package logging

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelEnv names the environment variable holding the log level.
const LevelEnv = "SPRINGMAGIC_LOG_LEVEL"

// Logger wraps slog.Logger so callers can pass the embedded logger to the
// library packages, which only accept *slog.Logger.
type Logger struct {
	*slog.Logger
}

// New creates a logger writing to w. format is "text" or "json"; an empty
// format means text.
func New(w io.Writer, format string) (*Logger, error) {
	opts := &slog.HandlerOptions{Level: levelFromEnv()}
	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", format)
	}
	return &Logger{slog.New(h)}, nil
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return &Logger{slog.New(slog.DiscardHandler)}
}

// WithRun tags every record with the bake run it belongs to.
func (l *Logger) WithRun(id string) *Logger {
	return &Logger{l.With("run", id)}
}

// Failure logs err at ERROR with the message.
func (l *Logger) Failure(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err.Error())
	}
	l.Error(msg, args...)
}

// NewRunID returns a short random hex id.
func NewRunID() string {
	b := make([]byte, 4)
	rand.Read(b)
	return hex.EncodeToString(b)
}

func levelFromEnv() slog.Level {
	switch strings.ToUpper(os.Getenv(LevelEnv)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
