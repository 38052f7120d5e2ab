// Package logging builds the slog loggers shared by the binaries.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Mode uint8

const (
	ModeDev Mode = iota
	ModeProd
	ModeSilent
)

func (m Mode) String() string {
	switch m {
	case ModeProd:
		return "prod"
	case ModeSilent:
		return "silent"
	default:
		return "dev"
	}
}

// ParseMode accepts dev, prod or silent. Empty means dev.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dev", "text":
		return ModeDev, nil
	case "prod", "json":
		return ModeProd, nil
	case "silent", "silence", "off":
		return ModeSilent, nil
	}
	return ModeDev, fmt.Errorf("unknown log mode %q", s)
}

// New returns a text/debug logger on stderr (dev), a JSON/info logger on
// stdout (prod) or a discarding logger (silent).
func New(mode Mode) *slog.Logger {
	switch mode {
	case ModeProd:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	case ModeSilent:
		return Discard()
	default:
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
