package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// New returns the logger selected by format: "json" (slog, default), "text"
// (slog text handler) or "zap".
func New(format string, level string) (Logger, error) {
	return NewWriter(os.Stdout, format, level)
}

// NewWriter is New with slog output sent to w. Zap keeps its own sinks.
func NewWriter(w io.Writer, format string, level string) (Logger, error) {
	var sl slog.Level
	if err := sl.UnmarshalText([]byte(level)); err != nil {
		sl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: sl}

	switch format {
	case "", "json":
		return NewSlogLogger(slog.New(slog.NewJSONHandler(w, opts))), nil
	case "text":
		return NewSlogLogger(slog.New(slog.NewTextHandler(w, opts))), nil
	case "zap":
		return NewZapProduction(level)
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}
