// Package stdtext writes one key=value line per record.
package stdtext

import (
	"io"
	"log/slog"
	"os"
)

func NewDefault(level slog.Level) *slog.Logger {
	return New(os.Stdout, level)
}

func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
