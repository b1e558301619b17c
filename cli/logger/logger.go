package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

type Options struct {
	Level  string `name:"log-level"  doc:"log from debug, info, warn or error"`
	File   string `name:"log-file"   doc:"also append logs to file"`
	Format string `name:"log-format" doc:"format logs as text or json"         default:"text"`
}

func level(option string) (slog.Leveler, bool) {
	switch strings.ToLower(option) {
	case "":
		return nil, true
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return nil, false
	}
}

// New returns a logger writing to stdout. When options.File names a file,
// records are also appended to it. Invalid options fall back to their
// defaults with a warning.
func New(options *Options) *slog.Logger {
	return newTo(os.Stdout, options)
}

func newTo(stdout io.Writer, options *Options) *slog.Logger {
	level, ok := level(options.Level)
	if !ok {
		options.Level = ""
		logger := newTo(stdout, options)
		logger.Warn("could not parse logger level")
		return logger
	}
	opts := slog.HandlerOptions{Level: level}

	var handler func(io.Writer, *slog.HandlerOptions) slog.Handler
	switch strings.ToLower(options.Format) {
	case "json":
		handler = func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewJSONHandler(w, o) }
	case "text":
		handler = func(w io.Writer, o *slog.HandlerOptions) slog.Handler { return slog.NewTextHandler(w, o) }
	default:
		options.Format = "text"
		logger := newTo(stdout, options)
		logger.Warn("could not parse logger format")
		return logger
	}

	switch options.File {
	case "", "-":
		return slog.New(handler(stdout, &opts))
	case os.DevNull:
		return slog.New(slog.DiscardHandler)
	}

	file, err := os.OpenFile(options.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		options.File = ""
		logger := newTo(stdout, options)
		logger.Warn("could not open logger file", "err", err)
		return logger
	}
	return slog.New(slogmulti.Fanout(handler(stdout, &opts), handler(file, &opts)))
}
