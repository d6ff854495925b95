package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger sends informative messages to one stream and errors to another.
// It satisfies decoder.Logger.
type Logger struct {
	InfoLog  *slog.Logger
	ErrorLog *slog.Logger
}

func (l Logger) Info(message string, module string) {
	l.InfoLog.Info(message, "module", module)
}

func (l Logger) Error(message string) {
	l.ErrorLog.Error(message)
}

// New builds the logger used by the executables: plain lines on stdout and
// JSON records on stderr.
func New() Logger {
	return NewWithWriters(os.Stdout, os.Stderr)
}

func NewWithWriters(info io.Writer, errs io.Writer) Logger {
	opts := &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}
	return Logger{
		InfoLog:  slog.New(NewHandler(info, opts)),
		ErrorLog: slog.New(slog.NewJSONHandler(errs, opts)),
	}
}
