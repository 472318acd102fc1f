// Package logging builds the process logger and adapts it for Fiber's access log.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// New returns a JSON logger writing to out (stdout when nil).
func New(level string, out io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	if out == nil {
		out = os.Stdout
	}
	logger.SetOutput(out)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// FiberWriter returns an io.Writer that turns each access log line into a log entry.
func FiberWriter(logger logrus.FieldLogger) io.Writer {
	return &fiberLogWriter{entry: logger.WithField("source", "fiber")}
}

type fiberLogWriter struct {
	entry *logrus.Entry
}

func (w *fiberLogWriter) Write(p []byte) (int, error) {
	w.entry.Info(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
