package logging

import (
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// New builds the process logger. Dev runs get human-readable text output,
// every other environment emits JSON for the log shipper.
func New(level string, dev bool) *logrus.Logger {
	return newLogger(os.Stdout, level, dev)
}

func newLogger(out io.Writer, level string, dev bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(out)
	if dev {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// WithRun tags every entry of one job execution with a fresh run_id.
func WithRun(logger logrus.FieldLogger, job string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"job":    job,
		"run_id": uuid.NewString(),
	})
}
