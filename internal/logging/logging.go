// Package logging builds the shared *logrus.Logger used by every
// component: JSON output in production, human-readable text with full
// timestamps in debug mode.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// New builds a logger whose verbosity and formatter depend on debug mode.
func New(debug bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debug {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return logger
	}

	logger.SetLevel(logrus.InfoLevel)
	logger.SetFormatter(&logrus.JSONFormatter{})
	return logger
}
