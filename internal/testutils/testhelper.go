// Package testutils holds mocks and builders shared by package tests.
package testutils

import (
	"github.com/sirupsen/logrus"
)

// NewLogger returns a debug-level logger for tests that need only logging.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)
	return logger
}
