//go:build !linux

package hotplug

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Monitor is unavailable off Linux; Start always fails with ErrUnsupported.
type Monitor struct {
	logger *logrus.Logger
}

func NewMonitor(logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{logger: logger}
}

func (m *Monitor) Start(ctx context.Context, handler Handler) error {
	return ErrUnsupported
}
