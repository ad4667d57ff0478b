package hotplug

import (
	"context"
	"fmt"

	"github.com/pilebones/go-udev/netlink"
	"github.com/sirupsen/logrus"
)

// Monitor listens for sound card uevents on the kernel netlink socket.
type Monitor struct {
	logger *logrus.Logger
}

// NewMonitor creates a uevent monitor.
func NewMonitor(logger *logrus.Logger) *Monitor {
	if logger == nil {
		logger = logrus.New()
	}
	return &Monitor{logger: logger}
}

func ptrTo[T any](v T) *T {
	return &v
}

func (m *Monitor) Start(ctx context.Context, handler Handler) error {
	conn := netlink.UEventConn{}
	if err := conn.Connect(netlink.KernelEvent); err != nil {
		return fmt.Errorf("failed to connect to udev netlink socket: %w", err)
	}
	defer conn.Close()
	m.logger.WithField("fd", conn.Fd).Info("Connected to udev netlink socket")

	queue := make(chan netlink.UEvent)
	errs := make(chan error)
	rules := &netlink.RuleDefinitions{}
	for _, action := range []string{"add", "remove"} {
		rules.AddRule(netlink.RuleDefinition{
			Action: ptrTo(action),
			Env: map[string]string{
				"SUBSYSTEM": "sound",
			},
		})
	}
	quit := conn.Monitor(queue, errs, rules)
	defer close(quit)

	// mirror the platform callback that fires on registration
	handler(true)

	for {
		select {
		case uevent := <-queue:
			added, ok := Change(string(uevent.Action), uevent.Env)
			if !ok {
				continue
			}
			m.logger.WithFields(logrus.Fields{
				"action":  uevent.Action,
				"devpath": uevent.Env["DEVPATH"],
			}).Info("Audio device set changed")
			handler(added)
		case err := <-errs:
			m.logger.WithField("error", err).Warn("udev monitor reported an error")
		case <-ctx.Done():
			return nil
		}
	}
}
