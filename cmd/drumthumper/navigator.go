package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/srg/drumthumper/internal/engine"
	"github.com/srg/drumthumper/internal/midi"
	"github.com/srg/drumthumper/internal/orchestrator"
)

// consoleNavigator starts MIDI playback when the device opens and reports
// every transition on the terminal.
type consoleNavigator struct {
	out    io.Writer
	port   int
	engine engine.Engine
	logger *logrus.Logger

	// progress is stopped on the first transition
	progress *ProgressPrinter

	mu     sync.Mutex
	device *midi.Device
}

var _ orchestrator.Navigator = (*consoleNavigator)(nil)

var (
	okColor   = color.New(color.FgGreen, color.Bold)
	warnColor = color.New(color.FgYellow)
	padColors = map[engine.Drum]*color.Color{
		engine.Kick:        color.New(color.FgRed, color.Bold),
		engine.HiHatClosed: color.New(color.FgCyan, color.Bold),
		engine.Snare:       color.New(color.FgMagenta, color.Bold),
	}
)

func newConsoleNavigator(out io.Writer, port int, eng engine.Engine, progress *ProgressPrinter, logger *logrus.Logger) *consoleNavigator {
	return &consoleNavigator{
		out:      out,
		port:     port,
		engine:   eng,
		progress: progress,
		logger:   logger,
	}
}

func (n *consoleNavigator) OnOpened(dev *midi.Device) {
	n.stopProgress()

	if err := dev.OpenOutputPort(n.port, n.engine.OnMessage); err != nil {
		n.logger.WithFields(logrus.Fields{
			"port":  n.port,
			"error": err,
		}).Error("Failed to start reading MIDI")
		warnColor.Fprintf(n.out, "MIDI device %s opened, but port %d could not be read: %s\n",
			dev.Address(), n.port, FormatUserError(err))
		return
	}

	n.mu.Lock()
	n.device = dev
	n.mu.Unlock()

	okColor.Fprintf(n.out, "MIDI device %s opened", dev.Address())
	fmt.Fprintf(n.out, " (MTU %d, %d output port(s)). Play some pads, Ctrl+C to quit.\n", dev.MTU(), dev.OutputPorts())
}

func (n *consoleNavigator) OnClosed() {
	n.stopProgress()

	n.mu.Lock()
	had := n.device != nil
	n.device = nil
	n.mu.Unlock()

	if had {
		warnColor.Fprintln(n.out, "MIDI device closed. Send SIGHUP to reconnect.")
		return
	}
	warnColor.Fprintln(n.out, "MIDI device unavailable. Send SIGHUP to retry.")
}

// onPad prints pad feedback for incoming notes.
func (n *consoleNavigator) onPad(d engine.Drum) {
	c, ok := padColors[d]
	if !ok {
		return
	}
	c.Fprintf(n.out, "* %s\n", d)
}

func (n *consoleNavigator) stopProgress() {
	if n.progress != nil {
		n.progress.Stop()
	}
}

// printDeviceSetChange reports an audio hot-plug event.
func printDeviceSetChange(out io.Writer, added bool) {
	if added {
		okColor.Fprintln(out, "Audio output device added")
		return
	}
	warnColor.Fprintln(out, "Audio output device removed")
}
