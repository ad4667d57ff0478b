// Package watchdog restarts the audio stream after the output device set
// changes, unless the stream already recovered on its own.
package watchdog

import (
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/drumthumper/internal/loop"
	"github.com/srg/drumthumper/internal/metrics"
	"github.com/srg/drumthumper/internal/scheduler"
)

// DefaultRestartDelay is how long the stream gets to self-heal before a
// restart is forced.
const DefaultRestartDelay = 3000 * time.Millisecond

// Recoverable is the part of the audio engine the watchdog drives.
type Recoverable interface {
	OutputReset() bool
	ClearOutputReset()
	RestartStream() error
}

// Watchdog reacts to audio device hot-plug notifications.
//
// All fields below the constructor-set ones are owned by the executor.
type Watchdog struct {
	engine Recoverable
	sched  *scheduler.Scheduler
	exec   loop.Executor
	delay  time.Duration
	logger *logrus.Logger

	initialized bool
	stopped     bool
	episode     uint64
	pending     *scheduler.Token
}

// New creates a watchdog. delay <= 0 selects DefaultRestartDelay.
func New(engine Recoverable, sched *scheduler.Scheduler, exec loop.Executor, delay time.Duration, logger *logrus.Logger) *Watchdog {
	if delay <= 0 {
		delay = DefaultRestartDelay
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Watchdog{
		engine: engine,
		sched:  sched,
		exec:   exec,
		delay:  delay,
		logger: logger,
	}
}

// OnDeviceSetChanged is the hot-plug callback. It may be called from any
// goroutine. The first call is the registration-time callback and only marks
// the watchdog initialized.
func (w *Watchdog) OnDeviceSetChanged(added bool) {
	if !w.exec.Post(func() { w.deviceSetChanged(added) }) {
		w.logger.WithField("added", added).Debug("Watchdog loop stopped, device change ignored")
	}
}

func (w *Watchdog) deviceSetChanged(added bool) {
	kind := "removed"
	if added {
		kind = "added"
	}
	log := w.logger.WithField("change", kind)

	if w.stopped {
		return
	}
	if !w.initialized {
		w.initialized = true
		metrics.WatchdogEventsTotal.WithLabelValues(kind, "false").Inc()
		log.Debug("Watchdog initialized")
		return
	}
	metrics.WatchdogEventsTotal.WithLabelValues(kind, "true").Inc()

	if w.engine.OutputReset() {
		w.engine.ClearOutputReset()
		// the episode is resolved, a pending check has nothing left to do
		w.pending.Cancel()
		w.pending = nil
		metrics.WatchdogActionsTotal.WithLabelValues("self_healed").Inc()
		log.Info("Audio output already reset, no restart needed")
		return
	}

	if w.pending != nil {
		log.WithField("episode", w.episode).Debug("Restart check already pending")
		return
	}

	w.episode++
	episode := w.episode
	w.pending = w.sched.Schedule("audio-restart-"+strconv.FormatUint(episode, 10), w.delay, func() {
		w.exec.Post(func() { w.restartIfNeeded(episode) })
	})
	metrics.WatchdogActionsTotal.WithLabelValues("scheduled").Inc()
	log.WithFields(logrus.Fields{
		"episode": episode,
		"delay":   w.delay,
	}).Info("Audio output not reset, restart check scheduled")
}

func (w *Watchdog) restartIfNeeded(episode uint64) {
	if w.stopped || w.pending == nil || episode != w.episode {
		return
	}
	w.pending = nil
	log := w.logger.WithField("episode", episode)

	if w.engine.OutputReset() {
		metrics.WatchdogActionsTotal.WithLabelValues("skipped").Inc()
		log.Info("Audio output reset during the delay, restart skipped")
		return
	}

	if err := w.engine.RestartStream(); err != nil {
		rerr := &RecoveryError{Attempt: episode, Err: err}
		metrics.WatchdogActionsTotal.WithLabelValues("restart_failed").Inc()
		log.WithField("error", rerr).Error("Failed to restart audio stream")
		return
	}
	metrics.WatchdogActionsTotal.WithLabelValues("restarted").Inc()
	log.Info("Audio stream restarted")
}

// Stop cancels any pending restart check. Later notifications are ignored.
func (w *Watchdog) Stop() {
	if !w.exec.Post(w.stop) {
		// the executor is gone, nothing else touches the state now
		w.stop()
	}
}

func (w *Watchdog) stop() {
	if w.stopped {
		return
	}
	w.stopped = true
	w.pending.Cancel()
	w.pending = nil
	w.logger.Debug("Watchdog stopped")
}
