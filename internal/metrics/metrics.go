package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Connection Metrics
var (
	// ConnectAttemptsTotal tracks connection attempts by final result
	// (opened, failed, superseded, cancelled)
	ConnectAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "midi_connect_attempts_total",
			Help: "Total MIDI connection attempts by result",
		},
		[]string{"result"},
	)

	// ConnectFailuresTotal tracks failed attempts by the step that failed
	// (link, mtu, discovery, no_output_port, device_open_failed, adapter)
	ConnectFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "midi_connect_failures_total",
			Help: "Total MIDI connection failures by step",
		},
		[]string{"step"},
	)

	// ConnectDuration tracks time from connect request to open device
	ConnectDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "midi_connect_duration_seconds",
			Help:    "Time from connect request to opened MIDI device",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 30},
		},
	)

	// DeviceOpen is 1 while a MIDI device is open
	DeviceOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "midi_device_open",
			Help: "Whether a MIDI device is currently open (0/1)",
		},
	)

	// StaleCallbacksTotal tracks completions discarded because their attempt was superseded
	StaleCallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "midi_stale_callbacks_total",
			Help: "Total async completions discarded for superseded attempts",
		},
	)
)

// MIDI Message Metrics
var (
	// MIDIMessagesTotal tracks decoded MIDI messages by outcome (received, dropped, malformed)
	MIDIMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "midi_messages_total",
			Help: "Total MIDI messages by outcome",
		},
		[]string{"outcome"},
	)
)

// Audio Recovery Metrics
var (
	// WatchdogEventsTotal tracks hot-plug notifications by kind (added, removed) and
	// whether they were actionable
	WatchdogEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_watchdog_events_total",
			Help: "Total audio device-set change notifications",
		},
		[]string{"kind", "actionable"},
	)

	// WatchdogActionsTotal tracks recovery decisions
	// (self_healed, scheduled, restarted, skipped, restart_failed)
	WatchdogActionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audio_watchdog_actions_total",
			Help: "Total audio recovery actions by outcome",
		},
		[]string{"outcome"},
	)
)
