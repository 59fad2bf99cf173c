// Package metrics exports runtime counters to Prometheus and keeps plain
// copies for the session summary.
package metrics

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ticksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "micoverlay_ticks_total",
			Help: "Total number of state machine ticks",
		},
	)

	muteTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "micoverlay_mute_transitions_total",
			Help: "Total number of mute state changes by new state",
		},
		[]string{"state"},
	)

	oscMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "micoverlay_osc_messages_total",
			Help: "Total number of OSC messages accepted by parameter",
		},
		[]string{"parameter"},
	)

	malformedMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "micoverlay_osc_malformed_total",
			Help: "Total number of OSC packets or messages dropped as malformed",
		},
		[]string{"reason"},
	)

	overlayErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "micoverlay_overlay_errors_total",
			Help: "Total number of failed overlay operations",
		},
		[]string{"op"},
	)

	outputAlpha = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "micoverlay_output_alpha",
			Help: "Icon opacity sent to the compositor",
		},
	)

	deviceMicLevel = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "micoverlay_device_mic_level",
			Help: "Latest local microphone peak level",
		},
	)

	hostRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "micoverlay_host_running",
			Help: "1 while the host process is running",
		},
	)
)

var (
	ticks       atomic.Uint64
	muteChanges atomic.Uint64
	malformed   atomic.Uint64
)

// Counts is a point-in-time copy of the process counters.
type Counts struct {
	Ticks       uint64
	MuteChanges uint64
	Malformed   uint64
}

func Snapshot() Counts {
	return Counts{
		Ticks:       ticks.Load(),
		MuteChanges: muteChanges.Load(),
		Malformed:   malformed.Load(),
	}
}

// Tick records one state machine update and its outputs.
func Tick(alpha, micLevel float64) {
	ticks.Add(1)
	ticksTotal.Inc()
	outputAlpha.Set(alpha)
	deviceMicLevel.Set(micLevel)
}

func MuteTransition(state string) {
	muteChanges.Add(1)
	muteTransitionsTotal.WithLabelValues(state).Inc()
}

func OSCMessage(parameter string) {
	oscMessagesTotal.WithLabelValues(parameter).Inc()
}

func Malformed(reason string) {
	malformed.Add(1)
	malformedMessagesTotal.WithLabelValues(reason).Inc()
}

func OverlayError(op string) {
	overlayErrorsTotal.WithLabelValues(op).Inc()
}

func HostRunning(running bool) {
	if running {
		hostRunning.Set(1)
	} else {
		hostRunning.Set(0)
	}
}
