package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersTrackSnapshot(t *testing.T) {
	before := Snapshot()

	Tick(0.4, 0.2)
	Tick(0.5, 0.1)
	MuteTransition("UNMUTED")
	Malformed("type")

	after := Snapshot()
	assert.Equal(t, before.Ticks+2, after.Ticks)
	assert.Equal(t, before.MuteChanges+1, after.MuteChanges)
	assert.Equal(t, before.Malformed+1, after.Malformed)

	assert.Equal(t, 0.5, testutil.ToFloat64(outputAlpha))
	assert.Equal(t, 0.1, testutil.ToFloat64(deviceMicLevel))
	assert.Equal(t, float64(after.Ticks), testutil.ToFloat64(ticksTotal))
}

func TestLabelledCounters(t *testing.T) {
	c := overlayErrorsTotal.WithLabelValues("SetAlpha")
	start := testutil.ToFloat64(c)
	OverlayError("SetAlpha")
	assert.Equal(t, start+1, testutil.ToFloat64(c))

	HostRunning(true)
	assert.Equal(t, 1.0, testutil.ToFloat64(hostRunning))
	HostRunning(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(hostRunning))
}
