// Package engine turns mute events, voice levels and microphone samples into
// the icon's animated opacity and scale.
package engine

import "math"

// MuteState is the remote application's reported microphone state.
type MuteState int

const (
	Muted MuteState = iota
	Unmuted
)

func (s MuteState) String() string {
	if s == Unmuted {
		return "UNMUTED"
	}
	return "MUTED"
}

// unmutedSilenceLevel is the voice level under which the remote feed counts as silent.
// The feed normalizes its own level, so anything above zero is speech.
const unmutedSilenceLevel = 0.001

// MicState is the per-tick input record. Timers are seconds of continuous
// quiet observed in the active mute state.
type MicState struct {
	DeviceMicLevel       float64
	VRCMicLevel          float64
	MutedMicLevelTimer   float64
	UnmutedMicLevelTimer float64
	VRCMuteState         MuteState
}

// NewMicState starts muted: the icon assumes muted until told otherwise.
func NewMicState() MicState {
	return MicState{VRCMuteState: Muted}
}

// IconState holds the animated factors. Current approaches Target at Rate
// units per second.
type IconState struct {
	AlphaFactorCurrent float64
	AlphaFactorTarget  float64
	AlphaFactorRate    float64

	ScaleFactorCurrent float64
	ScaleFactorTarget  float64
	ScaleFactorRate    float64
}

// NewIconState fades the icon in from invisible at startup.
func NewIconState() IconState {
	return IconState{
		AlphaFactorCurrent: 0,
		AlphaFactorTarget:  1,
		AlphaFactorRate:    10,

		ScaleFactorCurrent: 1,
		ScaleFactorTarget:  1,
		ScaleFactorRate:    1,
	}
}

// Update advances both factors by one tick of dt seconds.
func (s *IconState) Update(dt float64) {
	if dt <= 0 {
		return
	}
	s.AlphaFactorCurrent = approach(s.AlphaFactorCurrent, s.AlphaFactorTarget, s.AlphaFactorRate*dt)
	s.ScaleFactorCurrent = approach(s.ScaleFactorCurrent, s.ScaleFactorTarget, s.ScaleFactorRate*dt)
}

// approach moves current toward target by step, snapping to target once the
// remaining distance is within one step so it never drifts around zero.
func approach(current, target, step float64) float64 {
	diff := target - current
	if math.Abs(diff) > step {
		if diff > 0 {
			return current + step
		}
		return current - step
	}
	return target
}

func lerp(a, b, t float64) float64 {
	return b*t + a*(1-t)
}

func saturate(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
