package engine

import "micoverlay/config"

// Transition is the result of applying a mute event.
type Transition struct {
	State   MuteState
	Changed bool // false when the event repeated the current state
}

// ApplyMuteChange handles a mute/unmute event: the icon bounces, optionally
// restarts its fade timers, and reseeds alpha for the new state. Repeated
// events of the same state are applied the same way.
func ApplyMuteChange(mic *MicState, icon *IconState, cfg *config.Config, muted bool) Transition {
	prev := mic.VRCMuteState
	if muted {
		mic.VRCMuteState = Muted
	} else {
		mic.VRCMuteState = Unmuted
	}

	icon.ScaleFactorCurrent = cfg.IconChangeScaleFactor

	if cfg.RestartFadeTimerOnStateChange {
		mic.MutedMicLevelTimer = 0
		mic.UnmutedMicLevelTimer = 0
	}

	if mic.VRCMuteState == Muted {
		icon.AlphaFactorCurrent = cfg.IconMutedMaxAlpha
	} else {
		// Start between bounds so unmuting while quiet doesn't flash full alpha.
		icon.AlphaFactorCurrent = (cfg.IconUnmutedMaxAlpha + cfg.IconUnmutedMinAlpha) / 2
	}

	return Transition{State: mic.VRCMuteState, Changed: prev != mic.VRCMuteState}
}

// ApplyVoiceLevel stores the remote voice level as-is.
func ApplyVoiceLevel(mic *MicState, level float64) {
	mic.VRCMicLevel = level
}

// Step advances the silence timers by dt and picks the alpha target and rate.
func Step(mic *MicState, icon *IconState, cfg *config.Config, dt float64) {
	if dt < 0 {
		dt = 0
	}

	var timer, fadeStart, fadePeriod float64
	if mic.VRCMuteState == Muted {
		if mic.DeviceMicLevel < cfg.MutedMicThreshold {
			mic.MutedMicLevelTimer += dt
		} else {
			mic.MutedMicLevelTimer = 0
		}
		timer, fadeStart, fadePeriod = mic.MutedMicLevelTimer, cfg.MicMutedFadeStart, cfg.MicMutedFadePeriod
	} else {
		if mic.VRCMicLevel < unmutedSilenceLevel {
			mic.UnmutedMicLevelTimer += dt
		} else {
			mic.UnmutedMicLevelTimer = 0
		}
		timer, fadeStart, fadePeriod = mic.UnmutedMicLevelTimer, cfg.MicUnmutedFadeStart, cfg.MicUnmutedFadePeriod
	}

	if timer > fadeStart {
		icon.AlphaFactorTarget = 0
		icon.AlphaFactorRate = 1 / fadePeriod
	} else {
		icon.AlphaFactorTarget = 1
		icon.AlphaFactorRate = 1 / cfg.IconUnfadeTime
	}
}

// OutputAlpha maps the alpha factor onto the active state's alpha bounds.
func OutputAlpha(mic *MicState, icon *IconState, cfg *config.Config) float64 {
	lo, hi := cfg.IconUnmutedMinAlpha, cfg.IconUnmutedMaxAlpha
	if mic.VRCMuteState == Muted {
		lo, hi = cfg.IconMutedMinAlpha, cfg.IconMutedMaxAlpha
	}
	return saturate(lerp(lo, hi, icon.AlphaFactorCurrent))
}

// Output is what one tick hands to the presenter.
type Output struct {
	Alpha float64
	Scale float64
	State MuteState
}

// Engine owns one MicState and IconState for the life of the process.
// It is not safe for concurrent use; the main loop is its only caller.
type Engine struct {
	cfg  *config.Config
	mic  MicState
	icon IconState
}

func New(cfg *config.Config) *Engine {
	return &Engine{
		cfg:  cfg,
		mic:  NewMicState(),
		icon: NewIconState(),
	}
}

func (e *Engine) HandleMute(muted bool) Transition {
	return ApplyMuteChange(&e.mic, &e.icon, e.cfg, muted)
}

func (e *Engine) HandleVoice(level float64) {
	ApplyVoiceLevel(&e.mic, level)
}

// SetDeviceLevel records the latest sampled microphone peak.
func (e *Engine) SetDeviceLevel(level float64) {
	e.mic.DeviceMicLevel = level
}

// Tick runs one update of dt seconds and returns the presentation values.
func (e *Engine) Tick(dt float64) Output {
	Step(&e.mic, &e.icon, e.cfg, dt)
	e.icon.Update(dt)
	return Output{
		Alpha: OutputAlpha(&e.mic, &e.icon, e.cfg),
		Scale: e.icon.ScaleFactorCurrent,
		State: e.mic.VRCMuteState,
	}
}

// Snapshot returns copies of the current state.
func (e *Engine) Snapshot() (MicState, IconState) {
	return e.mic, e.icon
}

func (e *Engine) State() MuteState {
	return e.mic.VRCMuteState
}
