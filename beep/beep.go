// Package beep plays the mute and unmute sound cues.
package beep

import (
	"encoding/binary"
	"fmt"
	"math"

	"micoverlay/audio"
	"micoverlay/log"
)

const (
	sampleRate = 44100

	// Unmute: high pitch, short
	unmuteFreq  = 1200
	unmuteDecay = 60

	// Mute: lower pitch, slightly longer
	muteFreq  = 700
	muteDecay = 40
)

// Clip is interleaved 16-bit PCM ready for playback.
type Clip struct {
	SampleRate int
	Channels   int
	Samples    []int16
}

// LoadClip reads a 16-bit PCM wave file and scales it by volume.
func LoadClip(path string, volume float64) (*Clip, error) {
	w, err := audio.LoadWAV(path)
	if err != nil {
		return nil, err
	}
	if w.BitsPerSample != 16 {
		return nil, fmt.Errorf("%s: %d-bit samples, want 16", path, w.BitsPerSample)
	}
	if w.Channels == 0 || w.SampleRate == 0 {
		return nil, fmt.Errorf("%s: empty format", path)
	}
	samples := make([]int16, len(w.Data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(w.Data[i*2:]))
	}
	return &Clip{
		SampleRate: int(w.SampleRate),
		Channels:   int(w.Channels),
		Samples:    scale(samples, volume),
	}, nil
}

// ToneClip synthesizes a decaying sine tick.
func ToneClip(freq, duration, volume, decay float64) *Clip {
	n := int(sampleRate * duration)
	samples := make([]int16, n)
	for i := range n {
		t := float64(i) / sampleRate
		envelope := math.Exp(-t * decay)
		samples[i] = int16(math.Sin(2*math.Pi*freq*t) * 32767 * volume * envelope)
	}
	return &Clip{SampleRate: sampleRate, Channels: 1, Samples: samples}
}

func scale(samples []int16, volume float64) []int16 {
	volume = math.Min(math.Max(volume, 0), 1)
	for i, s := range samples {
		samples[i] = int16(math.Round(float64(s) * volume))
	}
	return samples
}

// Player holds one clip per mute state.
type Player struct {
	enabled bool
	muted   *Clip
	unmuted *Clip
}

// NewPlayer loads the cue files. A file that cannot be used is replaced by
// a synthesized tone. A disabled player is silent.
func NewPlayer(mutedPath, unmutedPath string, volume float64, enabled bool) *Player {
	p := &Player{enabled: enabled}
	if !enabled {
		return p
	}
	p.muted = loadOrTone(mutedPath, volume, muteFreq, 0.12, muteDecay)
	p.unmuted = loadOrTone(unmutedPath, volume, unmuteFreq, 0.08, unmuteDecay)
	return p
}

func loadOrTone(path string, volume, freq, duration, decay float64) *Clip {
	c, err := LoadClip(path, volume)
	if err == nil {
		return c
	}
	log.Warnf("sound cue %s unusable, using built-in tone: %v", path, err)
	return ToneClip(freq, duration, math.Min(math.Max(volume, 0), 1)*0.5, decay)
}

func (p *Player) Enabled() bool { return p.enabled }

// Clip returns the clip for a state, nil when disabled.
func (p *Player) Clip(muted bool) *Clip {
	if !p.enabled {
		return nil
	}
	if muted {
		return p.muted
	}
	return p.unmuted
}

// Play starts the cue for the new state without waiting for it to finish.
func (p *Player) Play(muted bool) {
	c := p.Clip(muted)
	if c == nil || len(c.Samples) == 0 {
		return
	}
	play(c)
}
