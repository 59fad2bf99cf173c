package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"micoverlay/config"
	"micoverlay/engine"
	"micoverlay/log"
	"micoverlay/metrics"
	"micoverlay/overlay"
	"micoverlay/remote"
	"micoverlay/status"
)

type eventSource interface {
	Drain(dst []remote.Event) []remote.Event
}

type levelSource interface {
	Level() float64
}

type hostPresence interface {
	IsRunning() bool
}

type cuePlayer interface {
	Play(muted bool)
}

// driver owns the engine and feeds it from the collaborators once per tick.
type driver struct {
	cfg        *config.Config
	engine     *engine.Engine
	icon       *overlay.Icon
	events     eventSource
	level      levelSource
	host       hostPresence
	cues       cuePlayer
	alwaysShow bool
	oscPort    int

	publish func(status.Snapshot) // optional
	title   io.Writer             // optional; receives the terminal title

	pending   []remote.Event
	lastTitle string
}

// run ticks whenever more than one update interval has passed and yields
// for at most a millisecond in between.
func (d *driver) run(ctx context.Context) {
	interval := time.Duration(d.cfg.UpdateInterval() * float64(time.Second))
	last := time.Now()
	for ctx.Err() == nil {
		elapsed := time.Since(last)
		if elapsed <= interval {
			time.Sleep(min(interval-elapsed, time.Millisecond))
			continue
		}
		last = last.Add(elapsed)
		d.step(elapsed.Seconds())
	}
}

func (d *driver) step(dt float64) status.Snapshot {
	d.engine.SetDeviceLevel(d.level.Level())

	d.pending = d.events.Drain(d.pending[:0])
	for _, ev := range d.pending {
		switch ev.Kind {
		case remote.MuteEvent:
			tr := d.engine.HandleMute(ev.Muted)
			d.icon.SetMuted(ev.Muted)
			d.cues.Play(ev.Muted)
			log.MuteChanged(tr.State.String(), tr.Changed)
			if tr.Changed {
				metrics.MuteTransition(tr.State.String())
			}
		case remote.VoiceEvent:
			d.engine.HandleVoice(ev.Level)
		}
	}

	out := d.engine.Tick(dt)
	running := d.host.IsRunning()
	alpha := out.Alpha
	if !running && !d.alwaysShow {
		alpha = 0
	}
	d.icon.Present(alpha, out.Scale)

	mic, _ := d.engine.Snapshot()
	metrics.Tick(alpha, mic.DeviceMicLevel)

	snap := status.Snapshot{
		State:          out.State.String(),
		Muted:          out.State == engine.Muted,
		HostRunning:    running,
		Alpha:          alpha,
		Scale:          out.Scale,
		DeviceMicLevel: mic.DeviceMicLevel,
		VRCMicLevel:    mic.VRCMicLevel,
		MutedTimer:     mic.MutedMicLevelTimer,
		UnmutedTimer:   mic.UnmutedMicLevelTimer,
		OSCPort:        d.oscPort,
	}
	if d.publish != nil {
		d.publish(snap)
	}
	d.setTitle(snap)
	return snap
}

func titleText(snap status.Snapshot) string {
	t := "micoverlay : " + snap.State
	if !snap.HostRunning {
		t += " (waiting)"
	}
	return t
}

func (d *driver) setTitle(snap status.Snapshot) {
	if d.title == nil {
		return
	}
	t := titleText(snap)
	if t == d.lastTitle {
		return
	}
	d.lastTitle = t
	fmt.Fprintf(d.title, "\x1b]0;%s\x07", t)
}

// tuiFrameInterval caps how often snapshots reach the TUI.
const tuiFrameInterval = 30 * time.Millisecond

// throttle passes a snapshot to fn at most once per interval, except that
// mute or host changes always go through.
func throttle(interval time.Duration, fn func(status.Snapshot)) func(status.Snapshot) {
	var last status.Snapshot
	var lastAt time.Time
	return func(s status.Snapshot) {
		now := time.Now()
		changed := lastAt.IsZero() || s.Muted != last.Muted || s.HostRunning != last.HostRunning
		if !changed && now.Sub(lastAt) < interval {
			return
		}
		last, lastAt = s, now
		fn(s)
	}
}
