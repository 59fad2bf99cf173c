// Package presence reports whether the host application is running.
package presence

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v4/process"

	"micoverlay/log"
)

const DefaultInterval = 5 * time.Second

// Lister returns the executable names of running processes.
type Lister func(ctx context.Context) ([]string, error)

// Tracker caches a process table scan for a fixed interval. It is owned by
// the main loop and not safe for concurrent use.
type Tracker struct {
	name     string
	interval time.Duration
	list     Lister
	now      func() time.Time
	logger   zerolog.Logger

	attempted bool // a scan ran, successful or not
	scanned   bool // a scan succeeded
	lastScan  time.Time
	running   bool
	onChange  func(running bool)
}

// New tracks the process called name using the OS process table.
func New(name string, interval time.Duration) *Tracker {
	return NewWithLister(name, interval, ProcessNames, time.Now)
}

func NewWithLister(name string, interval time.Duration, list Lister, now func() time.Time) *Tracker {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Tracker{
		name:     name,
		interval: interval,
		list:     list,
		now:      now,
		logger:   log.Component("presence"),
	}
}

// OnChange registers fn to run after every scan that flips the result.
func (t *Tracker) OnChange(fn func(running bool)) {
	t.onChange = fn
}

func (t *Tracker) Name() string { return t.name }

// IsRunning rescans when the cached result is older than the interval.
// The first call always scans. A failed scan keeps the previous result and
// still waits out the interval before the next attempt.
func (t *Tracker) IsRunning() bool {
	now := t.now()
	if t.attempted && now.Sub(t.lastScan) < t.interval {
		return t.running
	}
	t.attempted = true
	t.lastScan = now

	ctx, cancel := context.WithTimeout(context.Background(), t.interval)
	defer cancel()
	names, err := t.list(ctx)
	if err != nil {
		t.logger.Warn().Err(err).Msg("process scan failed")
		return t.running
	}

	running := false
	for _, n := range names {
		if Matches(n, t.name) {
			running = true
			break
		}
	}

	first := !t.scanned
	t.scanned = true
	if running != t.running || first {
		t.running = running
		log.HostPresence(t.name, running)
		if t.onChange != nil {
			t.onChange(running)
		}
	}
	return t.running
}

// Matches compares executable names case-insensitively, ignoring any
// directory and a trailing ".exe".
func Matches(exe, want string) bool {
	return strings.EqualFold(trimExe(filepath.Base(exe)), trimExe(want))
}

func trimExe(s string) string {
	if len(s) > 4 && strings.EqualFold(s[len(s)-4:], ".exe") {
		return s[:len(s)-4]
	}
	return s
}

// ProcessNames lists running process names via gopsutil. Processes that
// exit or deny access mid-scan are skipped.
func ProcessNames(ctx context.Context) ([]string, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	names := make([]string, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		names = append(names, name)
	}
	return names, nil
}
