package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeLister struct {
	names []string
	err   error
	calls int
}

func (f *fakeLister) list(context.Context) ([]string, error) {
	f.calls++
	return f.names, f.err
}

func newTestTracker(names ...string) (*Tracker, *fakeLister, *fakeClock) {
	l := &fakeLister{names: names}
	c := &fakeClock{t: time.Unix(1000, 0)}
	return NewWithLister("VRChat", 5*time.Second, l.list, c.now), l, c
}

func TestFirstCallScans(t *testing.T) {
	tr, l, _ := newTestTracker("explorer.exe", "VRChat.exe")
	assert.True(t, tr.IsRunning())
	assert.Equal(t, 1, l.calls)
}

func TestResultCachedWithinInterval(t *testing.T) {
	tr, l, c := newTestTracker("VRChat.exe")
	require.True(t, tr.IsRunning())

	l.names = nil
	c.advance(4 * time.Second)
	assert.True(t, tr.IsRunning(), "cached result expected")
	assert.Equal(t, 1, l.calls)

	c.advance(time.Second)
	assert.False(t, tr.IsRunning(), "rescan after interval")
	assert.Equal(t, 2, l.calls)
}

func TestScanErrorKeepsPrevious(t *testing.T) {
	tr, l, c := newTestTracker("vrchat")
	require.True(t, tr.IsRunning())

	l.err = errors.New("access denied")
	c.advance(10 * time.Second)
	assert.True(t, tr.IsRunning())
}

func TestFailedFirstScanWaitsForInterval(t *testing.T) {
	tr, l, c := newTestTracker()
	l.err = errors.New("access denied")

	for range 90 {
		assert.False(t, tr.IsRunning())
		c.advance(time.Second / 90)
	}
	assert.Equal(t, 1, l.calls, "one scan per interval even when scans fail")

	l.err = nil
	l.names = []string{"VRChat.exe"}
	c.advance(5 * time.Second)
	assert.True(t, tr.IsRunning())
	assert.Equal(t, 2, l.calls)
}

func TestOnChange(t *testing.T) {
	tr, l, c := newTestTracker()
	var seen []bool
	tr.OnChange(func(running bool) { seen = append(seen, running) })

	tr.IsRunning()
	c.advance(5 * time.Second)
	tr.IsRunning()
	l.names = []string{"VRChat.exe"}
	c.advance(5 * time.Second)
	tr.IsRunning()

	assert.Equal(t, []bool{false, true}, seen)
}

func TestMatches(t *testing.T) {
	tests := []struct {
		exe, want string
		match     bool
	}{
		{"VRChat.exe", "VRChat", true},
		{"vrchat.EXE", "VRChat", true},
		{"VRChat", "VRChat.exe", true},
		{"/opt/vrchat/VRChat", "VRChat", true},
		{"VRChatHelper.exe", "VRChat", false},
		{".exe", ".exe", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.match, Matches(tt.exe, tt.want), "%q vs %q", tt.exe, tt.want)
	}
}
