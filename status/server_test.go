package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frame struct {
	Type string   `json:"type"`
	Data Snapshot `json:"data"`
}

func startServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	s := NewServer(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	go s.hub.Run(ctx)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		ts.Close()
		cancel()
	})
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestWSInitThenStateChanged(t *testing.T) {
	s, ts := startServer(t)
	s.Publish(Snapshot{State: "MUTED", Muted: true, Alpha: 0.5})
	require.Eventually(t, func() bool { return len(s.hub.broadcast) == 0 }, 2*time.Second, 5*time.Millisecond)

	conn := dial(t, ts)
	init := readFrame(t, conn)
	assert.Equal(t, "state_init", init.Type)
	assert.True(t, init.Data.Muted)
	assert.Equal(t, 0.5, init.Data.Alpha)

	require.Eventually(t, func() bool { return s.hub.Clients() == 1 }, 2*time.Second, 5*time.Millisecond)

	s.Publish(Snapshot{State: "UNMUTED", Muted: false, Alpha: 0.4})
	f := readFrame(t, conn)
	assert.Equal(t, "state_changed", f.Type)
	assert.Equal(t, "UNMUTED", f.Data.State)
}

func TestPublishCoalescesLevels(t *testing.T) {
	s := NewServer(zerolog.Nop())

	s.Publish(Snapshot{Muted: true})
	for i := 0; i < 50; i++ {
		s.Publish(Snapshot{Muted: true, DeviceMicLevel: float64(i) / 100})
	}

	// One state_changed plus no level frames within the interval.
	assert.Len(t, s.hub.broadcast, 1)
	assert.Equal(t, 0.49, s.Latest().DeviceMicLevel)

	time.Sleep(levelsInterval)
	s.Publish(Snapshot{Muted: true, DeviceMicLevel: 0.9})
	assert.Len(t, s.hub.broadcast, 2)
}

func TestStatusAndMetricsEndpoints(t *testing.T) {
	s, ts := startServer(t)
	s.Publish(Snapshot{State: "UNMUTED", HostRunning: true, OSCPort: 9001})

	resp, err := http.Get(ts.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	var snap Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, 9001, snap.OSCPort)
	assert.True(t, snap.HostRunning)

	resp2, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp2.Body.Close()
	body, _ := io.ReadAll(resp2.Body)
	assert.Equal(t, http.StatusOK, resp2.StatusCode)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSlowClientDisconnected(t *testing.T) {
	hub := NewHub(zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	c := NewClient(hub, nil, "test", zerolog.Nop())
	hub.register <- c
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, time.Millisecond)

	for i := 0; i < defaultSendBuf+1; i++ {
		hub.BroadcastBytes([]byte("x"))
	}
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, time.Millisecond)
}
