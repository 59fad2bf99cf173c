package remote

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		msg     *osc.Message
		want    Event
		ok      bool
		wantErr error
	}{
		{"mute true", osc.NewMessage(MuteSelfAddress, true), Event{Kind: MuteEvent, Muted: true}, true, nil},
		{"mute false", osc.NewMessage(MuteSelfAddress, false), Event{Kind: MuteEvent}, true, nil},
		{"mute int", osc.NewMessage(MuteSelfAddress, int32(1)), Event{}, true, ErrArgType},
		{"mute none", osc.NewMessage(MuteSelfAddress), Event{}, true, ErrArgCount},
		{"voice f32", osc.NewMessage(VoiceAddress, float32(0.25)), Event{Kind: VoiceEvent, Level: 0.25}, true, nil},
		{"voice f64", osc.NewMessage(VoiceAddress, 0.5), Event{Kind: VoiceEvent, Level: 0.5}, true, nil},
		{"voice above one passes through", osc.NewMessage(VoiceAddress, float32(1.5)), Event{Kind: VoiceEvent, Level: 1.5}, true, nil},
		{"voice negative passes through", osc.NewMessage(VoiceAddress, float32(-0.5)), Event{Kind: VoiceEvent, Level: -0.5}, true, nil},
		{"voice string", osc.NewMessage(VoiceAddress, "loud"), Event{}, true, ErrArgType},
		{"voice two args", osc.NewMessage(VoiceAddress, float32(0.1), float32(0.2)), Event{}, true, ErrArgCount},
		{"other address", osc.NewMessage("/avatar/parameters/GestureLeft", int32(3)), Event{}, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := Decode(tt.msg)
			assert.Equal(t, tt.ok, ok)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func startListener(t *testing.T) (*Listener, *osc.Client) {
	t.Helper()
	l, err := Listen("127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("listener did not stop")
		}
	})

	return l, osc.NewClient("127.0.0.1", l.Port())
}

func drainUntil(t *testing.T, l *Listener, n int) []Event {
	t.Helper()
	var got []Event
	require.Eventually(t, func() bool {
		got = l.Drain(got)
		return len(got) >= n
	}, 2*time.Second, 5*time.Millisecond)
	return got
}

func TestListenerDeliversInOrder(t *testing.T) {
	l, client := startListener(t)

	require.NoError(t, client.Send(osc.NewMessage(MuteSelfAddress, false)))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, client.Send(osc.NewMessage(VoiceAddress, float32(0.3))))

	got := drainUntil(t, l, 2)
	require.Len(t, got, 2)
	assert.Equal(t, Event{Kind: MuteEvent, Muted: false}, got[0])
	assert.Equal(t, VoiceEvent, got[1].Kind)
	assert.InDelta(t, 0.3, got[1].Level, 1e-6)

	assert.Empty(t, l.Drain(nil), "drain clears the queue")
	assert.False(t, l.LastPacket().IsZero())
}

func TestListenerFlattensBundles(t *testing.T) {
	l, client := startListener(t)

	inner := osc.NewBundle(time.Now())
	require.NoError(t, inner.Append(osc.NewMessage(VoiceAddress, float32(0.9))))
	outer := osc.NewBundle(time.Now())
	require.NoError(t, outer.Append(osc.NewMessage(MuteSelfAddress, true)))
	require.NoError(t, outer.Append(inner))

	require.NoError(t, client.Send(outer))

	got := drainUntil(t, l, 2)
	assert.Equal(t, MuteEvent, got[0].Kind)
	assert.True(t, got[0].Muted)
	assert.Equal(t, VoiceEvent, got[1].Kind)
}

func TestListenerDropsBadInput(t *testing.T) {
	l, client := startListener(t)

	conn, err := net.Dial("udp", l.Addr())
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("garbage"))
	require.NoError(t, err)

	require.NoError(t, client.Send(osc.NewMessage(MuteSelfAddress, "yes")))
	require.NoError(t, client.Send(osc.NewMessage("/avatar/parameters/Viseme", int32(4))))
	require.NoError(t, client.Send(osc.NewMessage(MuteSelfAddress, true)))

	got := drainUntil(t, l, 1)
	require.Len(t, got, 1)
	assert.True(t, got[0].Muted)

	require.Eventually(t, func() bool { return l.Received() == 4 }, 2*time.Second, 5*time.Millisecond)
}

func TestQueryServiceRoutes(t *testing.T) {
	q := NewQueryService("VRCMicOverlay", 9123)
	assert.True(t, strings.HasPrefix(q.Name(), "VRCMicOverlay-"))

	srv := httptest.NewServer(q.Handler())
	defer srv.Close()

	get := func(path string, v any) int {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()
		if v != nil && resp.StatusCode == http.StatusOK {
			require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
		}
		return resp.StatusCode
	}

	var info HostInfo
	require.Equal(t, http.StatusOK, get("/?HOST_INFO", &info))
	assert.Equal(t, 9123, info.OSCPort)
	assert.Equal(t, "127.0.0.1", info.OSCIP)
	assert.Equal(t, "UDP", info.OSCTransport)
	assert.Equal(t, q.Name(), info.Name)

	var root Node
	require.Equal(t, http.StatusOK, get("/", &root))
	params := root.Contents["avatar"].Contents["parameters"]
	require.NotNil(t, params)
	assert.Equal(t, "T", params.Contents["MuteSelf"].Type)
	assert.Equal(t, "f", params.Contents["Voice"].Type)
	assert.Equal(t, VoiceAddress, params.Contents["Voice"].FullPath)

	var mute Node
	require.Equal(t, http.StatusOK, get(MuteSelfAddress, &mute))
	assert.Equal(t, MuteSelfAddress, mute.FullPath)
	assert.Equal(t, accessReadWrite, mute.Access)

	assert.Equal(t, http.StatusNotFound, get("/avatar/parameters/Nope", nil))
}
