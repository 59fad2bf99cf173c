package remote

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hypebeast/go-osc/osc"
	"github.com/rs/zerolog"

	"micoverlay/log"
	"micoverlay/metrics"
)

const maxPacket = 65535

// Listener receives OSC over UDP and queues decoded events until the main
// loop drains them.
type Listener struct {
	conn   *net.UDPConn
	logger zerolog.Logger

	mu      sync.Mutex
	pending []Event

	lastPacket atomic.Int64 // unix nanos
	received   atomic.Uint64
}

// Listen binds a UDP socket. Use port 0 for a free port.
func Listen(addr string) (*Listener, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return &Listener{
		conn:   conn,
		logger: log.Component("remote"),
	}, nil
}

func (l *Listener) Port() int {
	return l.conn.LocalAddr().(*net.UDPAddr).Port
}

func (l *Listener) Addr() string {
	return l.conn.LocalAddr().String()
}

// Run reads packets until ctx is cancelled or the listener is closed.
func (l *Listener) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { l.conn.Close() })
	defer stop()

	buf := make([]byte, maxPacket)
	for {
		n, _, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("osc read: %w", err)
		}
		l.handlePacket(buf[:n])
	}
}

func (l *Listener) handlePacket(data []byte) {
	l.lastPacket.Store(time.Now().UnixNano())
	l.received.Add(1)

	packet, err := osc.ParsePacket(string(data))
	if err != nil {
		metrics.Malformed("packet")
		l.logger.Debug().Err(err).Int("bytes", len(data)).Msg("dropping malformed packet")
		return
	}

	var events []Event
	for _, msg := range flatten(packet, nil) {
		ev, ok, err := Decode(msg)
		if !ok {
			continue
		}
		if err != nil {
			metrics.Malformed("argument")
			l.logger.Warn().Err(err).Msg("dropping message")
			continue
		}
		metrics.OSCMessage(ev.Kind.String())
		events = append(events, ev)
	}
	if len(events) == 0 {
		return
	}

	l.mu.Lock()
	l.pending = append(l.pending, events...)
	l.mu.Unlock()
}

// Drain appends all queued events to dst in arrival order and clears the queue.
func (l *Listener) Drain(dst []Event) []Event {
	l.mu.Lock()
	dst = append(dst, l.pending...)
	l.pending = l.pending[:0]
	l.mu.Unlock()
	return dst
}

// LastPacket reports when any packet last arrived, zero if never.
func (l *Listener) LastPacket() time.Time {
	ns := l.lastPacket.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Received counts datagrams, including ones dropped as malformed.
func (l *Listener) Received() uint64 {
	return l.received.Load()
}

func (l *Listener) Close() error {
	return l.conn.Close()
}
