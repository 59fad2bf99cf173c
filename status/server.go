package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// levelsInterval limits how often level-only updates are broadcast.
const levelsInterval = 100 * time.Millisecond

// Snapshot is one tick's externally visible state.
type Snapshot struct {
	State          string  `json:"state"`
	Muted          bool    `json:"muted"`
	HostRunning    bool    `json:"host_running"`
	Alpha          float64 `json:"alpha"`
	Scale          float64 `json:"scale"`
	DeviceMicLevel float64 `json:"device_mic_level"`
	VRCMicLevel    float64 `json:"vrc_mic_level"`
	MutedTimer     float64 `json:"muted_timer"`
	UnmutedTimer   float64 `json:"unmuted_timer"`
	OSCPort        int     `json:"osc_port"`
}

type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func marshalEnvelope(typ string, data any) ([]byte, error) {
	now := time.Now().UTC()
	return json.Marshal(envelope{Type: typ, Ts: &now, Data: data})
}

// Server owns the hub and the latest snapshot.
type Server struct {
	logger zerolog.Logger
	hub    *Hub

	mu         sync.Mutex
	latest     Snapshot
	lastSent   Snapshot
	sentAny    bool
	lastLevels time.Time

	upgrader websocket.Upgrader
}

func NewServer(logger zerolog.Logger) *Server {
	return &Server{
		logger: logger,
		hub:    NewHub(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Hub() *Hub { return s.hub }

// Publish records the tick's snapshot. Mute or host changes go out at once
// as "state_changed"; level drift goes out as "levels" at a limited rate.
func (s *Server) Publish(snap Snapshot) {
	s.mu.Lock()
	s.latest = snap
	changed := !s.sentAny || snap.Muted != s.lastSent.Muted || snap.HostRunning != s.lastSent.HostRunning
	now := time.Now()
	levelsDue := now.Sub(s.lastLevels) >= levelsInterval
	if changed || levelsDue {
		s.lastSent = snap
		s.sentAny = true
		s.lastLevels = now
	}
	s.mu.Unlock()

	typ := ""
	switch {
	case changed:
		typ = "state_changed"
	case levelsDue:
		typ = "levels"
	default:
		return
	}
	msg, err := marshalEnvelope(typ, snap)
	if err != nil {
		s.logger.Warn().Err(err).Str("type", typ).Msg("ws marshal failed")
		return
	}
	s.hub.BroadcastBytes(msg)
}

// Latest returns the most recently published snapshot.
func (s *Server) Latest() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.Latest())
}

// handleWS upgrades, registers the client and queues state_init.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Queue the snapshot before registering so it precedes any broadcast.
	if msg, err := marshalEnvelope("state_init", s.Latest()); err == nil {
		client.send <- msg
	}
	s.hub.register <- client

	// Pumps outlive the request; the hub and socket errors end them.
	go client.writePump()
	go client.readPump()
}

// ListenAndServe runs the hub and HTTP server on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("status listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go s.hub.Run(ctx)
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("status server listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}
