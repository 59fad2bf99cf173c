package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
	"github.com/rs/zerolog"

	"micoverlay/log"
)

const (
	oscQueryService = "_oscjson._tcp"
	oscService      = "_osc._udp"
	mdnsDomain      = "local."

	accessReadWrite = 3
)

// Node is one entry of the OSCQuery address space.
type Node struct {
	Description string           `json:"DESCRIPTION,omitempty"`
	FullPath    string           `json:"FULL_PATH"`
	Access      int              `json:"ACCESS"`
	Type        string           `json:"TYPE,omitempty"`
	Contents    map[string]*Node `json:"CONTENTS,omitempty"`
}

// HostInfo answers "?HOST_INFO".
type HostInfo struct {
	Name         string          `json:"NAME"`
	OSCIP        string          `json:"OSC_IP"`
	OSCPort      int             `json:"OSC_PORT"`
	OSCTransport string          `json:"OSC_TRANSPORT"`
	Extensions   map[string]bool `json:"EXTENSIONS"`
}

// QueryService serves the OSCQuery description of the parameters this
// process receives and advertises it over mDNS so VRChat sends them to
// the OSC port.
type QueryService struct {
	name    string
	oscPort int
	root    *Node
	logger  zerolog.Logger

	listener net.Listener
	server   *http.Server
	mdns     []*zeroconf.Server
}

// NewQueryService describes MuteSelf and Voice for an OSC receiver on oscPort.
// The advertised name gets a random suffix so several instances can coexist.
func NewQueryService(name string, oscPort int) *QueryService {
	root := &Node{Description: "root node", FullPath: "/", Access: 0}
	addNode(root, MuteSelfAddress, "T")
	addNode(root, VoiceAddress, "f")
	return &QueryService{
		name:    fmt.Sprintf("%s-%04X", name, rand.IntN(0x10000)),
		oscPort: oscPort,
		root:    root,
		logger:  log.Component("oscquery"),
	}
}

func addNode(root *Node, path, typ string) {
	cur := root
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if cur.Contents == nil {
			cur.Contents = map[string]*Node{}
		}
		next, ok := cur.Contents[part]
		if !ok {
			next = &Node{FullPath: "/" + strings.Join(parts[:i+1], "/")}
			cur.Contents[part] = next
		}
		cur = next
	}
	cur.Type = typ
	cur.Access = accessReadWrite
}

func (q *QueryService) lookup(path string) *Node {
	if path == "" || path == "/" {
		return q.root
	}
	cur := q.root
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		next, ok := cur.Contents[part]
		if !ok {
			return nil
		}
		cur = next
	}
	return cur
}

func (q *QueryService) Name() string { return q.name }

func (q *QueryService) HostInfo() HostInfo {
	return HostInfo{
		Name:         q.name,
		OSCIP:        "127.0.0.1",
		OSCPort:      q.oscPort,
		OSCTransport: "UDP",
		Extensions: map[string]bool{
			"ACCESS":   true,
			"CLIPMODE": false,
			"RANGE":    false,
			"TYPE":     true,
			"VALUE":    false,
		},
	}
}

func (q *QueryService) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if r.URL.RawQuery == "HOST_INFO" {
			writeJSON(w, q.HostInfo())
			return
		}
		node := q.lookup(r.URL.Path)
		if node == nil {
			http.NotFound(w, r)
			return
		}
		writeJSON(w, node)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Start serves HTTP on a free loopback port and registers the mDNS records.
// A failed advertisement is logged; the HTTP service keeps running.
func (q *QueryService) Start() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return fmt.Errorf("oscquery listen: %w", err)
	}
	q.listener = ln
	q.server = &http.Server{
		Handler:           q.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := q.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			q.logger.Error().Err(err).Msg("oscquery server stopped")
		}
	}()

	httpPort := q.Port()
	for _, svc := range []struct {
		typ  string
		port int
	}{
		{oscQueryService, httpPort},
		{oscService, q.oscPort},
	} {
		s, err := zeroconf.Register(q.name, svc.typ, mdnsDomain, svc.port, []string{"txtvers=1"}, nil)
		if err != nil {
			q.logger.Warn().Err(err).Str("service", svc.typ).Msg("mdns advertisement failed")
			continue
		}
		q.mdns = append(q.mdns, s)
	}

	q.logger.Info().
		Str("name", q.name).
		Int("http_port", httpPort).
		Int("osc_port", q.oscPort).
		Int("advertised", len(q.mdns)).
		Msg("oscquery started")
	return nil
}

// Port is the HTTP port, 0 before Start.
func (q *QueryService) Port() int {
	if q.listener == nil {
		return 0
	}
	return q.listener.Addr().(*net.TCPAddr).Port
}

func (q *QueryService) Close(ctx context.Context) error {
	for _, s := range q.mdns {
		s.Shutdown()
	}
	q.mdns = nil
	if q.server == nil {
		return nil
	}
	return q.server.Shutdown(ctx)
}
