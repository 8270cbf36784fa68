// Package rpcdebug is a local introspection surface for a running node:
// health/status over plain HTTP, Prometheus counters, and a websocket
// stream of root-index head updates, served as a small fixed set of
// plain HTTP handlers rather than a JSON-RPC dispatch table, since this
// module has no JSON-RPC surface to speak of.
package rpcdebug

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	uctx "github.com/arcology-network/unbase/context"
	"github.com/arcology-network/unbase/log"
	"github.com/arcology-network/unbase/memo"
	"github.com/arcology-network/unbase/slab"
)

// Server serves this node's introspection endpoints. The zero value is
// not usable; construct with NewServer.
type Server struct {
	log  log.Logger
	slab *slab.Slab
	ctx  *uctx.Context

	upgrader websocket.Upgrader
	http     *http.Server
	ln       net.Listener
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithLogger overrides the default nop logger.
func WithLogger(l log.Logger) Option { return func(s *Server) { s.log = l } }

// NewServer constructs a Server over slab and ctx.
func NewServer(sl *slab.Slab, c *uctx.Context, opts ...Option) *Server {
	s := &Server{
		log:  log.NewNopLogger(),
		slab: sl,
		ctx:  c,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins serving on addr (e.g. "tcp://127.0.0.1:26701"). It does
// not block; call Stop to shut down.
func (s *Server) Start(addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
	mux.HandleFunc("/ws/heads", s.handleHeadStream)

	handler := cors.Default().Handler(mux)

	s.http = &http.Server{Addr: stripScheme(addr), Handler: handler}
	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return err
	}
	s.ln = ln
	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Error("rpcdebug: serve failed", "err", err)
		}
	}()
	return nil
}

// Addr returns the address the server is actually listening on, useful
// when Start was given a ":0" port and the OS chose one.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

type statusResult struct {
	SlabID        string `json:"slab_id"`
	KnownPeers    int    `json:"known_peers"`
	HasRootIndex  bool   `json:"has_root_index"`
	FullyMaterial bool   `json:"fully_materialized"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	_, hasRoot := s.ctx.TryRootIndexNode()
	fullyMaterial, err := s.ctx.IsFullyMaterialized(r.Context())
	if err != nil {
		s.log.Debug("rpcdebug: is_fully_materialized failed", "err", err)
	}
	res := statusResult{
		SlabID:        s.slab.ID().String(),
		KnownPeers:    len(s.slab.KnownPeers()),
		HasRootIndex:  hasRoot,
		FullyMaterial: fullyMaterial,
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// handleHeadStream upgrades to a websocket and relays every IndexNode
// head update the local slab observes, for a dashboard to watch root
// index convergence live.
func (s *Server) handleHeadStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug("rpcdebug: websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	ch := make(chan memo.Head, 16)
	s.slab.SubscribeIndex(ch)

	for head := range ch {
		if err := conn.WriteJSON(headMessage(head)); err != nil {
			return
		}
	}
}

func headMessage(h memo.Head) map[string]interface{} {
	ids := make([]string, 0, h.Len())
	for _, ref := range h.Refs() {
		ids = append(ids, ref.MemoID.String())
	}
	return map[string]interface{}{
		"memo_ids": ids,
		"at":       time.Now().UTC().Format(time.RFC3339),
	}
}

func stripScheme(addr string) string {
	if i := strings.Index(addr, "://"); i >= 0 {
		return addr[i+3:]
	}
	return addr
}
