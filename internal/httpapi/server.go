// Package httpapi serves the listener's read-only status surface: health,
// build info, metrics, account states, the watch set and a live stream of
// forwarded payloads.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/you/groupwatch/internal/core"
	"github.com/you/groupwatch/internal/supervisor"
	"github.com/you/groupwatch/internal/watchset"
)

type AccountLister interface {
	Statuses() []supervisor.Status
}

type WatchView interface {
	Snapshot() watchset.Snapshot
}

type Metrics interface {
	Handler() http.Handler
	ObserveRequest(route, method string, status int, dur time.Duration)
	IncRateLimited()
	IncStreamClients(delta float64)
	IncStreamDrops()
}

// Registrar adds extra routes, such as the admin endpoints.
type Registrar interface {
	Register(mux *http.ServeMux)
}

type Options struct {
	Addr      string
	RateRPS   int
	RateBurst int
	Build     BuildInfo
	Metrics   Metrics
	Admin     Registrar
}

type Server struct {
	httpServer *http.Server
	handler    http.Handler
	opts       Options
	accounts   AccountLister
	watch      WatchView
	limiter    *ipRateLimiter

	mu      sync.Mutex
	clients map[chan core.ForwardPayload]struct{}
	closed  bool
}

func New(accounts AccountLister, watch WatchView, opts Options) *Server {
	srv := &Server{
		opts:     opts,
		accounts: accounts,
		watch:    watch,
		limiter:  newIPRateLimiter(opts.RateRPS, opts.RateBurst),
		clients:  make(map[chan core.ForwardPayload]struct{}),
	}

	mux := http.NewServeMux()
	srv.route(mux, "/healthz", srv.handleHealthz)
	srv.route(mux, "/info", srv.handleInfo)
	srv.route(mux, "/accounts", srv.handleAccounts)
	srv.route(mux, "/watchset", srv.handleWatchSet)
	srv.route(mux, "/stream", srv.handleStream)
	if opts.Metrics != nil {
		srv.route(mux, "/metrics", opts.Metrics.Handler().ServeHTTP)
	}
	if opts.Admin != nil {
		adminMux := http.NewServeMux()
		opts.Admin.Register(adminMux)
		srv.route(mux, "/admin/", adminMux.ServeHTTP)
	}

	srv.handler = mux
	srv.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return srv
}

// SetAccounts installs the account lister after construction.
func (s *Server) SetAccounts(a AccountLister) {
	s.mu.Lock()
	s.accounts = a
	s.mu.Unlock()
}

// Handler exposes the routed handler for tests and embedding.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	statuses := []supervisor.Status{}
	s.mu.Lock()
	accounts := s.accounts
	s.mu.Unlock()
	if accounts != nil {
		statuses = accounts.Statuses()
	}
	writeJSON(w, http.StatusOK, map[string]any{"accounts": statuses})
}

func (s *Server) handleWatchSet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := map[string]any{"size": 0, "loaded": false}
	if s.watch != nil {
		snap := s.watch.Snapshot()
		resp["size"] = snap.Size
		resp["loaded"] = !snap.LoadedAt.IsZero()
		if !snap.LoadedAt.IsZero() {
			resp["loaded_at"] = snap.LoadedAt.UTC().Format(time.RFC3339)
			resp["age_secs"] = int(time.Since(snap.LoadedAt).Seconds())
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// Broadcast fans a forwarded payload out to stream clients. Slow clients
// miss payloads rather than block the caller.
func (s *Server) Broadcast(p core.ForwardPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.clients {
		select {
		case ch <- p:
		default:
			if s.opts.Metrics != nil {
				s.opts.Metrics.IncStreamDrops()
			}
		}
	}
}

func (s *Server) subscribe() (chan core.ForwardPayload, bool) {
	ch := make(chan core.ForwardPayload, 64)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false
	}
	s.clients[ch] = struct{}{}
	return ch, true
}

func (s *Server) unsubscribe(ch chan core.ForwardPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[ch]; ok {
		delete(s.clients, ch)
	}
}

func (s *Server) Start() error {
	log.Printf("httpapi: listening on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for ch := range s.clients {
		close(ch)
		delete(s.clients, ch)
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
