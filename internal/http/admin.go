package httpadmin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/you/groupwatch/internal/core"
	"github.com/you/groupwatch/internal/store"
)

const maxBody = 64 << 10

type Refresher interface {
	Refresh(ctx context.Context) (int, error)
}

type Store interface {
	ListGroups(ctx context.Context) ([]core.GroupConfig, error)
	UpsertGroup(ctx context.Context, g core.GroupConfig) error
	UpsertProfile(ctx context.Context, p core.Profile) error
}

type Server struct {
	refresher Refresher
	store     Store
}

func New(refresher Refresher, st Store) *Server {
	return &Server{refresher: refresher, store: st}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/admin/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/admin/watchset/refresh", s.handleRefresh)
	mux.HandleFunc("/admin/groups", s.handleGroups)
	mux.HandleFunc("/admin/profiles", s.handleProfiles)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	size, err := s.refresher.Refresh(r.Context())
	if err != nil {
		http.Error(w, "refresh failed: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "size": size})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		groups, err := s.store.ListGroups(r.Context())
		if err != nil {
			http.Error(w, "list failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if groups == nil {
			groups = []core.GroupConfig{}
		}
		writeJSON(w, map[string]any{"groups": groups})
	case http.MethodPost:
		var g core.GroupConfig
		if !decode(w, r, &g) {
			return
		}
		g.GroupID = strings.TrimSpace(g.GroupID)
		if g.GroupID == "" {
			http.Error(w, "groupId is required", http.StatusBadRequest)
			return
		}
		if !s.write(w, s.store.UpsertGroup(r.Context(), g)) {
			return
		}
		// Apply watch changes now instead of on the next tick.
		size, err := s.refresher.Refresh(r.Context())
		if err != nil {
			http.Error(w, "saved but refresh failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, map[string]any{"status": "ok", "group": g, "size": size})
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProfiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var p core.Profile
	if !decode(w, r, &p) {
		return
	}
	p.UserID = strings.TrimSpace(p.UserID)
	if p.UserID == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	if !s.write(w, s.store.UpsertProfile(r.Context(), p)) {
		return
	}
	writeJSON(w, map[string]any{"status": "ok", "profile": p})
}

func (s *Server) write(w http.ResponseWriter, err error) bool {
	switch {
	case err == nil:
		return true
	case errors.Is(err, store.ErrReadOnly):
		http.Error(w, "store is read-only", http.StatusNotImplemented)
	default:
		http.Error(w, "save failed: "+err.Error(), http.StatusInternalServerError)
	}
	return false
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(v)
}
