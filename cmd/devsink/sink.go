package main

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"

	"github.com/you/groupwatch/internal/core"
)

// sink records pushes in memory, newest last.
type sink struct {
	mu     sync.Mutex
	keep   int
	pushes []core.ForwardPayload
}

func newSink(keep int) *sink {
	if keep <= 0 {
		keep = 100
	}
	return &sink{keep: keep}
}

func (s *sink) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/push", func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()
		var p core.ForwardPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			reply(w, http.StatusBadRequest, false, "bad json")
			return
		}
		if p.GroupID == "" || p.UserID == "" {
			reply(w, http.StatusBadRequest, false, "groupId and userId required")
			return
		}
		s.add(p)
		log.Printf("devsink: push group=%s user=%s username=%q message=%q at=%s",
			p.GroupID, p.UserID, p.Username, p.Message, p.SendDateTime)
		reply(w, http.StatusOK, true, "pushed")
	})

	mux.HandleFunc("GET /pushes", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(s.recent())
	})

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func reply(w http.ResponseWriter, status int, success bool, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{"success": success, "message": msg})
}

func (s *sink) add(p core.ForwardPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, p)
	if over := len(s.pushes) - s.keep; over > 0 {
		s.pushes = append(s.pushes[:0:0], s.pushes[over:]...)
	}
}

func (s *sink) recent() []core.ForwardPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.ForwardPayload{}, s.pushes...)
}
