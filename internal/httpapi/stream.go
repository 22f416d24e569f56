package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	streamPingInterval = 20 * time.Second
	streamWriteTimeout = 5 * time.Second
)

// handleStream upgrades to a WebSocket and sends each forwarded payload as
// a JSON text frame.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	ch, ok := s.subscribe()
	if !ok {
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	defer s.unsubscribe(ch)

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		slog.Debug("httpapi: stream upgrade failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "")

	if s.opts.Metrics != nil {
		s.opts.Metrics.IncStreamClients(1)
		defer s.opts.Metrics.IncStreamClients(-1)
	}

	// Clients only listen; CloseRead handles their control frames.
	ctx := conn.CloseRead(r.Context())

	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case p, ok := <-ch:
			if !ok {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(writeCtx, conn, p)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
