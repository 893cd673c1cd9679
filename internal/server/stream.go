package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// The browser shell may be served from a different origin than the
	// engine; access control is the host's concern.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stream pushes every output envelope to the client, as a WebSocket by
// default or as Server-Sent Events with ?sse=1 for shells without
// WebSocket support.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("sse") != "" {
		s.streamSSE(w, r)
		return
	}
	s.streamWS(w, r)
}

func (s *Server) streamWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Drain the read side so close frames end the subscription.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	s.logger.Debug("stream subscriber connected", "remote", r.RemoteAddr)
	for env := range s.manager.Subscribe(ctx) {
		if err := conn.WriteJSON(env); err != nil {
			s.logger.Debug("stream subscriber gone", "error", err)
			return
		}
	}
}

func (s *Server) streamSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	// Flush the headers so the client sees the stream open before the
	// first event arrives.
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for env := range s.manager.Subscribe(r.Context()) {
		data, err := json.Marshal(env)
		if err != nil {
			s.logger.Error("failed to marshal stream event", "error", err)
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}
}
