package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/guilherme-santos/eventsync/internal/syncer"
)

const (
	HealthPath = "/healthz"
	EventsPath = "/api/events/ws"
)

type PingHandler interface {
	HandlePing(context.Context, syncer.Ping) error
}

type Server struct {
	logger *zap.Logger
	pings  PingHandler
	events http.Handler
	mux    *http.ServeMux
}

// NewServer routes webhook pings to pings and websocket subscriptions to
// events. A nil events handler leaves the subscription route unregistered.
func NewServer(logger *zap.Logger, pings PingHandler, events http.Handler) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		logger: logger,
		pings:  pings,
		events: events,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("GET "+HealthPath, s.handleHealth)
	s.mux.HandleFunc("POST "+syncer.WebhookPath, s.handleWebhook)
	if events != nil {
		s.mux.Handle("GET "+EventsPath, events)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// handleWebhook answers 200 even for unknown channels and failed pings.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	p := syncer.Ping{
		ChannelID:  r.Header.Get("X-Goog-Channel-ID"),
		ResourceID: r.Header.Get("X-Goog-Resource-ID"),
		State:      r.Header.Get("X-Goog-Resource-State"),
		Token:      r.Header.Get("X-Goog-Channel-Token"),
	}
	if err := s.pings.HandlePing(r.Context(), p); err != nil {
		s.logger.Warn("unable to handle webhook ping",
			zap.String("channel_id", p.ChannelID),
			zap.String("state", p.State),
			zap.Error(err),
		)
	}
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
