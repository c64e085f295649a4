// Package gateway exposes the running session to external renderers over
// HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dohr-michael/lumi/internal/config"
	"github.com/dohr-michael/lumi/internal/events"
	"github.com/dohr-michael/lumi/internal/gateway/ws"
	"github.com/dohr-michael/lumi/internal/sessions"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// Server serves the renderer WebSocket and a small read-only HTTP API.
type Server struct {
	srv     *http.Server
	hub     *ws.Hub
	bus     *events.Bus
	session ws.Session
	store   sessions.Store // nil when persistence is off

	mu    sync.Mutex
	bound net.Addr
}

// NewServer wires the routes. Nothing listens before Listen.
func NewServer(bus *events.Bus, session ws.Session, store sessions.Store, cfg config.GatewayConfig) *Server {
	s := &Server{
		hub:     ws.NewHub(bus, session, cfg.AllowedOrigins),
		bus:     bus,
		session: session,
		store:   store,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(loopbackHost(cfg.Host))
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Get("/state", s.state)
		r.Get("/ws", s.hub.ServeWS)
		r.Get("/events", s.events)
		r.Get("/sessions", s.sessionList)
		r.Get("/sessions/{id}", s.sessionDetail)
	})

	s.srv = &http.Server{
		Addr:              net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// Listen binds the socket so Addr reports the real port before serving.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return nil, fmt.Errorf("gateway listen: %w", err)
	}
	s.mu.Lock()
	s.bound = ln.Addr()
	s.mu.Unlock()
	slog.Info("gateway listening", "addr", ln.Addr().String())
	return ln, nil
}

// Serve blocks serving ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	err := s.srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bound == nil {
		return s.srv.Addr
	}
	return s.bound.String()
}

// Shutdown disconnects renderers and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.srv.Shutdown(ctx)
}

// loopbackHost rejects requests whose Host header names anything but this
// machine or the configured listen host, so a rebound DNS name cannot pass
// as same-origin.
func loopbackHost(listenHost string) func(http.Handler) http.Handler {
	allowed := map[string]bool{"localhost": true, "127.0.0.1": true, "::1": true}
	if listenHost != "" {
		allowed[strings.ToLower(listenHost)] = true
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			host := r.Host
			if h, _, err := net.SplitHostPort(host); err == nil {
				host = h
			}
			if !allowed[strings.ToLower(strings.Trim(host, "[]"))] {
				writeError(w, http.StatusForbidden, "host not allowed")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("gateway write", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.Clients(),
		"dropped": s.bus.Dropped(),
	})
}

func (s *Server) state(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.session.Snapshot())
}

type eventJSON struct {
	ID        string             `json:"id"`
	SessionID string             `json:"session_id,omitempty"`
	Type      events.EventType   `json:"type"`
	Timestamp string             `json:"timestamp"`
	Source    events.EventSource `json:"source"`
	Payload   map[string]any     `json:"payload"`
}

// events lists recent bus history, oldest first. ?limit caps the count
// and ?type=a,b keeps only those event types.
func (s *Server) events(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultEventLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = min(n, maxEventLimit)
	}

	history := s.bus.History(maxEventLimit)
	if v := q.Get("type"); v != "" {
		types := strings.Split(v, ",")
		history = slices.DeleteFunc(history, func(e events.Event) bool {
			return !slices.Contains(types, string(e.Type))
		})
	}
	if len(history) > limit {
		history = history[len(history)-limit:]
	}

	out := make([]eventJSON, 0, len(history))
	for _, e := range history {
		out = append(out, eventJSON{
			ID:        e.ID,
			SessionID: e.SessionID,
			Type:      e.Type,
			Timestamp: e.Timestamp.Format(time.RFC3339Nano),
			Source:    e.Source,
			Payload:   e.Payload,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) sessionList(w http.ResponseWriter, _ *http.Request) {
	list := []*sessions.Session{}
	if s.store != nil {
		all, err := s.store.List()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		list = append(list, all...)
	}
	writeJSON(w, http.StatusOK, list)
}

type sessionJSON struct {
	Session  *sessions.Session  `json:"session"`
	Messages []sessions.Message `json:"messages"`
}

func (s *Server) sessionDetail(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "persistence disabled")
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := s.store.Get(id)
	if errors.Is(err, sessions.ErrNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	msgs, err := s.store.LoadMessages(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if msgs == nil {
		msgs = []sessions.Message{}
	}
	writeJSON(w, http.StatusOK, sessionJSON{Session: sess, Messages: msgs})
}
