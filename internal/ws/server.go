// Package ws is the push transport: the client registry, the output frame
// protocol and the HTTP server exposing /taurus, the JSON API and metrics.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/lupus-manager/lupus/internal/bridge"
	"github.com/lupus-manager/lupus/internal/logging"
	"github.com/lupus-manager/lupus/internal/metrics"
	"github.com/lupus-manager/lupus/internal/session"
)

// Status is the body of /api/status.
type Status struct {
	Sessions  int     `json:"sessions"`
	Scheduled int     `json:"scheduled"`
	Clients   int     `json:"clients"`
	Tick      uint64  `json:"tick"`
	Uptime    float64 `json:"uptime"`
}

// StatusFunc reports live scheduler values for /api/status.
type StatusFunc func() Status

// ProcessStatter reports the process behind a session.
type ProcessStatter interface {
	Status(ctx context.Context, name string) (*bridge.ProcessStats, error)
}

type sessionView struct {
	*session.SessionState
	Process *bridge.ProcessStats `json:"process,omitempty"`
}

type Server struct {
	registry *Registry
	store    *session.Store
	status   StatusFunc
	procs    ProcessStatter
	upgrader websocket.Upgrader
	log      *logrus.Entry
}

func NewServer(registry *Registry, store *session.Store, status StatusFunc) *Server {
	return &Server{
		registry: registry,
		store:    store,
		status:   status,
		upgrader: websocket.Upgrader{
			// Push clients are served from arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: logging.NewLogger("ws"),
	}
}

// SetProcessStatter enables per-session process stats on /api/sessions.
// Must be called before SetupRoutes.
func (s *Server) SetProcessStatter(p ProcessStatter) {
	s.procs = p
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/taurus", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/sessions", s.handleSessions)
	mux.Handle("/metrics", metrics.Handler())
}

// Handler returns the full route set wrapped with security headers.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(mux)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	id := uuid.NewString()
	c := newClient(id, conn, func() { s.registry.Unregister(id) })
	s.registry.Register(id, c)
	s.log.WithFields(logrus.Fields{"client": id, "remote": r.RemoteAddr}).Info("WebSocket client connected")

	go func() {
		defer func() {
			s.registry.Unregister(id)
			c.Close()
			s.log.WithField("client", id).Info("WebSocket client disconnected")
		}()
		// Inbound frames carry no commands.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := Status{Clients: s.registry.Count()}
	if s.status != nil {
		st = s.status()
		st.Clients = s.registry.Count()
	}
	writeJSON(w, st)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	states := s.store.GetAll()
	views := make([]sessionView, 0, len(states))
	for _, st := range states {
		v := sessionView{SessionState: st}
		if s.procs != nil && st.Status == session.Active {
			if ps, err := s.procs.Status(r.Context(), st.Name); err == nil {
				v.Process = ps
			} else {
				s.log.WithError(err).WithField("session", st.Name).Debug("Process stats unavailable")
			}
		}
		views = append(views, v)
	}
	writeJSON(w, views)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'self'")
		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves handler on addr until ctx is cancelled, then shuts
// down gracefully.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.NewLogger("ws").WithField("addr", addr).Info("Server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
