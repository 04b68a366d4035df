// Package adminapi exposes a read-only HTTP surface over a running
// engine.Manager: session status, per-session analytics, and an SSE stream
// of message and state-change activity for operational visibility. Grounded on
// the teacher's server.Server (server/server.go) — gorilla/mux routing,
// a logging middleware, and graceful ListenAndServe/Shutdown over a
// context — with the embedded web/ SPA dropped (the retrieval pack carries
// no web/ directory to embed, and a FIX session engine needs no browser
// frontend of its own).
package adminapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fixengine/fixengine/internal/engine"
	"github.com/fixengine/fixengine/internal/sessionmetrics"
)

// Server is the admin/metrics HTTP surface (spec.md §4.7 / SPEC_FULL.md L5).
type Server struct {
	addr       string
	manager    *engine.Manager
	metrics    *sessionmetrics.Store
	router     *mux.Router
	httpServer *http.Server
}

// New builds a Server listening on addr (e.g. ":8090"), grounded on
// server.New's constructor-builds-router shape.
func New(addr string, manager *engine.Manager, metrics *sessionmetrics.Store) *Server {
	s := &Server{
		addr:    addr,
		manager: manager,
		metrics: metrics,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	api.HandleFunc("/sessions/{id}/status", s.handleSessionStatus).Methods("GET")
	api.HandleFunc("/sessions/{id}/analytics", s.handleSessionAnalytics).Methods("GET")
	api.HandleFunc("/sessions/{id}/stream", s.handleSessionStream).Methods("GET")
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("adminapi: %s %s from %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// Run starts the HTTP server and blocks until ctx is canceled or the server
// fails, mirroring server.Server.Run's shutdown-on-context-done pattern.
func (s *Server) Run(ctx context.Context) error {
	s.router.Use(loggingMiddleware)
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.router,
	}

	go func() {
		<-ctx.Done()
		log.Info("adminapi: context done, shutting down")
		s.httpServer.Shutdown(context.Background())
	}()

	log.Infof("adminapi: listening on %s", s.addr)
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return fmt.Errorf("adminapi: %w", err)
}
