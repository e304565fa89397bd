// Package httpapi exposes the admin CRUD surface, health and metrics
// endpoints, and the websocket upgrade route.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/blotterfeed/blotterfeed/internal/metrics"
	"github.com/blotterfeed/blotterfeed/internal/sim"
	"github.com/blotterfeed/blotterfeed/internal/store"
	"github.com/blotterfeed/blotterfeed/internal/transport"
)

// Server is the HTTP front of the service.
type Server struct {
	router  *mux.Router
	server  *http.Server
	store   *store.Store
	graph   *sim.CorrelationGraph
	hub     *transport.Hub
	metrics *metrics.Registry
}

// NewServer builds the router and the underlying http.Server.
func NewServer(listen string, st *store.Store, graph *sim.CorrelationGraph, hub *transport.Hub, m *metrics.Registry) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		store:   st,
		graph:   graph,
		hub:     hub,
		metrics: m,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/instruments", s.handleListInstruments).Methods(http.MethodGet)
	api.HandleFunc("/instruments", s.handleCreateInstrument).Methods(http.MethodPost)
	api.HandleFunc("/instruments/{id}", s.handleGetInstrument).Methods(http.MethodGet)
	api.HandleFunc("/instruments/{id}", s.handleUpdateInstrument).Methods(http.MethodPut)
	api.HandleFunc("/instruments/{id}", s.handleDeleteInstrument).Methods(http.MethodDelete)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}
	// Websocket sessions bypass the write-timeout http.Server path because
	// the connection is hijacked at upgrade.
	s.router.HandleFunc("/ws", s.hub.HandleWS)
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("http server listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests within the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler exposes the router, for tests run against httptest.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			return
		}
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
