// Package api exposes the HTTP surface: the stateless feed endpoint, health,
// metrics and the WebSocket attach point.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"feedhub/internal/auth"
	"feedhub/internal/feed"
)

// HealthStore is the store slice the health endpoint probes.
type HealthStore interface {
	Ping(ctx context.Context) error
}

// StatsSource reports live connection counts. Satisfied by *hub.Manager.
type StatsSource interface {
	Stats() (sessions, rooms int)
}

// Deps carries everything the HTTP surface needs.
type Deps struct {
	Feeds        feed.FeedProvider
	Auth         *auth.Authenticator
	Store        HealthStore
	Hub          StatsSource
	Metrics      http.Handler
	WS           http.Handler
	DefaultLimit int
	MaxLimit     int
	Log          zerolog.Logger
}

// Server routes HTTP requests. It does not own the listener; the caller
// wraps Router in an http.Server with its own timeouts.
type Server struct {
	router       *mux.Router
	feeds        feed.FeedProvider
	authn        *auth.Authenticator
	store        HealthStore
	hub          StatsSource
	defaultLimit int
	maxLimit     int
	log          zerolog.Logger
}

// NewServer wires the routes.
func NewServer(deps Deps) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		feeds:        deps.Feeds,
		authn:        deps.Auth,
		store:        deps.Store,
		hub:          deps.Hub,
		defaultLimit: deps.DefaultLimit,
		maxLimit:     deps.MaxLimit,
		log:          deps.Log.With().Str("component", "api").Logger(),
	}

	s.router.HandleFunc("/api/feed", s.handleFeed).Methods(http.MethodGet)
	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	if deps.Metrics != nil {
		s.router.Handle("/metrics", deps.Metrics).Methods(http.MethodGet)
	}
	if deps.WS != nil {
		s.router.Handle("/ws", deps.WS)
	}
	return s
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return s.router
}
