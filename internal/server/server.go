// Package server exposes the aggregated SWAPI collections over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/health"
	"github.com/Sternrassler/swapi-aggregator/pkg/logging"
	"github.com/Sternrassler/swapi-aggregator/pkg/metrics"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// CollectionFetcher returns every record of the collection seeded by seedURL.
type CollectionFetcher interface {
	FetchAll(ctx context.Context, seedURL string) ([]swapi.Record, error)
}

// ReferenceResolver substitutes reference URLs in records with display values.
type ReferenceResolver interface {
	Resolve(ctx context.Context, records []swapi.Record) error
}

// StatusTracker records aggregation outcomes. Optional.
type StatusTracker interface {
	Ping(ctx context.Context) error
	RecordSuccess(ctx context.Context, collection string) error
	RecordFailure(ctx context.Context, collection string, cause error) error
	States(ctx context.Context, collections ...string) ([]*health.State, error)
}

// Config holds the server configuration.
type Config struct {
	// Port is the TCP port to listen on.
	Port int

	// PeopleURL and PlanetsURL are the seed (page 1) URLs of the collections.
	PeopleURL  string
	PlanetsURL string

	// ShutdownTimeout bounds graceful shutdown in Run.
	ShutdownTimeout time.Duration
}

// writeTimeout must outlast a full aggregation, which chains several
// upstream request timeouts.
const writeTimeout = 2 * time.Minute

// Server serves /people and /planets plus operational endpoints.
type Server struct {
	config   Config
	router   *chi.Mux
	fetcher  CollectionFetcher
	resolver ReferenceResolver
	tracker  StatusTracker
	logger   zerolog.Logger
}

// New creates a server. tracker may be nil, which disables /status and
// outcome recording.
func New(cfg Config, fetcher CollectionFetcher, resolver ReferenceResolver, tracker StatusTracker) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{
		config:   cfg,
		router:   chi.NewRouter(),
		fetcher:  fetcher,
		resolver: resolver,
		tracker:  tracker,
		logger:   logging.NewLogger("server"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.requestLog)
	r.Use(chimw.Recoverer)

	r.Get("/people", s.handlePeople)
	r.Get("/planets", s.handlePlanets)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.tracker != nil {
		r.Get("/status", s.handleStatus)
	}
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
}

// Router returns the HTTP handler for use in tests or other servers.
func (s *Server) Router() http.Handler {
	return s.router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on the configured port until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", ":"+strconv.Itoa(s.config.Port))
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Msgf("Listening on port %d", s.config.Port)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
