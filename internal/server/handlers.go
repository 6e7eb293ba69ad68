package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/sorting"
	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// UnavailableMessage is the body of every aggregation failure response.
const UnavailableMessage = "Trouble fetching resources from swapi.\nPlease try again in a few moments"

// statusWriteTimeout bounds outcome recording after the response is decided.
const statusWriteTimeout = 2 * time.Second

func (s *Server) handlePeople(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	people, err := s.fetcher.FetchAll(ctx, s.config.PeopleURL)
	if err != nil {
		s.unavailable(w, r, swapi.People, err)
		return
	}

	sortBy := r.URL.Query().Get("sortBy")
	sorting.SortBy(people, sortBy)

	s.recordSuccess(ctx, swapi.People)
	s.logger.Info().
		Str("collection", swapi.People).
		Str("sort_by", sortBy).
		Bool("sorted", sorting.Supported(sortBy)).
		Int("records", len(people)).
		Str("request_id", chimw.GetReqID(ctx)).
		Msg("Collection served")

	writeJSON(w, http.StatusOK, people)
}

func (s *Server) handlePlanets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	planets, err := s.fetcher.FetchAll(ctx, s.config.PlanetsURL)
	if err != nil {
		s.unavailable(w, r, swapi.Planets, err)
		return
	}

	if err := s.resolver.Resolve(ctx, planets); err != nil {
		s.unavailable(w, r, swapi.Planets, err)
		return
	}

	s.recordSuccess(ctx, swapi.Planets)
	s.logger.Info().
		Str("collection", swapi.Planets).
		Int("records", len(planets)).
		Str("request_id", chimw.GetReqID(ctx)).
		Msg("Collection served")

	writeJSON(w, http.StatusOK, planets)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.tracker != nil {
		ctx, cancel := context.WithTimeout(r.Context(), statusWriteTimeout)
		defer cancel()

		if err := s.tracker.Ping(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Readiness check failed")
			writeText(w, http.StatusServiceUnavailable, "Status store unavailable")
			return
		}
	}
	writeText(w, http.StatusOK, "OK")
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	states, err := s.tracker.States(r.Context(), swapi.People, swapi.Planets)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Status lookup failed")
		writeText(w, http.StatusServiceUnavailable, "Status store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, states)
}

// unavailable renders the fixed 503 response. The cause is only logged.
func (s *Server) unavailable(w http.ResponseWriter, r *http.Request, collection string, cause error) {
	aggregationFailuresTotal.WithLabelValues(collection).Inc()

	s.logger.Error().
		Err(cause).
		Str("collection", collection).
		Str("request_id", chimw.GetReqID(r.Context())).
		Msg("Aggregation failed")

	if s.tracker != nil {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), statusWriteTimeout)
		defer cancel()
		if err := s.tracker.RecordFailure(ctx, collection, cause); err != nil {
			s.logger.Warn().Err(err).Str("collection", collection).Msg("Failed to record aggregation failure")
		}
	}

	writeText(w, http.StatusServiceUnavailable, UnavailableMessage)
}

func (s *Server) recordSuccess(ctx context.Context, collection string) {
	if s.tracker == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statusWriteTimeout)
	defer cancel()
	if err := s.tracker.RecordSuccess(ctx, collection); err != nil {
		s.logger.Warn().Err(err).Str("collection", collection).Msg("Failed to record aggregation success")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	if records, ok := v.([]swapi.Record); ok && records == nil {
		v = []swapi.Record{}
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, body)
}
