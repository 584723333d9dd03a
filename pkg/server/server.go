package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/elonfeng/tubeindex/internal/store"
	"github.com/elonfeng/tubeindex/pkg/ingest"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Ingester runs one ingestion cycle on demand. An empty query means the configured one.
type Ingester interface {
	RunOnce(ctx context.Context, query string) (*ingest.Report, error)
}

// Server provides the HTTP API.
type Server struct {
	store    store.Store
	ingester Ingester
	port     int
	logger   zerolog.Logger
}

// New creates a new HTTP server. ingester may be nil, in which case
// POST /api/v1/ingest is not served.
func New(s store.Store, ingester Ingester, port int, logger zerolog.Logger) *Server {
	if port == 0 {
		port = 8080
	}
	return &Server{
		store:    s,
		ingester: ingester,
		port:     port,
		logger:   logger.With().Str("component", "server").Logger(),
	}
}

// Handler returns the routed mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/videos", s.handleVideos)
	mux.HandleFunc("/api/v1/videos/{id}", s.handleVideo)
	mux.HandleFunc("/api/v1/channels", s.handleChannels)
	if s.ingester != nil {
		mux.HandleFunc("/api/v1/ingest", s.handleIngest)
	}
	return mux
}

// ListenAndServe starts the HTTP server and shuts it down when ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	q := r.URL.Query()
	opts := store.ListOpts{ChannelID: q.Get("channel"), Limit: 100}
	if since := q.Get("since"); since != "" {
		t, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be RFC3339"})
			return
		}
		opts.Since = t
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		opts.Limit = n
	}

	videos, err := s.store.ListVideos(r.Context(), opts)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	for i := range videos {
		videos[i].Embedding = nil
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  videos,
		"count": len(videos),
	})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	rec, err := s.store.GetVideo(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "video not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if r.URL.Query().Get("embedding") != "true" {
		rec.Embedding = nil
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": rec})
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	channels, err := s.store.ListChannels(r.Context(), 100)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data":  channels,
		"count": len(channels),
	})
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	report, err := s.ingester.RunOnce(r.Context(), r.URL.Query().Get("query"))
	if err != nil {
		s.logger.Warn().Err(err).Msg("manual ingest failed")
		writeJSON(w, ingestStatus(err), map[string]any{
			"error":  err.Error(),
			"report": report,
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"report": report})
}

func ingestStatus(err error) int {
	var ce *ingest.CycleError
	if !errors.As(err, &ce) {
		return http.StatusInternalServerError
	}
	switch {
	case errors.Is(ce.Err, ingest.ErrQueryRequired):
		return http.StatusBadRequest
	case ce.Stage == ingest.KindFetch:
		return http.StatusBadGateway
	case ce.Stage == ingest.KindStore:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
