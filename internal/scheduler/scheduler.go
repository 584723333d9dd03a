package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/elonfeng/tubeindex/pkg/ingest"
	"github.com/rs/zerolog"
)

// Cycler runs one ingestion cycle over a window.
type Cycler interface {
	RunCycleQuery(ctx context.Context, query string, w ingest.Window) (*ingest.Report, error)
	Query() string
}

// Scheduler runs ingestion cycles on a fixed interval, one at a time.
// Each cycle's window is recomputed from the clock, so nothing carries over
// between cycles.
type Scheduler struct {
	cycler   Cycler
	interval time.Duration
	now      func() time.Time
	logger   zerolog.Logger

	mu sync.Mutex // serializes cycles from the ticker and manual triggers
}

// New creates a scheduler. interval is both the tick period and the window length.
func New(cycler Cycler, interval time.Duration, logger zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &Scheduler{
		cycler:   cycler,
		interval: interval,
		now:      time.Now,
		logger:   logger.With().Str("component", "scheduler").Logger(),
	}
}

// SetClock replaces the wall clock. Used by tests.
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// Interval returns the tick period.
func (s *Scheduler) Interval() time.Duration { return s.interval }

// Run starts the scheduler loop. Blocks until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start.
	s.tick(ctx)

	s.logger.Info().Dur("interval", s.interval).Msg("running")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	_, err := s.RunOnce(ctx, "")
	if err != nil && !errors.Is(err, context.Canceled) {
		// The loop logs the cause.
		s.logger.Debug().Err(err).Msg("cycle aborted")
	}
}

// RunOnce runs a single cycle now for query, or the configured query when empty.
func (s *Scheduler) RunOnce(ctx context.Context, query string) (*ingest.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if query == "" {
		query = s.cycler.Query()
	}
	w, err := ingest.NewWindow(s.now(), s.interval)
	if err != nil {
		return nil, err
	}
	return s.cycler.RunCycleQuery(ctx, query, w)
}
