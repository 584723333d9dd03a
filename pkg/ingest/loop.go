package ingest

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/elonfeng/tubeindex/internal/metrics"
	"github.com/elonfeng/tubeindex/pkg/embedding"
	"github.com/elonfeng/tubeindex/pkg/video"
	"github.com/elonfeng/tubeindex/pkg/youtube"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

const (
	defaultFetchTimeout          = 30 * time.Second
	defaultEmbedTimeout          = 30 * time.Second
	defaultStoreFailureThreshold = 5
)

// Searcher fetches one page of search results published after a time.
type Searcher interface {
	Search(ctx context.Context, query string, publishedAfter time.Time) ([]video.RawItem, error)
}

// Store is the subset of persistence the loop writes through.
type Store interface {
	UpsertChannel(ctx context.Context, ch video.Channel) error
	UpsertVideo(ctx context.Context, rec video.Record) error
}

// Loop runs ingestion cycles. It holds no state between cycles.
type Loop struct {
	searcher Searcher
	producer embedding.Producer
	store    Store
	query    string

	pool                  *ants.Pool
	fetchTimeout          time.Duration
	embedTimeout          time.Duration
	storeFailureThreshold int
	now                   func() time.Time
	logger                zerolog.Logger
}

// Option configures a Loop.
type Option func(*Loop) error

// WithWorkers sets how many items are processed concurrently. Default is 1.
func WithWorkers(n int) Option {
	return func(l *Loop) error {
		if n < 1 {
			n = 1
		}
		if n > runtime.NumCPU()*8 {
			n = runtime.NumCPU() * 8
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return err
		}
		if l.pool != nil {
			l.pool.Release()
		}
		l.pool = pool
		return nil
	}
}

// WithFetchTimeout bounds the search call. Zero disables the bound.
func WithFetchTimeout(d time.Duration) Option {
	return func(l *Loop) error {
		l.fetchTimeout = d
		return nil
	}
}

// WithEmbedTimeout bounds each vectorize call. Zero disables the bound.
func WithEmbedTimeout(d time.Duration) Option {
	return func(l *Loop) error {
		l.embedTimeout = d
		return nil
	}
}

// WithStoreFailureThreshold sets how many consecutive store failures abort a cycle.
// Zero disables the circuit.
func WithStoreFailureThreshold(n int) Option {
	return func(l *Loop) error {
		if n < 0 {
			n = 0
		}
		l.storeFailureThreshold = n
		return nil
	}
}

// WithClock sets the clock used for ingestion timestamps.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) error {
		if now != nil {
			l.now = now
		}
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loop) error {
		l.logger = logger
		return nil
	}
}

// New creates a Loop for query.
func New(searcher Searcher, producer embedding.Producer, store Store, query string, opts ...Option) (*Loop, error) {
	if searcher == nil {
		return nil, ErrSearcherRequired
	}
	if producer == nil {
		return nil, ErrProducerRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}
	if query == "" {
		return nil, ErrQueryRequired
	}

	l := &Loop{
		searcher:              searcher,
		producer:              producer,
		store:                 store,
		query:                 query,
		fetchTimeout:          defaultFetchTimeout,
		embedTimeout:          defaultEmbedTimeout,
		storeFailureThreshold: defaultStoreFailureThreshold,
		now:                   time.Now,
		logger:                zerolog.Nop(),
	}

	for _, opt := range append([]Option{WithWorkers(1)}, opts...) {
		if err := opt(l); err != nil {
			l.Release()
			return nil, err
		}
	}
	l.logger = l.logger.With().Str("component", "ingest").Logger()

	return l, nil
}

// Query returns the configured search query.
func (l *Loop) Query() string { return l.query }

// Release stops the worker pool.
func (l *Loop) Release() {
	if l.pool != nil {
		l.pool.Release()
	}
}

// RunCycle runs one cycle for the configured query.
func (l *Loop) RunCycle(ctx context.Context, w Window) (*Report, error) {
	return l.RunCycleQuery(ctx, l.query, w)
}

// RunCycleQuery runs one cycle for query over w. The returned error is non-nil only
// when the cycle was aborted: a failed search (no writes happened), an opened store
// circuit, or ctx cancellation. Item failures are reported in Report.Failures.
func (l *Loop) RunCycleQuery(ctx context.Context, query string, w Window) (*Report, error) {
	started := time.Now()
	report := &Report{Query: query, Window: w}
	defer func() {
		report.Duration = time.Since(started)
		metrics.CycleDuration.Observe(report.Duration.Seconds())
	}()

	if query == "" {
		return report, &CycleError{Stage: KindFetch, Err: ErrQueryRequired}
	}

	log := l.logger.With().
		Str("query", query).
		Time("window_start", w.Start).
		Time("window_end", w.End).
		Logger()
	log.Info().Msg("fetching videos")

	items, err := l.fetch(ctx, query, w)
	if err != nil {
		kind := "unknown"
		var fe *youtube.FetchError
		if errors.As(err, &fe) {
			kind = string(fe.Kind)
		}
		log.Error().Err(err).Str("kind", string(KindFetch)).Str("fetch_kind", kind).Msg("search failed, cycle aborted")
		metrics.FetchErrors.WithLabelValues(kind).Inc()
		metrics.CyclesTotal.WithLabelValues(metrics.CycleFetchFailed).Inc()
		return report, &CycleError{Stage: KindFetch, Err: err}
	}
	report.Fetched = len(items)
	log.Debug().Int("items", len(items)).Msg("search returned")

	c := &cycle{
		loop:      l,
		window:    w,
		report:    report,
		log:       log,
		threshold: l.storeFailureThreshold,
	}

	var wg sync.WaitGroup
	for i := range items {
		if ctx.Err() != nil {
			break
		}
		idx, raw := i, items[i]
		task := func() {
			defer wg.Done()
			c.process(ctx, idx, raw)
		}
		wg.Add(1)
		if err := l.pool.Submit(task); err != nil {
			task()
		}
	}
	wg.Wait()

	sort.Slice(report.Failures, func(i, j int) bool {
		return report.Failures[i].Index < report.Failures[j].Index
	})

	if err := ctx.Err(); err != nil {
		log.Warn().Err(err).Msg("cycle interrupted")
		return report, err
	}

	if c.circuitOpen() {
		log.Error().
			Int("stored", report.Stored).
			Int("failed", report.Failed()).
			Msg("store unavailable, cycle aborted")
		metrics.CyclesTotal.WithLabelValues(metrics.CycleStoreFailed).Inc()
		return report, &CycleError{Stage: KindStore, Err: ErrStoreUnavailable}
	}

	log.Info().
		Int("fetched", report.Fetched).
		Int("stored", report.Stored).
		Int("dropped", report.Dropped).
		Int("failed", report.Failed()).
		Msg("cycle complete")
	metrics.CyclesTotal.WithLabelValues(metrics.CycleOK).Inc()
	return report, nil
}

func (l *Loop) fetch(ctx context.Context, query string, w Window) ([]video.RawItem, error) {
	if l.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.fetchTimeout)
		defer cancel()
	}
	items, err := l.searcher.Search(ctx, query, w.Start)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	return items, nil
}
