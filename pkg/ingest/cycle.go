package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/elonfeng/tubeindex/internal/metrics"
	"github.com/elonfeng/tubeindex/pkg/video"
	"github.com/rs/zerolog"
)

// cycle is the per-invocation state. It is discarded when the cycle ends.
type cycle struct {
	loop   *Loop
	window Window
	log    zerolog.Logger

	mu                  sync.Mutex
	report              *Report
	threshold           int
	consecutiveFailures int
	open                bool
}

func (c *cycle) process(ctx context.Context, idx int, raw video.RawItem) {
	if c.circuitOpen() {
		c.fail(idx, raw.VideoID, KindStore, ErrStoreUnavailable)
		return
	}

	cand, err := raw.Candidate()
	if err != nil {
		c.fail(idx, raw.VideoID, KindParse, err)
		return
	}

	if !c.window.Admits(cand.PublishedAt) {
		c.drop(idx, cand)
		return
	}

	vec, err := c.vectorize(ctx, cand)
	if err != nil {
		c.fail(idx, cand.VideoID, KindEmbedding, err)
		return
	}

	// Channel first: the video row references it.
	if err := c.loop.store.UpsertChannel(ctx, cand.Channel()); err != nil {
		c.storeFailed(idx, cand.VideoID, err)
		return
	}
	if err := c.loop.store.UpsertVideo(ctx, cand.Record(vec, c.loop.now())); err != nil {
		c.storeFailed(idx, cand.VideoID, err)
		return
	}

	c.stored(idx, cand)
}

func (c *cycle) vectorize(ctx context.Context, cand video.Candidate) ([]float32, error) {
	if c.loop.embedTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.loop.embedTimeout)
		defer cancel()
	}
	vec, err := c.loop.producer.Vectorize(ctx, cand.EmbeddingText())
	if err != nil {
		return nil, fmt.Errorf("vectorize: %w", err)
	}
	if len(vec) == 0 {
		return nil, ErrEmptyEmbedding
	}
	return vec, nil
}

func (c *cycle) circuitOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *cycle) stored(idx int, cand video.Candidate) {
	c.mu.Lock()
	c.report.Stored++
	c.consecutiveFailures = 0
	c.mu.Unlock()

	metrics.ItemsProcessed.WithLabelValues(metrics.OutcomeStored).Inc()
	c.log.Debug().
		Int("index", idx).
		Str("video_id", cand.VideoID).
		Str("channel_id", cand.ChannelID).
		Time("published_at", cand.PublishedAt).
		Msg("video stored")
}

func (c *cycle) drop(idx int, cand video.Candidate) {
	c.mu.Lock()
	c.report.Dropped++
	c.mu.Unlock()

	metrics.ItemsProcessed.WithLabelValues(metrics.OutcomeDropped).Inc()
	c.log.Debug().
		Int("index", idx).
		Str("video_id", cand.VideoID).
		Time("published_at", cand.PublishedAt).
		Msg("published before window, dropped")
}

func (c *cycle) storeFailed(idx int, videoID string, err error) {
	c.mu.Lock()
	c.consecutiveFailures++
	if c.threshold > 0 && c.consecutiveFailures >= c.threshold && !c.open {
		c.open = true
		c.log.Warn().Int("consecutive_failures", c.consecutiveFailures).Msg("store circuit opened")
	}
	c.mu.Unlock()

	c.fail(idx, videoID, KindStore, err)
}

func (c *cycle) fail(idx int, videoID string, kind ErrorKind, err error) {
	c.mu.Lock()
	c.report.Failures = append(c.report.Failures, ItemError{Index: idx, VideoID: videoID, Kind: kind, Err: err})
	c.mu.Unlock()

	metrics.ItemsProcessed.WithLabelValues(string(kind)).Inc()
	c.log.Warn().
		Err(err).
		Int("index", idx).
		Str("video_id", videoID).
		Str("kind", string(kind)).
		Msg("item skipped")
}
