package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elonfeng/tubeindex/pkg/video"
)

// fakeSearcher returns items or err; searchFunc overrides both.
type fakeSearcher struct {
	items      []video.RawItem
	err        error
	searchFunc func(ctx context.Context, query string, after time.Time) ([]video.RawItem, error)

	mu    sync.Mutex
	calls []time.Time
}

func (f *fakeSearcher) Search(ctx context.Context, query string, after time.Time) ([]video.RawItem, error) {
	f.mu.Lock()
	f.calls = append(f.calls, after)
	f.mu.Unlock()

	if f.searchFunc != nil {
		return f.searchFunc(ctx, query, after)
	}
	return f.items, f.err
}

// fakeProducer derives a vector from the text length unless failOn matches.
type fakeProducer struct {
	failOn        map[string]bool
	vectorizeFunc func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeProducer) Vectorize(ctx context.Context, text string) ([]float32, error) {
	if f.vectorizeFunc != nil {
		return f.vectorizeFunc(ctx, text)
	}
	if f.failOn[text] {
		return nil, errors.New("model unavailable")
	}
	return []float32{float32(len(text)), 1}, nil
}

// memStore is an in-memory store that rejects videos whose channel is absent.
type memStore struct {
	mu       sync.Mutex
	channels map[string]video.Channel
	videos   map[string]video.Record
	writes   []string

	failVideo   map[string]bool
	failAll     bool
	failChannel map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		channels: map[string]video.Channel{},
		videos:   map[string]video.Record{},
	}
}

func (m *memStore) UpsertChannel(ctx context.Context, ch video.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll || m.failChannel[ch.ChannelID] {
		return fmt.Errorf("upsert channel %s: connection refused", ch.ChannelID)
	}
	m.channels[ch.ChannelID] = ch
	m.writes = append(m.writes, "channel:"+ch.ChannelID)
	return nil
}

func (m *memStore) UpsertVideo(ctx context.Context, rec video.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failAll || m.failVideo[rec.VideoID] {
		return fmt.Errorf("upsert video %s: disk full", rec.VideoID)
	}
	if _, ok := m.channels[rec.ChannelID]; !ok {
		return fmt.Errorf("upsert video %s: channel %s missing", rec.VideoID, rec.ChannelID)
	}
	m.videos[rec.VideoID] = rec
	m.writes = append(m.writes, "video:"+rec.VideoID)
	return nil
}

func (m *memStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writes)
}

func rawItem(id, channelID, published string) video.RawItem {
	return video.RawItem{
		VideoID:      id,
		ChannelID:    channelID,
		ChannelTitle: "channel " + channelID,
		Title:        "title " + id,
		Description:  "description " + id,
		PublishedAt:  published,
		ThumbnailURL: "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg",
	}
}
