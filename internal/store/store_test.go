package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/elonfeng/tubeindex/pkg/video"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testRecord(id, channelID string, published time.Time) video.Record {
	return video.Record{
		VideoID:      id,
		ChannelID:    channelID,
		Title:        "title " + id,
		Description:  "description " + id,
		URL:          video.URL(id),
		ThumbnailURL: "https://i.ytimg.com/vi/" + id + "/hqdefault.jpg",
		PublishedAt:  published,
		IngestedAt:   published.Add(time.Minute),
		Embedding:    []float32{0.1, 0.2, 0.3},
	}
}

func TestUpsertVideoRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	published := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)

	require.NoError(t, s.UpsertChannel(ctx, video.Channel{ChannelID: "UC1", Title: "Launch TV"}))
	require.NoError(t, s.UpsertVideo(ctx, testRecord("a", "UC1", published)))

	got, err := s.GetVideo(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "UC1", got.ChannelID)
	assert.Equal(t, "title a", got.Title)
	assert.Equal(t, video.URL("a"), got.URL)
	assert.True(t, published.Equal(got.PublishedAt), "published_at %s", got.PublishedAt)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)

	ch, err := s.GetChannel(ctx, "UC1")
	require.NoError(t, err)
	assert.Equal(t, "Launch TV", ch.Title)
}

func TestUpsertVideoOverwrites(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	published := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)

	require.NoError(t, s.UpsertChannel(ctx, video.Channel{ChannelID: "UC1", Title: "Old"}))
	require.NoError(t, s.UpsertVideo(ctx, testRecord("a", "UC1", published)))

	updated := testRecord("a", "UC1", published)
	updated.Title = "new title"
	updated.Embedding = []float32{0.9}
	require.NoError(t, s.UpsertChannel(ctx, video.Channel{ChannelID: "UC1", Title: "New"}))
	require.NoError(t, s.UpsertVideo(ctx, updated))

	n, err := s.CountVideos(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := s.GetVideo(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "new title", got.Title)
	assert.Equal(t, []float32{0.9}, got.Embedding)

	ch, err := s.GetChannel(ctx, "UC1")
	require.NoError(t, err)
	assert.Equal(t, "New", ch.Title)
}

func TestUpsertVideoRequiresChannel(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.UpsertVideo(ctx, testRecord("orphan", "UC-missing", time.Now().UTC()))
	require.Error(t, err)

	_, err = s.GetVideo(ctx, "orphan")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetNotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.GetVideo(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetChannel(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListVideos(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.UpsertChannel(ctx, video.Channel{ChannelID: "UC1", Title: "One"}))
	require.NoError(t, s.UpsertChannel(ctx, video.Channel{ChannelID: "UC2", Title: "Two"}))
	require.NoError(t, s.UpsertVideo(ctx, testRecord("v1", "UC1", base)))
	require.NoError(t, s.UpsertVideo(ctx, testRecord("v2", "UC1", base.Add(10*time.Minute))))
	require.NoError(t, s.UpsertVideo(ctx, testRecord("v3", "UC2", base.Add(20*time.Minute))))

	all, err := s.ListVideos(ctx, ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"v3", "v2", "v1"}, ids(all))
	assert.Nil(t, all[0].Embedding)

	byChannel, err := s.ListVideos(ctx, ListOpts{ChannelID: "UC1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"v2", "v1"}, ids(byChannel))

	since, err := s.ListVideos(ctx, ListOpts{Since: base.Add(5 * time.Minute)})
	require.NoError(t, err)
	assert.Equal(t, []string{"v3", "v2"}, ids(since))

	limited, err := s.ListVideos(ctx, ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"v3"}, ids(limited))

	channels, err := s.ListChannels(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, channels, 2)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "x")
	assert.Error(t, err)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TUBEINDEX_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TUBEINDEX_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	s, err := NewPostgres(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	id := "pgtest-" + time.Now().Format("150405.000000")
	published := time.Now().UTC().Truncate(time.Second)

	require.NoError(t, s.UpsertChannel(ctx, video.Channel{ChannelID: "UCpg", Title: "PG"}))
	require.NoError(t, s.UpsertVideo(ctx, testRecord(id, "UCpg", published)))
	require.NoError(t, s.UpsertVideo(ctx, testRecord(id, "UCpg", published)))

	got, err := s.GetVideo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, got.Embedding)
	assert.True(t, published.Equal(got.PublishedAt))

	err = s.UpsertVideo(ctx, testRecord(id+"-orphan", "UC-missing", published))
	assert.Error(t, err)
}

func ids(recs []video.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.VideoID
	}
	return out
}
