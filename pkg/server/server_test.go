package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/elonfeng/tubeindex/internal/store"
	"github.com/elonfeng/tubeindex/pkg/ingest"
	"github.com/elonfeng/tubeindex/pkg/video"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIngester struct {
	gotQuery string
	report   *ingest.Report
	err      error
}

func (f *fakeIngester) RunOnce(_ context.Context, query string) (*ingest.Report, error) {
	f.gotQuery = query
	return f.report, f.err
}

func seededStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "server.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.UpsertChannel(ctx, video.Channel{ChannelID: "UC1", Title: "Launch TV", UpdatedAt: base}))
	require.NoError(t, s.UpsertChannel(ctx, video.Channel{ChannelID: "UC2", Title: "Pad Cam", UpdatedAt: base}))
	for i, v := range []struct{ id, ch string }{{"a", "UC1"}, {"b", "UC1"}, {"c", "UC2"}} {
		published := base.Add(time.Duration(i) * time.Hour)
		require.NoError(t, s.UpsertVideo(ctx, video.Record{
			VideoID:     v.id,
			ChannelID:   v.ch,
			Title:       "video " + v.id,
			URL:         video.URL(v.id),
			PublishedAt: published,
			IngestedAt:  published,
			Embedding:   []float32{1, 0},
		}))
	}
	return s
}

func do(t *testing.T, h http.Handler, method, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return rec, body
}

func TestHealth(t *testing.T) {
	h := New(seededStore(t), nil, 0, zerolog.Nop()).Handler()
	rec, body := do(t, h, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestMetrics(t *testing.T) {
	h := New(seededStore(t), nil, 0, zerolog.Nop()).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestListVideos(t *testing.T) {
	h := New(seededStore(t), nil, 0, zerolog.Nop()).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/v1/videos")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 3, body["count"])
	assert.NotContains(t, rec.Body.String(), `"embedding"`)

	_, body = do(t, h, http.MethodGet, "/api/v1/videos?channel=UC1")
	assert.EqualValues(t, 2, body["count"])

	_, body = do(t, h, http.MethodGet, "/api/v1/videos?since=2024-01-01T01:00:00Z")
	assert.EqualValues(t, 2, body["count"])

	_, body = do(t, h, http.MethodGet, "/api/v1/videos?limit=1")
	assert.EqualValues(t, 1, body["count"])
}

func TestListVideosBadParams(t *testing.T) {
	h := New(seededStore(t), nil, 0, zerolog.Nop()).Handler()
	for _, target := range []string{
		"/api/v1/videos?since=yesterday",
		"/api/v1/videos?limit=0",
		"/api/v1/videos?limit=many",
	} {
		rec, _ := do(t, h, http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestGetVideo(t *testing.T) {
	h := New(seededStore(t), nil, 0, zerolog.Nop()).Handler()

	rec, body := do(t, h, http.MethodGet, "/api/v1/videos/b")
	require.Equal(t, http.StatusOK, rec.Code)
	data := body["data"].(map[string]any)
	assert.Equal(t, "video b", data["title"])
	assert.Equal(t, "https://www.youtube.com/watch?v=b", data["url"])
	assert.NotContains(t, data, "embedding")

	_, body = do(t, h, http.MethodGet, "/api/v1/videos/b?embedding=true")
	assert.Len(t, body["data"].(map[string]any)["embedding"], 2)

	rec, _ = do(t, h, http.MethodGet, "/api/v1/videos/missing")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListChannels(t *testing.T) {
	h := New(seededStore(t), nil, 0, zerolog.Nop()).Handler()
	rec, body := do(t, h, http.MethodGet, "/api/v1/channels")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, body["count"])
}

func TestMethodNotAllowed(t *testing.T) {
	h := New(seededStore(t), &fakeIngester{}, 0, zerolog.Nop()).Handler()
	rec, _ := do(t, h, http.MethodPost, "/api/v1/videos")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	rec, _ = do(t, h, http.MethodGet, "/api/v1/ingest")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestIngest(t *testing.T) {
	ing := &fakeIngester{report: &ingest.Report{Query: "starship", Fetched: 2, Stored: 2}}
	h := New(seededStore(t), ing, 0, zerolog.Nop()).Handler()

	rec, body := do(t, h, http.MethodPost, "/api/v1/ingest?query=starship")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "starship", ing.gotQuery)
	report := body["report"].(map[string]any)
	assert.EqualValues(t, 2, report["stored"])
}

func TestIngestErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"fetch", &ingest.CycleError{Stage: ingest.KindFetch, Err: errors.New("quota")}, http.StatusBadGateway},
		{"store", &ingest.CycleError{Stage: ingest.KindStore, Err: ingest.ErrStoreUnavailable}, http.StatusServiceUnavailable},
		{"no query", &ingest.CycleError{Stage: ingest.KindFetch, Err: ingest.ErrQueryRequired}, http.StatusBadRequest},
		{"canceled", context.Canceled, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ing := &fakeIngester{report: &ingest.Report{}, err: tt.err}
			h := New(seededStore(t), ing, 0, zerolog.Nop()).Handler()
			rec, body := do(t, h, http.MethodPost, "/api/v1/ingest")
			assert.Equal(t, tt.want, rec.Code)
			assert.True(t, strings.Contains(body["error"].(string), tt.err.Error()))
		})
	}
}

func TestIngestRouteDisabled(t *testing.T) {
	h := New(seededStore(t), nil, 0, zerolog.Nop()).Handler()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/ingest", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
