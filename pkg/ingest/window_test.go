package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWindow(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 10, 0, 0, time.UTC)

	w, err := NewWindow(now, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
	assert.Equal(t, now, w.End)
	assert.True(t, w.Start.Before(w.End))
}

func TestNewWindowNormalizesToUTC(t *testing.T) {
	now := time.Date(2024, 1, 1, 1, 10, 0, 0, time.FixedZone("CET", 3600))

	w, err := NewWindow(now, 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.UTC, w.Start.Location())
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), w.Start)
}

func TestNewWindowRejectsNonPositive(t *testing.T) {
	_, err := NewWindow(time.Now(), 0)
	assert.ErrorIs(t, err, ErrInvalidInterval)

	_, err = NewWindow(time.Now(), -time.Minute)
	assert.ErrorIs(t, err, ErrInvalidInterval)
}

func TestWindowAdmits(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(10 * time.Minute)}

	assert.True(t, w.Admits(start), "start is inclusive")
	assert.True(t, w.Admits(start.Add(5*time.Minute)))
	assert.False(t, w.Admits(start.Add(-time.Second)))
	assert.False(t, w.Admits(start.Add(-5*time.Minute)))
}

func TestWindowString(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	w := Window{Start: start, End: start.Add(10 * time.Minute)}
	assert.Equal(t, "[2024-01-01T00:00:00Z, 2024-01-01T00:10:00Z)", w.String())
}
