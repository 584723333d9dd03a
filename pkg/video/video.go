package video

import (
	"errors"
	"fmt"
	"time"
)

// WatchURLPrefix is prepended to a video ID to build its public URL.
const WatchURLPrefix = "https://www.youtube.com/watch?v="

// TimestampLayout is the wire format YouTube uses for publishedAt and publishedAfter.
const TimestampLayout = "2006-01-02T15:04:05Z"

var (
	// ErrMissingField is wrapped when a required candidate field is empty or absent.
	ErrMissingField = errors.New("missing required field")

	// ErrInvalidTimestamp is wrapped when publishedAt cannot be parsed.
	ErrInvalidTimestamp = errors.New("invalid timestamp")
)

// Channel is a publishing channel. ChannelID is the primary key.
type Channel struct {
	ChannelID string    `json:"channel_id" db:"channel_id"`
	Title     string    `json:"title" db:"title"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// RawItem is one search result as received, before validation.
// Err is set when the item's JSON could not be decoded at all.
type RawItem struct {
	VideoID      string
	ChannelID    string
	ChannelTitle string
	Title        string
	Description  string
	PublishedAt  string
	ThumbnailURL string
	Err          error
}

// Candidate is a validated search result that has not been persisted.
type Candidate struct {
	VideoID      string
	ChannelID    string
	ChannelTitle string
	Title        string
	Description  string
	PublishedAt  time.Time
	ThumbnailURL string
}

// Record is a persisted video with its embedding.
type Record struct {
	VideoID      string    `json:"video_id" db:"video_id"`
	ChannelID    string    `json:"channel_id" db:"channel_id"`
	Title        string    `json:"title" db:"title"`
	Description  string    `json:"description" db:"description"`
	URL          string    `json:"url" db:"url"`
	ThumbnailURL string    `json:"thumbnail_url" db:"thumbnail_url"`
	PublishedAt  time.Time `json:"published_at" db:"published_at"`
	IngestedAt   time.Time `json:"ingested_at" db:"ingested_at"`
	Embedding    []float32 `json:"embedding,omitempty" db:"-"`
}

// URL returns the watch URL for a video ID.
func URL(videoID string) string {
	return WatchURLPrefix + videoID
}

// Candidate validates the raw item. VideoID, ChannelID, Title and PublishedAt are required.
func (r RawItem) Candidate() (Candidate, error) {
	if r.Err != nil {
		return Candidate{}, fmt.Errorf("decode item: %w", r.Err)
	}

	required := []struct {
		name  string
		value string
	}{
		{"id.videoId", r.VideoID},
		{"snippet.publishedAt", r.PublishedAt},
		{"snippet.channelId", r.ChannelID},
		{"snippet.title", r.Title},
	}
	for _, f := range required {
		if f.value == "" {
			return Candidate{}, fmt.Errorf("%w: %s", ErrMissingField, f.name)
		}
	}

	published, err := time.Parse(time.RFC3339, r.PublishedAt)
	if err != nil {
		return Candidate{}, fmt.Errorf("%w: publishedAt %q: %v", ErrInvalidTimestamp, r.PublishedAt, err)
	}

	return Candidate{
		VideoID:      r.VideoID,
		ChannelID:    r.ChannelID,
		ChannelTitle: r.ChannelTitle,
		Title:        r.Title,
		Description:  r.Description,
		PublishedAt:  published.UTC(),
		ThumbnailURL: r.ThumbnailURL,
	}, nil
}

// URL returns the candidate's watch URL.
func (c Candidate) URL() string {
	return URL(c.VideoID)
}

// EmbeddingText is the text fed to the vector producer.
func (c Candidate) EmbeddingText() string {
	return c.Title + " " + c.Description
}

// Channel returns the channel the candidate was published on.
func (c Candidate) Channel() Channel {
	return Channel{ChannelID: c.ChannelID, Title: c.ChannelTitle}
}

// Record builds the persisted form of the candidate.
func (c Candidate) Record(embedding []float32, ingestedAt time.Time) Record {
	return Record{
		VideoID:      c.VideoID,
		ChannelID:    c.ChannelID,
		Title:        c.Title,
		Description:  c.Description,
		URL:          c.URL(),
		ThumbnailURL: c.ThumbnailURL,
		PublishedAt:  c.PublishedAt,
		IngestedAt:   ingestedAt.UTC(),
		Embedding:    embedding,
	}
}
