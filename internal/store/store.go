package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/tubeindex/pkg/video"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrNotFound is returned by the Get methods when no row matches.
var ErrNotFound = errors.New("not found")

// ListOpts controls video listing.
type ListOpts struct {
	ChannelID string
	Since     time.Time // published_at lower bound
	Limit     int
}

// Store is the persistence interface. Both upserts are idempotent on the primary key.
type Store interface {
	UpsertChannel(ctx context.Context, ch video.Channel) error
	UpsertVideo(ctx context.Context, rec video.Record) error

	GetVideo(ctx context.Context, videoID string) (*video.Record, error)
	GetChannel(ctx context.Context, channelID string) (*video.Channel, error)
	ListVideos(ctx context.Context, opts ListOpts) ([]video.Record, error)
	ListChannels(ctx context.Context, limit int) ([]video.Channel, error)
	CountVideos(ctx context.Context) (int, error)

	Close() error
}

// Open opens the store for driver. target is a file path for sqlite and a DSN for postgres.
func Open(ctx context.Context, driver, target string) (Store, error) {
	switch driver {
	case DriverSQLite, "":
		return New(target)
	case DriverPostgres:
		return NewPostgres(ctx, target)
	}
	return nil, fmt.Errorf("unknown store driver %q", driver)
}

// SQLiteStore implements Store using SQLite. Foreign keys are enforced, so a video
// cannot be written before its channel.
type SQLiteStore struct {
	db *sqlx.DB
}

// New opens a SQLite database and runs migrations.
func New(path string) (*SQLiteStore, error) {
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_time_format=sqlite"
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertChannel(ctx context.Context, ch video.Channel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO channels (channel_id, title, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(channel_id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at
	`, ch.ChannelID, ch.Title, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert channel %s: %w", ch.ChannelID, err)
	}
	return nil
}

func (s *SQLiteStore) UpsertVideo(ctx context.Context, rec video.Record) error {
	vec := rec.Embedding
	if vec == nil {
		vec = []float32{}
	}
	embeddingJSON, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("encode embedding %s: %w", rec.VideoID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO videos (video_id, channel_id, title, description, url, thumbnail_url, published_at, ingested_at, embedding)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(video_id) DO UPDATE SET
			channel_id = excluded.channel_id,
			title = excluded.title,
			description = excluded.description,
			url = excluded.url,
			thumbnail_url = excluded.thumbnail_url,
			published_at = excluded.published_at,
			ingested_at = excluded.ingested_at,
			embedding = excluded.embedding
	`, rec.VideoID, rec.ChannelID, rec.Title, rec.Description, rec.URL, rec.ThumbnailURL,
		rec.PublishedAt.UTC(), rec.IngestedAt.UTC(), string(embeddingJSON))
	if err != nil {
		return fmt.Errorf("upsert video %s: %w", rec.VideoID, err)
	}
	return nil
}

type videoRow struct {
	video.Record
	EmbeddingJSON string `db:"embedding"`
}

func (s *SQLiteStore) GetVideo(ctx context.Context, videoID string) (*video.Record, error) {
	var row videoRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM videos WHERE video_id = ?", videoID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get video %s: %w", videoID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", videoID, err)
	}

	rec := row.Record
	if err := json.Unmarshal([]byte(row.EmbeddingJSON), &rec.Embedding); err != nil {
		return nil, fmt.Errorf("decode embedding %s: %w", videoID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) GetChannel(ctx context.Context, channelID string) (*video.Channel, error) {
	var ch video.Channel
	err := s.db.GetContext(ctx, &ch, "SELECT * FROM channels WHERE channel_id = ?", channelID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get channel %s: %w", channelID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	return &ch, nil
}

// ListVideos returns videos newest first, without embeddings.
func (s *SQLiteStore) ListVideos(ctx context.Context, opts ListOpts) ([]video.Record, error) {
	query := `SELECT video_id, channel_id, title, description, url, thumbnail_url, published_at, ingested_at
		FROM videos WHERE 1=1`
	var args []any

	if opts.ChannelID != "" {
		query += " AND channel_id = ?"
		args = append(args, opts.ChannelID)
	}
	if !opts.Since.IsZero() {
		query += " AND published_at >= ?"
		args = append(args, opts.Since.UTC())
	}

	query += " ORDER BY published_at DESC LIMIT ?"
	args = append(args, listLimit(opts.Limit))

	var videos []video.Record
	if err := s.db.SelectContext(ctx, &videos, query, args...); err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

func (s *SQLiteStore) ListChannels(ctx context.Context, limit int) ([]video.Channel, error) {
	var channels []video.Channel
	err := s.db.SelectContext(ctx, &channels,
		"SELECT * FROM channels ORDER BY updated_at DESC LIMIT ?", listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

func (s *SQLiteStore) CountVideos(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM videos"); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
