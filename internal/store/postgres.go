package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elonfeng/tubeindex/pkg/video"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// PostgresStore implements Store on PostgreSQL with the pgvector extension.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgres runs migrations over a single connection, then opens a pool with the
// vector type registered on every connection.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if _, err := conn.Exec(ctx, pgSchema); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	conn.Close(ctx)

	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &PostgresStore{pool: pool}, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) UpsertChannel(ctx context.Context, ch video.Channel) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO channels (channel_id, title, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (channel_id) DO UPDATE SET
			title = EXCLUDED.title,
			updated_at = EXCLUDED.updated_at
	`, ch.ChannelID, ch.Title, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert channel %s: %w", ch.ChannelID, err)
	}
	return nil
}

func (s *PostgresStore) UpsertVideo(ctx context.Context, rec video.Record) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO videos (video_id, channel_id, title, description, url, thumbnail_url, published_at, ingested_at, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (video_id) DO UPDATE SET
			channel_id = EXCLUDED.channel_id,
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			url = EXCLUDED.url,
			thumbnail_url = EXCLUDED.thumbnail_url,
			published_at = EXCLUDED.published_at,
			ingested_at = EXCLUDED.ingested_at,
			embedding = EXCLUDED.embedding
	`, rec.VideoID, rec.ChannelID, rec.Title, rec.Description, rec.URL, rec.ThumbnailURL,
		rec.PublishedAt.UTC(), rec.IngestedAt.UTC(), pgvector.NewVector(rec.Embedding))
	if err != nil {
		return fmt.Errorf("upsert video %s: %w", rec.VideoID, err)
	}
	return nil
}

const pgVideoColumns = `video_id, channel_id, title, description, url, thumbnail_url, published_at, ingested_at`

func (s *PostgresStore) GetVideo(ctx context.Context, videoID string) (*video.Record, error) {
	var (
		rec video.Record
		vec pgvector.Vector
	)
	err := s.pool.QueryRow(ctx, "SELECT "+pgVideoColumns+", embedding FROM videos WHERE video_id = $1", videoID).
		Scan(&rec.VideoID, &rec.ChannelID, &rec.Title, &rec.Description, &rec.URL, &rec.ThumbnailURL,
			&rec.PublishedAt, &rec.IngestedAt, &vec)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get video %s: %w", videoID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get video %s: %w", videoID, err)
	}
	rec.Embedding = vec.Slice()
	return &rec, nil
}

func (s *PostgresStore) GetChannel(ctx context.Context, channelID string) (*video.Channel, error) {
	var ch video.Channel
	err := s.pool.QueryRow(ctx, "SELECT channel_id, title, updated_at FROM channels WHERE channel_id = $1", channelID).
		Scan(&ch.ChannelID, &ch.Title, &ch.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get channel %s: %w", channelID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get channel %s: %w", channelID, err)
	}
	return &ch, nil
}

func (s *PostgresStore) ListVideos(ctx context.Context, opts ListOpts) ([]video.Record, error) {
	query := "SELECT " + pgVideoColumns + " FROM videos WHERE 1=1"
	var args []any

	if opts.ChannelID != "" {
		args = append(args, opts.ChannelID)
		query += fmt.Sprintf(" AND channel_id = $%d", len(args))
	}
	if !opts.Since.IsZero() {
		args = append(args, opts.Since.UTC())
		query += fmt.Sprintf(" AND published_at >= $%d", len(args))
	}
	args = append(args, listLimit(opts.Limit))
	query += fmt.Sprintf(" ORDER BY published_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	videos, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (video.Record, error) {
		var rec video.Record
		err := row.Scan(&rec.VideoID, &rec.ChannelID, &rec.Title, &rec.Description, &rec.URL,
			&rec.ThumbnailURL, &rec.PublishedAt, &rec.IngestedAt)
		return rec, err
	})
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

func (s *PostgresStore) ListChannels(ctx context.Context, limit int) ([]video.Channel, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT channel_id, title, updated_at FROM channels ORDER BY updated_at DESC LIMIT $1", listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	channels, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (video.Channel, error) {
		var ch video.Channel
		err := row.Scan(&ch.ChannelID, &ch.Title, &ch.UpdatedAt)
		return ch, err
	})
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	return channels, nil
}

func (s *PostgresStore) CountVideos(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM videos").Scan(&n); err != nil {
		return 0, fmt.Errorf("count videos: %w", err)
	}
	return n, nil
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)
