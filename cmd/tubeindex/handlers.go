package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/elonfeng/tubeindex/internal/config"
	"github.com/elonfeng/tubeindex/internal/logging"
	"github.com/elonfeng/tubeindex/internal/scheduler"
	"github.com/elonfeng/tubeindex/internal/store"
	"github.com/elonfeng/tubeindex/pkg/embedding"
	"github.com/elonfeng/tubeindex/pkg/ingest"
	"github.com/elonfeng/tubeindex/pkg/server"
	"github.com/elonfeng/tubeindex/pkg/youtube"
	"github.com/rs/zerolog"
)

func loadConfig() (*config.Config, error) {
	path := cfgFile
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	db, err := store.Open(ctx, cfg.Database.Driver, cfg.Database.Target())
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return db, nil
}

func buildLoop(cfg *config.Config, db store.Store, logger zerolog.Logger) (*ingest.Loop, error) {
	yt := youtube.NewClient(cfg.YouTube.APIKey,
		youtube.WithEndpoint(cfg.YouTube.Endpoint),
		youtube.WithMaxResults(cfg.YouTube.MaxResults),
		youtube.WithTimeout(cfg.Ingest.ParseFetchTimeout()),
	)

	producer, err := embedding.New(embedding.Config{
		Provider:   embedding.ProviderName(cfg.Embedding.Provider),
		Model:      cfg.Embedding.Model,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		Dimensions: cfg.Embedding.Dimensions,
		RateLimit:  cfg.Embedding.RateLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("build embedding producer: %w", err)
	}
	logger.Debug().Str("provider", cfg.Embedding.Provider).Str("model", cfg.Embedding.Model).Msg("embedding producer ready")

	return ingest.New(yt, producer, db, cfg.Ingest.SearchQuery,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithFetchTimeout(cfg.Ingest.ParseFetchTimeout()),
		ingest.WithEmbedTimeout(cfg.Ingest.ParseEmbedTimeout()),
		ingest.WithStoreFailureThreshold(cfg.Ingest.StoreFailureThreshold),
		ingest.WithLogger(logger),
	)
}

func runIngest(ctx context.Context, query string, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := buildLogger(cfg)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	loop, err := buildLoop(cfg, db, logger)
	if err != nil {
		return err
	}
	defer loop.Release()

	sched := scheduler.New(loop, cfg.Ingest.PollInterval(), logger)
	report, cycleErr := sched.RunOnce(ctx, query)

	if report != nil {
		if jsonOutput {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(os.Stderr, "window %s: fetched %d, stored %d, dropped %d, failed %d\n",
				report.Window, report.Fetched, report.Stored, report.Dropped, report.Failed())
			for _, f := range report.Failures {
				fmt.Fprintf(os.Stderr, "  %s\n", f.Error())
			}
		}
	}
	return cycleErr
}

func runDaemon(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}
	logger := buildLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	loop, err := buildLoop(cfg, db, logger)
	if err != nil {
		return err
	}
	defer loop.Release()

	sched := scheduler.New(loop, cfg.Ingest.PollInterval(), logger)

	// Start scheduler in background.
	go func() {
		if err := sched.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error().Err(err).Msg("scheduler stopped")
		}
	}()

	srv := server.New(db, sched, port, logger)
	err = srv.ListenAndServe(ctx)
	logger.Info().Msg("shut down")
	return err
}

func runServe(port int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if port == 0 {
		port = cfg.Server.Port
	}
	logger := buildLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	return server.New(db, nil, port, logger).ListenAndServe(ctx)
}

func runVideos(ctx context.Context, channel string, limit int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	videos, err := db.ListVideos(ctx, store.ListOpts{ChannelID: channel, Limit: limit})
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(videos)
	}

	if len(videos) == 0 {
		fmt.Println("no videos found (try ingesting first: tubeindex ingest)")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PUBLISHED\tCHANNEL\tTITLE\tURL")
	for _, v := range videos {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			v.PublishedAt.Format(time.RFC3339), v.ChannelID, v.Title, v.URL)
	}
	return w.Flush()
}

func runChannels(ctx context.Context, limit int, jsonOutput bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	channels, err := db.ListChannels(ctx, limit)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(channels)
	}

	total, err := db.CountVideos(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHANNEL\tTITLE\tUPDATED")
	for _, c := range channels {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ChannelID, c.Title, c.UpdatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(w, "\n%d channels, %d videos\n", len(channels), total)
	return w.Flush()
}
