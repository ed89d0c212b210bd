// ingestd is the local video ingestion service: it validates user-supplied
// video paths, derives audio and thumbnail artifacts with the external media
// binary, and pushes everything to remote storage.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/redis/go-redis/v9"

	"github.com/ThinkFoundation/thinkos-ingest/internal/api"
	"github.com/ThinkFoundation/thinkos-ingest/internal/config"
	"github.com/ThinkFoundation/thinkos-ingest/internal/events"
	"github.com/ThinkFoundation/thinkos-ingest/internal/history"
	"github.com/ThinkFoundation/thinkos-ingest/internal/pipeline"
	"github.com/ThinkFoundation/thinkos-ingest/internal/remote"
	"github.com/ThinkFoundation/thinkos-ingest/internal/upload"
)

func main() {
	cfg := config.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		logger.Warn("media binary not found; every attempt will fail until it is installed",
			"path", cfg.FFmpegPath)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}

	mc, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		logger.Error("object store client", "endpoint", cfg.MinioEndpoint, "error", err)
		os.Exit(1)
	}

	store := remote.NewMediaStore(rdb, mc, cfg.Bucket, cfg.ObjectPrefix)
	if err := store.EnsureBucket(ctx); err != nil {
		logger.Error("ensure bucket", "bucket", cfg.Bucket, "error", err)
		os.Exit(1)
	}

	journal, err := history.Open(cfg.HistoryDBPath)
	if err != nil {
		logger.Error("open history journal", "path", cfg.HistoryDBPath, "error", err)
		os.Exit(1)
	}
	defer journal.Close()

	bus := events.NewBus(cfg.EventBuffer)
	pipe := pipeline.New(logger, pipeline.Options{
		BinaryPath:             cfg.FFmpegPath,
		AudioBitrate:           cfg.AudioBitrate,
		ThumbnailOffsetSeconds: cfg.ThumbnailOffset,
		ProbeTimeout:           cfg.ProbeTimeout,
		ExtractTimeout:         cfg.ExtractTimeout,
		ThumbnailTimeout:       cfg.ThumbnailTimeout,
	})
	coordinator := upload.New(logger, store, pipe, bus, upload.Options{TempDir: cfg.TempDir})

	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.NewServer(logger, coordinator, bus, journal),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	}()

	logger.Info("ingestd listening",
		"addr", cfg.ListenAddr, "bucket", cfg.Bucket, "temp_dir", cfg.TempDir)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
