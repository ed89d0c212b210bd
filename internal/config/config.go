// Package config collects the service's environment configuration in one
// place, read once at startup.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config holds everything the service needs to run.
type Config struct {
	ListenAddr string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	Bucket         string
	ObjectPrefix   string

	FFmpegPath       string
	AudioBitrate     string
	ThumbnailOffset  float64
	ProbeTimeout     time.Duration
	ExtractTimeout   time.Duration
	ThumbnailTimeout time.Duration

	TempDir       string
	HistoryDBPath string
	EventBuffer   int
	LogLevel      slog.Level
}

// Load reads configuration from the environment, falling back to defaults
// suitable for local development.
func Load() Config {
	logLevel := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn", "warning":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	tempDir := os.Getenv("INGEST_TMP_DIR")
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return Config{
		ListenAddr: valueOrDefault(os.Getenv("LISTEN_ADDR"), "127.0.0.1:7801"),

		RedisAddr:     valueOrDefault(os.Getenv("REDIS_ADDR"), "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       parseInt(os.Getenv("REDIS_DB"), 0),

		MinioEndpoint:  valueOrDefault(os.Getenv("MINIO_ENDPOINT"), "localhost:9000"),
		MinioAccessKey: valueOrDefault(os.Getenv("MINIO_ACCESS_KEY"), "minio"),
		MinioSecretKey: valueOrDefault(os.Getenv("MINIO_SECRET_KEY"), "minio123"),
		MinioUseSSL:    strings.EqualFold(os.Getenv("MINIO_USE_SSL"), "true"),
		Bucket:         valueOrDefault(os.Getenv("MEDIA_BUCKET"), "think-media"),
		ObjectPrefix:   valueOrDefault(os.Getenv("OBJECT_PREFIX"), "video"),

		FFmpegPath:       valueOrDefault(os.Getenv("FFMPEG_PATH"), "ffmpeg"),
		AudioBitrate:     valueOrDefault(os.Getenv("AUDIO_BITRATE"), "128k"),
		ThumbnailOffset:  parseFloat(os.Getenv("THUMBNAIL_OFFSET_SECONDS"), 1),
		ProbeTimeout:     parseDuration(os.Getenv("PROBE_TIMEOUT"), 30*time.Second),
		ExtractTimeout:   parseDuration(os.Getenv("EXTRACT_TIMEOUT"), 5*time.Minute),
		ThumbnailTimeout: parseDuration(os.Getenv("THUMBNAIL_TIMEOUT"), 30*time.Second),

		TempDir:       tempDir,
		HistoryDBPath: valueOrDefault(os.Getenv("HISTORY_DB"), filepath.Join(tempDir, "thinkos-ingest.db")),
		EventBuffer:   parseInt(os.Getenv("EVENT_BUFFER"), 500),
		LogLevel:      logLevel,
	}
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
