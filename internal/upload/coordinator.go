// Package upload drives one video ingestion attempt end to end: validate,
// stage to a temp file, create the remote record, run the media pipeline,
// upload derived artifacts, and clean up.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/ThinkFoundation/thinkos-ingest/internal/events"
	"github.com/ThinkFoundation/thinkos-ingest/internal/ffmpeg"
	"github.com/ThinkFoundation/thinkos-ingest/internal/mediainfo"
	"github.com/ThinkFoundation/thinkos-ingest/internal/pathcheck"
	"github.com/ThinkFoundation/thinkos-ingest/internal/pipeline"
	"github.com/ThinkFoundation/thinkos-ingest/internal/remote"
)

// Status is the coordinator's externally visible state for one attempt.
type Status string

const (
	StatusIdle               Status = "idle"
	StatusGettingMetadata    Status = "getting_metadata"
	StatusUploadingVideo     Status = "uploading_video"
	StatusProcessingVideo    Status = "processing_video"
	StatusUploadingAudio     Status = "uploading_audio"
	StatusUploadingThumbnail Status = "uploading_thumbnail"
	StatusDone               Status = "done"
	StatusError              Status = "error"
)

// Result is the single terminal value of one attempt: success with a record
// id, or failure with a reason. Never both, never neither.
type Result struct {
	RecordID     int64  `json:"recordId,omitempty"`
	Success      bool   `json:"success"`
	ErrorMessage string `json:"error,omitempty"`
}

// The pipeline's processing stages occupy the 30-70% band of the overall
// attempt; validation, staging, the record upload, and the artifact uploads
// share the rest.
const (
	pctMetadata      = 5
	pctStaging       = 10
	pctRecordCreated = 30
	pctPipelineBand  = 40
	pctAudioUpload   = 75
	pctThumbUpload   = 90
)

const maxErrorLen = 1024

// Video formats accepted for ingestion, keyed by lowercase extension.
var supportedExts = map[string]bool{
	".mp4":  true,
	".m4v":  true,
	".mov":  true,
	".webm": true,
	".mkv":  true,
	".avi":  true,
}

// VideoPipeline is what the coordinator needs from the media pipeline.
// *pipeline.Pipeline satisfies it.
type VideoPipeline interface {
	Run(ctx context.Context, inputPath string, onProgress func(pipeline.Event)) (pipeline.Result, error)
}

// Options tunes a coordinator. Zero values fall back to the platform temp
// dir and the standard allowed-directory set.
type Options struct {
	TempDir     string
	AllowedDirs func() []string
}

// Coordinator is safe for concurrent attempts over different files; all
// mutable state is scoped to one Upload call.
type Coordinator struct {
	store    remote.Store
	pipeline VideoPipeline
	bus      *events.Bus
	logger   *slog.Logger
	opts     Options
}

// New constructs a coordinator.
func New(logger *slog.Logger, store remote.Store, pipe VideoPipeline, bus *events.Bus, opts Options) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.AllowedDirs == nil {
		opts.AllowedDirs = pathcheck.AllowedDirectories
	}
	return &Coordinator{store: store, pipeline: pipe, bus: bus, logger: logger, opts: opts}
}

// Upload runs one attempt for the file at sourcePath and returns its
// terminal result. uploadID tags the attempt's progress events.
func (c *Coordinator) Upload(ctx context.Context, uploadID, sourcePath string) Result {
	recordID, err := c.run(ctx, uploadID, sourcePath)
	if err != nil {
		msg := truncate(err.Error(), maxErrorLen)
		c.logger.Error("upload attempt failed",
			"upload_id", uploadID, "source", sourcePath, "error", msg)
		c.publish(uploadID, StatusError, "", 0, msg)
		return Result{RecordID: recordID, ErrorMessage: msg}
	}

	c.logger.Info("upload attempt completed", "upload_id", uploadID, "record_id", recordID)
	c.publish(uploadID, StatusDone, "", 100, "")
	return Result{RecordID: recordID, Success: true}
}

func (c *Coordinator) run(ctx context.Context, uploadID, sourcePath string) (int64, error) {
	ext := strings.ToLower(filepath.Ext(sourcePath))
	if !supportedExts[ext] {
		return 0, fmt.Errorf("unsupported video type %q", ext)
	}

	// Gate on the source path before any I/O; an unsafe path must not even
	// be read, let alone staged or handed to a subprocess.
	if res := pathcheck.Validate(sourcePath, c.opts.AllowedDirs()); !res.Valid {
		return 0, fmt.Errorf("path validation failed: %s", res.Reason)
	}

	c.publish(uploadID, StatusGettingMetadata, "", pctMetadata, "")
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return 0, fmt.Errorf("read video file: %w", err)
	}
	info := mediainfo.Probe(data)

	tempPath := filepath.Join(c.opts.TempDir,
		fmt.Sprintf("think-upload-%s%s", uuid.New(), ext))
	if err := os.WriteFile(tempPath, data, 0o600); err != nil {
		return 0, fmt.Errorf("stage video to temp file: %w", err)
	}
	// The temp file and anything derived from it must not outlive this
	// attempt, whichever way it ends.
	defer c.removeArtifacts(uploadID,
		tempPath, ffmpeg.AudioOutputPath(tempPath), ffmpeg.ThumbnailOutputPath(tempPath))

	c.publish(uploadID, StatusUploadingVideo, "", pctStaging, "")
	recordID, err := c.store.CreateVideoRecord(ctx, remote.Metadata{
		Filename:        filepath.Base(sourcePath),
		SizeBytes:       int64(len(data)),
		ContentType:     remote.ContentTypeForVideo(ext),
		DurationSeconds: info.DurationSeconds,
		Width:           info.Width,
		Height:          info.Height,
	}, bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("create video record: %w", err)
	}
	c.publish(uploadID, StatusUploadingVideo, "", pctRecordCreated, "")

	// Every subprocess invocation is gated by validation, the staged copy
	// included. The staging directory is trusted by construction, so it is
	// part of the allowed set here even when configured off the standard
	// locations.
	stagedDirs := append(c.opts.AllowedDirs(), c.opts.TempDir)
	if res := pathcheck.Validate(tempPath, stagedDirs); !res.Valid {
		return recordID, fmt.Errorf("staged file validation failed: %s", res.Reason)
	}

	pipeRes, err := c.pipeline.Run(ctx, tempPath, func(e pipeline.Event) {
		c.publish(uploadID, StatusProcessingVideo, string(e.Stage),
			pctRecordCreated+e.Percent*pctPipelineBand/100, "")
	})
	if err != nil {
		return recordID, fmt.Errorf("process video: %w", err)
	}

	c.publish(uploadID, StatusUploadingAudio, "", pctAudioUpload, "")
	if err := c.store.UploadAudio(ctx, recordID, pipeRes.AudioPath); err != nil {
		return recordID, fmt.Errorf("upload audio: %w", err)
	}

	if pipeRes.ThumbnailPath != "" {
		c.publish(uploadID, StatusUploadingThumbnail, "", pctThumbUpload, "")
		if err := c.store.UploadThumbnail(ctx, recordID, pipeRes.ThumbnailPath); err != nil {
			// Thumbnails degrade presentation only; the attempt goes on.
			c.logger.Warn("thumbnail upload failed",
				"upload_id", uploadID, "record_id", recordID, "error", err)
		}
	}

	return recordID, nil
}

// removeArtifacts deletes the attempt's temp file and derived outputs.
// Missing files are fine; anything else is logged, never surfaced.
func (c *Coordinator) removeArtifacts(uploadID string, paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("temp artifact cleanup failed",
				"upload_id", uploadID, "path", p, "error", err)
		}
	}
}

func (c *Coordinator) publish(uploadID string, status Status, stage string, percent int, message string) {
	if c.bus == nil {
		return
	}
	c.bus.Publish(events.Event{
		UploadID: uploadID,
		Status:   string(status),
		Stage:    stage,
		Percent:  percent,
		Message:  message,
	})
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
