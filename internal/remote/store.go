// Package remote is the client side of the storage service's upload
// contract: create a video record and receive a numeric identifier, then
// attach derived payloads to that identifier.
package remote

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/redis/go-redis/v9"
)

// Metadata annotates a video record. Zero duration/dimensions mean the local
// probe could not read them; the record is created regardless.
type Metadata struct {
	Filename        string
	SizeBytes       int64
	ContentType     string
	DurationSeconds float64
	Width           int
	Height          int
}

// Store is the upload boundary consumed by the coordinator. Implementations
// must treat each call independently; there are no retries at this layer.
type Store interface {
	CreateVideoRecord(ctx context.Context, meta Metadata, video io.Reader) (int64, error)
	UploadAudio(ctx context.Context, recordID int64, localPath string) error
	UploadThumbnail(ctx context.Context, recordID int64, localPath string) error
}

const recordSeqKey = "media:video:next_id"

// MediaStore implements Store over a record registry (redis) and an object
// store (minio). Records are hashes keyed by numeric id; payloads are objects
// under <prefix>/<id>/.
type MediaStore struct {
	records *redis.Client
	objects *minio.Client
	bucket  string
	prefix  string
}

// NewMediaStore wires the two backends together.
func NewMediaStore(records *redis.Client, objects *minio.Client, bucket, prefix string) *MediaStore {
	return &MediaStore{records: records, objects: objects, bucket: bucket, prefix: prefix}
}

// EnsureBucket creates the payload bucket when it does not exist yet.
func (s *MediaStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.objects.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.objects.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.bucket, err)
	}
	return nil
}

// CreateVideoRecord allocates the next record id, stores the raw video
// payload under it, and writes the record hash. The record must exist before
// derived artifacts can reference it, which is why this runs first.
func (s *MediaStore) CreateVideoRecord(ctx context.Context, meta Metadata, video io.Reader) (int64, error) {
	id, err := s.records.Incr(ctx, recordSeqKey).Result()
	if err != nil {
		return 0, fmt.Errorf("allocate record id: %w", err)
	}

	object := s.objectName(id, "video"+strings.ToLower(path.Ext(meta.Filename)))
	if _, err := s.objects.PutObject(ctx, s.bucket, object, video, meta.SizeBytes, minio.PutObjectOptions{
		ContentType: meta.ContentType,
	}); err != nil {
		return 0, fmt.Errorf("store video payload: %w", err)
	}

	if err := s.records.HSet(ctx, recordKey(id), map[string]interface{}{
		"filename":   meta.Filename,
		"size":       meta.SizeBytes,
		"duration":   meta.DurationSeconds,
		"width":      meta.Width,
		"height":     meta.Height,
		"object":     object,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	}).Err(); err != nil {
		return 0, fmt.Errorf("write video record: %w", err)
	}
	return id, nil
}

// UploadAudio attaches the extracted audio track to an existing record.
func (s *MediaStore) UploadAudio(ctx context.Context, recordID int64, localPath string) error {
	return s.attach(ctx, recordID, localPath, "audio.m4a", "audio/mp4", "audio_object")
}

// UploadThumbnail attaches the thumbnail image to an existing record.
func (s *MediaStore) UploadThumbnail(ctx context.Context, recordID int64, localPath string) error {
	return s.attach(ctx, recordID, localPath, "thumb.jpg", "image/jpeg", "thumbnail_object")
}

func (s *MediaStore) attach(ctx context.Context, recordID int64, localPath, name, contentType, field string) error {
	object := s.objectName(recordID, name)
	if _, err := s.objects.FPutObject(ctx, s.bucket, object, localPath, minio.PutObjectOptions{
		ContentType: contentType,
	}); err != nil {
		return fmt.Errorf("store %s payload: %w", name, err)
	}
	if err := s.records.HSet(ctx, recordKey(recordID), field, object).Err(); err != nil {
		return fmt.Errorf("link %s to record %d: %w", name, recordID, err)
	}
	return nil
}

func (s *MediaStore) objectName(recordID int64, name string) string {
	if s.prefix == "" {
		return fmt.Sprintf("%d/%s", recordID, name)
	}
	return fmt.Sprintf("%s/%d/%s", s.prefix, recordID, name)
}

func recordKey(id int64) string {
	return fmt.Sprintf("media:video:%d", id)
}

// ContentTypeForVideo maps a filename extension to the payload content type.
func ContentTypeForVideo(ext string) string {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "mp4", "m4v":
		return "video/mp4"
	case "mov":
		return "video/quicktime"
	case "mkv":
		return "video/x-matroska"
	case "webm":
		return "video/webm"
	case "avi":
		return "video/x-msvideo"
	default:
		return "application/octet-stream"
	}
}
