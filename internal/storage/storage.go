// Package storage uploads finished artifacts to S3-compatible object
// storage and hands back time-limited retrieval URLs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"path/filepath"
	"time"

	"github.com/Yudee-19/video-downloader/internal/config"
)

// ErrDisabled is returned by New when no storage driver is configured.
var ErrDisabled = errors.New("object storage is disabled")

// ObjectStore uploads a local file and returns a signed URL for it.
type ObjectStore interface {
	// Upload stores the file at localPath under key and returns a
	// presigned GET URL.
	Upload(ctx context.Context, localPath, key string) (string, error)
	// Ping checks the bucket is reachable.
	Ping(ctx context.Context) error
}

// ObjectKey namespaces an artifact by the job that produced it.
func ObjectKey(jobID, filename string) string {
	return path.Join(jobID, filepath.Base(filename))
}

// ContentType guesses the MIME type from the file extension.
func ContentType(filename string) string {
	if ct := mime.TypeByExtension(filepath.Ext(filename)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func presignExpiry(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}

// New builds the object store selected by cfg.Driver and makes sure its
// bucket exists.
func New(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	switch cfg.Driver {
	case config.StorageS3:
		s, err := NewS3Store(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageMinio:
		s, err := NewMinioStore(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case config.StorageNone, "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
