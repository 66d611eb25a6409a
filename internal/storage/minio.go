package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/Yudee-19/video-downloader/internal/config"
	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
)

// MinioStore implements ObjectStore using minio-go.
type MinioStore struct {
	client *minio.Client
	bucket string
	region string
	expiry time.Duration
}

// NewMinioStore creates a MinioStore.
func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}

	// minio-go expects host:port
	endpoint := cfg.Endpoint
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		expiry: presignExpiry(cfg.PresignExpiry),
	}, nil
}

// Upload puts the file and returns a presigned GET URL.
func (m *MinioStore) Upload(ctx context.Context, localPath, key string) (string, error) {
	_, err := m.client.FPutObject(ctx, m.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: ContentType(localPath),
	})
	if err != nil {
		return "", apperrors.UploadError(fmt.Sprintf("failed to upload %s", key)).WithCause(err)
	}

	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, m.expiry, nil)
	if err != nil {
		return "", apperrors.UploadError(fmt.Sprintf("failed to presign %s", key)).WithCause(err)
	}
	return u.String(), nil
}

// Ping checks if the storage is accessible by verifying bucket exists.
func (m *MinioStore) Ping(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}

// EnsureBucket creates the bucket if it doesn't exist.
func (m *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", m.bucket, err)
		}
	}

	return nil
}

// Bucket returns the bucket name.
func (m *MinioStore) Bucket() string {
	return m.bucket
}
