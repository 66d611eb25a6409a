package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/Yudee-19/video-downloader/internal/config"
	apperrors "github.com/Yudee-19/video-downloader/internal/errors"
)

// S3Store implements ObjectStore using aws-sdk-go-v2 (AWS S3 or any
// S3-compatible endpoint).
type S3Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	region  string
	expiry  time.Duration
}

// NewS3Store creates an S3Store from static credentials.
func NewS3Store(cfg config.StorageConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("storage: bucket is required")
	}

	opts := s3.Options{
		Region:       cfg.Region,
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.AccessKey != "" {
		opts.Credentials = awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	// custom endpoint for non-AWS S3
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	client := s3.New(opts)
	return &S3Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		region:  cfg.Region,
		expiry:  presignExpiry(cfg.PresignExpiry),
	}, nil
}

// Upload puts the file and returns a presigned GET URL.
func (s *S3Store) Upload(ctx context.Context, localPath, key string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", apperrors.UploadError("failed to open artifact").WithCause(err)
	}
	defer file.Close()

	fileInfo, err := file.Stat()
	if err != nil {
		return "", apperrors.UploadError("failed to stat artifact").WithCause(err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(fileInfo.Size()),
		ContentType:   aws.String(ContentType(localPath)),
	})
	if err != nil {
		return "", apperrors.UploadError(fmt.Sprintf("failed to upload %s", key)).WithCause(err)
	}

	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return "", apperrors.UploadError(fmt.Sprintf("failed to presign %s", key)).WithCause(err)
	}
	return req.URL, nil
}

// Ping checks the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

// EnsureBucket creates the bucket if it doesn't exist.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(s.bucket)}
	if s.region != "" && s.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(s.region),
		}
	}
	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Bucket returns the bucket name.
func (s *S3Store) Bucket() string {
	return s.bucket
}
