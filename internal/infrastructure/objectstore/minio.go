// Package objectstore persists try-on artifacts and returns a URL a client can load.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/lelook/backend/internal/domain"
)

// MinioConfig configures an S3-compatible bucket
type MinioConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Bucket        string
	UseSSL        bool
	Region        string
	PublicBaseURL string // defaults to the endpoint
}

// MinioStore implements domain.ObjectStorage on MinIO or any S3-compatible service
type MinioStore struct {
	client    *minio.Client
	bucket    string
	publicURL string
	logger    *zap.Logger
}

// NewMinioStore connects to the endpoint and creates the bucket if it does not exist
func NewMinioStore(ctx context.Context, config MinioConfig, logger *zap.Logger) (*MinioStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
		Region: config.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}

	store := &MinioStore{
		client:    client,
		bucket:    config.Bucket,
		publicURL: publicBase(config),
		logger:    logger.Named("minio"),
	}
	if err := store.ensureBucket(ctx, config.Region); err != nil {
		return nil, err
	}
	return store, nil
}

func publicBase(config MinioConfig) string {
	if config.PublicBaseURL != "" {
		return strings.TrimRight(config.PublicBaseURL, "/")
	}
	scheme := "http"
	if config.UseSSL {
		scheme = "https"
	}
	return scheme + "://" + config.Endpoint
}

func (s *MinioStore) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("%w: checking bucket %q: %v", domain.ErrStorageFailed, s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("%w: creating bucket %q: %v", domain.ErrStorageFailed, s.bucket, err)
	}
	s.logger.Info("bucket created", zap.String("bucket", s.bucket))
	return nil
}

// Put uploads data under key and returns its public URL
func (s *MinioStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", fmt.Errorf("%w: empty key", domain.ErrStorageFailed)
	}

	info, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorageFailed, err)
	}

	s.logger.Debug("object stored", zap.String("key", key), zap.Int64("size", info.Size))
	return fmt.Sprintf("%s/%s/%s", s.publicURL, s.bucket, key), nil
}
