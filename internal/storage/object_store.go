package storage

import (
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"weather-upload-service/pkg/logging"
	"weather-upload-service/pkg/metrics"
)

// processedPrefix is where archived source objects land.
const processedPrefix = "processed/"

// ObjectStore is the storage collaborator consumed by the trigger adapter:
// fetch raw bytes by key, and archive a processed object out of the inbox.
type ObjectStore interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
	Archive(ctx context.Context, key string) error
}

// Config holds S3-compatible object store settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// MinioStore implements ObjectStore against any S3-compatible endpoint.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	logger  *logging.Logger
	metrics *metrics.Collector
}

// NewMinioStore creates an object store client for the configured bucket.
func NewMinioStore(cfg Config, logger *logging.Logger, metricsCollector *metrics.Collector) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &MinioStore{
		client:  client,
		bucket:  cfg.Bucket,
		logger:  logger,
		metrics: metricsCollector,
	}, nil
}

// Fetch downloads the object body. Missing objects and empty bodies are
// errors; the caller has nothing to process either way.
func (s *MinioStore) Fetch(ctx context.Context, key string) ([]byte, error) {
	s.logger.Info(ctx, "[STORE_FETCH] Fetching file from bucket", logging.Fields{
		"bucket": s.bucket,
		"key":    key,
	})

	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		s.metrics.RecordObjectStoreOp("fetch", "error")
		return nil, fmt.Errorf("failed to fetch object %s: %w", key, err)
	}
	defer obj.Close()

	body, err := io.ReadAll(obj)
	if err != nil {
		s.metrics.RecordObjectStoreOp("fetch", "error")
		return nil, fmt.Errorf("failed to read object %s: %w", key, err)
	}
	if len(body) == 0 {
		s.metrics.RecordObjectStoreOp("fetch", "error")
		return nil, fmt.Errorf("object %s has an empty body", key)
	}

	s.metrics.RecordObjectStoreOp("fetch", "success")
	return body, nil
}

// Archive copies the object under processed/ keeping its filename, then
// deletes the original. When the copy fails the delete is never attempted,
// so the original stays in place for a retry.
func (s *MinioStore) Archive(ctx context.Context, key string) error {
	targetKey := processedPrefix + path.Base(key)

	s.logger.Info(ctx, "[STORE_ARCHIVE] Archiving file to processed folder", logging.Fields{
		"key":        key,
		"target_key": targetKey,
	})

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: targetKey},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key},
	)
	if err != nil {
		s.metrics.RecordObjectStoreOp("archive", "error")
		return fmt.Errorf("failed to copy object %s to %s: %w", key, targetKey, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		s.metrics.RecordObjectStoreOp("archive", "error")
		return fmt.Errorf("failed to delete object %s after copy: %w", key, err)
	}

	s.metrics.RecordObjectStoreOp("archive", "success")
	s.logger.Info(ctx, "[STORE_ARCHIVE] File archived and deleted from original location", logging.Fields{
		"key":        key,
		"target_key": targetKey,
	})
	return nil
}

// IsProcessedKey reports whether a key already lives under the archive
// prefix. The consumer uses it to ignore notifications for its own copies.
func IsProcessedKey(key string) bool {
	return len(key) >= len(processedPrefix) && key[:len(processedPrefix)] == processedPrefix
}
