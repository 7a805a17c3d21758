package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/config"
	"github.com/sagarkhandagre998/pdf-invoice-ai-tool/model"
)

// MinioStore persists uploads to a MinIO (or S3-compatible) bucket. The
// presigned URL it returns is stored in the file index so later reads do not
// depend on the caller keeping it.
type MinioStore struct {
	client *minio.Client
	bucket string
	config *config.MinioConfig
}

func NewMinioStore(cfg *config.MinioConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioStore{
		client: client,
		bucket: cfg.Bucket,
		config: cfg,
	}, nil
}

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

func (s *MinioStore) Save(ctx context.Context, fileID, fileName, contentType string, size int64, r io.Reader) (*model.FileRecord, error) {
	objectName := fmt.Sprintf("%s/%s", fileID, fileName)

	info, err := s.client.PutObject(ctx, s.bucket, objectName, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload file: %w", err)
	}

	expiry := time.Duration(s.config.ExpireDays) * 24 * time.Hour
	url, err := s.client.PresignedGetObject(ctx, s.bucket, objectName, expiry, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return &model.FileRecord{
		FileID:      fileID,
		FileName:    fileName,
		Backend:     "minio",
		StorageKey:  objectName,
		URL:         url.String(),
		ContentType: contentType,
		Size:        info.Size,
	}, nil
}

func (s *MinioStore) Open(ctx context.Context, record *model.FileRecord) (io.ReadCloser, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, record.StorageKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch object: %w", err)
	}
	return obj, nil
}

func (s *MinioStore) Delete(ctx context.Context, record *model.FileRecord) error {
	err := s.client.RemoveObject(ctx, s.bucket, record.StorageKey, minio.RemoveObjectOptions{})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
