package minioctrl

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// DefaultIndexBucket holds published index artifacts.
const DefaultIndexBucket = "course-indexes"

// ObjectStore is the subset of object storage the index distribution needs.
type ObjectStore interface {
	EnsureBucketExists(ctx context.Context, bucketName string) error
	GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error)
	PutObject(ctx context.Context, bucketName, objectName string, data []byte) error
}

type MinioService struct {
	client *minio.Client
}

var _ ObjectStore = (*MinioService)(nil)

func NewMinioService(endpoint, accessKeyID, secretAccessKey string, useSSL bool) (*MinioService, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKeyID, secretAccessKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	return &MinioService{
		client: client,
	}, nil
}

func (s *MinioService) EnsureBucketExists(ctx context.Context, bucketName string) error {
	exists, err := s.client.BucketExists(ctx, bucketName)
	if err != nil {
		return fmt.Errorf("failed to check bucket existence: %w", err)
	}

	if !exists {
		err = s.client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{})
		if err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return nil
}

func (s *MinioService) GetObject(ctx context.Context, bucketName, objectName string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, bucketName, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", objectName, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", objectName, err)
	}

	return data, nil
}

func (s *MinioService) PutObject(ctx context.Context, bucketName, objectName string, data []byte) error {
	reader := bytes.NewReader(data)
	_, err := s.client.PutObject(ctx, bucketName, objectName, reader, int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType(objectName),
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", objectName, err)
	}

	return nil
}

func contentType(objectName string) string {
	if strings.HasSuffix(objectName, ".json") {
		return "application/json"
	}
	return "application/octet-stream"
}

// SplitLocation splits "bucket/prefix" into its parts. A location without a slash is a bucket.
func SplitLocation(location string) (bucket, prefix string) {
	parts := strings.SplitN(strings.Trim(location, "/"), "/", 2)
	if len(parts) != 2 {
		return parts[0], ""
	}
	return parts[0], parts[1]
}
