package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/videoflix/streamcore/internal/config"
	"github.com/videoflix/streamcore/pkg/models"
)

// MinioStore is an S3-compatible content store.
type MinioStore struct {
	client     *minio.Client
	bucketName string
}

// NewMinioStore creates a new object storage client and ensures the bucket
// exists.
func NewMinioStore(cfg config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	ctx := context.Background()
	exists, err := client.BucketExists(ctx, cfg.BucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		err = client.MakeBucket(ctx, cfg.BucketName, minio.MakeBucketOptions{Region: cfg.Region})
		if err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return &MinioStore{client: client, bucketName: cfg.BucketName}, nil
}

func (s *MinioStore) wrap(op, key string, err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return fmt.Errorf("object %s: %w", key, models.ErrNotFound)
	}
	return &models.StorageError{Op: op, Key: key, Err: err}
}

// Put writes an object.
func (s *MinioStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, s.bucketName, key, r, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return &models.StorageError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// PutFile uploads a local file.
func (s *MinioStore) PutFile(ctx context.Context, key, path string) error {
	_, err := s.client.FPutObject(ctx, s.bucketName, key, path, minio.PutObjectOptions{
		ContentType: ContentTypeFor(key),
	})
	if err != nil {
		return &models.StorageError{Op: "put", Key: key, Err: err}
	}
	return nil
}

// Open returns a seekable handle on an object.
func (s *MinioStore) Open(ctx context.Context, key string) (Object, ObjectInfo, error) {
	info, err := s.Stat(ctx, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	obj, err := s.client.GetObject(ctx, s.bucketName, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, s.wrap("open", key, err)
	}
	return obj, info, nil
}

// Stat returns object info.
func (s *MinioStore) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	st, err := s.client.StatObject(ctx, s.bucketName, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, s.wrap("stat", key, err)
	}
	return ObjectInfo{Size: st.Size, ModTime: st.LastModified}, nil
}

// FetchFile downloads an object to a local file.
func (s *MinioStore) FetchFile(ctx context.Context, key, path string) error {
	if err := s.client.FGetObject(ctx, s.bucketName, key, path, minio.GetObjectOptions{}); err != nil {
		return s.wrap("fetch", key, err)
	}
	return nil
}

// List returns all keys under a prefix in lexical order.
func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, &models.StorageError{Op: "list", Key: prefix, Err: object.Err}
		}
		keys = append(keys, object.Key)
	}
	return keys, nil
}

// RemovePrefix deletes every object under a prefix.
func (s *MinioStore) RemovePrefix(ctx context.Context, prefix string) error {
	keys, err := s.List(ctx, prefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
			return &models.StorageError{Op: "remove", Key: key, Err: err}
		}
	}
	return nil
}
