package minioblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	kerrors "github.com/asterixix/tecza/internal/errors"
	logger "github.com/asterixix/tecza/internal/logging"
	"github.com/asterixix/tecza/internal/store"
)

// contentType is used for every object; the bytes are AES-GCM ciphertext.
const contentType = "application/octet-stream"

// Config locates an S3-compatible bucket.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// Store keeps encrypted media in a MinIO (or other S3-compatible) bucket.
type Store struct {
	client *minio.Client
	bucket string
	log    logger.Logger

	mu      sync.Mutex
	ensured bool
}

var _ store.BlobStore = (*Store)(nil)

// New creates a client for cfg. No request is made until the first blob
// operation, which also creates the bucket if it does not exist.
func New(cfg Config, log logger.Logger) (*Store, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("%w: minio endpoint is required", kerrors.ErrInvalidConfig)
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: minio bucket is required", kerrors.ErrInvalidConfig)
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	log.Debugf("MinIO client initialized for %s (bucket %s)", cfg.Endpoint, cfg.Bucket)
	return &Store{client: client, bucket: cfg.Bucket, log: log}, nil
}

func (s *Store) ensureBucket(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}

	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
		}
		s.log.Infof("Created bucket %s", s.bucket)
	}
	s.ensured = true
	return nil
}

func (s *Store) PutBlob(ctx context.Context, ref string, data []byte) error {
	if err := s.ensureBucket(ctx); err != nil {
		return err
	}
	_, err := s.client.PutObject(ctx, s.bucket, ref, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("failed to upload blob %s: %w", ref, err)
	}
	return nil
}

func (s *Store) Blob(ctx context.Context, ref string) ([]byte, error) {
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucket, ref, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(ref, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing key surfaces on the first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, translate(ref, err)
	}
	return data, nil
}

func translate(ref string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", kerrors.ErrBlobNotFound, ref)
	}
	return fmt.Errorf("failed to download blob %s: %w", ref, err)
}

func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if !errors.As(err, &resp) {
		return false
	}
	return resp.Code == "NoSuchKey" || resp.Code == "NoSuchBucket"
}
