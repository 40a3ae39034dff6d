package minioblob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"

	kerrors "github.com/asterixix/tecza/internal/errors"
	logger "github.com/asterixix/tecza/internal/logging"
)

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing endpoint", Config{Bucket: "media"}},
		{"missing bucket", Config{Endpoint: "localhost:9000"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg, logger.Logger{}); !errors.Is(err, kerrors.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got: %v", err)
			}
		})
	}

	s, err := New(Config{Endpoint: "localhost:9000", Bucket: "media"}, logger.Logger{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.bucket != "media" {
		t.Errorf("expected bucket media, got %q", s.bucket)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such key", minio.ErrorResponse{Code: "NoSuchKey"}, true},
		{"no such bucket", minio.ErrorResponse{Code: "NoSuchBucket"}, true},
		{"wrapped", fmt.Errorf("read: %w", minio.ErrorResponse{Code: "NoSuchKey"}), true},
		{"access denied", minio.ErrorResponse{Code: "AccessDenied"}, false},
		{"plain error", errors.New("connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound() = %v, want %v", got, tt.want)
			}
		})
	}

	if err := translate("ref", minio.ErrorResponse{Code: "NoSuchKey"}); !errors.Is(err, kerrors.ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got: %v", err)
	}
}

// TestAgainstServer runs only when TECZA_TEST_MINIO_ENDPOINT points at a
// reachable server, e.g. a local `minio server` with default credentials.
func TestAgainstServer(t *testing.T) {
	endpoint := os.Getenv("TECZA_TEST_MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("TECZA_TEST_MINIO_ENDPOINT not set")
	}

	s, err := New(Config{
		Endpoint:  endpoint,
		AccessKey: envOr("TECZA_TEST_MINIO_ACCESS_KEY", "minioadmin"),
		SecretKey: envOr("TECZA_TEST_MINIO_SECRET_KEY", "minioadmin"),
		Bucket:    "tecza-test-" + uuid.NewString()[:8],
	}, logger.Logger{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	data := []byte("ciphertext bytes")
	if err := s.PutBlob(ctx, "conv/blob", data); err != nil {
		t.Fatalf("PutBlob failed: %v", err)
	}
	got, err := s.Blob(ctx, "conv/blob")
	if err != nil {
		t.Fatalf("Blob failed: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("expected %q, got %q", data, got)
	}
	if _, err := s.Blob(ctx, "conv/missing"); !errors.Is(err, kerrors.ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got: %v", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
