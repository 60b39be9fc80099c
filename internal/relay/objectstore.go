package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ObjectStore puts one object into an S3-compatible bucket.
type ObjectStore interface {
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error
}

// ObjectStoreFactory builds a client for one relay call.
type ObjectStoreFactory func(cfg BackendConfig) (ObjectStore, error)

type minioStore struct {
	client *minio.Client
}

// NewMinioStore returns an ObjectStore backed by minio-go.
func NewMinioStore(cfg BackendConfig) (ObjectStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseTLS,
	})
	if err != nil {
		return nil, err
	}
	return &minioStore{client: client}, nil
}

func (s *minioStore) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string) error {
	_, err := s.client.PutObject(ctx, bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (r *Relayer) sendS3(ctx context.Context, cfg BackendConfig, req UploadRequest, data []byte, mimeType string) (remote, *Error) {
	dir, err := remoteDir(cfg, r.now())
	if err != nil {
		return remote{}, fail(ProtocolError, "path template: %v", err)
	}
	key := strings.TrimPrefix(path.Join(dir, req.BaseName()), "/")

	baseURL := cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseTLS {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s/%s", scheme, cfg.Endpoint, cfg.Bucket)
	}
	remoteURL, err := objectURL(cfg, baseURL, key)
	if err != nil {
		return remote{}, fail(ProtocolError, "%v", err)
	}

	store, err := r.newObjectStore(cfg)
	if err != nil {
		return remote{}, fail(TransportError, "s3 client: %v", err)
	}
	if err := store.PutObject(ctx, cfg.Bucket, key, bytes.NewReader(data), int64(len(data)), mimeType); err != nil {
		if resp := minio.ToErrorResponse(err); resp.StatusCode >= 400 {
			return remote{}, fail(BackendRejected, "put %s: %s %s", key, resp.Code, resp.Message)
		}
		return remote{}, fail(TransportError, "put %s: %v", key, err)
	}
	return remote{url: remoteURL, mime: mimeType}, nil
}
