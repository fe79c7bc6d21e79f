package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/stake-plus/escrow-market/src/api/config"
)

const (
	metaName    = "name"
	metaCreated = "created"
)

// MinioStore keeps blobs in a MinIO bucket keyed by CID.
type MinioStore struct {
	client  *minio.Client
	bucket  string
	maxSize int64
}

func NewMinioStore(ctx context.Context, cfg config.StorageConfig) (*MinioStore, error) {
	client, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	s := &MinioStore{client: client, bucket: cfg.MinioBucket, maxSize: cfg.MaxUpload}
	if err := s.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MinioStore) Backend() string { return "minio" }

// EnsureBucket creates the bucket if it doesn't exist
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, name, contentType string, r io.Reader) (Object, error) {
	sp, err := spool(r, "", s.maxSize)
	if err != nil {
		return Object{}, err
	}
	defer sp.Close()

	if obj, err := s.Stat(ctx, sp.cid); err == nil {
		return obj, nil
	}

	obj := newObject(sp.cid, name, contentType, sp.size)
	_, err = s.client.PutObject(ctx, s.bucket, obj.CID, sp.f, sp.size, minio.PutObjectOptions{
		ContentType: obj.ContentType,
		UserMetadata: map[string]string{
			metaName:    obj.Name,
			metaCreated: obj.CreatedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return Object{}, fmt.Errorf("failed to upload file: %w", err)
	}
	return obj, nil
}

func (s *MinioStore) Open(ctx context.Context, cid string) (io.ReadCloser, Object, error) {
	obj, err := s.Stat(ctx, cid)
	if err != nil {
		return nil, Object{}, err
	}
	rc, err := s.client.GetObject(ctx, s.bucket, cid, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, s.mapErr(err)
	}
	return rc, obj, nil
}

func (s *MinioStore) Stat(ctx context.Context, cid string) (Object, error) {
	if !ValidCID(cid) {
		return Object{}, ErrInvalidCID
	}
	info, err := s.client.StatObject(ctx, s.bucket, cid, minio.StatObjectOptions{})
	if err != nil {
		return Object{}, s.mapErr(err)
	}
	created, _ := time.Parse(time.RFC3339, lookupMeta(info.UserMetadata, metaCreated))
	if created.IsZero() {
		created = info.LastModified
	}
	return Object{
		CID:         cid,
		Name:        lookupMeta(info.UserMetadata, metaName),
		ContentType: info.ContentType,
		Size:        info.Size,
		CreatedAt:   created,
	}, nil
}

func (s *MinioStore) mapErr(err error) error {
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return err
}

// lookupMeta ignores the header casing servers apply to user metadata.
func lookupMeta(meta map[string]string, key string) string {
	for k, v := range meta {
		if strings.EqualFold(k, key) || strings.EqualFold(k, "X-Amz-Meta-"+key) {
			return v
		}
	}
	return ""
}
