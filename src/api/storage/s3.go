package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/stake-plus/escrow-market/src/api/config"
)

// S3Store keeps blobs in an S3 compatible bucket keyed by CID.
type S3Store struct {
	client  *s3.Client
	bucket  string
	maxSize int64
}

func NewS3Store(ctx context.Context, cfg config.StorageConfig) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.S3Region)}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
			o.UsePathStyle = true
			// S3 compatible servers may not accept trailing checksums
			o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
			o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
		}
	})
	return &S3Store{client: client, bucket: cfg.S3Bucket, maxSize: cfg.MaxUpload}, nil
}

func (s *S3Store) Backend() string { return "s3" }

func (s *S3Store) Put(ctx context.Context, name, contentType string, r io.Reader) (Object, error) {
	sp, err := spool(r, "", s.maxSize)
	if err != nil {
		return Object{}, err
	}
	defer sp.Close()

	if obj, err := s.Stat(ctx, sp.cid); err == nil {
		return obj, nil
	}

	obj := newObject(sp.cid, name, contentType, sp.size)
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(obj.CID),
		Body:          sp.f,
		ContentLength: aws.Int64(sp.size),
		ContentType:   aws.String(obj.ContentType),
		Metadata: map[string]string{
			metaName:    obj.Name,
			metaCreated: obj.CreatedAt.Format(time.RFC3339),
		},
	})
	if err != nil {
		return Object{}, fmt.Errorf("put object: %w", err)
	}
	return obj, nil
}

func (s *S3Store) Open(ctx context.Context, cid string) (io.ReadCloser, Object, error) {
	if !ValidCID(cid) {
		return nil, Object{}, ErrInvalidCID
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cid),
	})
	if err != nil {
		return nil, Object{}, mapS3Err(err)
	}
	obj := s3Object(cid, out.Metadata, out.ContentType, out.ContentLength, out.LastModified)
	return out.Body, obj, nil
}

func (s *S3Store) Stat(ctx context.Context, cid string) (Object, error) {
	if !ValidCID(cid) {
		return Object{}, ErrInvalidCID
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(cid),
	})
	if err != nil {
		return Object{}, mapS3Err(err)
	}
	return s3Object(cid, out.Metadata, out.ContentType, out.ContentLength, out.LastModified), nil
}

func s3Object(cid string, meta map[string]string, contentType *string, size *int64, modified *time.Time) Object {
	created, _ := time.Parse(time.RFC3339, lookupMeta(meta, metaCreated))
	if created.IsZero() && modified != nil {
		created = *modified
	}
	return Object{
		CID:         cid,
		Name:        lookupMeta(meta, metaName),
		ContentType: aws.ToString(contentType),
		Size:        aws.ToInt64(size),
		CreatedAt:   created,
	}
}

func mapS3Err(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return ErrNotFound
		}
	}
	return err
}
