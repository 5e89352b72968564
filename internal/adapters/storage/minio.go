package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/manthysbr/aule-weather/internal/core/ports"
)

var _ ports.MediaStore = (*MinioStore)(nil)

// objectAPI is the subset of *minio.Client the store needs.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	PresignedGetObject(ctx context.Context, bucketName, objectName string, expires time.Duration, reqParams url.Values) (*url.URL, error)
}

// MinioStore keeps narration audio and backdrops in an S3-compatible bucket
// and returns presigned GET links the video host can fetch.
type MinioStore struct {
	api    objectAPI
	bucket string
	region string
	expiry time.Duration
	prefix string
}

type Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Secure    bool
	URLExpiry time.Duration
}

func NewMinioStore(opts Options) (*MinioStore, error) {
	cli, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio connection: %w", err)
	}
	return newMinioStore(cli, opts.Bucket, opts.Region, opts.URLExpiry), nil
}

func newMinioStore(api objectAPI, bucket, region string, expiry time.Duration) *MinioStore {
	if expiry <= 0 {
		expiry = 24 * time.Hour
	}
	return &MinioStore{api: api, bucket: bucket, region: region, expiry: expiry, prefix: "media"}
}

// EnsureBucket creates the bucket when it does not exist yet.
func (s *MinioStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.api.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.api.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	return nil
}

func (s *MinioStore) Put(ctx context.Context, name string, body io.Reader, size int64, contentType string) (string, error) {
	object := path.Join(s.prefix, name)
	if _, err := s.api.PutObject(ctx, s.bucket, object, body, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return "", fmt.Errorf("upload %s: %w", object, err)
	}
	u, err := s.api.PresignedGetObject(ctx, s.bucket, object, s.expiry, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", object, err)
	}
	return u.String(), nil
}
