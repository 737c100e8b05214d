package blob

import (
	"context"
	"errors"
	"fmt"
	"io"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"diskuto/internal/crypto"
)

// S3Store implements Store against an S3-compatible bucket, for operators
// who want attachment bytes offloaded to object storage instead of local
// disk. Keys mirror the filesystem layout (<prefix>/<first2hex>/<rest>) so
// the two backends are interchangeable without a migration tool.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

var _ Store = (*S3Store)(nil)

// S3Config configures an S3Store.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // optional, for S3-compatible services
}

// NewS3Store builds an S3Store from static or ambient AWS credentials.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
		}
	})

	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
	}, nil
}

func (s *S3Store) keyFor(hash crypto.Multihash) string {
	hex := hash.Hex()
	key := hex[:2] + "/" + hex[2:]
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

// Put uploads size bytes read from r using the multipart upload manager.
func (s *S3Store) Put(ctx context.Context, hash crypto.Multihash, r io.Reader, size int64) error {
	key := s.keyFor(hash)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        &s.bucket,
		Key:           &key,
		Body:          r,
		ContentLength: &size,
	})
	if err != nil {
		return fmt.Errorf("uploading blob to s3: %w", err)
	}
	return nil
}

// Get returns the object body for hash as a stream; the caller closes it.
func (s *S3Store) Get(ctx context.Context, hash crypto.Multihash) (io.ReadCloser, error) {
	key := s.keyFor(hash)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		var notFound *types.NoSuchKey
		if errors.As(err, &notFound) {
			return nil, ErrNotFound
		}
		var respErr *smithyhttp.ResponseError
		if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting blob from s3: %w", err)
	}
	return out.Body, nil
}

// Has issues a HeadObject to check blob presence without downloading it.
func (s *S3Store) Has(ctx context.Context, hash crypto.Multihash) (bool, error) {
	key := s.keyFor(hash)
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err == nil {
		return true, nil
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return false, nil
	}
	return false, fmt.Errorf("heading blob in s3: %w", err)
}

// Delete removes the object for hash.
func (s *S3Store) Delete(ctx context.Context, hash crypto.Multihash) error {
	key := s.keyFor(hash)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
	})
	if err != nil {
		return fmt.Errorf("deleting blob from s3: %w", err)
	}
	return nil
}
