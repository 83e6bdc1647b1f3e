package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/chrisej001/voice-agent/internal/config"
)

// S3API abstracts the S3 operations used by [S3Store].
// The [s3.Client] type satisfies this interface.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store implements BlobStore backed by Amazon S3 or any S3-compatible
// object store (MinIO, R2, Supabase storage).
//
// All blob names are mapped to object keys under an optional prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string
}

// NewS3 creates an S3-backed BlobStore around a pre-configured client.
// Prefix is prepended to all object keys; pass "" for no prefix.
func NewS3(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

// NewS3FromConfig builds the S3 client from service configuration.
// A non-empty endpoint switches to path-style addressing for
// S3-compatible stores.
func NewS3FromConfig(cfg config.StorageConfig) *S3Store {
	opts := s3.Options{
		Region: cfg.Region,
	}
	if cfg.AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	return NewS3(s3.New(opts), cfg.Bucket, cfg.Prefix)
}

// key builds the full object key for the given blob name
func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

// Put uploads one blob via PutObject
func (s *S3Store) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(name)),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			return fmt.Errorf("storage: put %s: %s: %w", name, apiErr.ErrorCode(), err)
		}
		return fmt.Errorf("storage: put %s: %w", name, err)
	}
	return nil
}

// Compile-time interface check.
var _ BlobStore = (*S3Store)(nil)
