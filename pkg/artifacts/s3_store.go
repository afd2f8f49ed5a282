package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of *s3.Client the store uses.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps reports in an S3 bucket, keyed by digest.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string
	Region   string
	Endpoint string // MinIO, LocalStack
	Prefix   string
}

// NewS3Store loads the default AWS credential chain for cfg.Region.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return newS3Store(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(digest string) string {
	return s.prefix + digest + ".json"
}

func (s *S3Store) Put(ctx context.Context, data []byte) (string, error) {
	hash, digest := contentHash(data)
	key := s.key(digest)

	exists, err := s.head(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return hash, nil
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 put failed: %w", err)
	}
	return hash, nil
}

func (s *S3Store) Get(ctx context.Context, hash string) ([]byte, error) {
	digest, err := parseHash(hash)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(digest)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
		}
		return nil, fmt.Errorf("s3 get failed for %s: %w", hash, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 read failed for %s: %w", hash, err)
	}
	return data, nil
}

func (s *S3Store) Exists(ctx context.Context, hash string) (bool, error) {
	digest, err := parseHash(hash)
	if err != nil {
		return false, err
	}
	return s.head(ctx, s.key(digest))
}

func (s *S3Store) Delete(ctx context.Context, hash string) error {
	digest, err := parseHash(hash)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(digest)),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed for %s: %w", hash, err)
	}
	return nil
}

// head reports whether key exists. Only a NotFound answer means absent;
// any other failure is returned.
func (s *S3Store) head(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head failed for %s: %w", key, err)
}
