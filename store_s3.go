package coursesync

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3StoreConfig configures the S3 change store.
type S3StoreConfig struct {
	Bucket   string `json:"bucket" yaml:"bucket"`
	Region   string `json:"region" yaml:"region"`
	Endpoint string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"` // For S3-compatible services (MinIO, etc.)
	// AccessKeyID for authentication. Prefer IAM roles, instance profiles,
	// or environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
	// instead of setting these directly.
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"` // Key prefix for all objects
	UsePathStyle    bool   `json:"use_path_style,omitempty" yaml:"use_path_style,omitempty"`

	// MaxRetries is the max retry attempts for S3 operations (default: 3).
	MaxRetries int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// S3Store implements ChangeStore using S3 or S3-compatible storage, letting a
// client device park its offline queue in shared durable storage.
type S3Store struct {
	client  *s3.Client
	config  S3StoreConfig
	retryer *Retryer
}

// NewS3Store creates a new S3-backed change store.
func NewS3Store(cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	var opts []func(*awsconfig.LoadOptions) error
	opts = append(opts, awsconfig.WithRegion(cfg.Region))
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.UsePathStyle
		})
	}

	return &S3Store{
		client: s3.NewFromConfig(awsCfg, s3Opts...),
		config: cfg,
		retryer: NewRetryer(RetryConfig{
			MaxAttempts:       cfg.MaxRetries,
			InitialBackoff:    100 * time.Millisecond,
			MaxBackoff:        10 * time.Second,
			BackoffMultiplier: 2.0,
			Jitter:            0.1,
		}),
	}, nil
}

func (s *S3Store) Read(ctx context.Context, key string) ([]byte, error) {
	fullKey := s.config.Prefix + key

	var data []byte
	err := s.retryer.Do(ctx, func() error {
		resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
		})
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		data, err = io.ReadAll(resp.Body)
		return err
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, os.ErrNotExist
		}
		return nil, newStoreError(StoreErrorTypeRead, "S3 get object failed", fullKey, err)
	}
	return data, nil
}

func (s *S3Store) Write(ctx context.Context, key string, data []byte) error {
	fullKey := s.config.Prefix + key

	err := s.retryer.Do(ctx, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
			Body:   bytes.NewReader(data),
		})
		return err
	})
	if err != nil {
		return newStoreError(StoreErrorTypeWrite, "S3 put object failed", fullKey, err)
	}
	return nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	fullKey := s.config.Prefix + key

	err := s.retryer.Do(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.config.Bucket),
			Key:    aws.String(fullKey),
		})
		return err
	})
	if err != nil {
		return newStoreError(StoreErrorTypeWrite, "S3 delete object failed", fullKey, err)
	}
	return nil
}

func (s *S3Store) Close() error {
	return nil
}
