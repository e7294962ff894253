package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/mkarlsen/tenantd/internal/logger"
	"github.com/mkarlsen/tenantd/internal/telemetry"
)

// S3Config configures the S3 blob store.
type S3Config struct {
	// Endpoint overrides the AWS endpoint, for MinIO and other
	// S3-compatible servers. Empty means AWS.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	Region          string `mapstructure:"region" yaml:"region"`
	Bucket          string `mapstructure:"bucket" yaml:"bucket" validate:"required"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`

	// ForcePathStyle uses path-style addressing (bucket in the path, not
	// the host). Required by most S3-compatible servers.
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`

	// KeyPrefix is prepended to every object key.
	KeyPrefix string `mapstructure:"key_prefix" yaml:"key_prefix"`

	MaxRetries     uint          `mapstructure:"max_retries" yaml:"max_retries"`
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *S3Config) ApplyDefaults() {
	if c.Region == "" {
		c.Region = "us-east-1"
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 2 * time.Second
	}
}

// NewS3Client builds an S3 client from configuration.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return client, nil
}

// S3Store implements Store against Amazon S3 or an S3-compatible server.
//
// Transient errors (network failures, throttling, 5xx) are retried with
// exponential backoff. Not-found and access-denied errors are returned
// immediately.
type S3Store struct {
	client         *s3.Client
	bucket         string
	keyPrefix      string
	maxRetries     uint
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewS3Store wraps an S3 client. The bucket must already exist.
func NewS3Store(client *s3.Client, cfg S3Config) *S3Store {
	cfg.ApplyDefaults()
	return &S3Store{
		client:         client,
		bucket:         cfg.Bucket,
		keyPrefix:      cfg.KeyPrefix,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
}

func (s *S3Store) objectKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return strings.TrimSuffix(s.keyPrefix, "/") + "/" + key
}

func (s *S3Store) backoff(attempt int) time.Duration {
	d := s.initialBackoff
	for i := 0; i < attempt; i++ {
		d *= 2
		if d > s.maxBackoff {
			return s.maxBackoff
		}
	}
	return d
}

// withRetry runs op, retrying transient errors with exponential backoff.
func (s *S3Store) withRetry(ctx context.Context, name, key string, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= int(s.maxRetries); attempt++ {
		if attempt > 0 {
			backoff := s.backoff(attempt - 1)
			logger.Debug("Retrying S3 operation",
				logger.KeyOp, name,
				logger.KeyObjectKey, key,
				logger.KeyAttempt, attempt,
				"backoff", backoff)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
	}
	return fmt.Errorf("s3 %s failed after %d attempts: %w", name, s.maxRetries+1, lastErr)
}

func (s *S3Store) Put(ctx context.Context, key string, data []byte) (err error) {
	objKey := s.objectKey(key)
	ctx, span := telemetry.StartBlobSpan(ctx, "put", objKey, telemetry.Bucket(s.bucket))
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	return s.withRetry(ctx, "put", objKey, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
			Body:   bytes.NewReader(data),
		})
		return err
	})
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	objKey := s.objectKey(key)
	ctx, span := telemetry.StartBlobSpan(ctx, "get", objKey, telemetry.Bucket(s.bucket))
	defer span.End()

	var data []byte
	err := s.withRetry(ctx, "get", objKey, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
		})
		if err != nil {
			return err
		}
		defer func() { _ = out.Body.Close() }()

		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, fmt.Errorf("object %q: %w", key, ErrNotFound)
		}
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return data, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	objKey := s.objectKey(key)

	err := s.withRetry(ctx, "head", objKey, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
		})
		return err
	})
	if err != nil {
		if isNotFoundError(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) (err error) {
	objKey := s.objectKey(key)
	ctx, span := telemetry.StartBlobSpan(ctx, "delete", objKey, telemetry.Bucket(s.bucket))
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	return s.withRetry(ctx, "delete", objKey, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objKey),
		})
		return err
	})
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]string, error) {
	objPrefix := s.objectKey(prefix)
	trim := len(s.objectKey("")) // prefix added by objectKey, stripped from results

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(objPrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects under %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			keys = append(keys, (*obj.Key)[trim:])
		}
	}
	return keys, nil
}

func (s *S3Store) Close() error { return nil }

// isRetryableError reports whether the error is transient.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown":
			return true
		case "InternalError", "ServiceUnavailable":
			return true
		case "NoSuchKey", "NotFound", "AccessDenied", "Forbidden", "InvalidRequest":
			return false
		}
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout")
}

// isNotFoundError reports whether the error means the object does not exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return strings.Contains(err.Error(), "StatusCode: 404")
}
