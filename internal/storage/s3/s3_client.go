package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/phuslu/log"

	"finextract/internal/config"
	"finextract/internal/domain"
	"finextract/internal/port"
)

// Client stores uploaded filings and the staged copies handed to async
// document analysis. It implements port.ObjectStorage.
type Client struct {
	client    *s3.Client
	presigner *s3.PresignClient
	uploader  *manager.Uploader
}

var _ port.ObjectStorage = (*Client)(nil)

// NewClient creates an S3-backed ObjectStorage. A custom endpoint (MinIO,
// LocalStack) switches to path-style addressing.
func NewClient(ctx context.Context, cfg *config.S3Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{
		client:    client,
		presigner: s3.NewPresignClient(client),
		uploader:  manager.NewUploader(client),
	}, nil
}

// Put streams body to ref through the multipart uploader.
func (c *Client) Put(ctx context.Context, ref domain.ObjectRef, body io.Reader, contentType string) error {
	start := time.Now()
	if _, err := c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(ref.Bucket),
		Key:         aws.String(ref.Key),
		Body:        body,
		ContentType: aws.String(contentType),
	}); err != nil {
		return fmt.Errorf("s3 put %s: %w", ref, err)
	}
	log.Debug().Str("object", ref.String()).Dur("elapsed", time.Since(start)).Msg("s3.Client.Put: stored")
	return nil
}

// Get returns the object's bytes, or domain.ErrNotFound when the key does
// not exist.
func (c *Client) Get(ctx context.Context, ref domain.ObjectRef) ([]byte, error) {
	result, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("s3 get %s: %w", ref, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get %s: %w", ref, err)
	}
	defer func() { _ = result.Body.Close() }()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: reading body: %w", ref, err)
	}
	return data, nil
}

// Remove deletes ref. S3 treats a missing key as success.
func (c *Client) Remove(ctx context.Context, ref domain.ObjectRef) error {
	if _, err := c.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	}); err != nil {
		return fmt.Errorf("s3 remove %s: %w", ref, err)
	}
	return nil
}

// SignedURL returns a presigned GET URL valid for ttl.
func (c *Client) SignedURL(ctx context.Context, ref domain.ObjectRef, ttl time.Duration) (string, error) {
	result, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("s3 presign %s: %w", ref, err)
	}
	return result.URL, nil
}
