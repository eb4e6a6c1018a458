// Package s3blob stores archived binary orders in S3 or an S3-compatible
// provider (MinIO, Cloudflare R2, iDrive e2) through AWS SDK v2.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ClientConfig holds the connection settings for the archive bucket.
type ClientConfig struct {
	Endpoint  string // empty for AWS S3
	Region    string
	Bucket    string
	AccessKey string // empty uses the default AWS credential chain
	SecretKey string

	// UseSSL picks the scheme when Endpoint has none.
	UseSSL bool

	// ForcePathStyle puts the bucket in the path. MinIO needs it.
	ForcePathStyle bool
}

// Client wraps the AWS S3 SDK client and the archive bucket name.
type Client struct {
	s3     *s3.Client
	bucket string
}

// New creates a Client. Static credentials are used when AccessKey is set;
// otherwise the SDK's default chain (env, shared config, IAM role) applies.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, errors.New("s3blob: region is required")
	}

	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)

	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}

	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Client{
		s3:     s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
	}, nil
}

// Ping issues HeadBucket to verify connectivity and permissions.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.s3.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(c.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", c.bucket, err)
	}
	return nil
}

// api is the subset of the SDK client used by Reader and Writer.
type api interface {
	manager.UploadAPIClient
	s3.HeadObjectAPIClient
}

// normaliseEndpoint prepends a scheme when endpoint has none.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	if strings.Contains(endpoint, "://") {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}
