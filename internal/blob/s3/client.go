// Package s3blob stores the ledger's documents and snapshot archives in an
// S3-compatible bucket (AWS S3, Supabase Storage's S3 endpoint, MinIO, R2)
// through AWS SDK v2.
package s3blob

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// defaultMaxAttempts bounds SDK retries per request.
const defaultMaxAttempts = 3

// ClientConfig selects the bucket and how to reach it.
type ClientConfig struct {
	// Endpoint is an S3-compatible endpoint such as
	// "https://<project>.supabase.co/storage/v1/s3". Empty means AWS.
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string // empty uses the default AWS credential chain
	SecretKey string
	// UseSSL picks the scheme when Endpoint has none.
	UseSSL bool
	// ForcePathStyle is required by Supabase and MinIO.
	ForcePathStyle bool
	// MaxAttempts is the SDK retry budget per request. Zero means 3.
	MaxAttempts int
}

// Client is a bucket handle shared by Reader and Writer.
type Client struct {
	api    *s3.Client
	bucket string
}

// New builds a Client. It does not contact the bucket; call Ping for that.
func New(ctx context.Context, cfg ClientConfig) (*Client, error) {
	var missing []error
	if cfg.Bucket == "" {
		missing = append(missing, errors.New("bucket is required"))
	}
	if cfg.Region == "" {
		missing = append(missing, errors.New("region is required"))
	}
	if err := errors.Join(missing...); err != nil {
		return nil, fmt.Errorf("s3blob: %w", err)
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(attempts),
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(endpointURL(cfg.Endpoint, cfg.UseSSL))
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return &Client{api: api, bucket: cfg.Bucket}, nil
}

// Ping checks that the bucket exists and the credentials can reach it.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("s3blob: head bucket %s: %w", c.bucket, err)
	}
	return nil
}

// endpointURL adds a scheme when missing and drops any trailing slash.
func endpointURL(endpoint string, useSSL bool) string {
	endpoint = strings.TrimRight(endpoint, "/")
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" && u.Host != "" {
		return endpoint
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}
