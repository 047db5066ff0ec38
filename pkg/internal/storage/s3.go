// Package storage talks to the bucket that the recording vendor uploads
// compiled recordings into.
package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type Config struct {
	Bucket     string
	RegionName string
	AccessKey  string
	SecretKey  string
	// Endpoint targets an S3 compatible store instead of AWS. Path-style
	// addressing is used whenever it is set.
	Endpoint string
	// CDNURL fronts the bucket for public reads.
	CDNURL string
}

// PublicURL resolves the public address of an object key.
func (c Config) PublicURL(key string) string {
	key = strings.TrimLeft(key, "/")
	switch {
	case len(c.CDNURL) > 0:
		return strings.TrimRight(c.CDNURL, "/") + "/" + key
	case len(c.Endpoint) > 0:
		return fmt.Sprintf("%s/%s/%s", strings.TrimRight(c.Endpoint, "/"), c.Bucket, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", c.Bucket, c.RegionName, key)
	}
}

// Client is a thin wrapper around the AWS SDK v2 S3 client.
type Client struct {
	api    *s3.Client
	bucket string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if len(cfg.Bucket) == 0 {
		return nil, errors.New("storage bucket is required")
	}
	region := cfg.RegionName
	if len(region) == 0 {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
		awsconfig.WithHTTPClient(&http.Client{Timeout: 15 * time.Second}),
	}
	if len(cfg.AccessKey) > 0 {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	api := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if len(cfg.Endpoint) > 0 {
			o.UsePathStyle = true
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})

	return &Client{api: api, bucket: cfg.Bucket}, nil
}

// ObjectSize returns the stored size of the object in bytes.
func (c *Client) ObjectSize(ctx context.Context, key string) (int64, error) {
	if c == nil {
		return 0, errors.New("nil client")
	}
	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(strings.TrimLeft(key, "/")),
	})
	if err != nil {
		return 0, err
	}
	return aws.ToInt64(out.ContentLength), nil
}
