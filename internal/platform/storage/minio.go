package storage

import (
	"context"
	"log"
	"net/url"
	"time"

	"competenest/internal/platform/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Client presigns test-case payload URLs against an S3-compatible store. The
// payload bytes are fetched directly by the external judge; this service only
// hands out time-limited URLs.
type Client struct {
	mc     *minio.Client
	bucket string
	expiry time.Duration
}

func Connect() (*Client, error) {
	cfg := config.AppConfig
	mc, err := minio.New(cfg.MinioEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.MinioAccessKey, cfg.MinioSecretKey, ""),
		Secure: cfg.MinioUseSSL,
	})
	if err != nil {
		return nil, err
	}
	log.Printf("Object storage client ready (endpoint: %s, bucket: %s)", cfg.MinioEndpoint, cfg.TestcaseBucket)
	return &Client{mc: mc, bucket: cfg.TestcaseBucket, expiry: cfg.PresignExpiry}, nil
}

// PresignGet returns a time-limited download URL for an object key.
func (c *Client) PresignGet(ctx context.Context, key string) (string, error) {
	u, err := c.mc.PresignedGetObject(ctx, c.bucket, key, c.expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

// PresignPut returns a time-limited upload URL for an object key.
func (c *Client) PresignPut(ctx context.Context, key string) (string, error) {
	u, err := c.mc.PresignedPutObject(ctx, c.bucket, key, c.expiry)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
