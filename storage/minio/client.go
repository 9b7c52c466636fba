package minio

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// Client wraps minio.Client for S3-compatible storage operations.
type Client struct {
	client *minio.Client
	cfg    Config
	logger *slog.Logger
	mu     sync.RWMutex
	closed bool
}

// ClientOptions contains options for client creation.
type ClientOptions struct {
	Logger *slog.Logger
	// Bucket, when set, is checked for existence before the client is returned.
	Bucket string
}

// NewClient creates a new S3-compatible storage client.
func NewClient(cfg Config, options *ClientOptions) (*Client, error) {
	if options == nil {
		options = &ClientOptions{}
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	logger := options.Logger.WithGroup("s3")
	endpoint := cfg.GetEndpoint()

	opts := &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Region: cfg.Region,
		Secure: cfg.Secure,
	}
	if cfg.Secure && cfg.InsecureSkipVerify {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- opt-in for self-signed endpoints
		opts.Transport = transport
	}

	client, err := minio.New(endpoint, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create S3 client")
	}

	if options.Bucket != "" {
		timeout := time.Duration(cfg.Timeout) * time.Second
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		ok, err := client.BucketExists(ctx, options.Bucket)
		if err != nil {
			return nil, errors.Wrap(err, "failed to connect to S3 storage")
		}
		if !ok {
			return nil, errors.Errorf("bucket %q does not exist", options.Bucket)
		}
	}

	logger.Info("S3 client initialized", "endpoint", endpoint, "region", cfg.Region)

	return &Client{
		client: client,
		cfg:    cfg,
		logger: logger,
	}, nil
}

// GetMinioClient returns the underlying minio.Client.
func (c *Client) GetMinioClient() *minio.Client {
	return c.client
}

// Close closes the S3 client connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	c.logger.Info("S3 client closed")
	return nil
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
