// Package cosfacade presents a Tencent-COS-style object store client over
// an S3-compatible endpoint, grounded directly on
// flare/net/cos/cos_client.h's CosClient: Open(uri, options) constructs the
// channel, Execute/AsyncExecute run one operation, and every call before
// Open succeeds fails with NotOpened.
//
// AWS's SDK is used in place of Tencent's proprietary COS SDK (not present
// in any example repo) since S3-compatible object storage is the closest
// domain match the corpus carries a real dependency for; COS itself is
// S3-API-compatible, so the operation shapes (Get/Put object) line up
// directly.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package cosfacade

import (
	"bytes"
	"context"
	"io"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/momentics/fiberpc/future"
	"github.com/momentics/fiberpc/rpcerr"
)

// Options mirrors CosClient::Options: credentials, a default bucket, and
// a default per-operation timeout used when none is given explicitly.
type Options struct {
	SecretID  string
	SecretKey string
	Bucket    string
	Timeout   time.Duration
}

// DefaultTimeout mirrors FLAGS_flare_cos_client_default_timeout_ms's
// documented default.
const DefaultTimeout = 2 * time.Second

// Client is the Go rendering of flare::CosClient: constructed unopened,
// Open(endpoint, opts) must succeed before Get/Put.
type Client struct {
	mu      sync.RWMutex
	opened  bool
	opts    Options
	s3      *s3.Client
	timeout time.Duration
}

// New constructs an unopened Client.
func New() *Client { return &Client{} }

// Open builds the S3 client bound to endpoint (an S3-compatible COS
// endpoint URL) and opts. Mirrors CosClient::Open's acceptance of a
// "cos://..." URI by accepting any S3-API-compatible endpoint URL here.
func (c *Client) Open(ctx context.Context, endpoint string, opts Options) error {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(opts.SecretID, opts.SecretKey, "")),
	)
	if err != nil {
		return rpcerr.Wrap(rpcerr.KindIoError, err, "load aws config")
	}

	cl := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = &endpoint
		}
		o.UsePathStyle = true
	})

	c.mu.Lock()
	c.s3 = cl
	c.opts = opts
	c.timeout = opts.Timeout
	c.opened = true
	c.mu.Unlock()
	return nil
}

// Close marks the client not opened.
func (c *Client) Close() {
	c.mu.Lock()
	c.opened = false
	c.s3 = nil
	c.mu.Unlock()
}

func (c *Client) snapshot() (*s3.Client, Options, time.Duration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s3, c.opts, c.timeout, c.opened
}

// AsyncGetObject performs a GetObject against bucket (opts.Bucket if
// bucket is empty), mirroring CosClient::AsyncExecute's "not opened"
// short circuit and default-timeout fallback.
func (c *Client) AsyncGetObject(bucket, key string, timeout time.Duration) *future.Future[[]byte] {
	f := future.NewFuture[[]byte]()
	cl, opts, defTimeout, opened := c.snapshot()
	if !opened {
		f.SetError(rpcerr.ErrNotOpened)
		return f
	}
	if bucket == "" {
		bucket = opts.Bucket
	}
	if timeout <= 0 {
		timeout = defTimeout
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		out, err := cl.GetObject(ctx, &s3.GetObjectInput{Bucket: &bucket, Key: &key})
		if err != nil {
			f.SetError(rpcerr.Wrap(rpcerr.KindIoError, err, "cos get object"))
			return
		}
		defer out.Body.Close()
		body, err := io.ReadAll(out.Body)
		if err != nil {
			f.SetError(rpcerr.Wrap(rpcerr.KindIoError, err, "read cos object body"))
			return
		}
		f.Set(body)
	}()
	return f
}

// AsyncPutObject performs a PutObject of body against bucket (opts.Bucket
// if bucket is empty).
func (c *Client) AsyncPutObject(bucket, key string, body []byte, timeout time.Duration) *future.Future[struct{}] {
	f := future.NewFuture[struct{}]()
	cl, opts, defTimeout, opened := c.snapshot()
	if !opened {
		f.SetError(rpcerr.ErrNotOpened)
		return f
	}
	if bucket == "" {
		bucket = opts.Bucket
	}
	if timeout <= 0 {
		timeout = defTimeout
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		_, err := cl.PutObject(ctx, &s3.PutObjectInput{
			Bucket: &bucket,
			Key:    &key,
			Body:   bytes.NewReader(body),
		})
		if err != nil {
			f.SetError(rpcerr.Wrap(rpcerr.KindIoError, err, "cos put object"))
			return
		}
		f.Set(struct{}{})
	}()
	return f
}

// GetObject is the blocking rendering of CosClient::Execute.
func (c *Client) GetObject(bucket, key string, timeout time.Duration) ([]byte, error) {
	return c.AsyncGetObject(bucket, key, timeout).Get()
}

// PutObject is the blocking rendering of CosClient::Execute.
func (c *Client) PutObject(bucket, key string, body []byte, timeout time.Duration) error {
	_, err := c.AsyncPutObject(bucket, key, body, timeout).Get()
	return err
}
