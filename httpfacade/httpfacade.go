// Package httpfacade presents an HTTP endpoint as an external-collaborator
// client following the same Open/NotOpened contract as cosfacade and the
// core's own stream call gate: a Client is constructed closed and every
// call before a successful Open fails with rpcerr.ErrNotOpened, per
// spec.md §7.
//
// HTTP is not a wire protocol this module implements a Frame codec for
// (spec.md §1 lists it as an external collaborator, out of scope), so
// calls are exposed as future.Future[*http.Response] rather than routed
// through gate.StreamCallGate's Frame-typed FastCall — there is no
// protocol.Frame to allocate a correlation id against. The async
// future/BlockOn bridge is reused as-is, keeping this façade's calling
// convention identical to every gate-backed call in the core.
//
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package httpfacade

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/momentics/fiberpc/future"
	"github.com/momentics/fiberpc/rpcerr"
)

// Client wraps a retryablehttp.Client behind the NotOpened-before-Open
// contract. The zero value is not usable; construct with New.
type Client struct {
	baseURL string
	logger  hclog.Logger

	mu     sync.RWMutex
	opened bool
	inner  *retryablehttp.Client
}

// New constructs a Client bound to baseURL, not yet opened.
func New(baseURL string, logger hclog.Logger) *Client {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Client{baseURL: baseURL, logger: logger}
}

// Open constructs the underlying retry-capable HTTP client. Idempotent:
// calling Open again replaces the previous inner client with a fresh one
// built from the current RetryMax/RetryWaitMin/RetryWaitMax.
func (c *Client) Open(retryMax int, retryWaitMin, retryWaitMax time.Duration) error {
	inner := retryablehttp.NewClient()
	inner.RetryMax = retryMax
	inner.RetryWaitMin = retryWaitMin
	inner.RetryWaitMax = retryWaitMax
	inner.Logger = retryableLogAdapter{c.logger.Named("http")}

	c.mu.Lock()
	c.inner = inner
	c.opened = true
	c.mu.Unlock()
	return nil
}

// Close marks the client not opened; subsequent calls fail with
// rpcerr.ErrNotOpened until Open is called again.
func (c *Client) Close() {
	c.mu.Lock()
	c.opened = false
	c.inner = nil
	c.mu.Unlock()
}

// Do issues req asynchronously, returning a future resolved with the
// response once the retryablehttp client's retry loop settles (success,
// non-retryable error, or exhausted retries).
func (c *Client) Do(ctx context.Context, req *http.Request) *future.Future[*http.Response] {
	f := future.NewFuture[*http.Response]()

	c.mu.RLock()
	inner, opened := c.inner, c.opened
	c.mu.RUnlock()
	if !opened {
		f.SetError(rpcerr.ErrNotOpened)
		return f
	}

	rreq, err := retryablehttp.FromRequest(req.WithContext(ctx))
	if err != nil {
		f.SetError(rpcerr.Wrap(rpcerr.KindIoError, err, "build retryable request"))
		return f
	}

	go func() {
		resp, err := inner.Do(rreq)
		if err != nil {
			f.SetError(rpcerr.Wrap(rpcerr.KindIoError, err, "http request failed"))
			return
		}
		f.Set(resp)
	}()
	return f
}

// Get is a convenience wrapper over Do for a bodyless GET request: it
// reads the whole response body, closes it, and resolves with the body
// bytes, so callers never leak a connection by forgetting Body.Close.
func (c *Client) Get(ctx context.Context, path string) *future.Future[[]byte] {
	out := future.NewFuture[[]byte]()
	req, err := http.NewRequest(http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		out.SetError(rpcerr.Wrap(rpcerr.KindIoError, err, "build get request"))
		return out
	}
	go func() {
		resp, err := c.Do(ctx, req).Get()
		if err != nil {
			out.SetError(err)
			return
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			out.SetError(rpcerr.Wrap(rpcerr.KindIoError, err, "read response body"))
			return
		}
		out.Set(body)
	}()
	return out
}

// retryableLogAdapter bridges retryablehttp.LeveledLogger onto hclog,
// keeping every subsystem's logs structured through the one logging
// package instead of retryablehttp's default *log.Logger.
type retryableLogAdapter struct{ l hclog.Logger }

func (a retryableLogAdapter) Error(msg string, kv ...interface{}) { a.l.Error(msg, kv...) }
func (a retryableLogAdapter) Info(msg string, kv ...interface{})  { a.l.Info(msg, kv...) }
func (a retryableLogAdapter) Debug(msg string, kv ...interface{}) { a.l.Debug(msg, kv...) }
func (a retryableLogAdapter) Warn(msg string, kv ...interface{})  { a.l.Warn(msg, kv...) }
