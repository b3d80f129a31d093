// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides HTTP helpers shared across resolvers.
package httputil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	Code int
	URL  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d from %s", e.Code, e.URL)
}

// CheckStatus returns a *StatusError when resp is not a 2xx response. The
// body is drained so the connection can be reused; the caller still closes it.
func CheckStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	return &StatusError{Code: resp.StatusCode, URL: resp.Request.URL.String()}
}

// Do sends req and hands the response to fn. timeout is an idle limit: the
// request fails with context.DeadlineExceeded when no response headers
// arrive within timeout, or when a read of the body waits longer than
// timeout. A body that keeps arriving is never cut off. Non-2xx responses
// are reported as *StatusError without calling fn. A zero timeout leaves the
// request bound only by ctx and the client.
func Do(ctx context.Context, client *http.Client, req *http.Request, timeout time.Duration, fn func(*http.Response) error) error {
	if timeout <= 0 {
		resp, err := client.Do(req.WithContext(ctx))
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if err := CheckStatus(resp); err != nil {
			return err
		}
		return fn(resp)
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	timer := time.AfterFunc(timeout, func() { cancel(errIdleTimeout) })
	defer timer.Stop()

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return idleError(ctx, err, timeout)
	}
	defer resp.Body.Close()

	if err := CheckStatus(resp); err != nil {
		return idleError(ctx, err, timeout)
	}
	resp.Body = &idleReader{ReadCloser: resp.Body, timer: timer, timeout: timeout}
	return idleError(ctx, fn(resp), timeout)
}

var errIdleTimeout = errors.New("idle timeout")

func idleError(ctx context.Context, err error, timeout time.Duration) error {
	if err != nil && errors.Is(context.Cause(ctx), errIdleTimeout) {
		return fmt.Errorf("no data from server for %s: %w", timeout, context.DeadlineExceeded)
	}
	return err
}

// idleReader pushes the idle deadline forward on every read.
type idleReader struct {
	io.ReadCloser
	timer   *time.Timer
	timeout time.Duration
}

func (r *idleReader) Read(p []byte) (int, error) {
	r.timer.Reset(r.timeout)
	n, err := r.ReadCloser.Read(p)
	r.timer.Reset(r.timeout)
	return n, err
}

// Pacer spaces consecutive calls to Wait at least interval apart. The first
// call never blocks.
type Pacer struct {
	limiter *rate.Limiter
}

// NewPacer returns a Pacer for interval. A non-positive interval disables
// pacing.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return &Pacer{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	return &Pacer{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Wait blocks until the next call is allowed or ctx is done.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}
