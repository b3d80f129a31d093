// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDo_PassesResponseToCallback(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		io.WriteString(w, "hello")
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	var body string
	err = Do(context.Background(), ts.Client(), req, time.Second, func(resp *http.Response) error {
		b, err := io.ReadAll(resp.Body)
		body = string(b)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", body)
}

func TestDo_Non2xxIsStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/missing", nil)
	require.NoError(t, err)

	called := false
	err = Do(context.Background(), ts.Client(), req, time.Second, func(*http.Response) error {
		called = true
		return nil
	})

	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.False(t, called)
}

func TestDo_TimeoutIsError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	err = Do(context.Background(), ts.Client(), req, 50*time.Millisecond, func(*http.Response) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDo_SlowBodyWithinIdleLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		flusher := w.(http.Flusher)
		for i := 0; i < 6; i++ {
			io.WriteString(w, "chunk")
			flusher.Flush()
			time.Sleep(40 * time.Millisecond)
		}
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	var body []byte
	start := time.Now()
	err = Do(context.Background(), ts.Client(), req, 150*time.Millisecond, func(resp *http.Response) error {
		b, err := io.ReadAll(resp.Body)
		body = b
		return err
	})
	require.NoError(t, err)
	assert.Greater(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, strings.Repeat("chunk", 6), string(body))
}

func TestDo_StalledBodyTimesOut(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "partial")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer ts.Close()

	req, err := http.NewRequest(http.MethodGet, ts.URL, nil)
	require.NoError(t, err)

	err = Do(context.Background(), ts.Client(), req, 50*time.Millisecond, func(resp *http.Response) error {
		_, err := io.ReadAll(resp.Body)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPacer_SpacesCalls(t *testing.T) {
	p := NewPacer(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))
	require.NoError(t, p.Wait(ctx))

	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestPacer_DisabledNeverBlocks(t *testing.T) {
	p := NewPacer(0)
	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, p.Wait(context.Background()))
	}
	assert.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestPacer_ContextCancelled(t *testing.T) {
	p := NewPacer(time.Hour)
	require.NoError(t, p.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, p.Wait(ctx))
}
