package netcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/your-org/attendance/internal/config"
)

func TestCheck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(config.NetworkConfig{CheckURL: srv.URL})
	assert.NoError(t, c.Check(context.Background()))
}

func TestWait_RetriesUntilOnline(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Hijack and drop the connection so the client sees an error.
			if hj, ok := w.(http.Hijacker); ok {
				if conn, _, err := hj.Hijack(); err == nil {
					conn.Close()
				}
			}
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(config.NetworkConfig{CheckURL: srv.URL, RetryDelay: 5 * time.Millisecond, Timeout: time.Second})
	require.NoError(t, c.Wait(context.Background()))
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestWait_Cancelled(t *testing.T) {
	c := New(config.NetworkConfig{CheckURL: "http://127.0.0.1:1", RetryDelay: time.Hour, Timeout: 100 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
}

func TestNew_Defaults(t *testing.T) {
	c := New(config.NetworkConfig{})
	assert.Equal(t, DefaultURL, c.url)
	assert.Equal(t, DefaultRetryDelay, c.retryDelay)
	assert.Equal(t, DefaultTimeout, c.client.Timeout)
}
