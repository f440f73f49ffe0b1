package netcheck

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/your-org/attendance/internal/config"
	"github.com/your-org/attendance/internal/observability"
)

const (
	DefaultURL        = "https://www.google.com"
	DefaultTimeout    = 5 * time.Second
	DefaultRetryDelay = 60 * time.Second
)

// Checker probes a well-known URL to decide whether the host is online.
type Checker struct {
	url        string
	retryDelay time.Duration
	client     *http.Client
}

func New(cfg config.NetworkConfig) *Checker {
	url := cfg.CheckURL
	if url == "" {
		url = DefaultURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	return &Checker{
		url:        url,
		retryDelay: delay,
		client:     &http.Client{Timeout: timeout},
	}
}

// Check performs one probe. Any HTTP response counts as online.
func (c *Checker) Check(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("probe %s: %w", c.url, err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	return nil
}

// Wait blocks until a probe succeeds, retrying with a fixed delay. Only
// ctx cancellation ends it early.
func (c *Checker) Wait(ctx context.Context) error {
	for attempt := 1; ; attempt++ {
		err := c.Check(ctx)
		if err == nil {
			observability.NetworkOnline.Set(1)
			slog.Info("network reachable", "url", c.url, "attempts", attempt)
			return nil
		}
		observability.NetworkOnline.Set(0)
		slog.Warn("network unreachable, retrying", "url", c.url, "attempt", attempt, "retry_in", c.retryDelay, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.retryDelay):
		}
	}
}
