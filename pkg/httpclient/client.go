// Package httpclient is the outbound HTTP stack for downstream services:
// a pooled client with an optional token-bucket rate limit, a circuit
// breaker on top, and translation of error answers into AppErrors. It never
// retries; retrying belongs to the caller's retry policy.
package httpclient

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"
)

// Config sizes a Client.
type Config struct {
	// Timeout bounds one request including reading the body.
	Timeout         time.Duration
	MaxConnsPerHost int
	// RateLimit is requests per second; zero means unlimited.
	RateLimit float64
	Burst     int
	// UserAgent is sent when the request has none.
	UserAgent string
}

var rateLimitWait = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "http_client_rate_limit_wait_seconds",
	Help:    "Time outbound requests spent waiting for the rate limiter",
	Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
})

// Client sends single requests.
type Client struct {
	http      *http.Client
	limiter   *rate.Limiter
	userAgent string
}

func New(cfg Config) *Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          cfg.MaxConnsPerHost * 2,
		MaxIdleConnsPerHost:   cfg.MaxConnsPerHost,
		MaxConnsPerHost:       cfg.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: time.Second,
	}

	c := &Client{
		http:      &http.Client{Transport: transport, Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
	if cfg.RateLimit > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.Burst, 1))
	}
	return c
}

// Do waits for a rate-limit token, then sends req once under ctx. Non-2xx
// answers are returned as responses, not errors.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		start := time.Now()
		err := c.limiter.Wait(ctx)
		rateLimitWait.Observe(time.Since(start).Seconds())
		if err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	resp, err := c.http.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	return resp, nil
}
