package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const maxResponseBodySize = 1 << 20 // 1MB

// connection pooling limits to prevent resource exhaustion when polling many sources
const (
	defaultMaxIdleConns        = 100
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 10
	defaultIdleConnTimeout     = 60 * time.Second // conservative: matches common ALB defaults
)

// Response holds the result of an HTTP request made by a [Transport].
//
// Response captures the body, status code, latency, and any transport error
// that occurred. Bodies over 1MB are dropped and reported as [ErrBodyTooLarge].
type Response struct {
	// Body contains the HTTP response body. It is nil when the body exceeds 1MB.
	Body []byte

	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Latency is the total time taken for the request.
	Latency time.Duration

	// Error contains any error that occurred during the request.
	// nil indicates the request completed (though status may indicate an error).
	Error error
}

// Transport performs a single HTTP request.
//
// Implementations must never panic and must report failures through
// [Response.Error] rather than a separate return value.
type Transport interface {
	Fetch(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) Response
}

// Client is the default [Transport], a resty client tuned for polling.
//
// Client uses per-request timeouts via context rather than a global timeout,
// allowing different sources to have different timeout configurations.
// Resty's own retry support is left disabled; retries belong to [Fetcher].
type Client struct {
	rc *resty.Client
}

// NewClient creates a new polling [Client].
//
// Connection pooling configuration:
//   - MaxIdleConns: 100 total idle connections
//   - MaxIdleConnsPerHost: 10 idle connections per host
//   - MaxConnsPerHost: 10 concurrent connections per host
//   - IdleConnTimeout: 60 seconds before closing idle connections
func NewClient() *Client {
	rc := resty.New().
		SetTransport(&http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        defaultMaxIdleConns,
			MaxIdleConnsPerHost: defaultMaxIdleConnsPerHost,
			MaxConnsPerHost:     defaultMaxConnsPerHost,
			IdleConnTimeout:     defaultIdleConnTimeout,
		}).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{rc: rc}
}

// Fetch performs an HTTP request and returns a structured [Response].
//
// If method is empty, GET is used. The timeout is applied via context
// cancellation. Response bodies are limited to 1MB; a larger body is
// reported as [ErrBodyTooLarge].
func (c *Client) Fetch(ctx context.Context, method, url string, headers map[string]string, timeout time.Duration) Response {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	if method == "" {
		method = http.MethodGet
	}

	// stream the body ourselves so the size limit applies before buffering
	resp, err := c.rc.R().
		SetContext(ctx).
		SetHeaders(headers).
		SetDoNotParseResponse(true).
		Execute(method, url)
	if err != nil {
		if resp != nil && resp.RawBody() != nil {
			_ = resp.RawBody().Close()
		}
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("request failed: %w", err),
		}
	}

	raw := resp.RawBody()
	if raw == nil {
		return Response{
			StatusCode: resp.StatusCode(),
			Latency:    time.Since(start),
		}
	}
	defer func() { _ = raw.Close() }()

	// one byte past the limit tells a full body from an oversized one
	body, err := io.ReadAll(io.LimitReader(raw, maxResponseBodySize+1))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode(),
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}
	if len(body) > maxResponseBodySize {
		return Response{
			StatusCode: resp.StatusCode(),
			Latency:    time.Since(start),
			Error:      ErrBodyTooLarge,
		}
	}

	return Response{
		Body:       body,
		StatusCode: resp.StatusCode(),
		Latency:    time.Since(start),
	}
}

// Close closes all idle connections in the client's connection pool.
//
// Safe to call multiple times. After Close, the client remains usable but
// new connections will be established as needed.
func (c *Client) Close() {
	if c == nil || c.rc == nil {
		return
	}
	c.rc.GetClient().CloseIdleConnections()
}
