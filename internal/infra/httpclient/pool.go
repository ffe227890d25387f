package httpclient

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// sharedTransport is reused across all pooled clients to maximize connection reuse.
var sharedTransport = &http.Transport{
	Proxy:               http.ProxyFromEnvironment,
	MaxIdleConns:        20,
	MaxIdleConnsPerHost: 10,
	IdleConnTimeout:     120 * time.Second,
	DisableKeepAlives:   false,
}

// NewPooledClient creates an http.Client that shares a connection pool with other pooled clients.
func NewPooledClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: sharedTransport,
	}
}

// NewRateLimitedClient is a pooled client whose requests wait on a token bucket.
// A non-positive rps disables limiting.
func NewRateLimitedClient(timeout time.Duration, rps float64, burst int) *http.Client {
	client := NewPooledClient(timeout)
	if rps <= 0 {
		return client
	}
	client.Transport = NewRateLimitedTransport(sharedTransport, rate.NewLimiter(rate.Limit(rps), max(burst, 1)))
	return client
}

// RateLimitedTransport delays each request until the limiter grants a token.
type RateLimitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func NewRateLimitedTransport(next http.RoundTripper, limiter *rate.Limiter) *RateLimitedTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	return &RateLimitedTransport{next: next, limiter: limiter}
}

func (t *RateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return t.next.RoundTrip(req)
}
