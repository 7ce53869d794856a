// Package fetch downloads remote inputs.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"
)

// MaxBodySize bounds a downloaded script or document.
const MaxBodySize = 10 << 20

// Client wraps http.Client with retries and rate limiting.
type Client struct {
	HTTPClient  *http.Client
	RateLimiter *RateLimiter
	UserAgent   string
	MaxRetries  int
}

// NewClient creates a client sized for concurrency parallel downloads.
// rateLimit is in requests per second, 0 for unlimited.
func NewClient(timeout time.Duration, proxyURL string, concurrency int, rateLimit float64, userAgent string) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          concurrency * 2,
		MaxIdleConnsPerHost:   max(concurrency/2, 10),
		MaxConnsPerHost:       concurrency,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
	}
	if proxyURL != "" {
		if pURL, err := url.Parse(proxyURL); err == nil {
			transport.Proxy = http.ProxyURL(pURL)
		}
	}

	return &Client{
		HTTPClient:  &http.Client{Transport: transport, Timeout: timeout},
		RateLimiter: NewRateLimiter(rateLimit),
		UserAgent:   userAgent,
		MaxRetries:  3,
	}
}

// StatusError is returned for responses that are not 2xx.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: %d %s", e.URL, e.Status, http.StatusText(e.Status))
}

// Do sends a request, retrying network errors and 5xx responses with
// exponential backoff.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if err := c.RateLimiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	var resp *http.Response
	var err error
	for i := 0; i <= c.MaxRetries; i++ {
		if i > 0 {
			// 100ms, 200ms, 400ms
			backoff := time.Duration(math.Pow(2, float64(i-1))*100) * time.Millisecond
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(backoff):
			}
		}

		resp, err = c.HTTPClient.Do(req)
		if err == nil && resp.StatusCode < 500 {
			return resp, nil
		}
		if resp != nil {
			resp.Body.Close()
		}
		if req.Context().Err() != nil {
			return nil, req.Context().Err()
		}
	}

	if err != nil {
		return nil, fmt.Errorf("request failed after %d retries: %w", c.MaxRetries, err)
	}
	return resp, nil
}

// Get downloads the body of rawURL. Bodies over MaxBodySize are an error.
func (c *Client) Get(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	resp, err := c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &StatusError{URL: rawURL, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", rawURL, err)
	}
	if len(body) > MaxBodySize {
		return "", fmt.Errorf("%s: body larger than %d bytes", rawURL, MaxBodySize)
	}
	return string(body), nil
}
