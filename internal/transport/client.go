package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultUserAgent is sent when no explicit User-Agent is configured.
const DefaultUserAgent = "astra-console/1.0"

// Client is the interface for the HTTP transport layer. Every backend
// call goes through this interface.
type Client interface {
	// Do sends an HTTP request and returns the response.
	Do(ctx context.Context, req *Request) (*Response, error)

	// Stats returns a snapshot of the request counters.
	Stats() Stats
}

// Stats counts the requests a client has sent. Failures covers both
// requests that never got a response and responses outside 2xx.
type Stats struct {
	Requests    int64
	Failures    int64
	AvgDuration time.Duration
}

// ClientOptions holds configuration for creating a new DefaultClient.
type ClientOptions struct {
	// Timeout is the default timeout for all requests.
	Timeout time.Duration

	// ProxyURL is the proxy URL (HTTP or SOCKS5).
	ProxyURL string

	// InsecureSkipVerify disables TLS certificate verification.
	InsecureSkipVerify bool

	// UserAgent overrides DefaultUserAgent.
	UserAgent string

	// MaxRPS is the maximum requests per second (0 = unlimited).
	MaxRPS float64
}

// DefaultClient implements Client on net/http.
type DefaultClient struct {
	http      *http.Client
	userAgent string
	limiter   *rate.Limiter

	mu       sync.Mutex
	requests int64
	failures int64
	elapsed  time.Duration
}

// NewClient creates a new DefaultClient with the given options.
func NewClient(opts ClientOptions) (*DefaultClient, error) {
	rt := &http.Transport{
		TLSClientConfig:   &tls.Config{InsecureSkipVerify: opts.InsecureSkipVerify},
		ForceAttemptHTTP2: true,
	}
	if opts.ProxyURL != "" {
		proxy, err := url.Parse(opts.ProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid proxy URL: %w", err)
		}
		if proxy.Scheme == "" || proxy.Host == "" {
			return nil, fmt.Errorf("invalid proxy URL: missing scheme or host")
		}
		rt.Proxy = http.ProxyURL(proxy)
	}

	c := &DefaultClient{
		http:      &http.Client{Transport: rt, Timeout: opts.Timeout},
		userAgent: opts.UserAgent,
	}
	if c.userAgent == "" {
		c.userAgent = DefaultUserAgent
	}
	if opts.MaxRPS > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(opts.MaxRPS), 1)
	}
	return c, nil
}

// Do sends req and reads the whole body. Non-2xx responses are returned
// without error; the caller decides what a status means.
func (c *DefaultClient) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	httpReq, err := c.build(ctx, req)
	if err != nil {
		return nil, err
	}

	hc := c.http
	if req.Timeout > 0 {
		cc := *c.http
		cc.Timeout = req.Timeout
		hc = &cc
	}

	start := time.Now()
	httpResp, err := hc.Do(httpReq)
	if err != nil {
		c.count(time.Since(start), false)
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	elapsed := time.Since(start)
	if err != nil {
		c.count(elapsed, false)
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	resp := &Response{
		StatusCode: httpResp.StatusCode,
		Headers:    httpResp.Header,
		Body:       body,
		Duration:   elapsed,
		URL:        httpResp.Request.URL.String(),
	}
	c.count(elapsed, resp.OK())
	return resp, nil
}

// build turns req into an *http.Request carrying the JSON Accept header,
// the configured User-Agent and any per-request headers.
func (c *DefaultClient) build(ctx context.Context, req *Request) (*http.Request, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target, err := req.FullURL()
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}

	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", c.userAgent)
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	return httpReq, nil
}

func (c *DefaultClient) count(d time.Duration, ok bool) {
	c.mu.Lock()
	c.requests++
	c.elapsed += d
	if !ok {
		c.failures++
	}
	c.mu.Unlock()
}

// Stats returns the counters accumulated so far.
func (c *DefaultClient) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{Requests: c.requests, Failures: c.failures}
	if c.requests > 0 {
		s.AvgDuration = c.elapsed / time.Duration(c.requests)
	}
	return s
}
