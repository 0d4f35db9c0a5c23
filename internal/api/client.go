package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/0x6d61/astra/internal/transport"
)

// Endpoint paths, relative to the server base URL.
const (
	PathLogin           = "/api/login"
	PathDashboardStats  = "/api/dashboard/stats"
	PathScans           = "/api/scans"
	PathVulnerabilities = "/api/vulnerabilities"
	PathUpload          = "/api/upload"
	PathChat            = "/api/chat"
)

// UploadField is the multipart field name carrying the file.
const UploadField = "file"

// maxErrorBody bounds how much of an error body is echoed into messages.
const maxErrorBody = 200

// Client calls the ASTRA backend.
type Client struct {
	base string
	http transport.Client

	mu    sync.RWMutex
	token string
}

// New returns a Client for the server at baseURL.
func New(baseURL string, tc transport.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("api: invalid server URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api: server URL must be http or https, got %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("api: server URL has no host: %q", baseURL)
	}
	if tc == nil {
		return nil, fmt.Errorf("api: nil transport client")
	}
	return &Client{
		base: strings.TrimRight(u.String(), "/"),
		http: tc,
	}, nil
}

// BaseURL returns the normalised server URL.
func (c *Client) BaseURL() string { return c.base }

// SetToken sets the bearer token sent with every subsequent request.
// An empty token stops sending the Authorization header.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Login authenticates. 401 and 403 map to *AuthenticationError.
func (c *Client) Login(ctx context.Context, creds Credentials) (*LoginResponse, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	creds.Role, _ = ParseRole(string(creds.Role))

	req, err := c.jsonRequest(http.MethodPost, PathLogin, creds)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, &TransientNetworkError{Op: "login", Err: err}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &AuthenticationError{StatusCode: resp.StatusCode, Message: errorDetail(resp.Body)}
	}

	var out LoginResponse
	if err := decode("login", resp, &out); err != nil {
		return nil, err
	}
	if out.User == "" {
		out.User = creds.Username
	}
	if out.Role == "" {
		out.Role = creds.Role
	}
	return &out, nil
}

// DashboardStats fetches the dashboard aggregate.
func (c *Client) DashboardStats(ctx context.Context) (*DashboardStats, error) {
	var out DashboardStats
	if err := c.get(ctx, "dashboard stats", PathDashboardStats, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListScans fetches scan jobs, newest first.
func (c *Client) ListScans(ctx context.Context) ([]ScanJob, error) {
	var out []ScanJob
	if err := c.get(ctx, "list scans", PathScans, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SubmitScan starts a scan and returns the job the backend created.
func (c *Client) SubmitScan(ctx context.Context, sr ScanRequest) (*ScanJob, error) {
	sr, err := sr.Normalize()
	if err != nil {
		return nil, err
	}
	req, err := c.jsonRequest(http.MethodPost, PathScans, sr)
	if err != nil {
		return nil, err
	}
	var out ScanJob
	if err := c.do(ctx, "submit scan", req, &out); err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, &TransientNetworkError{Op: "submit scan", Err: fmt.Errorf("response carries no job id")}
	}
	// The create response may omit fields the request already determines.
	if out.Tool == "" {
		out.Tool = sr.Tool
	}
	if out.Target == "" {
		out.Target = sr.Target
	}
	if out.Options == "" {
		out.Options = sr.Options
	}
	return &out, nil
}

// ListVulnerabilities fetches the vulnerability report.
func (c *Client) ListVulnerabilities(ctx context.Context) ([]Vulnerability, error) {
	var out []Vulnerability
	if err := c.get(ctx, "list vulnerabilities", PathVulnerabilities, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Upload sends one file as multipart form data.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader) (*UploadedFile, error) {
	if strings.TrimSpace(filename) == "" {
		return nil, &ValidationError{Field: "filename", Reason: "is required"}
	}
	body, ct, err := transport.MultipartFile(UploadField, filename, contentType, r)
	if err != nil {
		return nil, fmt.Errorf("upload %s: %w", filename, err)
	}
	req := c.request(http.MethodPost, PathUpload)
	req.Body = body
	req.ContentType = ct

	var out UploadedFile
	if err := c.do(ctx, "upload "+filename, req, &out); err != nil {
		return nil, err
	}
	if out.Filename == "" {
		out.Filename = filename
	}
	return &out, nil
}

// Chat sends one query to the assistant.
func (c *Client) Chat(ctx context.Context, q string) (*ChatReply, error) {
	if strings.TrimSpace(q) == "" {
		return nil, &ValidationError{Field: "q", Reason: "is required"}
	}
	var out ChatReply
	if err := c.get(ctx, "chat", PathChat, url.Values{"q": {q}}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values, out any) error {
	req := c.request(http.MethodGet, path)
	req.Query = query
	return c.do(ctx, op, req, out)
}

func (c *Client) request(method, path string) *transport.Request {
	req := &transport.Request{
		Method: method,
		URL:    c.base + path,
	}
	c.mu.RLock()
	if c.token != "" {
		req.Headers = map[string]string{"Authorization": "Bearer " + c.token}
	}
	c.mu.RUnlock()
	return req
}

func (c *Client) jsonRequest(method, path string, in any) (*transport.Request, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("api: encode %s body: %w", path, err)
	}
	req := c.request(method, path)
	req.Body = string(b)
	req.ContentType = "application/json"
	return req, nil
}

func (c *Client) do(ctx context.Context, op string, req *transport.Request, out any) error {
	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return &TransientNetworkError{Op: op, Err: err}
	}
	return decode(op, resp, out)
}

func decode(op string, resp *transport.Response, out any) error {
	if !resp.OK() {
		var detail error
		if msg := errorDetail(resp.Body); msg != "" {
			detail = fmt.Errorf("%s", msg)
		}
		return &TransientNetworkError{Op: op, StatusCode: resp.StatusCode, Err: detail}
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return &TransientNetworkError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// errorDetail extracts FastAPI-style {"detail": ...} messages, falling back
// to a truncated raw body.
func errorDetail(body []byte) string {
	var env struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Detail != nil {
		if s, ok := env.Detail.(string); ok {
			return s
		}
		b, _ := json.Marshal(env.Detail)
		return string(b)
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
