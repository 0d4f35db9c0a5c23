package transport

import (
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Helper: create a default test client
// ---------------------------------------------------------------------------

func newTestClient(t *testing.T) *DefaultClient {
	t.Helper()
	c, err := NewClient(ClientOptions{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

// ---------------------------------------------------------------------------
// Basic GET
// ---------------------------------------------------------------------------

func TestBasicGET(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("expected GET, got %s", r.Method)
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), &Request{
		URL: srv.URL + "/api/scans",
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
	}
	if !resp.OK() {
		t.Error("OK() = false, want true")
	}
	if resp.BodyString() != `{"ok":true}` {
		t.Errorf("Body = %q", resp.BodyString())
	}
}

// ---------------------------------------------------------------------------
// POST with body
// ---------------------------------------------------------------------------

func TestPOSTWithBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		body, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		w.Write(body)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), &Request{
		Method:      "POST",
		URL:         srv.URL + "/api/login",
		Body:        `{"username":"alice"}`,
		ContentType: "application/json",
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.BodyString() != `{"username":"alice"}` {
		t.Errorf("Body = %q", resp.BodyString())
	}
}

// ---------------------------------------------------------------------------
// Query merging
// ---------------------------------------------------------------------------

func TestQueryIsEncoded(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL.Query().Get("q")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Do(context.Background(), &Request{
		URL:   srv.URL + "/api/chat",
		Query: url.Values{"q": {"what about CVE-2024-1234 & friends?"}},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "what about CVE-2024-1234 & friends?" {
		t.Errorf("q = %q", got)
	}
}

func TestFullURLKeepsExistingQuery(t *testing.T) {
	r := &Request{
		URL:   "http://example.com/api/chat?lang=en",
		Query: url.Values{"q": {"hi"}},
	}
	full, err := r.FullURL()
	if err != nil {
		t.Fatalf("FullURL: %v", err)
	}
	u, _ := url.Parse(full)
	if u.Query().Get("lang") != "en" || u.Query().Get("q") != "hi" {
		t.Errorf("FullURL = %q", full)
	}
}

// ---------------------------------------------------------------------------
// Custom headers and User-Agent
// ---------------------------------------------------------------------------

func TestCustomHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization header = %q, want %q", got, "Bearer tok")
		}
		if got := r.Header.Get("User-Agent"); got != DefaultUserAgent {
			t.Errorf("User-Agent = %q, want %q", got, DefaultUserAgent)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	_, err := c.Do(context.Background(), &Request{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer tok"},
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
}

func TestConfiguredUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c, _ := NewClient(ClientOptions{Timeout: 5 * time.Second, UserAgent: "soc-bot/2"})
	if _, err := c.Do(context.Background(), &Request{URL: srv.URL}); err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "soc-bot/2" {
		t.Errorf("User-Agent = %q, want %q", got, "soc-bot/2")
	}
}

// ---------------------------------------------------------------------------
// Response timing measurement
// ---------------------------------------------------------------------------

func TestResponseTimingMeasurement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	resp, err := c.Do(context.Background(), &Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if resp.Duration < 40*time.Millisecond {
		t.Errorf("Duration = %v, expected at least ~50ms", resp.Duration)
	}
}

// ---------------------------------------------------------------------------
// Proxy configuration
// ---------------------------------------------------------------------------

func TestInvalidProxy(t *testing.T) {
	if _, err := NewClient(ClientOptions{ProxyURL: "127.0.0.1"}); err == nil {
		t.Error("expected error for proxy URL without scheme")
	}
	if _, err := NewClient(ClientOptions{ProxyURL: "http://127.0.0.1:8080"}); err != nil {
		t.Errorf("valid proxy URL rejected: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Status code handling
// ---------------------------------------------------------------------------

func TestStatusCodeHandling(t *testing.T) {
	codes := []int{200, 401, 404, 500, 503}
	for _, code := range codes {
		t.Run(fmt.Sprintf("status_%d", code), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(code)
			}))
			defer srv.Close()

			c := newTestClient(t)
			resp, err := c.Do(context.Background(), &Request{URL: srv.URL})
			if err != nil {
				t.Fatalf("Do: %v", err)
			}
			if resp.StatusCode != code {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, code)
			}
			if resp.OK() != (code == 200) {
				t.Errorf("OK() = %v for %d", resp.OK(), code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Timeout handling
// ---------------------------------------------------------------------------

func TestTimeoutHandling(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewClient(ClientOptions{
		Timeout: 100 * time.Millisecond,
	})
	_, err := c.Do(context.Background(), &Request{URL: srv.URL})
	if err == nil {
		t.Error("expected timeout error, got nil")
	}
}

func TestPerRequestTimeoutOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	// Client has 5s timeout, but per-request overrides to 100ms.
	c, _ := NewClient(ClientOptions{
		Timeout: 5 * time.Second,
	})
	_, err := c.Do(context.Background(), &Request{
		URL:     srv.URL,
		Timeout: 100 * time.Millisecond,
	})
	if err == nil {
		t.Error("expected timeout error from per-request override, got nil")
	}
}

// ---------------------------------------------------------------------------
// Stats tracking
// ---------------------------------------------------------------------------

func TestStatsTracking(t *testing.T) {
	var reqCount atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := reqCount.Add(1)
		time.Sleep(10 * time.Millisecond)
		if n > 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t)
	if s := c.Stats(); s.Requests != 0 || s.AvgDuration != 0 {
		t.Errorf("fresh client stats = %+v", s)
	}
	for i := 0; i < 5; i++ {
		if _, err := c.Do(context.Background(), &Request{URL: srv.URL}); err != nil {
			t.Fatalf("Do #%d: %v", i, err)
		}
	}

	stats := c.Stats()
	if stats.Requests != 5 {
		t.Errorf("Requests = %d, want 5", stats.Requests)
	}
	if stats.Failures != 2 {
		t.Errorf("Failures = %d, want 2 (the 502 responses)", stats.Failures)
	}
	if stats.AvgDuration <= 0 {
		t.Errorf("AvgDuration = %v, want > 0", stats.AvgDuration)
	}
}

func TestStatsCountTransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	target := srv.URL
	srv.Close()

	c := newTestClient(t)
	if _, err := c.Do(context.Background(), &Request{URL: target}); err == nil {
		t.Fatal("Do against a closed server succeeded")
	}
	if s := c.Stats(); s.Requests != 1 || s.Failures != 1 {
		t.Errorf("stats = %+v, want 1 request 1 failure", s)
	}
}

// ---------------------------------------------------------------------------
// TLS InsecureSkipVerify actually works with self-signed cert
// ---------------------------------------------------------------------------

func TestTLSInsecureSkipVerifyWithHTTPS(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "secure")
	}))
	defer srv.Close()

	cStrict, _ := NewClient(ClientOptions{Timeout: 5 * time.Second})
	if _, err := cStrict.Do(context.Background(), &Request{URL: srv.URL}); err == nil {
		t.Error("expected TLS error with strict verification, got nil")
	}

	cInsecure, _ := NewClient(ClientOptions{
		Timeout:            5 * time.Second,
		InsecureSkipVerify: true,
	})
	resp, err := cInsecure.Do(context.Background(), &Request{URL: srv.URL})
	if err != nil {
		t.Fatalf("Do with InsecureSkipVerify: %v", err)
	}
	if resp.BodyString() != "secure" {
		t.Errorf("Body = %q, want %q", resp.BodyString(), "secure")
	}
}

// ---------------------------------------------------------------------------
// Rate limiting
// ---------------------------------------------------------------------------

func TestMaxRPS(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, _ := NewClient(ClientOptions{Timeout: 5 * time.Second, MaxRPS: 10})

	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := c.Do(context.Background(), &Request{URL: srv.URL}); err != nil {
			t.Fatalf("Do #%d: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// At 10 RPS, 5 requests take at least ~400ms (first is immediate).
	if elapsed < 300*time.Millisecond {
		t.Errorf("5 requests at 10 RPS took %v, expected at least ~400ms", elapsed)
	}
}

// ---------------------------------------------------------------------------
// Context cancellation
// ---------------------------------------------------------------------------

func TestContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer srv.Close()

	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.Do(ctx, &Request{URL: srv.URL}); err == nil {
		t.Error("expected context cancellation error, got nil")
	}
}

func TestClientInterfaceSatisfaction(t *testing.T) {
	var _ Client = (*DefaultClient)(nil)
}

// ---------------------------------------------------------------------------
// Multipart bodies
// ---------------------------------------------------------------------------

func TestMultipartFile(t *testing.T) {
	var (
		gotName    string
		gotType    string
		gotContent string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
			return
		}
		mr := multipart.NewReader(r.Body, params["boundary"])
		part, err := mr.NextPart()
		if err != nil {
			t.Errorf("NextPart: %v", err)
			return
		}
		if part.FormName() != "file" {
			t.Errorf("FormName = %q, want file", part.FormName())
		}
		gotName = part.FileName()
		gotType = part.Header.Get("Content-Type")
		b, _ := io.ReadAll(part)
		gotContent = string(b)
	}))
	defer srv.Close()

	body, ct, err := MultipartFile("file", "scan.json", "application/json", strings.NewReader(`{"hosts":1}`))
	if err != nil {
		t.Fatalf("MultipartFile: %v", err)
	}

	c := newTestClient(t)
	if _, err := c.Do(context.Background(), &Request{
		Method:      http.MethodPost,
		URL:         srv.URL,
		Body:        body,
		ContentType: ct,
	}); err != nil {
		t.Fatalf("Do: %v", err)
	}

	if gotName != "scan.json" {
		t.Errorf("filename = %q", gotName)
	}
	if gotType != "application/json" {
		t.Errorf("part Content-Type = %q", gotType)
	}
	if gotContent != `{"hosts":1}` {
		t.Errorf("content = %q", gotContent)
	}
}

func TestMultipartFileDefaultsPartType(t *testing.T) {
	body, _, err := MultipartFile("file", "blob", "", strings.NewReader("x"))
	if err != nil {
		t.Fatalf("MultipartFile: %v", err)
	}
	if !strings.Contains(body, "Content-Type: application/octet-stream") {
		t.Errorf("body missing default part type:\n%s", body)
	}
}
