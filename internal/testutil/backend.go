// Package testutil provides an in-process mock of the ASTRA backend for
// tests. It serves every endpoint the console uses with deterministic
// data, counts requests per route, and exposes knobs for latency,
// failures and held requests so ordering and stale-completion behaviour
// can be exercised.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"
)

// Route keys as used by Count, SetStatus, SetDelay and Hold.
const (
	RouteLogin           = "POST /api/login"
	RouteDashboardStats  = "GET /api/dashboard/stats"
	RouteListScans       = "GET /api/scans"
	RouteSubmitScan      = "POST /api/scans"
	RouteVulnerabilities = "GET /api/vulnerabilities"
	RouteUpload          = "POST /api/upload"
	RouteChat            = "GET /api/chat"
)

// RejectedPassword is refused by the login handler with 401.
const RejectedPassword = "wrong"

// chatAnswerPrefix prefixes every chat response; the rest echoes the query.
const chatAnswerPrefix = "answer: "

// ChatReferences is returned with every chat response.
var ChatReferences = []string{"CVE-2024-1234", "NIST-800-53"}

var severities = []string{"Critical", "High", "Medium", "Low"}
var statuses = []string{"Open", "Patched", "Investigating"}
var tools = []string{"Nmap", "OpenVAS", "Nessus", "Nikto", "Nuclei"}
var scanStates = []string{"Completed", "Running", "Failed"}

// Backend is a mock ASTRA server.
type Backend struct {
	srv *httptest.Server

	// RequireAuth makes every route except login demand the bearer token
	// handed out at login.
	RequireAuth bool

	// VulnerabilityCount controls the size of /api/vulnerabilities.
	VulnerabilityCount int

	mu          sync.Mutex
	counts      map[string]int
	status      map[string]int
	delay       map[string]time.Duration
	holds       map[string]chan struct{}
	uploadDelay map[string]time.Duration
	uploadFail  map[string]bool
	chatDelay   map[string]time.Duration
	nextScanID  int
	tokens      map[string]bool
	inflight    map[string]int
	maxInflight map[string]int
}

// NewBackend starts a mock backend. Close it when done.
func NewBackend() *Backend {
	b := &Backend{
		VulnerabilityCount: 50,
		counts:             make(map[string]int),
		status:             make(map[string]int),
		delay:              make(map[string]time.Duration),
		holds:              make(map[string]chan struct{}),
		uploadDelay:        make(map[string]time.Duration),
		uploadFail:         make(map[string]bool),
		chatDelay:          make(map[string]time.Duration),
		nextScanID:         1000,
		tokens:             make(map[string]bool),
		inflight:           make(map[string]int),
		maxInflight:        make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(RouteLogin, b.wrap(RouteLogin, b.handleLogin))
	mux.HandleFunc(RouteDashboardStats, b.wrap(RouteDashboardStats, b.handleStats))
	mux.HandleFunc(RouteListScans, b.wrap(RouteListScans, b.handleListScans))
	mux.HandleFunc(RouteSubmitScan, b.wrap(RouteSubmitScan, b.handleSubmitScan))
	mux.HandleFunc(RouteVulnerabilities, b.wrap(RouteVulnerabilities, b.handleVulnerabilities))
	mux.HandleFunc(RouteUpload, b.wrap(RouteUpload, b.handleUpload))
	mux.HandleFunc(RouteChat, b.wrap(RouteChat, b.handleChat))

	b.srv = httptest.NewServer(mux)
	return b
}

// URL returns the server base URL.
func (b *Backend) URL() string { return b.srv.URL }

// Close releases held requests and shuts the server down.
func (b *Backend) Close() {
	b.mu.Lock()
	for route, ch := range b.holds {
		close(ch)
		delete(b.holds, route)
	}
	b.mu.Unlock()
	b.srv.Close()
}

// Count returns how many requests reached route.
func (b *Backend) Count(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts[route]
}

// MaxInflight returns the highest number of concurrent requests seen on route.
func (b *Backend) MaxInflight(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxInflight[route]
}

// SetStatus makes route answer with status (and no useful body). Zero
// restores normal handling.
func (b *Backend) SetStatus(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.status, route)
		return
	}
	b.status[route] = status
}

// SetDelay delays every response on route.
func (b *Backend) SetDelay(route string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.delay[route] = d
}

// Hold parks requests on route until the returned release func is called.
func (b *Backend) Hold(route string) (release func()) {
	ch := make(chan struct{})
	b.mu.Lock()
	b.holds[route] = ch
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			owned := b.holds[route] == ch
			if owned {
				delete(b.holds, route)
			}
			b.mu.Unlock()
			if owned {
				close(ch)
			}
		})
	}
}

// SetUploadDelay delays the upload of filename.
func (b *Backend) SetUploadDelay(filename string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadDelay[filename] = d
}

// FailUpload makes the upload of filename answer 500.
func (b *Backend) FailUpload(filename string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.uploadFail[filename] = true
}

// SetChatDelay delays the answer to query q.
func (b *Backend) SetChatDelay(q string, d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.chatDelay[q] = d
}

// ChatAnswer is the response text the backend gives for q.
func ChatAnswer(q string) string { return chatAnswerPrefix + q }

func (b *Backend) wrap(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.counts[route]++
		b.inflight[route]++
		if b.inflight[route] > b.maxInflight[route] {
			b.maxInflight[route] = b.inflight[route]
		}
		status := b.status[route]
		delay := b.delay[route]
		hold := b.holds[route]
		requireAuth := b.RequireAuth && route != RouteLogin
		authorized := b.tokens[strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")]
		b.mu.Unlock()

		defer func() {
			b.mu.Lock()
			b.inflight[route]--
			b.mu.Unlock()
		}()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if delay > 0 {
			sleep(r, delay)
		}
		if requireAuth && !authorized {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not authenticated"})
			return
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"detail": http.StatusText(status)})
			return
		}
		h(w, r)
	}
}

func sleep(r *http.Request, d time.Duration) {
	select {
	case <-time.After(d):
	case <-r.Context().Done():
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Role     string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": err.Error()})
		return
	}
	if req.Password == RejectedPassword {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "invalid credentials"})
		return
	}
	token := "mock-token-" + req.Username
	b.mu.Lock()
	b.tokens[token] = true
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{
		"token": token,
		"role":  req.Role,
		"user":  req.Username,
	})
}

func (b *Backend) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]map[string]int{
		"vulnerabilities": {"total": 1247, "critical": 23, "high": 156, "medium": 489, "low": 579},
		"threats":         {"active": 12, "mitigated": 45, "investigating": 8},
		"ids_alerts":      {"today": 89, "week": 567, "month": 2341},
		"scan_status":     {"running": 3, "completed": 156, "failed": 2},
	})
}

func (b *Backend) handleListScans(w http.ResponseWriter, _ *http.Request) {
	base := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	scans := make([]map[string]any, 0, 20)
	for i := 0; i < 20; i++ {
		scans = append(scans, map[string]any{
			"id":     i,
			"tool":   tools[i%len(tools)],
			"target": fmt.Sprintf("192.168.1.%d", i+1),
			"status": scanStates[i%len(scanStates)],
			// zone-less, as the real backend emits
			"timestamp": base.Add(-time.Duration(i) * time.Hour).Format("2006-01-02T15:04:05.000000"),
		})
	}
	writeJSON(w, http.StatusOK, scans)
}

func (b *Backend) handleSubmitScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tool    string `json:"tool"`
		Target  string `json:"target"`
		Options string `json:"options"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Target == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "target required"})
		return
	}
	b.mu.Lock()
	id := b.nextScanID
	b.nextScanID++
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{
		"id":     id,
		"status": "Started",
		"tool":   req.Tool,
		"target": req.Target,
	})
}

func (b *Backend) handleVulnerabilities(w http.ResponseWriter, _ *http.Request) {
	b.mu.Lock()
	n := b.VulnerabilityCount
	b.mu.Unlock()
	vulns := make([]map[string]any, 0, n)
	for i := 0; i < n; i++ {
		vulns = append(vulns, map[string]any{
			"id":       fmt.Sprintf("CVE-2024-%d", 1000+i),
			"severity": severities[i%len(severities)],
			"score":    float64((i*37)%91+10) / 10,
			"status":   statuses[i%len(statuses)],
		})
	}
	writeJSON(w, http.StatusOK, vulns)
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "file field required"})
		return
	}
	defer file.Close()
	content, _ := io.ReadAll(file)

	b.mu.Lock()
	delay := b.uploadDelay[header.Filename]
	fail := b.uploadFail[header.Filename]
	b.mu.Unlock()

	if delay > 0 {
		sleep(r, delay)
	}
	if fail {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "preview generator crashed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"filename": header.Filename,
		"size":     len(content),
		"type":     header.Header.Get("Content-Type"),
		"preview":  previewFor(header.Filename),
		"status":   "uploaded",
	})
}

func previewFor(name string) string {
	switch {
	case strings.HasSuffix(name, ".json"):
		return `{"vulnerabilities": [{"cve": "CVE-2024-1234", "severity": "High"}]}`
	case strings.HasSuffix(name, ".xml"):
		return "<scan><host>192.168.1.1</host><ports><port>80</port></ports></scan>"
	case strings.HasSuffix(name, ".log"):
		return "2024-01-15 10:30:45 [ALERT] Suspicious activity detected\n2024-01-15 10:31:02 [INFO] Scan completed"
	default:
		return "Sample text content for preview"
	}
}

func (b *Backend) handleChat(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "q required"})
		return
	}
	b.mu.Lock()
	delay := b.chatDelay[q]
	b.mu.Unlock()
	if delay > 0 {
		sleep(r, delay)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"response":   ChatAnswer(q),
		"references": ChatReferences,
	})
}
