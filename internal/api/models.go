// Package api is the typed client for the ASTRA backend: wire models for
// every endpoint the console talks to, the error taxonomy, and a Client
// that speaks JSON (and multipart for uploads) over internal/transport.
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Role is the access role requested at login.
type Role string

const (
	RoleAnalyst Role = "Analyst"
	RoleAuditor Role = "Auditor"
	RoleAdmin   Role = "Admin"
)

// Roles lists the accepted roles in display order.
func Roles() []Role {
	return []Role{RoleAnalyst, RoleAuditor, RoleAdmin}
}

// ParseRole matches s case-insensitively against the known roles.
func ParseRole(s string) (Role, bool) {
	for _, r := range Roles() {
		if strings.EqualFold(string(r), strings.TrimSpace(s)) {
			return r, true
		}
	}
	return "", false
}

// Tool is a scanning engine the backend can drive.
type Tool string

const (
	ToolNmap    Tool = "Nmap"
	ToolOpenVAS Tool = "OpenVAS"
	ToolNessus  Tool = "Nessus"
	ToolNikto   Tool = "Nikto"
	ToolNuclei  Tool = "Nuclei"
)

// DefaultTool is used when a scan request names no tool.
const DefaultTool = ToolNmap

// Tools lists the supported tools in display order.
func Tools() []Tool {
	return []Tool{ToolNmap, ToolOpenVAS, ToolNessus, ToolNikto, ToolNuclei}
}

// ParseTool matches s case-insensitively against the known tools.
func ParseTool(s string) (Tool, bool) {
	for _, t := range Tools() {
		if strings.EqualFold(string(t), strings.TrimSpace(s)) {
			return t, true
		}
	}
	return "", false
}

// Severity is a vulnerability severity bucket.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Severities lists severities from most to least severe.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

// ParseSeverity matches s case-insensitively against the known severities.
func ParseSeverity(s string) (Severity, bool) {
	for _, sev := range Severities() {
		if strings.EqualFold(string(sev), strings.TrimSpace(s)) {
			return sev, true
		}
	}
	return "", false
}

// ScanStatus is the backend-owned lifecycle state of a scan job. The
// backend may report values outside the known set (a freshly created job
// comes back as "Started"); those are kept verbatim.
type ScanStatus string

const (
	ScanPending   ScanStatus = "Pending"
	ScanRunning   ScanStatus = "Running"
	ScanCompleted ScanStatus = "Completed"
	ScanFailed    ScanStatus = "Failed"
)

// Credentials is the login request body.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// Validate checks that every field is present and the role is known.
func (c Credentials) Validate() error {
	switch {
	case strings.TrimSpace(c.Username) == "":
		return &ValidationError{Field: "username", Reason: "is required"}
	case c.Password == "":
		return &ValidationError{Field: "password", Reason: "is required"}
	case strings.TrimSpace(string(c.Role)) == "":
		return &ValidationError{Field: "role", Reason: "is required"}
	}
	if _, ok := ParseRole(string(c.Role)); !ok {
		return &ValidationError{Field: "role", Reason: fmt.Sprintf("unknown role %q", c.Role)}
	}
	return nil
}

// LoginResponse is the session object returned by a successful login.
type LoginResponse struct {
	User  string `json:"user"`
	Role  Role   `json:"role"`
	Token string `json:"token,omitempty"`
}

// VulnerabilityCounts breaks vulnerabilities down by severity.
type VulnerabilityCounts struct {
	Total    int `json:"total"`
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
}

// ThreatCounts summarises threat handling.
type ThreatCounts struct {
	Active        int `json:"active"`
	Mitigated     int `json:"mitigated"`
	Investigating int `json:"investigating"`
}

// AlertCounts counts IDS alerts over rolling windows.
type AlertCounts struct {
	Today int `json:"today"`
	Week  int `json:"week"`
	Month int `json:"month"`
}

// ScanStatusCounts counts scans by state.
type ScanStatusCounts struct {
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// DashboardStats is the aggregate returned by /api/dashboard/stats.
type DashboardStats struct {
	Vulnerabilities VulnerabilityCounts `json:"vulnerabilities"`
	Threats         ThreatCounts        `json:"threats"`
	IDSAlerts       AlertCounts         `json:"ids_alerts"`
	ScanStatus      ScanStatusCounts    `json:"scan_status"`
}

// JobID is a backend-assigned scan identifier. The backend emits it as a
// JSON number; strings are accepted too.
type JobID string

// UnmarshalJSON accepts either a JSON number or a JSON string.
func (id *JobID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = JobID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("job id: %w", err)
	}
	*id = JobID(n.String())
	return nil
}

// MarshalJSON emits canonical integers as numbers and everything else,
// including "007" and "+5", as strings.
func (id JobID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(id), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(id) {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// timestampLayouts are tried in order. The backend emits zone-less
// ISO-8601 (Python isoformat) which time.Time's own decoder rejects.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// Timestamp is a time.Time tolerant of the backend's timestamp formats.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON parses RFC 3339 and zone-less ISO-8601 strings. Zone-less
// values are taken as UTC.
func (t *Timestamp) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognised format %q", s)
}

// MarshalJSON emits RFC 3339, or null for the zero time.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}

// ScanJob is a unit of work submitted to a scanning tool.
type ScanJob struct {
	ID        JobID      `json:"id"`
	Tool      Tool       `json:"tool"`
	Target    string     `json:"target"`
	Options   string     `json:"options,omitempty"`
	Status    ScanStatus `json:"status"`
	Timestamp Timestamp  `json:"timestamp"`
}

// ScanRequest is the body of POST /api/scans.
type ScanRequest struct {
	Tool    Tool   `json:"tool"`
	Target  string `json:"target"`
	Options string `json:"options"`
}

// Normalize applies the default tool, trims the target, and validates the
// result.
func (r ScanRequest) Normalize() (ScanRequest, error) {
	r.Target = strings.TrimSpace(r.Target)
	if r.Target == "" {
		return r, &ValidationError{Field: "target", Reason: "is required"}
	}
	if strings.TrimSpace(string(r.Tool)) == "" {
		r.Tool = DefaultTool
	}
	tool, ok := ParseTool(string(r.Tool))
	if !ok {
		return r, &ValidationError{Field: "tool", Reason: fmt.Sprintf("unknown tool %q", r.Tool)}
	}
	r.Tool = tool
	return r, nil
}

// Vulnerability is one entry of the vulnerability report.
type Vulnerability struct {
	ID       string   `json:"id"`
	Score    float64  `json:"score"`
	Severity Severity `json:"severity"`
	Status   string   `json:"status"`
}

// UploadedFile is the backend's record of one accepted upload.
type UploadedFile struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	Type     string `json:"type"`
	Preview  string `json:"preview"`
}

// ChatReply is the assistant's answer to one query.
type ChatReply struct {
	Response   string   `json:"response"`
	References []string `json:"references"`
}
