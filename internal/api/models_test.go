package api

import (
	"encoding/json"
	"testing"
	"time"
)

func TestJobIDUnmarshal(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  JobID
	}{
		{"number", `{"id": 4242}`, "4242"},
		{"string", `{"id": "job-7"}`, "job-7"},
		{"null", `{"id": null}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var job ScanJob
			if err := json.Unmarshal([]byte(tt.input), &job); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if job.ID != tt.want {
				t.Errorf("ID = %q, want %q", job.ID, tt.want)
			}
		})
	}
}

func TestJobIDMarshal(t *testing.T) {
	tests := []struct {
		id   JobID
		want string
	}{
		{"17", `17`},
		{"-3", `-3`},
		{"0", `0`},
		{"job-7", `"job-7"`},
		{"007", `"007"`},
		{"+5", `"+5"`},
		{"-0", `"-0"`},
		{"", `""`},
	}
	for _, tt := range tests {
		b, err := json.Marshal(tt.id)
		if err != nil {
			t.Errorf("Marshal(%q): %v", tt.id, err)
			continue
		}
		if string(b) != tt.want {
			t.Errorf("Marshal(%q) = %s, want %s", tt.id, b, tt.want)
		}
	}
}

func TestScanJobWithPaddedIDRoundTrips(t *testing.T) {
	var job ScanJob
	if err := json.Unmarshal([]byte(`{"id": "007", "tool": "Nmap", "target": "10.0.0.1"}`), &job); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	b, err := json.Marshal(job)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var back ScanJob
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("re-Unmarshal %s: %v", b, err)
	}
	if back.ID != "007" {
		t.Errorf("ID = %q after round trip, want %q", back.ID, "007")
	}
}

func TestTimestampFormats(t *testing.T) {
	want := time.Date(2024, 1, 15, 10, 30, 45, 0, time.UTC)
	inputs := []string{
		`"2024-01-15T10:30:45Z"`,
		`"2024-01-15T10:30:45"`,
		`"2024-01-15T10:30:45.000000"`,
		`"2024-01-15 10:30:45"`,
	}
	for _, in := range inputs {
		var ts Timestamp
		if err := json.Unmarshal([]byte(in), &ts); err != nil {
			t.Errorf("Unmarshal(%s): %v", in, err)
			continue
		}
		if !ts.Equal(want) {
			t.Errorf("Unmarshal(%s) = %v, want %v", in, ts.Time, want)
		}
	}

	var ts Timestamp
	if err := json.Unmarshal([]byte(`"yesterday"`), &ts); err == nil {
		t.Error("expected error for unrecognised timestamp")
	}
	if err := json.Unmarshal([]byte(`null`), &ts); err != nil || !ts.IsZero() {
		t.Errorf("null timestamp: err=%v zero=%v", err, ts.IsZero())
	}
	b, _ := json.Marshal(Timestamp{})
	if string(b) != "null" {
		t.Errorf("zero timestamp marshalled as %s", b)
	}
}

func TestScanRequestNormalize(t *testing.T) {
	got, err := ScanRequest{Target: "  10.0.0.5 "}.Normalize()
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got.Tool != ToolNmap {
		t.Errorf("Tool = %q, want default %q", got.Tool, ToolNmap)
	}
	if got.Target != "10.0.0.5" {
		t.Errorf("Target = %q", got.Target)
	}

	got, err = ScanRequest{Tool: "nuclei", Target: "example.com"}.Normalize()
	if err != nil || got.Tool != ToolNuclei {
		t.Errorf("case-insensitive tool: got %q err %v", got.Tool, err)
	}

	if _, err := (ScanRequest{Target: "   "}).Normalize(); !IsValidation(err) {
		t.Errorf("blank target: err = %v, want ValidationError", err)
	}
	if _, err := (ScanRequest{Tool: "Metasploit", Target: "x"}).Normalize(); !IsValidation(err) {
		t.Errorf("unknown tool: err = %v, want ValidationError", err)
	}
}

func TestCredentialsValidate(t *testing.T) {
	valid := Credentials{Username: "alice", Password: "x", Role: RoleAuditor}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid credentials rejected: %v", err)
	}

	cases := map[string]Credentials{
		"no username":  {Password: "x", Role: RoleAnalyst},
		"no password":  {Username: "alice", Role: RoleAnalyst},
		"no role":      {Username: "alice", Password: "x"},
		"unknown role": {Username: "alice", Password: "x", Role: "Intern"},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if err := c.Validate(); !IsValidation(err) {
				t.Errorf("Validate() = %v, want ValidationError", err)
			}
		})
	}
}

func TestParseHelpers(t *testing.T) {
	if r, ok := ParseRole("admin"); !ok || r != RoleAdmin {
		t.Errorf("ParseRole(admin) = %q, %v", r, ok)
	}
	if _, ok := ParseTool("zap"); ok {
		t.Error("ParseTool(zap) should fail")
	}
	if s, ok := ParseSeverity("HIGH"); !ok || s != SeverityHigh {
		t.Errorf("ParseSeverity(HIGH) = %q, %v", s, ok)
	}
}
