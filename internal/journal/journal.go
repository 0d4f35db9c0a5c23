// Package journal keeps an append-only activity log of console actions,
// allowing past sessions to be reviewed. It is never read back into the
// console.
package journal

import (
	"context"
	"encoding/json"
	"time"
)

// Entry kinds written by the console.
const (
	KindLogin        = "login"
	KindLogout       = "logout"
	KindScanSubmit   = "scan.submit"
	KindUpload       = "upload"
	KindUploadFailed = "upload.failed"
	KindChat         = "chat"
	KindAction       = "action"
)

// Entry is one journaled action.
type Entry struct {
	ID        string          `json:"id"`
	SessionID string          `json:"session_id"`
	Kind      string          `json:"kind"`
	Detail    json.RawMessage `json:"detail,omitempty"`
	At        time.Time       `json:"at"`
}

// SessionSummary is a lightweight per-session overview.
type SessionSummary struct {
	SessionID string    `json:"session_id"`
	User      string    `json:"user,omitempty"`
	Entries   int       `json:"entries"`
	First     time.Time `json:"first"`
	Last      time.Time `json:"last"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	SessionID string
	Kind      string
	// Limit keeps the most recent entries; 0 means no limit.
	Limit int
}

// Store persists and retrieves journal entries.
type Store interface {
	Record(ctx context.Context, sessionID, kind string, detail any) error
	Append(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]*Entry, error)
	Sessions(ctx context.Context) ([]*SessionSummary, error)
	Prune(ctx context.Context, maxAge time.Duration) (int64, error)
	Close() error
}
