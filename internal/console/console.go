// Package console is the session/view orchestrator of the ASTRA console.
//
// It owns the authenticated session, the page state machine, and one
// cache per panel (dashboard, scanner, reports, upload, chat,
// evaluation). Panels synchronize with the backend when activated and
// never read each other's caches. Every outbound request is tagged with
// the session that issued it; completions arriving after that session
// has been replaced are discarded instead of applied.
package console

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/0x6d61/astra/internal/api"
)

var (
	// ErrNoSession is returned by operations that need an authenticated
	// session when none exists.
	ErrNoSession = errors.New("console: no active session")

	// ErrStale is returned when a response arrived after the session that
	// issued the request was replaced. The response was discarded.
	ErrStale = errors.New("console: response discarded, session changed")
)

// Backend is the subset of the ASTRA API the panels depend on.
// *api.Client implements it.
type Backend interface {
	Login(ctx context.Context, creds api.Credentials) (*api.LoginResponse, error)
	DashboardStats(ctx context.Context) (*api.DashboardStats, error)
	ListScans(ctx context.Context) ([]api.ScanJob, error)
	SubmitScan(ctx context.Context, req api.ScanRequest) (*api.ScanJob, error)
	ListVulnerabilities(ctx context.Context) ([]api.Vulnerability, error)
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (*api.UploadedFile, error)
	Chat(ctx context.Context, q string) (*api.ChatReply, error)
}

// tokenSetter is implemented by backends that carry a bearer token.
type tokenSetter interface {
	SetToken(token string)
}

// Recorder receives an audit trail of user actions. Implementations must
// be safe for concurrent use.
type Recorder interface {
	Record(ctx context.Context, sessionID, kind string, detail any) error
}

type nopRecorder struct{}

func (nopRecorder) Record(context.Context, string, string, any) error { return nil }

// Status is a panel's synchronization status.
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusError
)

// String returns the status name.
func (s Status) String() string {
	names := [...]string{"idle", "loading", "error"}
	if int(s) < len(names) {
		return names[s]
	}
	return "unknown"
}

// MarshalText lets Status render as its name in JSON.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Panel is a view-scoped component owning one synchronized cache.
type Panel interface {
	// Page is the router state this panel is shown for.
	Page() Page

	// Activate runs the panel's synchronization if its cache holds no
	// data yet. Re-activating a loaded panel issues no request.
	Activate(ctx context.Context) error

	// Status reports idle, loading or error.
	Status() Status

	// Err is the last failure, nil unless Status is StatusError.
	Err() error

	// reset drops the cache and hands the panel to a new session owner.
	reset(owner string)
}

// Refresher is implemented by panels with an explicit refresh action.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// fetchState tracks one panel's status and the session that owns its
// cache. Transitions are value methods so they can be tested without a
// backend.
type fetchState struct {
	owner  string
	status Status
	err    error
	loaded bool
}

func (s fetchState) begin() fetchState {
	s.status = StatusLoading
	s.err = nil
	return s
}

func (s fetchState) succeed() fetchState {
	s.status = StatusIdle
	s.err = nil
	s.loaded = true
	return s
}

func (s fetchState) fail(err error) fetchState {
	s.status = StatusError
	s.err = err
	return s
}

// fetch runs one tagged synchronization: it marks st loading, calls the
// backend outside the lock, and applies the result only if st still
// belongs to the session that issued the call. A request already in
// flight for the same owner is not duplicated.
func fetch[T any](
	ctx context.Context,
	mu *sync.Mutex,
	st *fetchState,
	logger *slog.Logger,
	panel string,
	call func(context.Context) (T, error),
	apply func(T),
) error {
	mu.Lock()
	if st.owner == "" {
		mu.Unlock()
		return ErrNoSession
	}
	if st.status == StatusLoading {
		mu.Unlock()
		return nil
	}
	tag := st.owner
	*st = st.begin()
	mu.Unlock()

	v, err := call(ctx)

	mu.Lock()
	defer mu.Unlock()
	if st.owner != tag {
		logger.Debug("discarding stale completion", "panel", panel, "error", err)
		return ErrStale
	}
	if err != nil {
		*st = st.fail(err)
		logger.Warn("panel sync failed", "panel", panel, "error", err)
		return err
	}
	apply(v)
	*st = st.succeed()
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// record sends an audit entry, logging rather than returning failures.
// The entry is written even if ctx has been cancelled since the action
// completed.
func record(ctx context.Context, rec Recorder, logger *slog.Logger, sessionID, kind string, detail any) {
	if err := rec.Record(context.WithoutCancel(ctx), sessionID, kind, detail); err != nil {
		logger.Warn("journal write failed", "kind", kind, "error", err)
	}
}
