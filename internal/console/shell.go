package console

import (
	"context"
	"errors"
	"log/slog"

	"github.com/0x6d61/astra/internal/api"
)

// Shell composes the session store, the router and the six panels into
// the console surface.
type Shell struct {
	backend  Backend
	logger   *slog.Logger
	recorder Recorder
	workers  int

	sessions *SessionStore
	router   *ViewRouter

	Dashboard  *DashboardPanel
	Scanner    *ScannerPanel
	Reports    *ReportsPanel
	Upload     *UploadPanel
	Chat       *ChatPanel
	Evaluation *EvaluationPanel

	panels map[Page]Panel
}

// ShellOption configures a Shell.
type ShellOption func(*Shell)

// WithLogger sets the logger for the shell and every panel.
func WithLogger(l *slog.Logger) ShellOption {
	return func(s *Shell) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithRecorder sets the activity recorder.
func WithRecorder(r Recorder) ShellOption {
	return func(s *Shell) {
		if r != nil {
			s.recorder = r
		}
	}
}

// WithUploadWorkers bounds concurrent uploads per batch. 1 uploads
// strictly one file at a time.
func WithUploadWorkers(n int) ShellOption {
	return func(s *Shell) {
		s.workers = n
	}
}

// NewShell wires a shell against backend. Panels are cleared whenever the
// session changes; if backend carries a bearer token it follows the
// session too.
func NewShell(backend Backend, opts ...ShellOption) *Shell {
	s := &Shell{
		backend:  backend,
		logger:   discardLogger(),
		recorder: nopRecorder{},
		workers:  DefaultUploadWorkers,
		router:   NewViewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Dashboard = newDashboardPanel(backend, s.logger)
	s.Scanner = newScannerPanel(backend, s.logger, s.recorder)
	s.Reports = newReportsPanel(backend, s.logger)
	s.Upload = newUploadPanel(backend, s.logger, s.recorder, s.workers)
	s.Chat = newChatPanel(backend, s.logger, s.recorder)
	s.Evaluation = newEvaluationPanel(s.logger, s.recorder)
	s.panels = map[Page]Panel{
		PageDashboard:  s.Dashboard,
		PageScanner:    s.Scanner,
		PageReports:    s.Reports,
		PageUpload:     s.Upload,
		PageChat:       s.Chat,
		PageEvaluation: s.Evaluation,
	}

	s.sessions = NewSessionStore(backend, s.logger)
	s.sessions.OnChange(s.sessionChanged)
	return s
}

func (s *Shell) sessionChanged(sess *Session) {
	owner, token := "", ""
	if sess != nil {
		owner, token = sess.ID, sess.Token
	}
	if ts, ok := s.backend.(tokenSetter); ok {
		ts.SetToken(token)
	}
	for _, p := range s.panels {
		p.reset(owner)
	}
}

// Login establishes a session, enters the dashboard and loads it. A
// dashboard failure does not undo the login; it leaves the dashboard in
// the error state.
func (s *Shell) Login(ctx context.Context, creds api.Credentials) (*Session, error) {
	sess, err := s.sessions.Login(ctx, creds)
	if err != nil {
		return nil, err
	}
	s.router.Start()
	record(ctx, s.recorder, s.logger, sess.ID, "login", map[string]string{
		"user": sess.User,
		"role": string(sess.Role),
	})

	if err := s.Dashboard.Activate(ctx); err != nil && !errors.Is(err, ErrStale) {
		s.logger.Warn("dashboard load after login failed", "error", err)
	}
	return sess, nil
}

// Logout clears the session and every panel, and returns to PageNone.
func (s *Shell) Logout(ctx context.Context) bool {
	prev, ok := s.sessions.Current()
	s.router.Reset()
	if !s.sessions.Logout() {
		return false
	}
	if ok {
		record(ctx, s.recorder, s.logger, prev.ID, "logout", map[string]string{"user": prev.User})
	}
	return true
}

// Navigate enters page and activates its panel. The page change stands
// even when the panel's synchronization fails; the failure is returned
// and also held in the panel's status.
func (s *Shell) Navigate(ctx context.Context, page Page) error {
	if err := s.router.Navigate(page); err != nil {
		return err
	}
	err := s.panels[page].Activate(ctx)
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}

// Refresh re-synchronizes the active panel. Panels without backend data
// ignore it.
func (s *Shell) Refresh(ctx context.Context) error {
	page := s.router.Current()
	if page == PageNone {
		return ErrNoSession
	}
	r, ok := s.panels[page].(Refresher)
	if !ok {
		return nil
	}
	err := r.Refresh(ctx)
	if errors.Is(err, ErrStale) {
		return nil
	}
	return err
}

// Active returns the current page.
func (s *Shell) Active() Page { return s.router.Current() }

// Session returns the current session.
func (s *Shell) Session() (*Session, bool) { return s.sessions.Current() }

// Panel returns the panel shown for page, or nil for PageNone.
func (s *Shell) Panel(page Page) Panel { return s.panels[page] }
