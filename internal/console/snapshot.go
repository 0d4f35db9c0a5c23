package console

import (
	"time"

	"github.com/0x6d61/astra/internal/api"
)

// PanelView is the status line shared by every panel view.
type PanelView struct {
	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`
}

func panelView(p Panel) PanelView {
	v := PanelView{Status: p.Status()}
	if err := p.Err(); err != nil {
		v.Error = err.Error()
	}
	return v
}

// SessionView is the header identity.
type SessionView struct {
	ID      string    `json:"id"`
	User    string    `json:"user"`
	Role    api.Role  `json:"role"`
	Started time.Time `json:"started"`
}

// DashboardView is the dashboard render model.
type DashboardView struct {
	PanelView
	Stats *api.DashboardStats `json:"stats,omitempty"`
}

// ScannerView is the scanner render model.
type ScannerView struct {
	PanelView
	Jobs      []api.ScanJob   `json:"jobs"`
	Total     int             `json:"total"`
	Draft     api.ScanRequest `json:"draft"`
	SubmitErr string          `json:"submit_error,omitempty"`
}

// ReportsView is the reports render model.
type ReportsView struct {
	PanelView
	Rows     []api.Vulnerability  `json:"rows"`
	Total    int                  `json:"total"`
	Severity map[api.Severity]int `json:"severity"`
}

// UploadView is the upload render model.
type UploadView struct {
	PanelView
	Files []api.UploadedFile `json:"files"`
}

// ChatView is the chat render model.
type ChatView struct {
	PanelView
	Transcript []ChatMessage `json:"transcript"`
	Draft      string        `json:"draft,omitempty"`
}

// EvaluationView is the evaluation render model.
type EvaluationView struct {
	Metrics EvaluationMetrics `json:"metrics"`
	Actions []QuickAction     `json:"actions"`
	Notices []string          `json:"notices,omitempty"`
}

// Snapshot is a consistent-per-panel copy of everything the console shows.
type Snapshot struct {
	Page       Page           `json:"page"`
	Session    *SessionView   `json:"session,omitempty"`
	Dashboard  DashboardView  `json:"dashboard"`
	Scanner    ScannerView    `json:"scanner"`
	Reports    ReportsView    `json:"reports"`
	Upload     UploadView     `json:"upload"`
	Chat       ChatView       `json:"chat"`
	Evaluation EvaluationView `json:"evaluation"`
}

// Snapshot copies the state of the router and every panel.
func (s *Shell) Snapshot() Snapshot {
	snap := Snapshot{Page: s.router.Current()}
	if sess, ok := s.sessions.Current(); ok {
		snap.Session = &SessionView{
			ID:      sess.ID,
			User:    sess.User,
			Role:    sess.Role,
			Started: sess.Started,
		}
	}

	snap.Dashboard = DashboardView{PanelView: panelView(s.Dashboard), Stats: s.Dashboard.Stats()}

	snap.Scanner = ScannerView{
		PanelView: panelView(s.Scanner),
		Jobs:      s.Scanner.Visible(),
		Total:     len(s.Scanner.Jobs()),
		Draft:     s.Scanner.Draft(),
	}
	if err := s.Scanner.SubmitErr(); err != nil {
		snap.Scanner.SubmitErr = err.Error()
	}

	snap.Reports = ReportsView{
		PanelView: panelView(s.Reports),
		Rows:      s.Reports.Visible(),
		Total:     len(s.Reports.All()),
		Severity:  s.Reports.SeverityCounts(),
	}

	snap.Upload = UploadView{PanelView: panelView(s.Upload), Files: s.Upload.Files()}

	snap.Chat = ChatView{
		PanelView:  panelView(s.Chat),
		Transcript: s.Chat.Transcript(),
		Draft:      s.Chat.Draft(),
	}

	snap.Evaluation = EvaluationView{
		Metrics: s.Evaluation.Metrics(),
		Actions: s.Evaluation.Actions(),
		Notices: s.Evaluation.Notices(),
	}
	return snap
}
