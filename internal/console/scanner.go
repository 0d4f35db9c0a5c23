package console

import (
	"context"
	"log/slog"
	"sync"

	"github.com/0x6d61/astra/internal/api"
)

// ScanRows is the number of jobs shown in the recent-scans table.
const ScanRows = 10

type scanState struct {
	fetchState
	jobs      []api.ScanJob
	draft     api.ScanRequest
	submitErr error
	// submitted holds jobs accepted while a listing was in flight, oldest
	// first. The listing may predate them.
	submitted []api.ScanJob
}

func emptyDraft() api.ScanRequest {
	return api.ScanRequest{Tool: api.DefaultTool}
}

// withJobs replaces the list with a fresh listing. Jobs submitted while
// it was in flight stay on top unless the listing already reports them.
func (s scanState) withJobs(jobs []api.ScanJob) scanState {
	listed := make(map[api.JobID]bool, len(jobs))
	for _, j := range jobs {
		listed[j.ID] = true
	}
	merged := make([]api.ScanJob, 0, len(jobs)+len(s.submitted))
	for i := len(s.submitted) - 1; i >= 0; i-- {
		if j := s.submitted[i]; !listed[j.ID] {
			merged = append(merged, j)
		}
	}
	s.jobs = append(merged, jobs...)
	s.submitted = nil
	return s
}

// withSubmitted prepends a job the backend accepted and clears the form.
func (s scanState) withSubmitted(job api.ScanJob) scanState {
	jobs := make([]api.ScanJob, 0, len(s.jobs)+1)
	jobs = append(jobs, job)
	s.jobs = append(jobs, s.jobs...)
	if s.status == StatusLoading {
		s.submitted = append(append([]api.ScanJob(nil), s.submitted...), job)
	} else {
		s.submitted = nil
	}
	s.draft = emptyDraft()
	s.submitErr = nil
	return s
}

// withSubmitFailed keeps the list and the form as they were.
func (s scanState) withSubmitFailed(draft api.ScanRequest, err error) scanState {
	s.draft = draft
	s.submitErr = err
	return s
}

func (s scanState) visible() []api.ScanJob {
	n := len(s.jobs)
	if n > ScanRows {
		n = ScanRows
	}
	return append([]api.ScanJob(nil), s.jobs[:n]...)
}

// ScannerPanel lists scan jobs and submits new ones. Job status is a
// snapshot from the last listing or submission; nothing polls.
type ScannerPanel struct {
	backend  Backend
	logger   *slog.Logger
	recorder Recorder

	mu    sync.Mutex
	state scanState
}

func newScannerPanel(b Backend, logger *slog.Logger, rec Recorder) *ScannerPanel {
	return &ScannerPanel{
		backend:  b,
		logger:   logger,
		recorder: rec,
		state:    scanState{draft: emptyDraft()},
	}
}

// Page returns PageScanner.
func (p *ScannerPanel) Page() Page { return PageScanner }

// Activate lists jobs once per session.
func (p *ScannerPanel) Activate(ctx context.Context) error {
	p.mu.Lock()
	loaded := p.state.loaded
	p.mu.Unlock()
	if loaded {
		return nil
	}
	return p.Refresh(ctx)
}

// Refresh re-lists jobs unconditionally. The listing replaces the list,
// except for jobs submitted while it was in flight.
func (p *ScannerPanel) Refresh(ctx context.Context) error {
	return fetch(ctx, &p.mu, &p.state.fetchState, p.logger, "scanner",
		p.backend.ListScans,
		func(jobs []api.ScanJob) { p.state = p.state.withJobs(jobs) },
	)
}

// Submit starts a scan. The target is required; an empty tool means
// Nmap. On success the returned job is prepended; on failure neither the
// list nor the form changes.
func (p *ScannerPanel) Submit(ctx context.Context, req api.ScanRequest) (*api.ScanJob, error) {
	norm, err := req.Normalize()

	p.mu.Lock()
	tag := p.state.owner
	if tag == "" {
		p.mu.Unlock()
		return nil, ErrNoSession
	}
	if err != nil {
		p.state = p.state.withSubmitFailed(req, err)
		p.mu.Unlock()
		return nil, err
	}
	p.state.draft = req
	p.mu.Unlock()

	job, err := p.backend.SubmitScan(ctx, norm)

	p.mu.Lock()
	if p.state.owner != tag {
		p.mu.Unlock()
		p.logger.Debug("discarding stale scan submission", "target", norm.Target, "error", err)
		return nil, ErrStale
	}
	if err != nil {
		p.state = p.state.withSubmitFailed(req, err)
		p.mu.Unlock()
		p.logger.Warn("scan submission failed", "tool", norm.Tool, "target", norm.Target, "error", err)
		return nil, err
	}
	p.state = p.state.withSubmitted(*job)
	p.mu.Unlock()

	p.logger.Info("scan submitted", "id", job.ID, "tool", job.Tool, "target", job.Target)
	record(ctx, p.recorder, p.logger, tag, "scan.submit", job)
	out := *job
	return &out, nil
}

// Jobs returns the full list, newest first.
func (p *ScannerPanel) Jobs() []api.ScanJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.ScanJob(nil), p.state.jobs...)
}

// Visible returns at most ScanRows jobs.
func (p *ScannerPanel) Visible() []api.ScanJob {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.visible()
}

// Draft is the scan form as last submitted, or empty after a success.
func (p *ScannerPanel) Draft() api.ScanRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.draft
}

// SubmitErr is the last submission failure, cleared by a success.
func (p *ScannerPanel) SubmitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.submitErr
}

// Status reports whether a listing is in flight or failed.
func (p *ScannerPanel) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.status
}

// Err is the last listing failure.
func (p *ScannerPanel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.err
}

func (p *ScannerPanel) reset(owner string) {
	p.mu.Lock()
	p.state = scanState{fetchState: fetchState{owner: owner}, draft: emptyDraft()}
	p.mu.Unlock()
}
