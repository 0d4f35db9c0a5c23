package console

import (
	"context"
	"log/slog"
	"sync"

	"github.com/0x6d61/astra/internal/api"
)

// ReportRows is the number of vulnerabilities shown in the report table.
const ReportRows = 15

type reportState struct {
	fetchState
	vulns []api.Vulnerability
}

// withVulnerabilities replaces the retained list.
func (s reportState) withVulnerabilities(v []api.Vulnerability) reportState {
	s.vulns = append([]api.Vulnerability(nil), v...)
	return s
}

// visible is the table view: the first ReportRows entries.
func (s reportState) visible() []api.Vulnerability {
	return s.page(0, ReportRows)
}

func (s reportState) page(offset, limit int) []api.Vulnerability {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(s.vulns) || limit <= 0 {
		return nil
	}
	end := offset + limit
	if end > len(s.vulns) {
		end = len(s.vulns)
	}
	return append([]api.Vulnerability(nil), s.vulns[offset:end]...)
}

// ReportsPanel mirrors /api/vulnerabilities. It keeps the full list so
// paging and filtering never need another request.
type ReportsPanel struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.Mutex
	state reportState
}

func newReportsPanel(b Backend, logger *slog.Logger) *ReportsPanel {
	return &ReportsPanel{backend: b, logger: logger}
}

// Page returns PageReports.
func (p *ReportsPanel) Page() Page { return PageReports }

// Activate fetches the report once per session.
func (p *ReportsPanel) Activate(ctx context.Context) error {
	p.mu.Lock()
	loaded := p.state.loaded
	p.mu.Unlock()
	if loaded {
		return nil
	}
	return p.Refresh(ctx)
}

// Refresh re-fetches the report unconditionally.
func (p *ReportsPanel) Refresh(ctx context.Context) error {
	return fetch(ctx, &p.mu, &p.state.fetchState, p.logger, "reports",
		p.backend.ListVulnerabilities,
		func(v []api.Vulnerability) { p.state = p.state.withVulnerabilities(v) },
	)
}

// All returns the full retained list.
func (p *ReportsPanel) All() []api.Vulnerability {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.Vulnerability(nil), p.state.vulns...)
}

// Visible returns at most ReportRows entries.
func (p *ReportsPanel) Visible() []api.Vulnerability {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.visible()
}

// PageOf returns limit entries starting at offset.
func (p *ReportsPanel) PageOf(offset, limit int) []api.Vulnerability {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.page(offset, limit)
}

// Filter returns every retained entry with the given severity.
func (p *ReportsPanel) Filter(sev api.Severity) []api.Vulnerability {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []api.Vulnerability
	for _, v := range p.state.vulns {
		if v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

// SeverityCounts tallies the retained list by severity.
func (p *ReportsPanel) SeverityCounts() map[api.Severity]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	counts := make(map[api.Severity]int, 4)
	for _, v := range p.state.vulns {
		counts[v.Severity]++
	}
	return counts
}

// Status reports whether the report fetch is in flight or failed.
func (p *ReportsPanel) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.status
}

// Err is the last report fetch failure.
func (p *ReportsPanel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.err
}

func (p *ReportsPanel) reset(owner string) {
	p.mu.Lock()
	p.state = reportState{fetchState: fetchState{owner: owner}}
	p.mu.Unlock()
}
