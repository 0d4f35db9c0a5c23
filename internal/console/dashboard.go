package console

import (
	"context"
	"log/slog"
	"sync"

	"github.com/0x6d61/astra/internal/api"
)

type dashboardState struct {
	fetchState
	stats *api.DashboardStats
}

// withStats replaces the aggregate wholesale.
func (s dashboardState) withStats(stats *api.DashboardStats) dashboardState {
	if stats != nil {
		cp := *stats
		stats = &cp
	}
	s.stats = stats
	return s
}

// DashboardPanel mirrors /api/dashboard/stats.
type DashboardPanel struct {
	backend Backend
	logger  *slog.Logger

	mu    sync.Mutex
	state dashboardState
}

func newDashboardPanel(b Backend, logger *slog.Logger) *DashboardPanel {
	return &DashboardPanel{backend: b, logger: logger}
}

// Page returns PageDashboard.
func (p *DashboardPanel) Page() Page { return PageDashboard }

// Activate fetches the stats once per session.
func (p *DashboardPanel) Activate(ctx context.Context) error {
	p.mu.Lock()
	loaded := p.state.loaded
	p.mu.Unlock()
	if loaded {
		return nil
	}
	return p.Refresh(ctx)
}

// Refresh re-fetches the stats unconditionally.
func (p *DashboardPanel) Refresh(ctx context.Context) error {
	return fetch(ctx, &p.mu, &p.state.fetchState, p.logger, "dashboard",
		p.backend.DashboardStats,
		func(stats *api.DashboardStats) { p.state = p.state.withStats(stats) },
	)
}

// Stats returns a copy of the cached aggregate, or nil before the first
// successful fetch.
func (p *DashboardPanel) Stats() *api.DashboardStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.stats == nil {
		return nil
	}
	cp := *p.state.stats
	return &cp
}

// Status reports whether the stats fetch is in flight or failed.
func (p *DashboardPanel) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.status
}

// Err is the last stats fetch failure.
func (p *DashboardPanel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.err
}

func (p *DashboardPanel) reset(owner string) {
	p.mu.Lock()
	p.state = dashboardState{fetchState: fetchState{owner: owner}}
	p.mu.Unlock()
}
