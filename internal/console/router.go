package console

import (
	"fmt"
	"strings"
	"sync"
)

// Page is a ViewRouter state.
type Page string

const (
	PageNone       Page = "none"
	PageDashboard  Page = "dashboard"
	PageScanner    Page = "scanner"
	PageReports    Page = "reports"
	PageUpload     Page = "upload"
	PageChat       Page = "chat"
	PageEvaluation Page = "evaluation"
)

// Pages lists the navigable pages in navigation-bar order.
func Pages() []Page {
	return []Page{PageDashboard, PageScanner, PageReports, PageUpload, PageChat, PageEvaluation}
}

// Label is the navigation-bar caption of the page.
func (p Page) Label() string {
	switch p {
	case PageDashboard:
		return "Dashboard"
	case PageScanner:
		return "Scanner"
	case PageReports:
		return "Reports"
	case PageUpload:
		return "Upload"
	case PageChat:
		return "AI Assistant"
	case PageEvaluation:
		return "Evaluation"
	default:
		return ""
	}
}

// ParsePage accepts a page name or its label, case-insensitively.
func ParsePage(s string) (Page, error) {
	s = strings.TrimSpace(s)
	for _, p := range Pages() {
		if strings.EqualFold(s, string(p)) || strings.EqualFold(s, p.Label()) {
			return p, nil
		}
	}
	return PageNone, fmt.Errorf("unknown page %q", s)
}

func navigable(p Page) bool {
	for _, q := range Pages() {
		if p == q {
			return true
		}
	}
	return false
}

// ViewRouter is the page state machine. It starts in PageNone, moves to
// PageDashboard when a session is established, and from there allows
// any page to be entered from any other.
type ViewRouter struct {
	mu      sync.RWMutex
	current Page
}

// NewViewRouter returns a router in PageNone.
func NewViewRouter() *ViewRouter {
	return &ViewRouter{current: PageNone}
}

// Current returns the active page.
func (r *ViewRouter) Current() Page {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Start enters PageDashboard. It is called when a session is established.
func (r *ViewRouter) Start() Page {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = PageDashboard
	return r.current
}

// Navigate enters p. It fails with ErrNoSession while in PageNone.
func (r *ViewRouter) Navigate(p Page) error {
	if !navigable(p) {
		return fmt.Errorf("console: cannot navigate to %q", p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == PageNone {
		return ErrNoSession
	}
	r.current = p
	return nil
}

// Reset returns to PageNone.
func (r *ViewRouter) Reset() {
	r.mu.Lock()
	r.current = PageNone
	r.mu.Unlock()
}
