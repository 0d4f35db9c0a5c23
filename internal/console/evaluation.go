package console

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// EvaluationMetrics is the assistant's fixed performance snapshot, in
// percent.
type EvaluationMetrics struct {
	Accuracy  float64 `json:"accuracy"`
	F1Score   float64 `json:"f1_score"`
	BLEUScore float64 `json:"bleu_score"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
}

var evaluationSnapshot = EvaluationMetrics{
	Accuracy:  94.2,
	F1Score:   91.8,
	BLEUScore: 87.5,
	Precision: 93.1,
	Recall:    90.6,
}

// QuickAction is a one-click response action offered on the evaluation
// page.
type QuickAction struct {
	Name   string `json:"name"`
	Target string `json:"target"`
}

var quickActions = []QuickAction{
	{Name: "Block IP", Target: "192.168.1.100"},
	{Name: "Apply Patch", Target: "CVE-2024-1234"},
	{Name: "Send Alert", Target: "Security Team"},
}

// EvaluationPanel shows static metrics; it has nothing to synchronize.
type EvaluationPanel struct {
	logger   *slog.Logger
	recorder Recorder

	mu      sync.Mutex
	owner   string
	notices []string
}

func newEvaluationPanel(logger *slog.Logger, rec Recorder) *EvaluationPanel {
	return &EvaluationPanel{logger: logger, recorder: rec}
}

// Page returns PageEvaluation.
func (p *EvaluationPanel) Page() Page { return PageEvaluation }

// Activate does nothing: the metrics are static.
func (p *EvaluationPanel) Activate(context.Context) error { return nil }

// Status is always idle.
func (p *EvaluationPanel) Status() Status { return StatusIdle }

// Err is always nil.
func (p *EvaluationPanel) Err() error { return nil }

// Metrics returns the snapshot.
func (p *EvaluationPanel) Metrics() EvaluationMetrics { return evaluationSnapshot }

// Actions lists the quick actions.
func (p *EvaluationPanel) Actions() []QuickAction {
	return append([]QuickAction(nil), quickActions...)
}

// Trigger fires quick action i and returns the notice shown to the user.
// Actions are acknowledged locally; no backend call is made.
func (p *EvaluationPanel) Trigger(ctx context.Context, i int) (string, error) {
	if i < 0 || i >= len(quickActions) {
		return "", fmt.Errorf("console: no quick action %d", i)
	}
	a := quickActions[i]

	p.mu.Lock()
	owner := p.owner
	if owner == "" {
		p.mu.Unlock()
		return "", ErrNoSession
	}
	notice := fmt.Sprintf("Action: %s on %s", a.Name, a.Target)
	p.notices = append(p.notices, notice)
	p.mu.Unlock()

	p.logger.Info("quick action", "action", a.Name, "target", a.Target)
	record(ctx, p.recorder, p.logger, owner, "action", a)
	return notice, nil
}

// Notices returns the acknowledgements issued in this session.
func (p *EvaluationPanel) Notices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.notices...)
}

func (p *EvaluationPanel) reset(owner string) {
	p.mu.Lock()
	p.owner = owner
	p.notices = nil
	p.mu.Unlock()
}
