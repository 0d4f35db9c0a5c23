package render

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/0x6d61/astra/internal/api"
	"github.com/0x6d61/astra/internal/console"
)

const (
	doubleLine = "\u2550" // ═
	singleLine = "\u2500" // ─
	lineWidth  = 60
)

const title = "ASTRA Security Operations Console"

// TextRenderer draws the active page as terminal text with pterm tables.
type TextRenderer struct{}

// Format returns "text".
func (r *TextRenderer) Format() string {
	return "text"
}

// Render writes the header and the page the snapshot is on.
func (r *TextRenderer) Render(ctx context.Context, snap console.Snapshot, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &strings.Builder{}
	header(b, snap)

	var err error
	switch snap.Page {
	case console.PageNone:
		fmt.Fprintln(b, "Not signed in. Use: login <user> <password> [Analyst|Auditor|Admin]")
	case console.PageDashboard:
		err = dashboard(b, snap.Dashboard)
	case console.PageScanner:
		err = scanner(b, snap.Scanner)
	case console.PageReports:
		err = reports(b, snap.Reports)
	case console.PageUpload:
		upload(b, snap.Upload)
	case console.PageChat:
		chat(b, snap.Chat)
	case console.PageEvaluation:
		err = evaluation(b, snap.Evaluation)
	}
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, b.String())
	return err
}

func header(b *strings.Builder, snap console.Snapshot) {
	bar := strings.Repeat(doubleLine, lineWidth)
	fmt.Fprintln(b, bar)
	fmt.Fprintln(b, title)
	if snap.Session != nil {
		nav := make([]string, 0, len(console.Pages()))
		for _, p := range console.Pages() {
			label := p.Label()
			if p == snap.Page {
				label = pterm.FgCyan.Sprint("[" + label + "]")
			}
			nav = append(nav, label)
		}
		fmt.Fprintln(b, strings.Join(nav, " | "))
		fmt.Fprintf(b, "%s: %s\n", snap.Session.Role, snap.Session.User)
	}
	fmt.Fprintln(b, bar)
}

// status prints the panel's loading or error line. It reports whether
// the panel is in the error state.
func status(b *strings.Builder, v console.PanelView) bool {
	switch v.Status {
	case console.StatusLoading:
		fmt.Fprintln(b, pterm.FgGray.Sprint("Loading..."))
	case console.StatusError:
		fmt.Fprintln(b, pterm.FgRed.Sprint("Error: "+v.Error))
		return true
	}
	return false
}

// Table renders data as a table whose first row is the header.
func Table(data [][]string) (string, error) {
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return "", fmt.Errorf("render table: %w", err)
	}
	return s, nil
}

func table(b *strings.Builder, data [][]string) error {
	s, err := Table(data)
	if err != nil {
		return err
	}
	fmt.Fprintln(b, s)
	return nil
}

func dashboard(b *strings.Builder, v console.DashboardView) error {
	fmt.Fprintln(b, "Dashboard")
	if status(b, v.PanelView) && v.Stats == nil {
		return nil
	}
	if v.Stats == nil {
		fmt.Fprintln(b, "No data yet.")
		return nil
	}
	s := v.Stats
	data := [][]string{
		{"Card", "Figures"},
		{"Vulnerabilities", fmt.Sprintf("%d total: %s %d, %s %d, %s %d, %s %d",
			s.Vulnerabilities.Total,
			severity(api.SeverityCritical), s.Vulnerabilities.Critical,
			severity(api.SeverityHigh), s.Vulnerabilities.High,
			severity(api.SeverityMedium), s.Vulnerabilities.Medium,
			severity(api.SeverityLow), s.Vulnerabilities.Low)},
		{"Threats", fmt.Sprintf("active %d, mitigated %d, investigating %d",
			s.Threats.Active, s.Threats.Mitigated, s.Threats.Investigating)},
		{"IDS Alerts", fmt.Sprintf("today %d, week %d, month %d",
			s.IDSAlerts.Today, s.IDSAlerts.Week, s.IDSAlerts.Month)},
		{"Scan Status", fmt.Sprintf("running %d, completed %d, failed %d",
			s.ScanStatus.Running, s.ScanStatus.Completed, s.ScanStatus.Failed)},
	}
	return table(b, data)
}

func scanner(b *strings.Builder, v console.ScannerView) error {
	fmt.Fprintln(b, "Scanner")
	fmt.Fprintf(b, "Tools: %s\n", joinTools(api.Tools()))
	if v.SubmitErr != "" {
		fmt.Fprintln(b, pterm.FgRed.Sprint("Submit failed: "+v.SubmitErr))
		fmt.Fprintf(b, "Form: tool=%s target=%s options=%s\n", v.Draft.Tool, v.Draft.Target, v.Draft.Options)
	}
	fmt.Fprintln(b, strings.Repeat(singleLine, lineWidth))
	status(b, v.PanelView)
	if len(v.Jobs) == 0 {
		fmt.Fprintln(b, "No scans.")
		return nil
	}

	data := [][]string{{"ID", "Tool", "Target", "Status", "Started"}}
	for _, j := range v.Jobs {
		started := "-"
		if !j.Timestamp.IsZero() {
			started = j.Timestamp.Format("2006-01-02 15:04:05")
		}
		data = append(data, []string{string(j.ID), string(j.Tool), j.Target, scanStatus(j.Status), started})
	}
	if err := table(b, data); err != nil {
		return err
	}
	fmt.Fprintf(b, "Showing %d of %d scans\n", len(v.Jobs), v.Total)
	return nil
}

func reports(b *strings.Builder, v console.ReportsView) error {
	fmt.Fprintln(b, "Reports")
	status(b, v.PanelView)
	if len(v.Rows) == 0 {
		fmt.Fprintln(b, "No vulnerabilities.")
		return nil
	}

	t, err := VulnerabilityTable(v.Rows)
	if err != nil {
		return err
	}
	fmt.Fprintln(b, t)

	counts := make([]string, 0, len(api.Severities()))
	for _, s := range api.Severities() {
		counts = append(counts, fmt.Sprintf("%s %d", s, v.Severity[s]))
	}
	fmt.Fprintf(b, "Showing %d of %d (%s)\n", len(v.Rows), v.Total, strings.Join(counts, ", "))
	return nil
}

// VulnerabilityTable renders rows as the report table.
func VulnerabilityTable(rows []api.Vulnerability) (string, error) {
	data := [][]string{{"CVE", "Severity", "Score", "Status"}}
	for _, v := range rows {
		data = append(data, []string{
			v.ID,
			severity(v.Severity),
			strconv.FormatFloat(v.Score, 'f', 1, 64),
			v.Status,
		})
	}
	return Table(data)
}

func upload(b *strings.Builder, v console.UploadView) {
	fmt.Fprintln(b, "Upload")
	fmt.Fprintln(b, "Accepted: .json .xml .log .txt")
	status(b, v.PanelView)
	if len(v.Files) == 0 {
		fmt.Fprintln(b, "No files uploaded.")
		return
	}
	for i, f := range v.Files {
		fmt.Fprintln(b, strings.Repeat(singleLine, lineWidth))
		fmt.Fprintf(b, "[%d] %s (%s, %s)\n", i, f.Filename, FileSize(f.Size), f.Type)
		for _, line := range strings.Split(f.Preview, "\n") {
			fmt.Fprintf(b, "    %s\n", line)
		}
	}
}

func chat(b *strings.Builder, v console.ChatView) {
	fmt.Fprintln(b, "AI Assistant")
	for _, m := range v.Transcript {
		who := pterm.FgCyan.Sprint("You")
		if m.Role == console.ChatAssistant {
			who = pterm.FgGreen.Sprint("Assistant")
		}
		fmt.Fprintf(b, "%s: %s\n", who, m.Text)
		if len(m.References) > 0 {
			fmt.Fprintf(b, "  References: %s\n", strings.Join(m.References, ", "))
		}
	}
	status(b, v.PanelView)
}

func evaluation(b *strings.Builder, v console.EvaluationView) error {
	fmt.Fprintln(b, "Evaluation")
	m := v.Metrics
	data := [][]string{
		{"Metric", "Value"},
		{"Accuracy", percent(m.Accuracy)},
		{"F1 Score", percent(m.F1Score)},
		{"BLEU Score", percent(m.BLEUScore)},
		{"Precision", percent(m.Precision)},
		{"Recall", percent(m.Recall)},
	}
	if err := table(b, data); err != nil {
		return err
	}
	fmt.Fprintln(b, "Quick actions:")
	for i, a := range v.Actions {
		fmt.Fprintf(b, "  %d) %s: %s\n", i, a.Name, a.Target)
	}
	for _, n := range v.Notices {
		fmt.Fprintln(b, pterm.FgGreen.Sprint(n))
	}
	return nil
}

func percent(f float64) string {
	return strconv.FormatFloat(f, 'f', 1, 64) + "%"
}

func severity(s api.Severity) string {
	switch s {
	case api.SeverityCritical:
		return pterm.FgRed.Sprint(string(s))
	case api.SeverityHigh:
		return pterm.FgLightRed.Sprint(string(s))
	case api.SeverityMedium:
		return pterm.FgYellow.Sprint(string(s))
	default:
		return pterm.FgBlue.Sprint(string(s))
	}
}

func scanStatus(s api.ScanStatus) string {
	switch s {
	case api.ScanCompleted:
		return pterm.FgGreen.Sprint(string(s))
	case api.ScanFailed:
		return pterm.FgRed.Sprint(string(s))
	case api.ScanRunning:
		return pterm.FgYellow.Sprint(string(s))
	default:
		return string(s)
	}
}

func joinTools(tools []api.Tool) string {
	names := make([]string, len(tools))
	for i, t := range tools {
		names[i] = string(t)
	}
	return strings.Join(names, ", ")
}
