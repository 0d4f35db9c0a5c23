package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/0x6d61/astra/internal/api"
	"github.com/0x6d61/astra/internal/console"
	"github.com/0x6d61/astra/internal/journal"
	"github.com/0x6d61/astra/internal/render"
)

const consoleHelp = `Commands:
  login <user> <password> [role]   sign in (role: Analyst, Auditor, Admin; default Analyst)
  logout                           sign out and clear every page
  go <page>                        dashboard, scanner, reports, upload, chat, evaluation
  refresh                          re-fetch the current page
  scan [tool] <target> [options]   submit a scan (tool: Nmap, OpenVAS, Nessus, Nikto, Nuclei)
  upload <path>...                 upload .json .xml .log .txt files
  remove <n>                       drop uploaded file n from the list
  chat <message>                   ask the AI assistant
  action <n>                       trigger evaluation quick action n
  reports [offset] [severity]      page or filter the vulnerability report
  show                             redraw the current page
  help                             this text
  quit                             leave the console`

func newConsoleCmd(settings *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "console",
		Short: "Start the interactive console",
		Long: `Console reads commands from standard input, one per line, and redraws the
current page after each one. Type "help" for the command list.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsole(cmd, settings)
		},
	}
}

func runConsole(cmd *cobra.Command, settings *viper.Viper) error {
	cfg, err := loadConfig(settings)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Verbose, cmd.ErrOrStderr())

	backend, tc, err := newBackend(cfg)
	if err != nil {
		return err
	}
	defer func() {
		st := tc.Stats()
		logger.Info("console closed", "requests", st.Requests, "failures", st.Failures, "avg", st.AvgDuration)
	}()
	renderer, err := render.New(cfg.Format)
	if err != nil {
		return err
	}

	opts := []console.ShellOption{
		console.WithLogger(logger),
		console.WithUploadWorkers(cfg.UploadWorkers),
	}
	if cfg.Journal != "" {
		store, err := journal.NewSQLiteStore(cfg.Journal)
		if err != nil {
			return fmt.Errorf("failed to open journal %q: %w", cfg.Journal, err)
		}
		defer store.Close()
		opts = append(opts, console.WithRecorder(store))
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer cancel()

	logger.Info("console started", "server", cfg.Server, "format", renderer.Format())
	r := &repl{
		shell:    console.NewShell(backend, opts...),
		renderer: renderer,
		out:      cmd.OutOrStdout(),
		msgs:     cmd.OutOrStdout(),
		text:     renderer.Format() == "text",
	}
	if !r.text {
		// stdout carries only snapshot documents.
		r.msgs = cmd.ErrOrStderr()
	}
	return r.run(ctx, cmd.InOrStdin())
}

// repl executes console commands line by line. out receives rendered
// pages; msgs receives notices and errors.
type repl struct {
	shell    *console.Shell
	renderer render.Renderer
	out      io.Writer
	msgs     io.Writer
	text     bool
}

func (r *repl) run(ctx context.Context, in io.Reader) error {
	if err := r.show(ctx); err != nil {
		return err
	}
	sc := bufio.NewScanner(in)
	for {
		if r.text {
			fmt.Fprint(r.out, "astra> ")
		}
		if !sc.Scan() {
			break
		}
		if r.exec(ctx, sc.Text()) {
			return nil
		}
		if ctx.Err() != nil {
			return nil
		}
	}
	return sc.Err()
}

// exec runs one command line and reports whether the console should exit.
func (r *repl) exec(ctx context.Context, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	var err error
	switch name {
	case "quit", "exit":
		return true
	case "help", "?":
		fmt.Fprintln(r.msgs, consoleHelp)
		if r.text {
			return false
		}
	case "show":
	case "login":
		err = r.login(ctx, args)
	case "logout":
		if !r.shell.Logout(ctx) {
			err = console.ErrNoSession
		}
	case "go":
		err = r.navigate(ctx, args)
	case "refresh":
		err = r.shell.Refresh(ctx)
	case "scan":
		err = r.scan(ctx, args)
	case "upload":
		err = r.upload(ctx, args)
	case "remove":
		err = r.remove(args)
	case "chat":
		err = r.chat(ctx, args)
	case "action":
		err = r.action(ctx, args)
	case "reports":
		if err = r.reports(ctx, args); err == nil {
			return false
		}
	default:
		err = fmt.Errorf("unknown command %q (type help)", name)
	}

	if err != nil {
		r.fail(err)
	}
	if err := r.show(ctx); err != nil {
		r.fail(err)
	}
	return false
}

func (r *repl) show(ctx context.Context) error {
	return r.renderer.Render(ctx, r.shell.Snapshot(), r.out)
}

func (r *repl) fail(err error) {
	fmt.Fprintln(r.msgs, pterm.Error.Sprint(describe(err)))
}

func (r *repl) info(msg string) {
	fmt.Fprintln(r.msgs, pterm.Info.Sprint(msg))
}

func (r *repl) warn(msg string) {
	fmt.Fprintln(r.msgs, pterm.Warning.Sprint(msg))
}

// describe turns console and API errors into user-facing messages.
func describe(err error) string {
	var authErr *api.AuthenticationError
	switch {
	case errors.Is(err, console.ErrNoSession):
		return "not signed in (use: login <user> <password> [role])"
	case errors.As(err, &authErr):
		return "login rejected: " + authErr.Message
	case api.IsTransient(err):
		return "backend request failed: " + err.Error()
	default:
		return err.Error()
	}
}

func (r *repl) login(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: login <user> <password> [role]")
	}
	creds := api.Credentials{Username: args[0], Password: args[1], Role: api.RoleAnalyst}
	if len(args) > 2 {
		creds.Role = api.Role(args[2])
	}
	sess, err := r.shell.Login(ctx, creds)
	if err != nil {
		return err
	}
	r.info(fmt.Sprintf("signed in as %s (%s)", sess.User, sess.Role))
	return nil
}

func (r *repl) navigate(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: go <page>")
	}
	page, err := console.ParsePage(strings.Join(args, " "))
	if err != nil {
		return err
	}
	return r.shell.Navigate(ctx, page)
}

// enter switches to page unless it is already active. Actions are taken
// from the page that hosts them.
func (r *repl) enter(ctx context.Context, page console.Page) error {
	if r.shell.Active() == page {
		return nil
	}
	return r.shell.Navigate(ctx, page)
}

// parseScanArgs reads [tool] <target> [options...]. A leading word is a
// tool only if it names one and a target follows it.
func parseScanArgs(args []string) (api.ScanRequest, error) {
	if len(args) == 0 {
		return api.ScanRequest{}, errors.New("usage: scan [tool] <target> [options]")
	}
	var req api.ScanRequest
	if tool, ok := api.ParseTool(args[0]); ok && len(args) > 1 {
		req.Tool = tool
		args = args[1:]
	}
	req.Target = args[0]
	req.Options = strings.Join(args[1:], " ")
	return req, nil
}

func (r *repl) scan(ctx context.Context, args []string) error {
	req, err := parseScanArgs(args)
	if err != nil {
		return err
	}
	if err := r.enter(ctx, console.PageScanner); err != nil && !api.IsTransient(err) {
		return err
	}
	job, err := r.shell.Scanner.Submit(ctx, req)
	if err != nil {
		return err
	}
	r.info(fmt.Sprintf("scan %s submitted: %s on %s", job.ID, job.Tool, job.Target))
	return nil
}

func (r *repl) upload(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: upload <path>...")
	}
	if err := r.enter(ctx, console.PageUpload); err != nil {
		return err
	}
	sources := make([]console.Source, len(args))
	for i, path := range args {
		sources[i] = console.FileSource(path)
	}

	res, err := r.shell.Upload.UploadBatch(ctx, sources)
	if res != nil {
		for _, name := range res.Rejected {
			r.warn(name + ": not a .json, .xml, .log or .txt file, skipped")
		}
		for _, f := range res.Failed {
			r.warn(f.Name + ": " + f.Err.Error())
		}
		if len(res.Uploaded) > 0 {
			r.info(fmt.Sprintf("uploaded %d of %d file(s)", len(res.Uploaded), len(args)))
		}
	}
	if err != nil && res != nil && len(res.Failed) > 0 {
		// Each failure has been reported above.
		return nil
	}
	return err
}

func (r *repl) remove(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: remove <n>")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid index %q", args[0])
	}
	if _, ok := r.shell.Session(); !ok {
		return console.ErrNoSession
	}
	f, err := r.shell.Upload.Remove(i)
	if err != nil {
		return err
	}
	r.info("removed " + f.Filename)
	return nil
}

func (r *repl) chat(ctx context.Context, args []string) error {
	text := strings.Join(args, " ")
	if err := r.enter(ctx, console.PageChat); err != nil {
		return err
	}
	r.shell.Chat.SetDraft(text)
	_, err := r.shell.Chat.Send(ctx, text)
	return err
}

func (r *repl) action(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: action <n>")
	}
	i, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid action %q", args[0])
	}
	if err := r.enter(ctx, console.PageEvaluation); err != nil {
		return err
	}
	notice, err := r.shell.Evaluation.Trigger(ctx, i)
	if err != nil {
		return err
	}
	r.info(notice)
	return nil
}

// reports prints a page or a severity slice of the retained report
// without re-fetching it. In JSON mode the slice replaces the report rows
// of the emitted snapshot.
func (r *repl) reports(ctx context.Context, args []string) error {
	if err := r.enter(ctx, console.PageReports); err != nil {
		return err
	}
	all := r.shell.Reports.All()

	offset := 0
	var sev api.Severity
	for _, a := range args {
		if n, err := strconv.Atoi(a); err == nil && n >= 0 {
			offset = n
			continue
		}
		s, ok := api.ParseSeverity(a)
		if !ok {
			return fmt.Errorf("invalid reports argument %q", a)
		}
		sev = s
	}

	var rows []api.Vulnerability
	total := len(all)
	if sev != "" {
		matched := r.shell.Reports.Filter(sev)
		total = len(matched)
		if offset < len(matched) {
			matched = matched[offset:]
		} else {
			matched = nil
		}
		if len(matched) > console.ReportRows {
			matched = matched[:console.ReportRows]
		}
		rows = matched
	} else {
		rows = r.shell.Reports.PageOf(offset, console.ReportRows)
	}

	if !r.text {
		snap := r.shell.Snapshot()
		snap.Reports.Rows = rows
		snap.Reports.Total = total
		return r.renderer.Render(ctx, snap, r.out)
	}
	if len(rows) == 0 {
		fmt.Fprintf(r.out, "No vulnerabilities at offset %d (of %d).\n", offset, total)
		return nil
	}
	t, err := render.VulnerabilityTable(rows)
	if err != nil {
		return err
	}
	fmt.Fprintln(r.out, t)
	fmt.Fprintf(r.out, "Rows %d-%d of %d\n", offset+1, offset+len(rows), total)
	return nil
}
