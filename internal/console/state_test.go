package console

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/0x6d61/astra/internal/api"
)

func TestStatusString(t *testing.T) {
	tests := []struct {
		s    Status
		want string
	}{
		{StatusIdle, "idle"},
		{StatusLoading, "loading"},
		{StatusError, "error"},
		{Status(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("Status(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}

	b, err := json.Marshal(struct{ S Status }{StatusError})
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `{"S":"error"}` {
		t.Errorf("json = %s", b)
	}
}

func TestFetchStateTransitions(t *testing.T) {
	boom := errors.New("boom")
	s := fetchState{owner: "a"}

	s = s.begin()
	if s.status != StatusLoading || s.loaded {
		t.Errorf("after begin: %+v", s)
	}
	s = s.fail(boom)
	if s.status != StatusError || s.err != boom || s.loaded {
		t.Errorf("after fail: %+v", s)
	}
	s = s.begin()
	if s.err != nil {
		t.Error("begin kept the previous error")
	}
	s = s.succeed()
	if s.status != StatusIdle || !s.loaded || s.owner != "a" {
		t.Errorf("after succeed: %+v", s)
	}
}

func TestScanStateReducers(t *testing.T) {
	s := scanState{draft: emptyDraft()}
	s = s.withJobs([]api.ScanJob{{ID: "1"}, {ID: "2"}})

	draft := api.ScanRequest{Tool: api.ToolNuclei, Target: "x"}
	failed := s.withSubmitFailed(draft, errors.New("nope"))
	if len(failed.jobs) != 2 || failed.draft != draft || failed.submitErr == nil {
		t.Errorf("withSubmitFailed = %+v", failed)
	}

	ok := failed.withSubmitted(api.ScanJob{ID: "3"})
	if len(ok.jobs) != 3 || ok.jobs[0].ID != "3" || ok.jobs[1].ID != "1" {
		t.Errorf("withSubmitted jobs = %+v", ok.jobs)
	}
	if ok.submitErr != nil || ok.draft != emptyDraft() {
		t.Errorf("withSubmitted did not clear the form: %+v", ok)
	}
	if len(s.jobs) != 2 {
		t.Error("reducer mutated its receiver")
	}
}

func TestScanStateKeepsJobsSubmittedDuringListing(t *testing.T) {
	s := scanState{draft: emptyDraft()}
	s.fetchState = s.begin()
	s = s.withSubmitted(api.ScanJob{ID: "1000"})
	s = s.withSubmitted(api.ScanJob{ID: "1001"})

	got := s.withJobs([]api.ScanJob{{ID: "1"}, {ID: "1001"}, {ID: "2"}})
	ids := make([]api.JobID, len(got.jobs))
	for i, j := range got.jobs {
		ids[i] = j.ID
	}
	want := []api.JobID{"1000", "1", "1001", "2"}
	if !slices.Equal(ids, want) {
		t.Errorf("jobs = %v, want %v", ids, want)
	}
	if got.submitted != nil {
		t.Errorf("submitted not cleared: %v", got.submitted)
	}

	// Submissions made while idle are already covered by the next listing.
	idle := scanState{}.withSubmitted(api.ScanJob{ID: "7"})
	if idle.submitted != nil {
		t.Errorf("idle submission tracked: %v", idle.submitted)
	}
	if n := len(idle.withJobs([]api.ScanJob{{ID: "1"}}).jobs); n != 1 {
		t.Errorf("listing after idle submission kept %d jobs, want 1", n)
	}
}

func TestScanStateVisible(t *testing.T) {
	jobs := make([]api.ScanJob, 25)
	s := scanState{}.withJobs(jobs)
	if n := len(s.visible()); n != ScanRows {
		t.Errorf("visible = %d, want %d", n, ScanRows)
	}
	if n := len(scanState{}.visible()); n != 0 {
		t.Errorf("empty visible = %d", n)
	}
}

func TestReportStatePaging(t *testing.T) {
	v := make([]api.Vulnerability, 20)
	for i := range v {
		v[i].ID = string(rune('a' + i))
	}
	s := reportState{}.withVulnerabilities(v)

	if n := len(s.visible()); n != ReportRows {
		t.Errorf("visible = %d", n)
	}
	tests := []struct {
		offset, limit, want int
	}{
		{0, 5, 5},
		{18, 5, 2},
		{-3, 2, 2},
		{20, 5, 0},
		{0, 0, 0},
	}
	for _, tt := range tests {
		if got := len(s.page(tt.offset, tt.limit)); got != tt.want {
			t.Errorf("page(%d, %d) = %d rows, want %d", tt.offset, tt.limit, got, tt.want)
		}
	}
}

func TestUploadStateReducers(t *testing.T) {
	s := uploadState{}
	s = s.withUploaded(api.UploadedFile{Filename: "a"})
	s = s.withUploaded(api.UploadedFile{Filename: "b"})
	s = s.withUploaded(api.UploadedFile{Filename: "c"})

	r := s.withoutIndex(1)
	if len(r.files) != 2 || r.files[0].Filename != "a" || r.files[1].Filename != "c" {
		t.Errorf("withoutIndex = %+v", r.files)
	}
	if len(s.files) != 3 || s.files[1].Filename != "b" {
		t.Error("reducer mutated its receiver")
	}
}

func TestChatStateReducers(t *testing.T) {
	s := seededChat("owner")
	if len(s.transcript) != 1 || s.transcript[0].Text != Greeting {
		t.Fatalf("seed = %+v", s.transcript)
	}
	n := s.withMessage(ChatMessage{Role: ChatUser, Text: "hi"})
	if len(n.transcript) != 2 || len(s.transcript) != 1 {
		t.Errorf("withMessage lengths: new %d, old %d", len(n.transcript), len(s.transcript))
	}
}

func TestAllowed(t *testing.T) {
	tests := map[string]bool{
		"scan.json":    true,
		"report.XML":   true,
		"syslog.log":   true,
		"notes.txt":    true,
		"payload.exe":  false,
		"archive.zip":  false,
		"json":         false,
		"dir/file.txt": true,
	}
	for name, want := range tests {
		if got := Allowed(name); got != want {
			t.Errorf("Allowed(%q) = %v, want %v", name, got, want)
		}
	}

	allowed, rejected := FilterAllowed([]Source{
		BytesSource("a.json", nil),
		BytesSource("b.pdf", nil),
		BytesSource("c.log", nil),
	})
	if len(allowed) != 2 || len(rejected) != 1 || rejected[0] != "b.pdf" {
		t.Errorf("FilterAllowed = %d allowed, rejected %v", len(allowed), rejected)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := map[string]string{
		"a.json": "application/json",
		"a.xml":  "application/xml",
		"a.log":  "text/plain",
		"a.TXT":  "text/plain",
	}
	for name, want := range tests {
		if got := contentTypeFor(name); got != want {
			t.Errorf("contentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}

// ---------------------------------------------------------------------------
// Router
// ---------------------------------------------------------------------------

func TestRouterStateMachine(t *testing.T) {
	r := NewViewRouter()
	if r.Current() != PageNone {
		t.Fatalf("initial = %s", r.Current())
	}
	if err := r.Navigate(PageScanner); !errors.Is(err, ErrNoSession) {
		t.Errorf("Navigate from none = %v, want ErrNoSession", err)
	}

	if got := r.Start(); got != PageDashboard {
		t.Errorf("Start = %s", got)
	}
	for _, from := range Pages() {
		for _, to := range Pages() {
			if err := r.Navigate(from); err != nil {
				t.Fatalf("Navigate(%s): %v", from, err)
			}
			if err := r.Navigate(to); err != nil {
				t.Errorf("%s -> %s: %v", from, to, err)
			}
			if r.Current() != to {
				t.Errorf("%s -> %s landed on %s", from, to, r.Current())
			}
		}
	}

	if err := r.Navigate(PageNone); err == nil {
		t.Error("Navigate(none) succeeded")
	}
	if err := r.Navigate(Page("settings")); err == nil {
		t.Error("Navigate(settings) succeeded")
	}

	r.Reset()
	if r.Current() != PageNone {
		t.Errorf("after Reset = %s", r.Current())
	}
}

func TestParsePage(t *testing.T) {
	tests := []struct {
		in   string
		want Page
	}{
		{"dashboard", PageDashboard},
		{"Scanner", PageScanner},
		{" reports ", PageReports},
		{"AI Assistant", PageChat},
		{"chat", PageChat},
		{"EVALUATION", PageEvaluation},
	}
	for _, tt := range tests {
		got, err := ParsePage(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParsePage(%q) = %s, %v; want %s", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParsePage("none"); err == nil {
		t.Error("ParsePage(none) succeeded")
	}
}

// ---------------------------------------------------------------------------
// SessionStore
// ---------------------------------------------------------------------------

type fakeAuth struct {
	calls int
	err   error
}

func (f *fakeAuth) Login(_ context.Context, c api.Credentials) (*api.LoginResponse, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return &api.LoginResponse{User: c.Username, Role: c.Role, Token: "t-" + c.Username}, nil
}

func TestSessionStoreLogin(t *testing.T) {
	auth := &fakeAuth{}
	store := NewSessionStore(auth, nil)
	fixed := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return fixed }

	var seen []*Session
	store.OnChange(func(s *Session) { seen = append(seen, s) })

	sess, err := store.Login(context.Background(), analyst)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Token != "t-alice" || !sess.Started.Equal(fixed) || sess.ID == "" {
		t.Errorf("session = %+v", sess)
	}
	cur, ok := store.Current()
	if !ok || cur.ID != sess.ID {
		t.Errorf("Current = %+v, %v", cur, ok)
	}
	if len(seen) != 1 || seen[0].ID != sess.ID {
		t.Errorf("listeners saw %v", seen)
	}

	if !store.Logout() {
		t.Error("Logout returned false")
	}
	if len(seen) != 2 || seen[1] != nil {
		t.Errorf("logout notification = %v", seen)
	}
	if _, ok := store.Current(); ok {
		t.Error("session survived logout")
	}
}

func TestSessionStoreFailureKeepsState(t *testing.T) {
	auth := &fakeAuth{}
	store := NewSessionStore(auth, nil)
	first, err := store.Login(context.Background(), analyst)
	if err != nil {
		t.Fatal(err)
	}
	notified := 0
	store.OnChange(func(*Session) { notified++ })

	auth.err = &api.AuthenticationError{StatusCode: 401, Message: "bad"}
	if _, err := store.Login(context.Background(), analyst); err == nil {
		t.Fatal("Login succeeded")
	}
	cur, ok := store.Current()
	if !ok || cur.ID != first.ID {
		t.Errorf("session replaced on failure: %+v", cur)
	}
	if notified != 0 {
		t.Errorf("listeners notified %d times on failure", notified)
	}

	if _, err := store.Login(context.Background(), api.Credentials{Username: "x"}); !api.IsValidation(err) {
		t.Errorf("err = %v, want validation", err)
	}
	if auth.calls != 2 {
		t.Errorf("auth calls = %d, want 2", auth.calls)
	}
}
