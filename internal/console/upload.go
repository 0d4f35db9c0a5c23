package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/0x6d61/astra/internal/api"
)

// DefaultUploadWorkers bounds concurrent uploads within a batch.
const DefaultUploadWorkers = 3

// AllowedExtensions are the file types the upload surface offers.
var AllowedExtensions = []string{".json", ".xml", ".log", ".txt"}

// Source is one file offered for upload.
type Source struct {
	Name        string
	ContentType string
	Open        func() (io.ReadCloser, error)
}

// FileSource reads from a path on disk.
func FileSource(path string) Source {
	return Source{
		Name:        filepath.Base(path),
		ContentType: contentTypeFor(path),
		Open:        func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// BytesSource serves data from memory.
func BytesSource(name string, data []byte) Source {
	return Source{
		Name:        name,
		ContentType: contentTypeFor(name),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".json":
		return "application/json"
	case ".xml":
		return "application/xml"
	case ".log", ".txt":
		return "text/plain"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}

// Allowed reports whether name carries an allowed extension.
func Allowed(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, a := range AllowedExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

// FilterAllowed splits sources by the extension allow-list. The backend
// remains the authority on what it accepts.
func FilterAllowed(sources []Source) (allowed []Source, rejected []string) {
	for _, s := range sources {
		if Allowed(s.Name) {
			allowed = append(allowed, s)
		} else {
			rejected = append(rejected, s.Name)
		}
	}
	return allowed, rejected
}

// UploadFailure is one file of a batch that produced no record.
type UploadFailure struct {
	// Index is the file's position in the sources given to UploadBatch.
	Index int
	Name  string
	Err   error
}

// BatchResult summarises one UploadBatch call.
type BatchResult struct {
	// Uploaded holds the records appended by this batch, in completion
	// order.
	Uploaded []api.UploadedFile
	Failed   []UploadFailure
	// Rejected names failed the extension allow-list and were not sent.
	Rejected []string
}

type uploadState struct {
	owner  string
	status Status
	err    error
	files  []api.UploadedFile
	active int
}

// withUploaded appends one completed record.
func (s uploadState) withUploaded(f api.UploadedFile) uploadState {
	files := make([]api.UploadedFile, 0, len(s.files)+1)
	files = append(files, s.files...)
	s.files = append(files, f)
	return s
}

// withoutIndex drops the record at i.
func (s uploadState) withoutIndex(i int) uploadState {
	files := make([]api.UploadedFile, 0, len(s.files))
	files = append(files, s.files[:i]...)
	s.files = append(files, s.files[i+1:]...)
	return s
}

// UploadPanel uploads batches of files and keeps one record per
// completed upload.
type UploadPanel struct {
	backend  Backend
	logger   *slog.Logger
	recorder Recorder
	workers  int

	mu    sync.Mutex
	state uploadState
}

func newUploadPanel(b Backend, logger *slog.Logger, rec Recorder, workers int) *UploadPanel {
	if workers <= 0 {
		workers = DefaultUploadWorkers
	}
	return &UploadPanel{backend: b, logger: logger, recorder: rec, workers: workers}
}

// Page returns PageUpload.
func (p *UploadPanel) Page() Page { return PageUpload }

// Activate does nothing: the upload list is built locally.
func (p *UploadPanel) Activate(context.Context) error { return nil }

// UploadBatch filters sources by extension and uploads the rest on a
// bounded pool. Each success appends exactly one record as it completes;
// failures are logged and reported but never abort the batch.
func (p *UploadPanel) UploadBatch(ctx context.Context, sources []Source) (*BatchResult, error) {
	allowed, rejected := FilterAllowed(sources)
	result := &BatchResult{Rejected: rejected}
	for _, name := range rejected {
		p.logger.Info("upload skipped, extension not allowed", "file", name)
	}

	p.mu.Lock()
	tag := p.state.owner
	if tag == "" {
		p.mu.Unlock()
		return nil, ErrNoSession
	}
	if len(allowed) == 0 {
		p.mu.Unlock()
		return result, nil
	}
	p.state.active++
	p.state.status = StatusLoading
	p.state.err = nil
	p.mu.Unlock()

	pool := newUploadPool(p.workers, p.logger)
	pool.start(ctx, p.backend)
	go func() {
		for i, s := range sources {
			if Allowed(s.Name) {
				pool.submit(uploadJob{index: i, source: s})
			}
		}
		pool.close()
	}()

	stale := false
	var errs []error
	for res := range pool.results {
		name := res.job.source.Name
		if res.err != nil {
			p.logger.Warn("upload failed", "file", name, "error", res.err)
			result.Failed = append(result.Failed, UploadFailure{Index: res.job.index, Name: name, Err: res.err})
			errs = append(errs, res.err)
			record(ctx, p.recorder, p.logger, tag, "upload.failed", map[string]string{"file": name, "error": res.err.Error()})
			continue
		}

		p.mu.Lock()
		if p.state.owner != tag {
			stale = true
			p.mu.Unlock()
			p.logger.Debug("discarding stale upload", "file", name)
			continue
		}
		p.state = p.state.withUploaded(*res.file)
		p.mu.Unlock()

		result.Uploaded = append(result.Uploaded, *res.file)
		record(ctx, p.recorder, p.logger, tag, "upload", res.file)
	}

	if stale {
		return result, ErrStale
	}

	p.mu.Lock()
	p.state.active--
	switch {
	case len(errs) > 0:
		p.state.status = StatusError
		p.state.err = fmt.Errorf("%d of %d uploads failed: %w", len(errs), len(allowed), errors.Join(errs...))
	case p.state.active == 0:
		p.state.status = StatusIdle
	}
	batchErr := p.state.err
	p.mu.Unlock()

	if len(errs) > 0 {
		return result, batchErr
	}
	return result, nil
}

// Remove drops the record at index i from the local list. The file stays
// on the backend.
func (p *UploadPanel) Remove(i int) (api.UploadedFile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.state.files) {
		return api.UploadedFile{}, fmt.Errorf("console: no uploaded file at index %d", i)
	}
	removed := p.state.files[i]
	p.state = p.state.withoutIndex(i)
	return removed, nil
}

// Files returns the records in completion order.
func (p *UploadPanel) Files() []api.UploadedFile {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]api.UploadedFile(nil), p.state.files...)
}

// Status reports whether a batch is running or the last one had failures.
func (p *UploadPanel) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.status
}

// Err summarises the failures of the last batch.
func (p *UploadPanel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.err
}

func (p *UploadPanel) reset(owner string) {
	p.mu.Lock()
	p.state = uploadState{owner: owner}
	p.mu.Unlock()
}
