package console

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/0x6d61/astra/internal/api"
)

// uploadJob is a single file of a batch.
type uploadJob struct {
	index  int
	source Source
}

// uploadResult is the outcome of one uploadJob.
type uploadResult struct {
	job  uploadJob
	file *api.UploadedFile
	err  error
}

// uploadPool runs uploads on a fixed number of workers. Results are
// delivered in completion order.
type uploadPool struct {
	workers int
	jobs    chan uploadJob
	results chan uploadResult
	wg      sync.WaitGroup
	logger  *slog.Logger
}

// newUploadPool creates a pool with the given number of workers.
// The jobs channel is buffered at workers*2 to allow some pipelining.
func newUploadPool(workers int, logger *slog.Logger) *uploadPool {
	if workers <= 0 {
		workers = 1
	}
	return &uploadPool{
		workers: workers,
		jobs:    make(chan uploadJob, workers*2),
		results: make(chan uploadResult, workers*2),
		logger:  logger,
	}
}

// start launches all worker goroutines.
func (p *uploadPool) start(ctx context.Context, b Backend) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, b)
	}
}

// worker is the main loop for a single worker goroutine.
func (p *uploadPool) worker(ctx context.Context, b Backend) {
	defer p.wg.Done()

	for j := range p.jobs {
		p.results <- p.run(ctx, b, j)
	}
}

// run uploads one file. A panic is converted into a failed result so one
// bad source cannot take the batch down.
func (p *uploadPool) run(ctx context.Context, b Backend, j uploadJob) (res uploadResult) {
	res.job = j
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("upload worker recovered from panic",
				"file", j.source.Name,
				"panic", fmt.Sprintf("%v", r),
			)
			res.file = nil
			res.err = fmt.Errorf("upload %s: panic: %v", j.source.Name, r)
		}
	}()

	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	rc, err := j.source.Open()
	if err != nil {
		res.err = fmt.Errorf("open %s: %w", j.source.Name, err)
		return res
	}
	defer rc.Close()

	res.file, res.err = b.Upload(ctx, j.source.Name, j.source.ContentType, rc)
	return res
}

// submit adds a job to the queue. It blocks if the jobs channel is full.
func (p *uploadPool) submit(j uploadJob) {
	p.jobs <- j
}

// close signals that no more jobs will be submitted, then waits for all
// workers to finish and closes the results channel.
func (p *uploadPool) close() {
	close(p.jobs)
	p.wg.Wait()
	close(p.results)
}
