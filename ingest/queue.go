package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lanewise/ingest/docpipe"
	"github.com/lanewise/ingest/idgen"
)

// Job is one queued batch.
type Job struct {
	ID      string
	Tenant  string
	Persona string
	Files   []docpipe.UploadedFile

	// Done is closed when the job has finished; Result and Err are set
	// before the close.
	Done   chan struct{}
	Result *BatchResult
	Err    error
}

// Queue serializes batch ingestion through a single worker so concurrent
// submitters never interleave writes for the same tenant. Jobs run strictly
// in submission order.
type Queue struct {
	svc    *Service
	jobs   chan *Job
	logger *slog.Logger
	newID  idgen.Generator

	done chan struct{}
}

// NewQueue creates a queue over svc with the given buffer size.
func NewQueue(svc *Service, size int) *Queue {
	if size <= 0 {
		size = 16
	}
	return &Queue{
		svc:    svc,
		jobs:   make(chan *Job, size),
		logger: svc.logger,
		newID:  idgen.Prefixed("job_", idgen.Default),
		done:   make(chan struct{}),
	}
}

// Start runs the worker until ctx is cancelled. Cancellation stops the
// scheduling of further jobs and of further files inside the running
// batch; only the extractor call in flight finishes.
func (q *Queue) Start(ctx context.Context) {
	go func() {
		defer close(q.done)
		for {
			select {
			case <-ctx.Done():
				q.drain(ctx.Err())
				return
			case job := <-q.jobs:
				q.run(ctx, job)
			}
		}
	}()
}

// run executes one job. Cancellation flows into the batch: the pipeline
// checks the context before each file, so a cancelled worker aborts the
// batch at the next file boundary and no manifest update happens.
func (q *Queue) run(ctx context.Context, job *Job) {
	q.logger.Debug("job started", "job", job.ID, "tenant", job.Tenant, "files", len(job.Files))
	job.Result, job.Err = q.svc.ProcessBatch(ctx, job.Tenant, job.Persona, job.Files)
	close(job.Done)
}

// drain fails every job still waiting in the buffer.
func (q *Queue) drain(cause error) {
	for {
		select {
		case job := <-q.jobs:
			job.Err = fmt.Errorf("queue stopped: %w", cause)
			close(job.Done)
		default:
			return
		}
	}
}

// Submit enqueues a batch and returns the job handle. It blocks when the
// buffer is full until space frees up or ctx is cancelled.
func (q *Queue) Submit(ctx context.Context, tenant, persona string, files []docpipe.UploadedFile) (*Job, error) {
	job := &Job{
		ID:      q.newID(),
		Tenant:  tenant,
		Persona: persona,
		Files:   files,
		Done:    make(chan struct{}),
	}
	select {
	case q.jobs <- job:
		return job, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("submit: %w", ctx.Err())
	}
}

// Wait blocks until the job finishes or ctx is cancelled.
func (j *Job) Wait(ctx context.Context) (*BatchResult, error) {
	select {
	case <-j.Done:
		return j.Result, j.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Stopped is closed once the worker has exited.
func (q *Queue) Stopped() <-chan struct{} { return q.done }
