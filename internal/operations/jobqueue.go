package operations

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"crunchcli/internal/errors"
	"crunchcli/pkg/contracts/events"
)

// Job is a batch submitted through the queue
type Job struct {
	ID          string                `json:"id"`
	Status      BatchStatus           `json:"status"`
	Request     BatchRequest          `json:"request"`
	CreatedAt   time.Time             `json:"created_at"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Snapshot    *events.BatchSnapshot `json:"snapshot,omitempty"`
	Report      *BatchReport          `json:"report,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// JobStore interface for job persistence
type JobStore interface {
	CreateJob(job *Job) error
	GetJob(id string) (*Job, error)
	UpdateJob(job *Job) error
	ListJobs(filter JobFilter) ([]*Job, error)
	CleanupOldJobs(olderThan time.Duration) int
}

// JobFilter for querying jobs
type JobFilter struct {
	Status BatchStatus
	Since  time.Time
	Limit  int
}

// QueueOptions tunes a JobQueue.
type QueueOptions struct {
	// Workers is the number of batches run at once.
	Workers int
	// Timeout bounds each batch. Zero means no limit.
	Timeout time.Duration
	// Retention is how long finished jobs are kept. Zero keeps them forever.
	Retention time.Duration
}

// JobQueue runs submitted batches on a fixed pool of workers
type JobQueue struct {
	mu       sync.RWMutex
	jobs     chan *BatchState
	opts     QueueOptions
	wg       sync.WaitGroup
	store    JobStore
	manager  *Manager
	logger   *slog.Logger
	shutdown chan struct{}
	stopOnce sync.Once
	// states holds pending and running batches for live snapshots.
	states  map[string]*BatchState
	cancels map[string]context.CancelFunc
}

// NewJobQueue creates a new job queue
func NewJobQueue(opts QueueOptions, store JobStore, manager *Manager, logger *slog.Logger) *JobQueue {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &JobQueue{
		jobs:     make(chan *BatchState, opts.Workers*4),
		opts:     opts,
		store:    store,
		manager:  manager,
		logger:   logger.With(slog.String("component", "jobqueue")),
		shutdown: make(chan struct{}),
		states:   make(map[string]*BatchState),
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Start begins processing jobs
func (q *JobQueue) Start(ctx context.Context) {
	q.logger.Info("starting job queue", slog.Int("workers", q.opts.Workers))
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	if q.opts.Retention > 0 {
		q.wg.Add(1)
		go q.janitor(ctx)
	}
}

// Stop signals the workers and waits for running batches to finish
func (q *JobQueue) Stop(timeout time.Duration) error {
	q.logger.Info("stopping job queue")
	q.stopOnce.Do(func() { close(q.shutdown) })

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Info("job queue stopped gracefully")
		return nil
	case <-time.After(timeout):
		q.mu.Lock()
		for _, cancel := range q.cancels {
			cancel()
		}
		q.mu.Unlock()
		q.logger.Warn("job queue stop timeout exceeded")
		return fmt.Errorf("timeout waiting for workers to finish")
	}
}

// Enqueue validates req and queues a new batch for it
func (q *JobQueue) Enqueue(req BatchRequest) (*Job, error) {
	if err := q.manager.Validate(req); err != nil {
		return nil, err
	}
	state, err := q.manager.NewBatch(req)
	if err != nil {
		return nil, err
	}

	job := &Job{
		ID:        state.ID,
		Status:    BatchStatusPending,
		Request:   req,
		CreatedAt: time.Now(),
	}
	if err := q.store.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	q.mu.Lock()
	q.states[job.ID] = state
	q.mu.Unlock()

	select {
	case q.jobs <- state:
		q.logger.Info("batch enqueued",
			slog.String("batch_id", job.ID),
			slog.String("input_dir", req.InputDir))
		return q.GetJob(job.ID)
	default:
		q.mu.Lock()
		delete(q.states, job.ID)
		q.mu.Unlock()

		now := time.Now()
		job.Status = BatchStatusFailed
		job.Error = "batch queue is full"
		job.CompletedAt = &now
		_ = q.store.UpdateJob(job)
		return nil, errors.NewConflictError("batch queue is full")
	}
}

// GetJob returns the job with a fresh snapshot when it is still live
func (q *JobQueue) GetJob(id string) (*Job, error) {
	job, err := q.store.GetJob(id)
	if err != nil {
		return nil, err
	}
	q.attachSnapshot(job)
	return job, nil
}

// ListJobs returns jobs matching the filter
func (q *JobQueue) ListJobs(filter JobFilter) ([]*Job, error) {
	jobs, err := q.store.ListJobs(filter)
	if err != nil {
		return nil, err
	}
	for _, job := range jobs {
		q.attachSnapshot(job)
	}
	return jobs, nil
}

// CancelJob cancels a pending or running job
func (q *JobQueue) CancelJob(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		return errors.NewConflictError("batch already finished").
			WithContext("batch_id", id).
			WithContext("status", string(job.Status))
	}

	if cancel, running := q.cancels[id]; running {
		cancel()
		return nil
	}

	now := time.Now()
	job.Status = BatchStatusCancelled
	job.CompletedAt = &now
	return q.store.UpdateJob(job)
}

// Stats reports the number of live batches.
func (q *JobQueue) Stats() (pending, running int) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	running = len(q.cancels)
	return len(q.states) - running, running
}

func (q *JobQueue) attachSnapshot(job *Job) {
	q.mu.RLock()
	state, live := q.states[job.ID]
	q.mu.RUnlock()
	if live {
		snap := state.Snapshot()
		job.Snapshot = &snap
	}
}

func (q *JobQueue) worker(ctx context.Context, workerID int) {
	defer q.wg.Done()

	logger := q.logger.With(slog.Int("worker_id", workerID))
	logger.Debug("worker started")

	for {
		select {
		case <-ctx.Done():
			logger.Debug("worker stopped by context")
			return
		case <-q.shutdown:
			logger.Debug("worker stopped by shutdown")
			return
		case state := <-q.jobs:
			q.process(ctx, state, logger)
		}
	}
}

func (q *JobQueue) process(ctx context.Context, state *BatchState, logger *slog.Logger) {
	logger = logger.With(slog.String("batch_id", state.ID))

	defer func() {
		q.mu.Lock()
		delete(q.states, state.ID)
		delete(q.cancels, state.ID)
		q.mu.Unlock()
	}()

	runCtx, cancel, job := q.begin(ctx, state.ID, logger)
	if job == nil {
		return
	}
	defer cancel()

	report, runErr := q.safeRun(runCtx, state, logger)

	finished := time.Now()
	job.CompletedAt = &finished
	job.Report = report
	job.Status = BatchStatusFailed
	if report != nil {
		job.Status = report.Status
	}
	if runErr != nil {
		job.Error = runErr.Error()
	}
	snap := state.Snapshot()
	job.Snapshot = &snap
	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job completion", slog.String("error", err.Error()))
	}
}

// begin marks the batch running and registers its cancel func. Both happen
// under q.mu so a concurrent CancelJob either sees the batch still pending or
// finds the cancel func. A nil job means the batch must not run.
func (q *JobQueue) begin(ctx context.Context, id string, logger *slog.Logger) (context.Context, context.CancelFunc, *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	job, err := q.store.GetJob(id)
	if err != nil {
		logger.Error("queued batch has no job", slog.String("error", err.Error()))
		return nil, nil, nil
	}
	if job.Status == BatchStatusCancelled {
		logger.Info("batch cancelled before start")
		return nil, nil, nil
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if q.opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, q.opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	q.cancels[id] = cancel

	now := time.Now()
	job.Status = BatchStatusRunning
	job.StartedAt = &now
	if err := q.store.UpdateJob(job); err != nil {
		logger.Error("failed to update job status", slog.String("error", err.Error()))
	}
	return runCtx, cancel, job
}

// safeRun keeps a panicking batch from taking the worker down.
func (q *JobQueue) safeRun(ctx context.Context, state *BatchState, logger *slog.Logger) (report *BatchReport, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("batch panicked", slog.Any("panic", r))
			err = fmt.Errorf("batch panicked: %v", r)
		}
	}()
	return q.manager.Run(ctx, state)
}

func (q *JobQueue) janitor(ctx context.Context) {
	defer q.wg.Done()

	ticker := time.NewTicker(q.opts.Retention / 4)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-q.shutdown:
			return
		case <-ticker.C:
			if n := q.store.CleanupOldJobs(q.opts.Retention); n > 0 {
				q.logger.Debug("removed finished batches", slog.Int("count", n))
			}
		}
	}
}
