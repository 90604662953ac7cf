// Package hashjob implements the background digest computation use case.
package hashjob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/google/uuid"

	"github.com/bnema/catalogd/internal/boundaries/in"
	"github.com/bnema/catalogd/internal/boundaries/out"
	"github.com/bnema/catalogd/internal/domain"
)

// Ensure Coordinator implements in.HashCoordinator.
var _ in.HashCoordinator = (*Coordinator)(nil)

// Config sizes the worker pool.
type Config struct {
	Workers    int
	QueueDepth int
}

type task struct {
	jobID   string
	entryID string
	path    string
}

// Coordinator guarantees at most one running computation per entry. The job
// table is guarded by a single mutex so that check-and-insert is atomic.
type Coordinator struct {
	validator in.PathValidator
	cache     out.DigestCache
	computer  out.DigestComputer
	metrics   out.HashMetrics
	log       zerowrap.Logger
	now       func() time.Time

	mu      sync.Mutex
	jobs    map[string]*domain.HashJob
	stopped bool

	queue   chan task
	workers int
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started sync.Once
}

// NewCoordinator creates a coordinator. Metrics may be nil.
func NewCoordinator(
	cfg Config,
	validator in.PathValidator,
	cache out.DigestCache,
	computer out.DigestComputer,
	metrics out.HashMetrics,
	log zerowrap.Logger,
) *Coordinator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 64
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Coordinator{
		validator: validator,
		cache:     cache,
		computer:  computer,
		metrics:   metrics,
		log:       log,
		now:       time.Now,
		jobs:      make(map[string]*domain.HashJob),
		queue:     make(chan task, cfg.QueueDepth),
		workers:   cfg.Workers,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start launches the worker pool.
func (c *Coordinator) Start() {
	c.started.Do(func() {
		c.log.Info().
			Str(zerowrap.FieldLayer, "usecase").
			Str(zerowrap.FieldComponent, "hashjob").
			Int("workers", c.workers).
			Int("queue_depth", cap(c.queue)).
			Msg("starting hash workers")

		for i := 0; i < c.workers; i++ {
			c.wg.Add(1)
			go c.worker()
		}
	})
}

// Stop refuses new jobs, interrupts running ones and waits for the workers.
func (c *Coordinator) Stop(ctx context.Context) error {
	c.mu.Lock()
	c.stopped = true
	c.mu.Unlock()

	// Shutdown is the only thing that interrupts a running computation.
	// Interrupted and still-queued jobs end as failed with io_error.
	c.cancel()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		c.failQueued()
		c.log.Info().
			Str(zerowrap.FieldLayer, "usecase").
			Str(zerowrap.FieldComponent, "hashjob").
			Msg("hash workers stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timeout waiting for hash workers: %w", ctx.Err())
	}
}

// RequestDigests returns the cached digests when they are still valid,
// joins a running computation, or schedules a new one.
func (c *Coordinator) RequestDigests(ctx context.Context, entryID string, path domain.AuthorizedPath, force bool) (domain.JobStatus, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  "RequestDigests",
		zerowrap.FieldEntityID: entryID,
		"force":                force,
	})
	log := zerowrap.FromCtx(ctx)

	var cached domain.CacheEntry
	var hit bool
	if !force {
		entry, ok, err := c.cache.Lookup(ctx, entryID)
		if err != nil {
			log.Warn().Err(err).Msg("digest cache lookup failed, treating as miss")
		} else if ok && entry.Digests.Complete() {
			cached = entry
			hit = entry.Matches(path)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if job, ok := c.jobs[entryID]; ok {
		if job.State == domain.JobProcessing {
			c.metrics.JobJoined()
			log.Debug().Str("job_id", job.ID).Msg("joined running digest job")
			status := statusOf(job)
			status.Joined = true
			return status, nil
		}

		// The latest outcome for the same file answers repeat requests until
		// a recompute is asked for explicitly. PollStatus applies the same rule.
		if !force && job.State.IsTerminal() && sameFile(job, path) {
			status := statusOf(job)
			if status.State == domain.JobFailed {
				status.Previous = cached.Digests
			}
			return status, nil
		}
	}

	if hit {
		c.metrics.CacheHit()
		return domain.JobStatus{
			EntryID:    entryID,
			State:      domain.JobReady,
			Digests:    cached.Digests,
			ComputedAt: cached.ComputedAt,
		}, nil
	}

	if c.stopped {
		return domain.JobStatus{}, domain.ErrQueueFull
	}

	job := &domain.HashJob{
		ID:         uuid.New().String(),
		EntryID:    entryID,
		SourcePath: path.Path,
		Size:       path.Size,
		ModTime:    path.ModTime,
		State:      domain.JobProcessing,
		StartedAt:  c.now(),
	}

	select {
	case c.queue <- task{jobID: job.ID, entryID: entryID, path: path.Path}:
	default:
		log.Warn().Int("queue_depth", cap(c.queue)).Msg("hash queue is full")
		return domain.JobStatus{}, domain.ErrQueueFull
	}

	c.jobs[entryID] = job
	c.metrics.JobStarted()
	log.Info().Str("job_id", job.ID).Msg("digest job scheduled")

	return statusOf(job), nil
}

// PollStatus reports the job state, falling back to the cache when no job
// has been recorded. It never schedules work.
func (c *Coordinator) PollStatus(ctx context.Context, entryID string) (domain.JobStatus, error) {
	c.mu.Lock()
	job, ok := c.jobs[entryID]
	var status domain.JobStatus
	if ok {
		status = statusOf(job)
	}
	c.mu.Unlock()

	if ok && status.State == domain.JobReady {
		return status, nil
	}

	cached, found, err := c.cache.Lookup(ctx, entryID)
	if ok {
		// A running or failed recompute keeps the previous digests visible.
		if err == nil && found && cached.Digests.Complete() {
			status.Previous = cached.Digests
		}
		return status, nil
	}
	if err != nil {
		return domain.JobStatus{}, fmt.Errorf("failed to read digest cache: %w", err)
	}
	if found && cached.Digests.Complete() {
		return domain.JobStatus{
			EntryID:    entryID,
			State:      domain.JobReady,
			Digests:    cached.Digests,
			ComputedAt: cached.ComputedAt,
		}, nil
	}

	return domain.JobStatus{EntryID: entryID, State: domain.JobAbsent}, nil
}

// Forget drops the job record and the cached digests of an entry. It refuses
// while a computation is running.
func (c *Coordinator) Forget(ctx context.Context, entryID string) error {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  "Forget",
		zerowrap.FieldEntityID: entryID,
	})
	log := zerowrap.FromCtx(ctx)

	c.mu.Lock()
	if job, ok := c.jobs[entryID]; ok && job.State == domain.JobProcessing {
		c.mu.Unlock()
		return domain.ErrJobRunning
	}
	delete(c.jobs, entryID)
	c.mu.Unlock()

	if err := c.cache.Invalidate(ctx, entryID); err != nil {
		return log.WrapErr(err, "failed to invalidate digests")
	}

	log.Info().Msg("digests forgotten")
	return nil
}

func (c *Coordinator) worker() {
	defer c.wg.Done()

	for {
		select {
		case t := <-c.queue:
			c.execute(t)
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Coordinator) execute(t task) {
	ctx := zerowrap.WithCtx(c.ctx, c.log)
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  "ComputeDigests",
		zerowrap.FieldEntityID: t.entryID,
		"job_id":               t.jobID,
	})
	log := zerowrap.FromCtx(ctx)
	start := c.now()

	digests, authorized, code := c.compute(ctx, t)

	state := domain.JobFailed
	if code == "" {
		state = domain.JobReady
		// The cache is written before the job flips to ready, so a reader
		// that sees ready can rely on the cache too.
		err := c.cache.Store(ctx, t.entryID, domain.CacheEntry{
			Digests:    digests,
			ComputedAt: c.now(),
			SourcePath: authorized.Path,
			Size:       authorized.Size,
			ModTime:    authorized.ModTime,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to persist digests")
		}
	}

	c.finish(t, state, digests, code)

	elapsed := c.now().Sub(start)
	c.metrics.JobFinished(state, elapsed.Seconds())

	event := log.Info()
	if state == domain.JobFailed {
		event = log.Warn().Str("error_code", string(code))
	}
	event.Dur(zerowrap.FieldDuration, elapsed).Str("state", string(state)).Msg("digest job finished")
}

// compute re-authorizes the path and hashes it. A non-empty code means failure.
func (c *Coordinator) compute(ctx context.Context, t task) (domain.Digests, domain.AuthorizedPath, domain.ErrorCode) {
	log := zerowrap.FromCtx(ctx)

	authorized, err := c.validator.ResolveForRead(ctx, t.path)
	if err != nil {
		return domain.Digests{}, authorized, domain.CodePathRevoked
	}
	if authorized.Path != t.path {
		log.Warn().Str("resolved", authorized.Path).Msg("path resolves elsewhere since scheduling")
		return domain.Digests{}, authorized, domain.CodePathRevoked
	}

	digests, err := c.computer.Compute(ctx, authorized.Path)
	if err != nil {
		log.Warn().Err(err).Msg("digest computation failed")
		return domain.Digests{}, authorized, domain.ClassifyIOError(err)
	}
	if !digests.Complete() {
		return domain.Digests{}, authorized, domain.CodeIOError
	}

	return digests, authorized, ""
}

func (c *Coordinator) finish(t task, state domain.JobState, digests domain.Digests, code domain.ErrorCode) {
	c.mu.Lock()
	defer c.mu.Unlock()

	job, ok := c.jobs[t.entryID]
	if !ok || job.ID != t.jobID || job.State != domain.JobProcessing {
		return
	}

	job.State = state
	job.Digests = digests
	job.ErrorCode = code
	job.FinishedAt = c.now()
}

// failQueued marks tasks that never reached a worker as failed.
func (c *Coordinator) failQueued() {
	for {
		select {
		case t := <-c.queue:
			c.finish(t, domain.JobFailed, domain.Digests{}, domain.CodeIOError)
		default:
			return
		}
	}
}

func sameFile(job *domain.HashJob, p domain.AuthorizedPath) bool {
	return job.SourcePath == p.Path && job.Size == p.Size && job.ModTime.Equal(p.ModTime)
}

func statusOf(job *domain.HashJob) domain.JobStatus {
	status := domain.JobStatus{
		EntryID:   job.EntryID,
		JobID:     job.ID,
		State:     job.State,
		ErrorCode: job.ErrorCode,
		StartedAt: job.StartedAt,
	}
	if job.State == domain.JobReady {
		status.Digests = job.Digests
		status.ComputedAt = job.FinishedAt
	}
	return status
}

type noopMetrics struct{}

func (noopMetrics) JobStarted()                          {}
func (noopMetrics) JobJoined()                           {}
func (noopMetrics) CacheHit()                            {}
func (noopMetrics) JobFinished(domain.JobState, float64) {}
