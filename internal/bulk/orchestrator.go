package bulk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNotRunning reports a control command for a job with no live run loop
// in this process.
var ErrNotRunning = errors.New("job is not running in this process")

// ErrJobOwned reports a job whose run lease is held by another process.
var ErrJobOwned = errors.New("job is owned by another worker")

// ProgressEvent is one observable step of a job: an item outcome, a status
// change, or both.
type ProgressEvent struct {
	JobID    uuid.UUID   `json:"jobId"`
	Status   JobStatus   `json:"status"`
	Progress Progress    `json:"progress"`
	Item     *ItemResult `json:"item,omitempty"`
	At       time.Time   `json:"at"`
}

// ProgressPublisher receives progress events as the run loop records them.
// Implementations must not block; slow consumers drop events, they do not
// stall the job.
type ProgressPublisher interface {
	PublishProgress(event ProgressEvent)
}

// NopPublisher discards progress events.
type NopPublisher struct{}

func (NopPublisher) PublishProgress(ProgressEvent) {}

// Options tunes run loop behavior.
type Options struct {
	// WorkerCount bounds how many items one job processes concurrently.
	WorkerCount int
	// ItemTimeout caps one item execution.
	ItemTimeout time.Duration
	// LeaseTTL is how long a run lease holds between renewals. A job whose
	// owner stops renewing becomes adoptable once the lease lapses.
	LeaseTTL time.Duration
}

// DefaultOptions returns the orchestrator defaults.
func DefaultOptions() Options {
	return Options{
		WorkerCount: 4,
		ItemTimeout: 15 * time.Second,
		LeaseTTL:    time.Minute,
	}
}

// Orchestrator owns the run loops of active bulk jobs. Each started job
// gets exactly one goroutine that holds the job state; workers execute
// items and report outcomes back over a channel, so state is never shared.
type Orchestrator struct {
	repo      Repository
	executors *ExecutorSet
	publisher ProgressPublisher
	logger    *zap.Logger
	opts      Options
	ownerID   string

	mu   sync.Mutex
	runs map[uuid.UUID]*jobRun
	stop chan struct{}
}

// NewOrchestrator creates an orchestrator. Zero option fields fall back to
// DefaultOptions values.
func NewOrchestrator(repo Repository, executors *ExecutorSet, publisher ProgressPublisher, logger *zap.Logger, opts Options) *Orchestrator {
	defaults := DefaultOptions()
	if opts.WorkerCount <= 0 {
		opts.WorkerCount = defaults.WorkerCount
	}
	if opts.ItemTimeout <= 0 {
		opts.ItemTimeout = defaults.ItemTimeout
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = defaults.LeaseTTL
	}
	if publisher == nil {
		publisher = NopPublisher{}
	}
	return &Orchestrator{
		repo:      repo,
		executors: executors,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		ownerID:   uuid.NewString(),
		runs:      make(map[uuid.UUID]*jobRun),
		stop:      make(chan struct{}),
	}
}

type cmdKind int

const (
	cmdPause cmdKind = iota + 1
	cmdResume
	cmdCancel
	cmdSnapshot
)

type command struct {
	kind  cmdKind
	reply chan error
	view  chan JobView
}

// jobRun is the control surface of one live run loop.
type jobRun struct {
	cmds chan command
	done chan struct{}
}

func (r *jobRun) send(cmd command) error {
	select {
	case r.cmds <- cmd:
	case <-r.done:
		return ErrNotRunning
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-r.done:
		return ErrNotRunning
	}
}

// Start launches the run loop for a job and takes ownership of the job
// value; callers must not touch it afterward. Starting a job that already
// has a live run loop in this process, or one that has already settled, is
// a no-op. Across processes the store lease arbitrates: when another
// process holds the job, Start returns ErrJobOwned and nothing runs here,
// so double submits and competing recovery sweeps cannot spawn two owners
// for the same job.
func (o *Orchestrator) Start(ctx context.Context, job *Job) error {
	switch job.Status {
	case JobQueued, JobRunning, JobPaused:
	case JobCompleted, JobFailed, JobCancelled:
		o.logger.Debug("Job already settled, start ignored",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(job.Status)))
		return nil
	default:
		return fmt.Errorf("job %s has unknown status %s", job.ID, job.Status)
	}

	executor, err := o.executors.ForOperation(job.OperationType)
	if err != nil {
		return err
	}

	run := &jobRun{
		cmds: make(chan command),
		done: make(chan struct{}),
	}

	o.mu.Lock()
	if _, exists := o.runs[job.ID]; exists {
		o.mu.Unlock()
		o.logger.Debug("Job already running, start ignored", zap.String("job_id", job.ID.String()))
		return nil
	}
	o.runs[job.ID] = run
	o.mu.Unlock()

	// Take the run lease before anything executes. Every path that can
	// launch a run loop claims here, so two processes never both adopt
	// one job.
	claimed, err := o.repo.ClaimJob(ctx, job.ID, o.ownerID, o.opts.LeaseTTL)
	if err != nil {
		o.unregister(job.ID)
		close(run.done)
		return fmt.Errorf("failed to claim job: %w", err)
	}
	if !claimed {
		o.unregister(job.ID)
		close(run.done)
		return ErrJobOwned
	}

	// Backfill outcomes recorded by an earlier run so a restarted job
	// never re-executes finished items.
	recorded, err := o.repo.ListResults(ctx, job.ID)
	if err != nil {
		o.unregister(job.ID)
		close(run.done)
		o.releaseLease(ctx, job.ID)
		return fmt.Errorf("failed to load recorded results: %w", err)
	}

	go o.runJob(run, job, executor, recorded)
	return nil
}

func (o *Orchestrator) releaseLease(ctx context.Context, jobID uuid.UUID) {
	if err := o.repo.ReleaseJob(ctx, jobID, o.ownerID); err != nil {
		o.logger.Warn("Failed to release job lease",
			zap.String("job_id", jobID.String()),
			zap.Error(err))
	}
}

// Pause asks the run loop to stop dispatching. Items already in flight
// finish and are recorded; the job reports paused once drained.
func (o *Orchestrator) Pause(jobID uuid.UUID) error {
	return o.control(jobID, cmdPause)
}

// Resume restarts dispatch for a paused job, or withdraws a pause that is
// still draining.
func (o *Orchestrator) Resume(jobID uuid.UUID) error {
	return o.control(jobID, cmdResume)
}

// Cancel stops dispatch for good. In-flight items finish and are recorded,
// then the job settles cancelled.
func (o *Orchestrator) Cancel(jobID uuid.UUID) error {
	return o.control(jobID, cmdCancel)
}

func (o *Orchestrator) control(jobID uuid.UUID, kind cmdKind) error {
	run, ok := o.lookup(jobID)
	if !ok {
		return ErrNotRunning
	}
	return run.send(command{kind: kind, reply: make(chan error, 1)})
}

// Snapshot returns a consistent in-memory view of a live job. The second
// return is false when no run loop owns the job in this process.
func (o *Orchestrator) Snapshot(jobID uuid.UUID) (*JobView, bool) {
	run, ok := o.lookup(jobID)
	if !ok {
		return nil, false
	}
	cmd := command{kind: cmdSnapshot, reply: make(chan error, 1), view: make(chan JobView, 1)}
	if err := run.send(cmd); err != nil {
		return nil, false
	}
	view := <-cmd.view
	return &view, true
}

// Shutdown stops dispatching on every live run loop and waits for in-flight
// items to drain. Jobs keep their running or paused status, and each loop
// releases its run lease, so a recovery sweep can adopt them right away.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	select {
	case <-o.stop:
	default:
		close(o.stop)
	}
	waiting := make([]*jobRun, 0, len(o.runs))
	for _, run := range o.runs {
		waiting = append(waiting, run)
	}
	o.mu.Unlock()

	for _, run := range waiting {
		select {
		case <-run.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (o *Orchestrator) lookup(jobID uuid.UUID) (*jobRun, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	run, ok := o.runs[jobID]
	return run, ok
}

func (o *Orchestrator) unregister(jobID uuid.UUID) {
	o.mu.Lock()
	delete(o.runs, jobID)
	o.mu.Unlock()
}

type itemOutcome struct {
	itemID   string
	artifact *Artifact
	err      error
	fatal    bool
}

// runJob is the single owner of one job's state. All mutation of the job
// record, progress counters and result set happens here; workers only send
// outcomes over the results channel.
func (o *Orchestrator) runJob(run *jobRun, job *Job, executor ItemExecutor, recorded map[string]ItemResult) {
	defer func() {
		o.unregister(job.ID)
		close(run.done)
	}()

	ctx := context.Background()
	logger := o.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("operation", string(job.OperationType)))

	items := job.workItems()
	pending := make([]string, 0, len(items))
	for _, id := range items {
		if _, done := recorded[id]; !done {
			pending = append(pending, id)
		}
	}

	// Recorded outcomes are the source of truth; the persisted counters
	// are recomputed from them so a crash between writes cannot skew
	// progress.
	job.Progress = Progress{Total: len(items)}
	for _, res := range recorded {
		job.Progress.Processed++
		if res.OK {
			job.Progress.Succeeded++
		} else {
			job.Progress.Failed++
		}
	}

	if job.Status == JobQueued {
		o.setStatus(ctx, job, JobRunning, logger)
	} else {
		// Adopted after a restart: keep running or paused as found, just
		// refresh the recomputed counters.
		if err := o.repo.UpdateJobState(ctx, job); err != nil {
			logger.Error("Failed to persist recovered progress", zap.Error(err))
		}
	}
	logger.Info("Job run loop started",
		zap.Int("total_items", len(items)),
		zap.Int("pending_items", len(pending)))

	results := make(chan itemOutcome)
	spec := job.Spec()
	stop := o.stop

	lease := time.NewTicker(o.opts.LeaseTTL / 3)
	defer lease.Stop()

	var (
		next       int
		inFlight   int
		pausing    bool
		cancelling bool
		stopping   bool
		leaseLost  bool
		fatal      error
	)

	for {
		for job.Status == JobRunning && !pausing && !cancelling && !stopping && !leaseLost && fatal == nil &&
			inFlight < o.opts.WorkerCount && next < len(pending) {
			itemID := pending[next]
			next++
			inFlight++
			go o.executeItem(spec, executor, itemID, results)
		}

		if inFlight == 0 {
			switch {
			case leaseLost:
				logger.Warn("Job lease lost, run loop stopped",
					zap.Int("processed", job.Progress.Processed))
				return
			case fatal != nil:
				o.settle(ctx, job, JobFailed, fatal, logger)
				return
			case next >= len(pending):
				// Everything recorded. Completion outranks a pending
				// pause or cancel because processed equals total.
				o.settle(ctx, job, JobCompleted, nil, logger)
				return
			case cancelling:
				o.settle(ctx, job, JobCancelled, nil, logger)
				return
			case stopping:
				logger.Info("Job run loop suspended for shutdown",
					zap.Int("processed", job.Progress.Processed))
				o.releaseLease(ctx, job.ID)
				return
			case pausing:
				pausing = false
				o.setStatus(ctx, job, JobPaused, logger)
			}
		}

		select {
		case out := <-results:
			inFlight--
			o.recordOutcome(ctx, job, out, recorded, &fatal, logger)

		case cmd := <-run.cmds:
			switch cmd.kind {
			case cmdPause:
				if job.Status == JobRunning {
					pausing = true
				}
				cmd.reply <- nil
			case cmdResume:
				if job.Status == JobPaused {
					o.setStatus(ctx, job, JobRunning, logger)
				}
				pausing = false
				cmd.reply <- nil
			case cmdCancel:
				cancelling = true
				cmd.reply <- nil
			case cmdSnapshot:
				snap := *job
				snapResults := make(map[string]ItemResult, len(recorded))
				for id, res := range recorded {
					snapResults[id] = res
				}
				cmd.reply <- nil
				cmd.view <- JobView{Job: snap, Results: snapResults}
			}

		case <-lease.C:
			held, err := o.repo.ClaimJob(ctx, job.ID, o.ownerID, o.opts.LeaseTTL)
			if err != nil {
				logger.Warn("Failed to renew job lease", zap.Error(err))
			} else if !held {
				// Another process claimed the job after the lease lapsed.
				// It owns the state now; drain in-flight work and stop
				// without settling.
				leaseLost = true
			}

		case <-stop:
			// Closed channels stay ready; nil it out so the drain does
			// not spin.
			stopping = true
			stop = nil
		}
	}
}

// executeItem runs one item under the per-item timeout and reports the
// outcome. A panic inside an executor is an orchestration fault, not an
// item failure, and flags the outcome fatal.
func (o *Orchestrator) executeItem(spec JobSpec, executor ItemExecutor, itemID string, results chan<- itemOutcome) {
	out := itemOutcome{itemID: itemID}
	defer func() {
		if r := recover(); r != nil {
			out.err = fmt.Errorf("internal error: %v", r)
			out.fatal = true
		}
		results <- out
	}()

	ctx, cancel := context.WithTimeout(context.Background(), o.opts.ItemTimeout)
	defer cancel()

	artifact, err := executor.Execute(ctx, spec, itemID)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s", o.opts.ItemTimeout)
		}
		out.err = err
		return
	}
	out.artifact = artifact
}

// recordOutcome persists one item outcome and folds it into progress. The
// result row is written before counters move, so recovery recomputes the
// same numbers.
func (o *Orchestrator) recordOutcome(ctx context.Context, job *Job, out itemOutcome, recorded map[string]ItemResult, fatal *error, logger *zap.Logger) {
	res := ItemResult{
		EntityID:    out.itemID,
		OK:          out.err == nil,
		CompletedAt: time.Now(),
	}
	if out.err != nil {
		res.Reason = out.err.Error()
	}

	if err := o.repo.AppendResult(ctx, job.ID, res); err != nil {
		logger.Error("Failed to persist item result",
			zap.String("item_id", out.itemID), zap.Error(err))
		if *fatal == nil {
			*fatal = fmt.Errorf("failed to persist item result: %w", err)
		}
	}

	recorded[res.EntityID] = res
	job.Progress.Processed++
	if res.OK {
		job.Progress.Succeeded++
	} else {
		job.Progress.Failed++
		logger.Warn("Item failed",
			zap.String("item_id", out.itemID), zap.String("reason", res.Reason))
	}
	if out.artifact != nil {
		job.ArtifactKey = &out.artifact.Key
		job.ArtifactURL = &out.artifact.URL
	}
	if out.fatal && *fatal == nil {
		*fatal = fmt.Errorf("item %s: %w", out.itemID, out.err)
	}

	if err := o.repo.UpdateJobState(ctx, job); err != nil {
		logger.Error("Failed to persist job progress", zap.Error(err))
		if *fatal == nil {
			*fatal = fmt.Errorf("failed to persist job progress: %w", err)
		}
	}

	o.publish(job, &res)
}

// setStatus moves a live job between running and paused.
func (o *Orchestrator) setStatus(ctx context.Context, job *Job, status JobStatus, logger *zap.Logger) {
	if err := jobMachine.Transition(string(job.Status), string(status)); err != nil {
		logger.Error("Refusing invalid status change", zap.Error(err))
		return
	}
	job.Status = status
	if status == JobRunning && job.StartedAt == nil {
		now := time.Now()
		job.StartedAt = &now
	}
	if err := o.repo.UpdateJobState(ctx, job); err != nil {
		logger.Error("Failed to persist job status",
			zap.String("status", string(status)), zap.Error(err))
	}
	logger.Info("Job status changed", zap.String("status", string(status)))
	o.publish(job, nil)
}

// settle moves a job to a terminal status and freezes it.
func (o *Orchestrator) settle(ctx context.Context, job *Job, status JobStatus, cause error, logger *zap.Logger) {
	if err := jobMachine.Transition(string(job.Status), string(status)); err != nil {
		logger.Error("Refusing invalid settlement", zap.Error(err))
		return
	}
	job.Status = status
	now := time.Now()
	job.CompletedAt = &now
	if cause != nil {
		msg := cause.Error()
		job.FailureCause = &msg
	}
	if err := o.repo.UpdateJobState(ctx, job); err != nil {
		logger.Error("Failed to persist terminal job state", zap.Error(err))
	}
	o.releaseLease(ctx, job.ID)
	logger.Info("Job settled",
		zap.String("status", string(status)),
		zap.Int("processed", job.Progress.Processed),
		zap.Int("succeeded", job.Progress.Succeeded),
		zap.Int("failed", job.Progress.Failed),
		zap.Error(cause))
	o.publish(job, nil)
}

func (o *Orchestrator) publish(job *Job, item *ItemResult) {
	o.publisher.PublishProgress(ProgressEvent{
		JobID:    job.ID,
		Status:   job.Status,
		Progress: job.Progress,
		Item:     item,
		At:       time.Now(),
	})
}
