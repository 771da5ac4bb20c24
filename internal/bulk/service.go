package bulk

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/workflows"
)

// ErrNoArtifact is returned when a job has no export artifact to link.
var ErrNoArtifact = errors.New("job has no export artifact")

// ServiceOptions tunes job lifecycle policy.
type ServiceOptions struct {
	// Retention is how long terminal jobs stay queryable before the
	// retention sweep removes them.
	Retention time.Duration
	// AutoStart launches confirmed jobs immediately in this process.
	// Disable it when a separate worker binary owns execution.
	AutoStart bool
	// ArtifactLinkTTL is the lifetime of freshly minted download links.
	ArtifactLinkTTL time.Duration
}

// DefaultServiceOptions returns the service defaults.
func DefaultServiceOptions() ServiceOptions {
	return ServiceOptions{
		Retention:       72 * time.Hour,
		AutoStart:       true,
		ArtifactLinkTTL: 24 * time.Hour,
	}
}

// Service coordinates bulk job intake, execution and retention.
type Service struct {
	repo         Repository
	orchestrator *Orchestrator
	artifacts    ArtifactStore
	logger       *zap.Logger
	opts         ServiceOptions
}

// NewService creates a bulk job service. The artifact store may be nil when
// export download links never need re-signing.
func NewService(repo Repository, orchestrator *Orchestrator, artifacts ArtifactStore, logger *zap.Logger, opts ServiceOptions) *Service {
	defaults := DefaultServiceOptions()
	if opts.Retention <= 0 {
		opts.Retention = defaults.Retention
	}
	if opts.ArtifactLinkTTL <= 0 {
		opts.ArtifactLinkTTL = defaults.ArtifactLinkTTL
	}
	return &Service{
		repo:         repo,
		orchestrator: orchestrator,
		artifacts:    artifacts,
		logger:       logger,
		opts:         opts,
	}
}

// Validate previews a confirmation request without creating anything. The
// confirm path runs the identical checks, so a clean preview cannot fail
// confirmation later.
func (s *Service) Validate(req *CreateJobRequest) ValidationResult {
	return Validate(req)
}

// Confirm validates the request, persists a job and, when auto start is on,
// hands it to the orchestrator.
func (s *Service) Confirm(ctx context.Context, req *CreateJobRequest, requestedBy string) (*Job, error) {
	result := Validate(req)
	if !result.Valid {
		return nil, &ValidationFailedError{Result: result}
	}

	job := NewJob(req, requestedBy, time.Now())
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("Bulk job confirmed",
		zap.String("job_id", job.ID.String()),
		zap.String("operation", string(job.OperationType)),
		zap.Int("targets", len(job.TargetIDs)),
		zap.String("requested_by", requestedBy))

	view := *job
	view.TargetIDs = append([]string(nil), job.TargetIDs...)

	if s.opts.AutoStart {
		if err := s.orchestrator.Start(ctx, job); err != nil && !errors.Is(err, ErrJobOwned) {
			return nil, fmt.Errorf("failed to start bulk job: %w", err)
		}
		view.Status = JobRunning
	}

	return &view, nil
}

// StartQueued adopts queued jobs and launches them. The run lease taken by
// Start is the claim, so concurrent pollers cannot both adopt the same job.
func (s *Service) StartQueued(ctx context.Context) (int, error) {
	jobs, err := s.repo.ListJobsByStatus(ctx, JobQueued)
	if err != nil {
		return 0, err
	}

	started := 0
	for _, job := range jobs {
		if err := s.orchestrator.Start(ctx, job); err != nil {
			if errors.Is(err, ErrJobOwned) {
				continue
			}
			s.logger.Error("Failed to start queued job",
				zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		started++
	}
	return started, nil
}

// RecoverInterrupted re-adopts jobs left running or paused by an exited
// process, once their run lease has lapsed or been released. Jobs whose
// lease is still held keep their owner, so sweeps in several processes
// never adopt the same job twice. Recovered jobs resume from their
// recorded results; paused jobs stay paused until resumed.
func (s *Service) RecoverInterrupted(ctx context.Context) (int, error) {
	jobs, err := s.repo.ListJobsByStatus(ctx, JobRunning, JobPaused)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range jobs {
		if err := s.orchestrator.Start(ctx, job); err != nil {
			if errors.Is(err, ErrJobOwned) {
				s.logger.Debug("Interrupted job owned by another process",
					zap.String("job_id", job.ID.String()))
				continue
			}
			s.logger.Error("Failed to recover interrupted job",
				zap.String("job_id", job.ID.String()), zap.Error(err))
			continue
		}
		recovered++
	}
	if recovered > 0 {
		s.logger.Info("Recovered interrupted bulk jobs", zap.Int("count", recovered))
	}
	return recovered, nil
}

// Pause stops dispatch for a running job at the next item boundary.
func (s *Service) Pause(ctx context.Context, jobID uuid.UUID) error {
	err := s.orchestrator.Pause(jobID)
	if !errors.Is(err, ErrNotRunning) {
		return err
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	// No live run loop: nothing is dispatching, so there is nothing to
	// pause. Report it as a transition problem.
	return &workflows.ErrInvalidTransition{From: string(job.Status), To: string(JobPaused)}
}

// Resume restarts a paused job. A job paused by a process that has since
// exited is adopted first, then resumed; a job whose run lease is held by
// a live process elsewhere reports ErrJobOwned instead.
func (s *Service) Resume(ctx context.Context, jobID uuid.UUID) error {
	err := s.orchestrator.Resume(jobID)
	if !errors.Is(err, ErrNotRunning) {
		return err
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != JobPaused {
		return &workflows.ErrInvalidTransition{From: string(job.Status), To: string(JobRunning)}
	}
	if err := s.orchestrator.Start(ctx, job); err != nil {
		if errors.Is(err, ErrJobOwned) {
			return ErrJobOwned
		}
		return fmt.Errorf("failed to adopt paused job: %w", err)
	}
	return s.orchestrator.Resume(jobID)
}

// Cancel stops a job for good. Queued jobs and orphaned jobs cancel through
// a guarded status flip; live jobs drain their in-flight items first.
func (s *Service) Cancel(ctx context.Context, jobID uuid.UUID) error {
	err := s.orchestrator.Cancel(jobID)
	if !errors.Is(err, ErrNotRunning) {
		return err
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	return s.repo.TransitionStatus(ctx, jobID, job.Status, JobCancelled)
}

// Get returns a job with its per-item results. Live jobs are served from
// the run loop's own state, finished ones from the store.
func (s *Service) Get(ctx context.Context, jobID uuid.UUID) (*JobView, error) {
	if view, ok := s.orchestrator.Snapshot(jobID); ok {
		return view, nil
	}

	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	results, err := s.repo.ListResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return &JobView{Job: *job, Results: results}, nil
}

// List pages through jobs, newest first.
func (s *Service) List(ctx context.Context, filters *JobFilters) ([]*Job, int, error) {
	return s.repo.ListJobs(ctx, filters)
}

// ArtifactLink mints a fresh download link for a job's export artifact.
// The link stored on the job expires; this re-signs against the stored key.
func (s *Service) ArtifactLink(ctx context.Context, jobID uuid.UUID) (string, error) {
	job, err := s.repo.GetJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	if job.ArtifactKey == nil {
		return "", ErrNoArtifact
	}
	if s.artifacts == nil {
		if job.ArtifactURL != nil {
			return *job.ArtifactURL, nil
		}
		return "", ErrNoArtifact
	}

	url, err := s.artifacts.PresignGet(ctx, *job.ArtifactKey, s.opts.ArtifactLinkTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign artifact: %w", err)
	}
	return url, nil
}

// PurgeExpired deletes terminal jobs older than the retention window,
// removing their export artifacts first. An artifact that fails to delete
// is logged and skipped; the rows for its job still go.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-s.opts.Retention)

	if s.artifacts != nil {
		keys, err := s.repo.ListExpiredArtifactKeys(ctx, cutoff)
		if err != nil {
			return 0, err
		}
		for _, key := range keys {
			if err := s.artifacts.Delete(ctx, key); err != nil {
				s.logger.Warn("Failed to delete expired artifact",
					zap.String("key", key),
					zap.Error(err))
			}
		}
	}

	deleted, err := s.repo.DeleteExpired(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if deleted > 0 {
		s.logger.Info("Purged expired bulk jobs", zap.Int64("deleted", deleted))
	}
	return deleted, nil
}

// Shutdown drains every live run loop. Interrupted jobs keep their status
// and recover on the next boot.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.orchestrator.Shutdown(ctx)
}
