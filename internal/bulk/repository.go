package bulk

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/bulk/export"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/notifications"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/workflows"
)

// ErrJobNotFound is returned when no bulk job exists for an id.
var ErrJobNotFound = errors.New("bulk job not found")

// ErrEntityNotFound is returned when a target business entity is unknown.
var ErrEntityNotFound = errors.New("business entity not found")

// JobFilters narrows a job listing.
type JobFilters struct {
	Status        *JobStatus
	OperationType *OperationType
	Page          int
	PageSize      int
}

// Repository defines the interface for bulk job persistence
type Repository interface {
	CreateJob(ctx context.Context, job *Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)
	ListJobs(ctx context.Context, filters *JobFilters) ([]*Job, int, error)
	ListJobsByStatus(ctx context.Context, statuses ...JobStatus) ([]*Job, error)
	UpdateJobState(ctx context.Context, job *Job) error
	TransitionStatus(ctx context.Context, jobID uuid.UUID, from, to JobStatus) error
	ClaimJob(ctx context.Context, jobID uuid.UUID, ownerID string, ttl time.Duration) (bool, error)
	ReleaseJob(ctx context.Context, jobID uuid.UUID, ownerID string) error

	AppendResult(ctx context.Context, jobID uuid.UUID, res ItemResult) error
	ListResults(ctx context.Context, jobID uuid.UUID) (map[string]ItemResult, error)

	ListExpiredArtifactKeys(ctx context.Context, cutoff time.Time) ([]string, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
	FetchExportRows(ctx context.Context, targetIDs []string) ([]export.Row, error)
	GetContact(ctx context.Context, entityID string) (notifications.ContactInfo, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const jobColumns = `id, operation_type, target_ids, params, status,
	   processed, succeeded, failed, total,
	   requested_by, failure_cause, artifact_key, artifact_url,
	   created_at, started_at, completed_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job     Job
		targets pq.StringArray
		params  []byte
	)
	err := row.Scan(
		&job.ID, &job.OperationType, &targets, &params, &job.Status,
		&job.Progress.Processed, &job.Progress.Succeeded, &job.Progress.Failed, &job.Progress.Total,
		&job.RequestedBy, &job.FailureCause, &job.ArtifactKey, &job.ArtifactURL,
		&job.CreatedAt, &job.StartedAt, &job.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	job.TargetIDs = []string(targets)
	if len(params) > 0 {
		if err := json.Unmarshal(params, &job.Params); err != nil {
			return nil, fmt.Errorf("failed to decode job params: %w", err)
		}
	}
	return &job, nil
}

func (r *PostgresRepository) CreateJob(ctx context.Context, job *Job) error {
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("failed to encode job params: %w", err)
	}

	query := `
		INSERT INTO bulk_jobs (
			id, operation_type, target_ids, params, status,
			processed, succeeded, failed, total,
			requested_by, failure_cause, artifact_key, artifact_url,
			created_at, started_at, completed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err = r.db.ExecContext(ctx, query,
		job.ID, job.OperationType, pq.Array(job.TargetIDs), params, job.Status,
		job.Progress.Processed, job.Progress.Succeeded, job.Progress.Failed, job.Progress.Total,
		job.RequestedBy, job.FailureCause, job.ArtifactKey, job.ArtifactURL,
		job.CreatedAt, job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bulk job: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	query := `SELECT ` + jobColumns + ` FROM bulk_jobs WHERE id = $1`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get bulk job: %w", err)
	}

	return job, nil
}

func (r *PostgresRepository) ListJobs(ctx context.Context, filters *JobFilters) ([]*Job, int, error) {
	var conditions []string
	var args []interface{}
	argCount := 0

	if filters.Status != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("status = $%d", argCount))
		args = append(args, *filters.Status)
	}

	if filters.OperationType != nil {
		argCount++
		conditions = append(conditions, fmt.Sprintf("operation_type = $%d", argCount))
		args = append(args, *filters.OperationType)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM bulk_jobs"+whereClause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count bulk jobs: %w", err)
	}

	page := filters.Page
	if page < 1 {
		page = 1
	}
	pageSize := filters.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	argCount++
	limitArg := argCount
	argCount++
	offsetArg := argCount
	args = append(args, pageSize, (page-1)*pageSize)

	query := `SELECT ` + jobColumns + ` FROM bulk_jobs` + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", limitArg, offsetArg)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list bulk jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan bulk job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to iterate bulk jobs: %w", err)
	}

	return jobs, total, nil
}

func (r *PostgresRepository) ListJobsByStatus(ctx context.Context, statuses ...JobStatus) ([]*Job, error) {
	values := make([]string, len(statuses))
	for i, s := range statuses {
		values[i] = string(s)
	}

	query := `SELECT ` + jobColumns + ` FROM bulk_jobs WHERE status = ANY($1) ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(values))
	if err != nil {
		return nil, fmt.Errorf("failed to list bulk jobs by status: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bulk job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate bulk jobs: %w", err)
	}

	return jobs, nil
}

func (r *PostgresRepository) UpdateJobState(ctx context.Context, job *Job) error {
	query := `
		UPDATE bulk_jobs SET
			status = $2, processed = $3, succeeded = $4, failed = $5, total = $6,
			failure_cause = $7, artifact_key = $8, artifact_url = $9,
			started_at = $10, completed_at = $11
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		job.ID, job.Status,
		job.Progress.Processed, job.Progress.Succeeded, job.Progress.Failed, job.Progress.Total,
		job.FailureCause, job.ArtifactKey, job.ArtifactURL,
		job.StartedAt, job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update bulk job: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrJobNotFound
	}

	return nil
}

// TransitionStatus moves a job between statuses with a guard on the
// expected current status, for jobs that have no live run loop. Terminal
// targets also stamp completed_at.
func (r *PostgresRepository) TransitionStatus(ctx context.Context, jobID uuid.UUID, from, to JobStatus) error {
	if err := jobMachine.Transition(string(from), string(to)); err != nil {
		return err
	}

	var completedAt *time.Time
	if jobMachine.IsTerminal(string(to)) {
		now := time.Now()
		completedAt = &now
	}

	query := `UPDATE bulk_jobs SET status = $3, completed_at = COALESCE($4, completed_at) WHERE id = $1 AND status = $2`

	result, err := r.db.ExecContext(ctx, query, jobID, from, to, completedAt)
	if err != nil {
		return fmt.Errorf("failed to transition bulk job: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		var current string
		err := r.db.GetContext(ctx, &current, `SELECT status FROM bulk_jobs WHERE id = $1`, jobID)
		if err == sql.ErrNoRows {
			return ErrJobNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read bulk job status: %w", err)
		}
		return &workflows.ErrInvalidTransition{From: current, To: string(to)}
	}

	return nil
}

// ClaimJob takes or renews the run lease on an active job. A job is
// claimable while it is unowned, already held by the same owner, or held
// under a lease that has lapsed; terminal jobs are never claimable. The
// guarded update makes the claim atomic across processes.
func (r *PostgresRepository) ClaimJob(ctx context.Context, jobID uuid.UUID, ownerID string, ttl time.Duration) (bool, error) {
	query := `
		UPDATE bulk_jobs
		SET owner_id = $2, lease_until = NOW() + make_interval(secs => $3)
		WHERE id = $1
		  AND status IN ('queued', 'running', 'paused')
		  AND (owner_id IS NULL OR owner_id = $2 OR lease_until IS NULL OR lease_until < NOW())
	`

	result, err := r.db.ExecContext(ctx, query, jobID, ownerID, ttl.Seconds())
	if err != nil {
		return false, fmt.Errorf("failed to claim bulk job: %w", err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ReleaseJob clears the run lease if the caller still holds it, so a
// handed-back job can be adopted without waiting out the lease.
func (r *PostgresRepository) ReleaseJob(ctx context.Context, jobID uuid.UUID, ownerID string) error {
	query := `UPDATE bulk_jobs SET owner_id = NULL, lease_until = NULL WHERE id = $1 AND owner_id = $2`

	if _, err := r.db.ExecContext(ctx, query, jobID, ownerID); err != nil {
		return fmt.Errorf("failed to release bulk job: %w", err)
	}

	return nil
}

func (r *PostgresRepository) AppendResult(ctx context.Context, jobID uuid.UUID, res ItemResult) error {
	query := `
		INSERT INTO bulk_job_results (job_id, entity_id, ok, reason, completed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id, entity_id) DO NOTHING
	`

	_, err := r.db.ExecContext(ctx, query,
		jobID, res.EntityID, res.OK, res.Reason, res.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append item result: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListResults(ctx context.Context, jobID uuid.UUID) (map[string]ItemResult, error) {
	query := `
		SELECT entity_id, ok, reason, completed_at
		FROM bulk_job_results
		WHERE job_id = $1
	`

	var results []ItemResult
	if err := r.db.SelectContext(ctx, &results, query, jobID); err != nil {
		return nil, fmt.Errorf("failed to list item results: %w", err)
	}

	out := make(map[string]ItemResult, len(results))
	for _, res := range results {
		out[res.EntityID] = res
	}
	return out, nil
}

// ListExpiredArtifactKeys returns the artifact keys of jobs the next
// retention sweep will delete, so their blobs can be removed first.
func (r *PostgresRepository) ListExpiredArtifactKeys(ctx context.Context, cutoff time.Time) ([]string, error) {
	terminal := pq.Array([]string{string(JobCompleted), string(JobCancelled), string(JobFailed)})

	var keys []string
	err := r.db.SelectContext(ctx, &keys, `
		SELECT artifact_key FROM bulk_jobs
		WHERE status = ANY($1) AND completed_at < $2 AND artifact_key IS NOT NULL
	`, terminal, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to list expired artifacts: %w", err)
	}
	return keys, nil
}

// DeleteExpired removes terminal jobs finished before the cutoff, together
// with their item results.
func (r *PostgresRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin retention sweep: %w", err)
	}
	defer tx.Rollback()

	terminal := pq.Array([]string{string(JobCompleted), string(JobCancelled), string(JobFailed)})

	_, err = tx.ExecContext(ctx, `
		DELETE FROM bulk_job_results
		WHERE job_id IN (
			SELECT id FROM bulk_jobs WHERE status = ANY($1) AND completed_at < $2
		)
	`, terminal, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired results: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		`DELETE FROM bulk_jobs WHERE status = ANY($1) AND completed_at < $2`, terminal, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired jobs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit retention sweep: %w", err)
	}

	deleted, _ := result.RowsAffected()
	return deleted, nil
}

// FetchExportRows loads the export view of the target entities. Entities
// with no verification record export as pending.
func (r *PostgresRepository) FetchExportRows(ctx context.Context, targetIDs []string) ([]export.Row, error) {
	query := `
		SELECT e.business_name, e.owner_name, e.email,
			   COALESCE(r.status, 'pending') AS verification_status,
			   e.revenue_total, e.order_total, e.rating
		FROM business_entities e
		LEFT JOIN verification_records r ON r.entity_id = e.entity_id
		WHERE e.entity_id = ANY($1)
		ORDER BY e.business_name ASC
	`

	var rows []export.Row
	if err := r.db.SelectContext(ctx, &rows, query, pq.Array(targetIDs)); err != nil {
		return nil, fmt.Errorf("failed to fetch export rows: %w", err)
	}

	return rows, nil
}

func (r *PostgresRepository) GetContact(ctx context.Context, entityID string) (notifications.ContactInfo, error) {
	query := `
		SELECT business_name, email, COALESCE(phone, '') AS phone
		FROM business_entities
		WHERE entity_id = $1
	`

	var contact notifications.ContactInfo
	err := r.db.QueryRowContext(ctx, query, entityID).Scan(
		&contact.BusinessName, &contact.Email, &contact.Phone,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return notifications.ContactInfo{}, ErrEntityNotFound
		}
		return notifications.ContactInfo{}, fmt.Errorf("failed to get entity contact: %w", err)
	}

	return contact, nil
}
