package bulk

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/bulk/export"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/workflows"
)

// OperationType names what a bulk job does to each target entity.
type OperationType string

const (
	OperationApprove  OperationType = "approve"
	OperationReject   OperationType = "reject"
	OperationActivate OperationType = "activate"
	OperationSuspend  OperationType = "suspend"
	OperationMessage  OperationType = "message"
	OperationExport   OperationType = "export"
)

// ParseOperationType normalizes a wire operation type.
func ParseOperationType(raw string) (OperationType, bool) {
	switch OperationType(raw) {
	case OperationApprove, OperationReject, OperationActivate,
		OperationSuspend, OperationMessage, OperationExport:
		return OperationType(raw), true
	default:
		return "", false
	}
}

// JobStatus is the bulk job lifecycle.
type JobStatus string

const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobCancelled JobStatus = "cancelled"
	JobFailed    JobStatus = "failed"
)

// Completed, cancelled and failed are terminal. Queued jobs may be
// cancelled before a worker ever picks them up.
var jobMachine = workflows.NewStateMachine(map[string][]string{
	string(JobQueued):    {string(JobRunning), string(JobCancelled)},
	string(JobRunning):   {string(JobPaused), string(JobCompleted), string(JobCancelled), string(JobFailed)},
	string(JobPaused):    {string(JobRunning), string(JobCancelled)},
	string(JobCompleted): {},
	string(JobCancelled): {},
	string(JobFailed):    {},
})

// JobMachine exposes the bulk job transition table.
func JobMachine() *workflows.StateMachine {
	return jobMachine
}

// Params carries the operation-specific inputs fixed at confirmation time.
type Params struct {
	Reason  string        `json:"reason,omitempty"`
	Message string        `json:"message,omitempty"`
	Format  export.Format `json:"format,omitempty"`
	Notify  bool          `json:"notify,omitempty"`
}

// Progress counts item outcomes. Processed always equals
// Succeeded + Failed.
type Progress struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}

// ItemResult is the recorded outcome for one target entity.
type ItemResult struct {
	EntityID    string    `json:"entityId" db:"entity_id"`
	OK          bool      `json:"ok" db:"ok"`
	Reason      string    `json:"reason,omitempty" db:"reason"`
	CompletedAt time.Time `json:"completedAt" db:"completed_at"`
}

// Job is one confirmed bulk operation. TargetIDs order is preserved from
// the confirmation request; results may complete out of that order.
type Job struct {
	ID            uuid.UUID     `json:"id"`
	OperationType OperationType `json:"operationType"`
	TargetIDs     []string      `json:"targetIds"`
	Params        Params        `json:"params"`
	Status        JobStatus     `json:"status"`
	Progress      Progress      `json:"progress"`
	RequestedBy   string        `json:"requestedBy"`
	FailureCause  *string       `json:"failureCause,omitempty"`
	ArtifactKey   *string       `json:"artifactKey,omitempty"`
	ArtifactURL   *string       `json:"artifactUrl,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	StartedAt     *time.Time    `json:"startedAt,omitempty"`
	CompletedAt   *time.Time    `json:"completedAt,omitempty"`
}

// exportItemID keys the single pseudo-item of an export job in ItemResults.
const exportItemID = "export"

// workItems returns the per-item work list. An export job is one artifact
// regardless of how many entities it covers.
func (j *Job) workItems() []string {
	if j.OperationType == OperationExport {
		return []string{exportItemID}
	}
	return j.TargetIDs
}

// JobSpec is the immutable slice of a job handed to item executors. It
// never changes after confirmation, so workers can read it without locks.
type JobSpec struct {
	ID            uuid.UUID
	OperationType OperationType
	TargetIDs     []string
	Params        Params
	RequestedBy   string
}

// Spec snapshots the immutable fields of a job.
func (j *Job) Spec() JobSpec {
	targets := make([]string, len(j.TargetIDs))
	copy(targets, j.TargetIDs)
	return JobSpec{
		ID:            j.ID,
		OperationType: j.OperationType,
		TargetIDs:     targets,
		Params:        j.Params,
		RequestedBy:   j.RequestedBy,
	}
}

// JobView is a consistent read of a job with its per-item results.
type JobView struct {
	Job     Job                   `json:"job"`
	Results map[string]ItemResult `json:"results"`
}

// CreateJobRequest is the confirmation payload for a new bulk operation.
type CreateJobRequest struct {
	OperationType string   `json:"operationType" binding:"required"`
	TargetIDs     []string `json:"targetIds"`
	Reason        string   `json:"reason"`
	Message       string   `json:"message"`
	Format        string   `json:"format"`
	Notify        bool     `json:"notify"`
}

// ValidationIssue is one field-level problem found during validation.
type ValidationIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationResult is the outcome of the pre-confirmation validate phase.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// ValidationFailedError rejects a confirmation before any job is created.
type ValidationFailedError struct {
	Result ValidationResult
}

func (e *ValidationFailedError) Error() string {
	reasons := make([]string, 0, len(e.Result.Issues))
	for _, issue := range e.Result.Issues {
		reasons = append(reasons, fmt.Sprintf("%s: %s", issue.Field, issue.Reason))
	}
	return "bulk request validation failed: " + strings.Join(reasons, "; ")
}

// Validate checks a confirmation request without side effects. Both the
// validate endpoint and the confirm path run the same checks, so a request
// that previews clean cannot fail confirmation.
func Validate(req *CreateJobRequest) ValidationResult {
	var issues []ValidationIssue

	op, ok := ParseOperationType(req.OperationType)
	if !ok {
		issues = append(issues, ValidationIssue{
			Field:  "operationType",
			Reason: fmt.Sprintf("unknown operation type %q", req.OperationType),
		})
	}

	if len(req.TargetIDs) == 0 {
		issues = append(issues, ValidationIssue{
			Field:  "targetIds",
			Reason: "at least one target entity is required",
		})
	}
	for _, id := range req.TargetIDs {
		if strings.TrimSpace(id) == "" {
			issues = append(issues, ValidationIssue{
				Field:  "targetIds",
				Reason: "target ids must be non-empty",
			})
			break
		}
	}

	switch op {
	case OperationReject, OperationSuspend:
		if strings.TrimSpace(req.Reason) == "" {
			issues = append(issues, ValidationIssue{
				Field:  "reason",
				Reason: fmt.Sprintf("a reason is required for %s operations", op),
			})
		}
	case OperationMessage:
		if strings.TrimSpace(req.Message) == "" {
			issues = append(issues, ValidationIssue{
				Field:  "message",
				Reason: "a message body is required",
			})
		}
	case OperationExport:
		if _, ok := export.ParseFormat(req.Format); !ok {
			issues = append(issues, ValidationIssue{
				Field:  "format",
				Reason: fmt.Sprintf("unknown export format %q", req.Format),
			})
		}
	}

	return ValidationResult{Valid: len(issues) == 0, Issues: issues}
}

// NewJob builds a queued job from a validated request. Duplicate target ids
// are collapsed, keeping first occurrence order.
func NewJob(req *CreateJobRequest, requestedBy string, now time.Time) *Job {
	op, _ := ParseOperationType(req.OperationType)

	seen := make(map[string]struct{}, len(req.TargetIDs))
	targets := make([]string, 0, len(req.TargetIDs))
	for _, id := range req.TargetIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		targets = append(targets, id)
	}

	format, _ := export.ParseFormat(req.Format)

	job := &Job{
		ID:            uuid.New(),
		OperationType: op,
		TargetIDs:     targets,
		Params: Params{
			Reason:  strings.TrimSpace(req.Reason),
			Message: strings.TrimSpace(req.Message),
			Notify:  req.Notify,
		},
		Status:      JobQueued,
		RequestedBy: requestedBy,
		CreatedAt:   now,
	}
	if op == OperationExport {
		job.Params.Format = format
	}
	job.Progress.Total = len(job.workItems())
	return job
}
