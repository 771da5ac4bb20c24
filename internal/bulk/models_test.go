package bulk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/bulk/export"
)

func issueFields(result ValidationResult) []string {
	fields := make([]string, 0, len(result.Issues))
	for _, issue := range result.Issues {
		fields = append(fields, issue.Field)
	}
	return fields
}

func TestValidateAcceptsWellFormedRequests(t *testing.T) {
	cases := []struct {
		name string
		req  CreateJobRequest
	}{
		{"approve", CreateJobRequest{OperationType: "approve", TargetIDs: []string{"e1", "e2"}}},
		{"reject with reason", CreateJobRequest{OperationType: "reject", TargetIDs: []string{"e1"}, Reason: "stale documents"}},
		{"activate", CreateJobRequest{OperationType: "activate", TargetIDs: []string{"e1"}}},
		{"suspend with reason", CreateJobRequest{OperationType: "suspend", TargetIDs: []string{"e1"}, Reason: "fraud hold"}},
		{"message with body", CreateJobRequest{OperationType: "message", TargetIDs: []string{"e1"}, Message: "Please update your trade license."}},
		{"export with explicit format", CreateJobRequest{OperationType: "export", TargetIDs: []string{"e1"}, Format: "xlsx"}},
		{"export defaults to csv", CreateJobRequest{OperationType: "export", TargetIDs: []string{"e1"}}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Validate(&tc.req)
			assert.True(t, result.Valid, "issues: %v", result.Issues)
			assert.Empty(t, result.Issues)
		})
	}
}

func TestValidateRejectsBadRequests(t *testing.T) {
	cases := []struct {
		name  string
		req   CreateJobRequest
		field string
	}{
		{"unknown operation", CreateJobRequest{OperationType: "archive", TargetIDs: []string{"e1"}}, "operationType"},
		{"no targets", CreateJobRequest{OperationType: "approve"}, "targetIds"},
		{"blank target id", CreateJobRequest{OperationType: "approve", TargetIDs: []string{"e1", "  "}}, "targetIds"},
		{"reject without reason", CreateJobRequest{OperationType: "reject", TargetIDs: []string{"e1"}}, "reason"},
		{"reject with whitespace reason", CreateJobRequest{OperationType: "reject", TargetIDs: []string{"e1"}, Reason: "   "}, "reason"},
		{"suspend without reason", CreateJobRequest{OperationType: "suspend", TargetIDs: []string{"e1"}}, "reason"},
		{"message without body", CreateJobRequest{OperationType: "message", TargetIDs: []string{"e1"}}, "message"},
		{"export with unknown format", CreateJobRequest{OperationType: "export", TargetIDs: []string{"e1"}, Format: "parquet"}, "format"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := Validate(&tc.req)
			assert.False(t, result.Valid)
			assert.Contains(t, issueFields(result), tc.field)
		})
	}
}

func TestValidateCollectsEveryIssue(t *testing.T) {
	result := Validate(&CreateJobRequest{OperationType: "reject"})

	assert.False(t, result.Valid)
	assert.ElementsMatch(t, []string{"targetIds", "reason"}, issueFields(result))
}

func TestValidationFailedErrorNamesFields(t *testing.T) {
	result := Validate(&CreateJobRequest{OperationType: "archive"})
	err := &ValidationFailedError{Result: result}

	assert.Contains(t, err.Error(), "operationType")
	assert.Contains(t, err.Error(), "targetIds")
}

func TestNewJobCollapsesDuplicateTargets(t *testing.T) {
	req := &CreateJobRequest{
		OperationType: "approve",
		TargetIDs:     []string{"e1", "e2", "e1", "e3", "e2"},
	}

	job := NewJob(req, "admin-1", time.Now())

	assert.Equal(t, []string{"e1", "e2", "e3"}, job.TargetIDs)
	assert.Equal(t, JobQueued, job.Status)
	assert.Equal(t, "admin-1", job.RequestedBy)
	assert.Equal(t, 3, job.Progress.Total)
	assert.Zero(t, job.Progress.Processed)
}

func TestNewJobTrimsParams(t *testing.T) {
	req := &CreateJobRequest{
		OperationType: "reject",
		TargetIDs:     []string{"e1"},
		Reason:        "  incomplete documents  ",
		Notify:        true,
	}

	job := NewJob(req, "admin-1", time.Now())

	assert.Equal(t, "incomplete documents", job.Params.Reason)
	assert.True(t, job.Params.Notify)
	assert.Empty(t, job.Params.Format, "format only applies to export jobs")
}

func TestNewJobExportIsSingleWorkItem(t *testing.T) {
	req := &CreateJobRequest{
		OperationType: "export",
		TargetIDs:     []string{"e1", "e2", "e3", "e4"},
		Format:        "excel",
	}

	job := NewJob(req, "admin-1", time.Now())

	assert.Equal(t, export.FormatExcel, job.Params.Format)
	assert.Len(t, job.TargetIDs, 4)
	assert.Equal(t, 1, job.Progress.Total, "one artifact regardless of target count")
	assert.Equal(t, []string{exportItemID}, job.workItems())
}

func TestJobSpecIsDetachedFromJob(t *testing.T) {
	job := newTestJob(OperationApprove, []string{"e1", "e2"})
	spec := job.Spec()

	job.TargetIDs[0] = "mutated"

	require.Len(t, spec.TargetIDs, 2)
	assert.Equal(t, "e1", spec.TargetIDs[0])
}

func TestJobMachineGuardsTerminalStates(t *testing.T) {
	machine := JobMachine()

	assert.NoError(t, machine.Transition(string(JobQueued), string(JobRunning)))
	assert.NoError(t, machine.Transition(string(JobQueued), string(JobCancelled)))
	assert.NoError(t, machine.Transition(string(JobRunning), string(JobPaused)))
	assert.NoError(t, machine.Transition(string(JobPaused), string(JobRunning)))

	assert.Error(t, machine.Transition(string(JobQueued), string(JobCompleted)))
	assert.Error(t, machine.Transition(string(JobCompleted), string(JobRunning)))
	assert.Error(t, machine.Transition(string(JobCancelled), string(JobRunning)))

	assert.True(t, machine.IsTerminal(string(JobFailed)))
	assert.False(t, machine.IsTerminal(string(JobPaused)))
}

func TestParseOperationType(t *testing.T) {
	op, ok := ParseOperationType("suspend")
	require.True(t, ok)
	assert.Equal(t, OperationSuspend, op)

	_, ok = ParseOperationType("purge")
	assert.False(t, ok)
}
