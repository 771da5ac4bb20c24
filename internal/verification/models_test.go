package verification

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/workflows"
)

func pendingRecord(t *testing.T) *Record {
	t.Helper()
	return NewRecord("entity-1", EntityTypeVendor, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))
}

func TestNewRecordStartsPending(t *testing.T) {
	record := pendingRecord(t)

	assert.Equal(t, StatusPending, record.Status)
	assert.Nil(t, record.AdminNotes)
	assert.Nil(t, record.VerificationDate)
	assert.False(t, record.LegacyIsVerified())
}

func TestApproveStampsDateAndClearsNotes(t *testing.T) {
	record := pendingRecord(t)
	notes := "stale guidance"
	record.AdminNotes = &notes

	at := time.Date(2025, 3, 5, 9, 0, 0, 0, time.UTC)
	require.NoError(t, record.Approve(at))

	assert.Equal(t, StatusApproved, record.Status)
	assert.Nil(t, record.AdminNotes)
	require.NotNil(t, record.VerificationDate)
	assert.Equal(t, at, *record.VerificationDate)
	assert.True(t, record.LegacyIsVerified())
}

func TestApproveIsTerminal(t *testing.T) {
	record := pendingRecord(t)
	require.NoError(t, record.Approve(time.Now()))

	err := record.Reject("changed our mind", time.Now())
	var invalid *workflows.ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)

	err = record.Resubmit(time.Now())
	assert.ErrorAs(t, err, &invalid)
	assert.Equal(t, StatusApproved, record.Status)
}

func TestRejectRequiresNotes(t *testing.T) {
	record := pendingRecord(t)

	err := record.Reject("", time.Now())
	var validation *ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "adminNotes", validation.Field)
	assert.Equal(t, StatusPending, record.Status)
}

func TestRejectStoresNotesAndClearsDate(t *testing.T) {
	record := pendingRecord(t)
	when := time.Now()
	date := when
	record.VerificationDate = &date

	require.NoError(t, record.Reject("Upload valid trade license", when))

	assert.Equal(t, StatusRejected, record.Status)
	require.NotNil(t, record.AdminNotes)
	assert.Equal(t, "Upload valid trade license", *record.AdminNotes)
	assert.Nil(t, record.VerificationDate)
	assert.False(t, record.LegacyIsVerified())
}

func TestResubmitRestartsWaitingClock(t *testing.T) {
	record := pendingRecord(t)
	require.NoError(t, record.Reject("missing documents", record.SubmittedAt.Add(48*time.Hour)))

	resubmitted := record.SubmittedAt.Add(96 * time.Hour)
	require.NoError(t, record.Resubmit(resubmitted))

	assert.Equal(t, StatusPending, record.Status)
	assert.Nil(t, record.AdminNotes)
	assert.Nil(t, record.VerificationDate)
	assert.Equal(t, resubmitted, record.SubmittedAt)
	assert.Equal(t, 0, record.WaitingDays(resubmitted.Add(12*time.Hour)))
}

func TestResubmitWhilePendingRejected(t *testing.T) {
	record := pendingRecord(t)

	err := record.Resubmit(time.Now())
	var invalid *workflows.ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)
}

func TestNormalizeStatusDegradesToPending(t *testing.T) {
	assert.Equal(t, StatusApproved, NormalizeStatus("approved"))
	assert.Equal(t, StatusRejected, NormalizeStatus("rejected"))
	assert.Equal(t, StatusPending, NormalizeStatus("pending"))
	assert.Equal(t, StatusPending, NormalizeStatus(""))
	assert.Equal(t, StatusPending, NormalizeStatus("verified"))
	assert.Equal(t, StatusPending, NormalizeStatus("APPROVED"))
}

func TestParseEntityTypeLegacyRestaurant(t *testing.T) {
	entityType, ok := ParseEntityType("restaurant")
	require.True(t, ok)
	assert.Equal(t, EntityTypeBuyer, entityType)

	_, ok = ParseEntityType("warehouse")
	assert.False(t, ok)
}

func TestWaitingDays(t *testing.T) {
	record := pendingRecord(t)

	assert.Equal(t, 0, record.WaitingDays(record.SubmittedAt))
	assert.Equal(t, 0, record.WaitingDays(record.SubmittedAt.Add(23*time.Hour)))
	assert.Equal(t, 1, record.WaitingDays(record.SubmittedAt.Add(25*time.Hour)))
	assert.Equal(t, 7, record.WaitingDays(record.SubmittedAt.Add(7*24*time.Hour)))
	assert.Equal(t, 0, record.WaitingDays(record.SubmittedAt.Add(-time.Hour)))
}

func TestUrgencyBuckets(t *testing.T) {
	thresholds := DefaultUrgencyThresholds()

	assert.Equal(t, UrgencyLow, thresholds.Bucket(0))
	assert.Equal(t, UrgencyLow, thresholds.Bucket(2))
	assert.Equal(t, UrgencyMedium, thresholds.Bucket(3))
	assert.Equal(t, UrgencyMedium, thresholds.Bucket(4))
	assert.Equal(t, UrgencyHigh, thresholds.Bucket(5))
	assert.Equal(t, UrgencyHigh, thresholds.Bucket(6))
	assert.Equal(t, UrgencyCritical, thresholds.Bucket(7))
	assert.Equal(t, UrgencyCritical, thresholds.Bucket(30))
}
