package verification

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/auth"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/notifications"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/workflows"
)

type mockRepository struct {
	mock.Mock
}

func (m *mockRepository) CreateRecord(ctx context.Context, record *Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockRepository) GetRecord(ctx context.Context, entityID string) (*Record, error) {
	args := m.Called(ctx, entityID)
	if record, ok := args.Get(0).(*Record); ok {
		return record, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) UpdateRecord(ctx context.Context, record *Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *mockRepository) ListQueue(ctx context.Context, filters *QueueFilters) ([]*QueueEntry, int, error) {
	args := m.Called(ctx, filters)
	if entries, ok := args.Get(0).([]*QueueEntry); ok {
		return entries, args.Int(1), args.Error(2)
	}
	return nil, args.Int(1), args.Error(2)
}

func (m *mockRepository) AppendHistory(ctx context.Context, entry *StatusHistory) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *mockRepository) ListHistory(ctx context.Context, entityID string) ([]*StatusHistory, error) {
	args := m.Called(ctx, entityID)
	if entries, ok := args.Get(0).([]*StatusHistory); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) GetEntity(ctx context.Context, entityID string) (*BusinessEntity, error) {
	args := m.Called(ctx, entityID)
	if entity, ok := args.Get(0).(*BusinessEntity); ok {
		return entity, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockRepository) UpdateAccountStatus(ctx context.Context, entityID string, status AccountStatus) error {
	args := m.Called(ctx, entityID, status)
	return args.Error(0)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyDecision(ctx context.Context, contact notifications.ContactInfo, approved bool, notes string) error {
	args := m.Called(ctx, contact, approved, notes)
	return args.Error(0)
}

func newTestService(repo Repository, notifier DecisionNotifier, cache *StatusCache) *Service {
	return NewService(repo, notifier, cache, UrgencyThresholds{}, zap.NewNop())
}

func TestSubmitCreatesPendingRecord(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(nil, ErrRecordNotFound)
	repo.On("CreateRecord", mock.Anything, mock.MatchedBy(func(r *Record) bool {
		return r.EntityID == "entity-1" && r.Status == StatusPending
	})).Return(nil)

	svc := newTestService(repo, nil, nil)

	record, err := svc.Submit(context.Background(), "entity-1", EntityTypeVendor)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, record.Status)
	assert.Equal(t, EntityTypeVendor, record.EntityType)

	repo.AssertExpectations(t)
}

func TestSubmitResubmitsRejectedRecord(t *testing.T) {
	existing := rejectedRecord("missing documents")
	existing.EntityID = "entity-1"

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)
	repo.On("UpdateRecord", mock.Anything, mock.MatchedBy(func(r *Record) bool {
		return r.Status == StatusPending && r.AdminNotes == nil
	})).Return(nil)
	repo.On("AppendHistory", mock.Anything, mock.MatchedBy(func(e *StatusHistory) bool {
		return e.FromStatus == StatusRejected && e.ToStatus == StatusPending
	})).Return(nil)

	svc := newTestService(repo, nil, nil)

	record, err := svc.Submit(context.Background(), "entity-1", EntityTypeVendor)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, record.Status)

	repo.AssertExpectations(t)
}

func TestSubmitWhilePendingFails(t *testing.T) {
	existing := NewRecord("entity-1", EntityTypeVendor, time.Now())

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)

	svc := newTestService(repo, nil, nil)

	_, err := svc.Submit(context.Background(), "entity-1", EntityTypeVendor)
	var invalid *workflows.ErrInvalidTransition
	assert.ErrorAs(t, err, &invalid)

	repo.AssertNotCalled(t, "UpdateRecord", mock.Anything, mock.Anything)
}

func TestApproveRecordsHistoryAndNotifies(t *testing.T) {
	existing := NewRecord("entity-1", EntityTypeVendor, time.Now().Add(-48*time.Hour))
	entity := &BusinessEntity{
		EntityID:     "entity-1",
		BusinessName: "Green Grocer",
		Email:        "owner@greengrocer.example",
		Phone:        "+8801700000000",
	}

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)
	repo.On("UpdateRecord", mock.Anything, mock.MatchedBy(func(r *Record) bool {
		return r.Status == StatusApproved && r.VerificationDate != nil
	})).Return(nil)
	repo.On("AppendHistory", mock.Anything, mock.MatchedBy(func(e *StatusHistory) bool {
		return e.FromStatus == StatusPending && e.ToStatus == StatusApproved && e.ChangedBy == "admin-9"
	})).Return(nil)
	repo.On("GetEntity", mock.Anything, "entity-1").Return(entity, nil)

	notifier := new(mockNotifier)
	notifier.On("NotifyDecision", mock.Anything, mock.MatchedBy(func(c notifications.ContactInfo) bool {
		return c.BusinessName == "Green Grocer"
	}), true, "").Return(nil)

	svc := newTestService(repo, notifier, nil)

	record, err := svc.Approve(context.Background(), "entity-1", "admin-9", true)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, record.Status)

	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestApproveWithoutNotifySkipsNotifier(t *testing.T) {
	existing := NewRecord("entity-1", EntityTypeVendor, time.Now())

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)
	repo.On("UpdateRecord", mock.Anything, mock.Anything).Return(nil)
	repo.On("AppendHistory", mock.Anything, mock.Anything).Return(nil)

	notifier := new(mockNotifier)

	svc := newTestService(repo, notifier, nil)

	_, err := svc.Approve(context.Background(), "entity-1", "admin-9", false)
	require.NoError(t, err)

	notifier.AssertNotCalled(t, "NotifyDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "GetEntity", mock.Anything, mock.Anything)
}

func TestApproveMissingRecord(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "ghost").Return(nil, ErrRecordNotFound)

	svc := newTestService(repo, nil, nil)

	_, err := svc.Approve(context.Background(), "ghost", "admin-9", false)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestRejectStoresNotesAndNotifies(t *testing.T) {
	existing := NewRecord("entity-1", EntityTypeBuyer, time.Now())
	entity := &BusinessEntity{EntityID: "entity-1", BusinessName: "Dhaka Deli", Email: "d@deli.example"}

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)
	repo.On("UpdateRecord", mock.Anything, mock.MatchedBy(func(r *Record) bool {
		return r.Status == StatusRejected && r.AdminNotes != nil && *r.AdminNotes == "Upload valid trade license"
	})).Return(nil)
	repo.On("AppendHistory", mock.Anything, mock.MatchedBy(func(e *StatusHistory) bool {
		return e.ToStatus == StatusRejected && e.Notes != nil && *e.Notes == "Upload valid trade license"
	})).Return(nil)
	repo.On("GetEntity", mock.Anything, "entity-1").Return(entity, nil)

	notifier := new(mockNotifier)
	notifier.On("NotifyDecision", mock.Anything, mock.Anything, false, "Upload valid trade license").Return(nil)

	svc := newTestService(repo, notifier, nil)

	record, err := svc.Reject(context.Background(), "entity-1", "admin-9", "Upload valid trade license", true)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, record.Status)

	repo.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestRejectWithoutNotes(t *testing.T) {
	existing := NewRecord("entity-1", EntityTypeVendor, time.Now())

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)

	svc := newTestService(repo, nil, nil)

	_, err := svc.Reject(context.Background(), "entity-1", "admin-9", "", false)
	var validation *ValidationError
	assert.ErrorAs(t, err, &validation)

	repo.AssertNotCalled(t, "UpdateRecord", mock.Anything, mock.Anything)
}

func TestNotifierFailureDoesNotFailDecision(t *testing.T) {
	existing := NewRecord("entity-1", EntityTypeVendor, time.Now())
	entity := &BusinessEntity{EntityID: "entity-1", BusinessName: "Green Grocer"}

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)
	repo.On("UpdateRecord", mock.Anything, mock.Anything).Return(nil)
	repo.On("AppendHistory", mock.Anything, mock.Anything).Return(nil)
	repo.On("GetEntity", mock.Anything, "entity-1").Return(entity, nil)

	notifier := new(mockNotifier)
	notifier.On("NotifyDecision", mock.Anything, mock.Anything, true, "").Return(errors.New("ses unavailable"))

	svc := newTestService(repo, notifier, nil)

	record, err := svc.Approve(context.Background(), "entity-1", "admin-9", true)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, record.Status)
}

func TestApplyDecisionApproveIsIdempotent(t *testing.T) {
	existing := approvedRecord()
	existing.EntityID = "entity-1"

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)

	notifier := new(mockNotifier)

	svc := newTestService(repo, notifier, nil)

	require.NoError(t, svc.ApplyDecision(context.Background(), "entity-1", "approve", "", "admin-9", true))
	repo.AssertNotCalled(t, "UpdateRecord", mock.Anything, mock.Anything)
	notifier.AssertNotCalled(t, "NotifyDecision", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApplyDecisionRejectTransitions(t *testing.T) {
	existing := NewRecord("entity-1", EntityTypeVendor, time.Now())

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)
	repo.On("UpdateRecord", mock.Anything, mock.MatchedBy(func(r *Record) bool {
		return r.Status == StatusRejected
	})).Return(nil)
	repo.On("AppendHistory", mock.Anything, mock.MatchedBy(func(e *StatusHistory) bool {
		return e.Notes != nil && *e.Notes == "bulk cleanup" && e.ChangedBy == "admin-9"
	})).Return(nil)

	svc := newTestService(repo, nil, nil)

	require.NoError(t, svc.ApplyDecision(context.Background(), "entity-1", "reject", "bulk cleanup", "admin-9", false))
	repo.AssertExpectations(t)
}

func TestApplyDecisionNotifySendsNotice(t *testing.T) {
	existing := NewRecord("entity-1", EntityTypeVendor, time.Now())
	entity := &BusinessEntity{EntityID: "entity-1", BusinessName: "Green Grocer", Email: "o@gg.example"}

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(existing, nil)
	repo.On("UpdateRecord", mock.Anything, mock.Anything).Return(nil)
	repo.On("AppendHistory", mock.Anything, mock.Anything).Return(nil)
	repo.On("GetEntity", mock.Anything, "entity-1").Return(entity, nil)

	notifier := new(mockNotifier)
	notifier.On("NotifyDecision", mock.Anything, mock.Anything, false, "bulk cleanup").Return(nil)

	svc := newTestService(repo, notifier, nil)

	require.NoError(t, svc.ApplyDecision(context.Background(), "entity-1", "reject", "bulk cleanup", "admin-9", true))
	notifier.AssertExpectations(t)
}

func TestApplyDecisionAccountFlips(t *testing.T) {
	repo := new(mockRepository)
	repo.On("UpdateAccountStatus", mock.Anything, "entity-1", AccountActive).Return(nil)
	repo.On("UpdateAccountStatus", mock.Anything, "entity-2", AccountSuspended).Return(nil)

	svc := newTestService(repo, nil, nil)

	require.NoError(t, svc.ApplyDecision(context.Background(), "entity-1", "activate", "", "admin-9", false))
	require.NoError(t, svc.ApplyDecision(context.Background(), "entity-2", "suspend", "", "admin-9", false))
	repo.AssertExpectations(t)
}

func TestApplyDecisionUnknown(t *testing.T) {
	svc := newTestService(new(mockRepository), nil, nil)

	err := svc.ApplyDecision(context.Background(), "entity-1", "obliterate", "", "admin-9", false)
	assert.Error(t, err)
}

func queueEntryWaiting(days int) *QueueEntry {
	record := NewRecord("entity", EntityTypeVendor, time.Now().Add(-time.Duration(days)*24*time.Hour))
	return &QueueEntry{Record: *record}
}

func TestDigestBucketsPendingQueue(t *testing.T) {
	entries := []*QueueEntry{
		queueEntryWaiting(10),
		queueEntryWaiting(5),
		queueEntryWaiting(3),
		queueEntryWaiting(1),
	}

	repo := new(mockRepository)
	repo.On("ListQueue", mock.Anything, mock.MatchedBy(func(f *QueueFilters) bool {
		return f.Status != nil && *f.Status == StatusPending
	})).Return(entries, 4, nil)

	svc := newTestService(repo, nil, nil)

	digest, err := svc.Digest(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, digest.Total)
	assert.Equal(t, 1, digest.Critical)
	assert.Equal(t, 1, digest.High)
	assert.Equal(t, 1, digest.Medium)
	assert.Equal(t, 1, digest.Low)
	assert.Equal(t, 10, digest.OldestWaitingDays)
}

func TestStatusMissingRecordFailsClosed(t *testing.T) {
	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(nil, ErrRecordNotFound)
	repo.On("GetEntity", mock.Anything, "entity-1").Return(nil, ErrEntityNotFound)

	svc := newTestService(repo, nil, nil)

	resp, err := svc.Status(context.Background(), "entity-1", auth.RoleVendor)
	require.NoError(t, err)

	assert.Nil(t, resp.Record)
	assert.False(t, resp.Capabilities.CanCreateListings)
	assert.True(t, resp.Capabilities.CanUpdateProfile)
	assert.False(t, resp.Restrictions.HasRestrictions)
	require.NotEmpty(t, resp.NextSteps)
	assert.Contains(t, resp.NextSteps[0], "Submit your business registration")
}

func TestStatusSuspendedEntity(t *testing.T) {
	record := approvedRecord()
	record.EntityID = "entity-1"
	entity := &BusinessEntity{EntityID: "entity-1", AccountStatus: AccountSuspended}

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(record, nil)
	repo.On("GetEntity", mock.Anything, "entity-1").Return(entity, nil)

	svc := newTestService(repo, nil, nil)

	resp, err := svc.Status(context.Background(), "entity-1", auth.RoleVendor)
	require.NoError(t, err)

	assert.True(t, resp.Restrictions.HasRestrictions)
	assert.True(t, resp.Capabilities.CanCreateListings)
	assert.Empty(t, resp.NextSteps)
}

func TestStatusRejectedNextStepsCarryNotes(t *testing.T) {
	record := rejectedRecord("Upload valid trade license")
	record.EntityID = "entity-1"

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(record, nil)
	repo.On("GetEntity", mock.Anything, "entity-1").Return(nil, ErrEntityNotFound)

	svc := newTestService(repo, nil, nil)

	resp, err := svc.Status(context.Background(), "entity-1", auth.RoleVendor)
	require.NoError(t, err)

	assert.Contains(t, resp.NextSteps, "Upload valid trade license")
}

func TestStatusForUserWithoutEntity(t *testing.T) {
	repo := new(mockRepository)
	svc := newTestService(repo, nil, nil)

	resp, err := svc.StatusForUser(context.Background(), auth.UserContext{UserID: "u1", Role: auth.RoleAdmin})
	require.NoError(t, err)

	assert.Nil(t, resp.Record)
	assert.True(t, resp.Capabilities.CanAccessDashboard)
	assert.Empty(t, resp.NextSteps)

	repo.AssertNotCalled(t, "GetRecord", mock.Anything, mock.Anything)
}

func TestStatusServedFromCacheUntilInvalidated(t *testing.T) {
	record := NewRecord("entity-1", EntityTypeVendor, time.Now().Add(-24*time.Hour))
	entity := &BusinessEntity{EntityID: "entity-1", AccountStatus: AccountActive}

	cache := NewStatusCache(time.Minute)
	defer cache.Stop()

	repo := new(mockRepository)
	repo.On("GetRecord", mock.Anything, "entity-1").Return(record, nil).Once()
	repo.On("GetEntity", mock.Anything, "entity-1").Return(entity, nil).Once()

	svc := newTestService(repo, nil, cache)

	first, err := svc.Status(context.Background(), "entity-1", auth.RoleVendor)
	require.NoError(t, err)
	assert.False(t, first.Capabilities.CanCreateListings)

	// Second read is served from the cache; the repo expectations above are
	// Once and would fail on a second hit.
	second, err := svc.Status(context.Background(), "entity-1", auth.RoleVendor)
	require.NoError(t, err)
	assert.Equal(t, first.Record, second.Record)

	repo.On("GetRecord", mock.Anything, "entity-1").Return(record, nil).Once()
	repo.On("UpdateRecord", mock.Anything, mock.Anything).Return(nil).Once()
	repo.On("AppendHistory", mock.Anything, mock.Anything).Return(nil).Once()

	_, err = svc.Approve(context.Background(), "entity-1", "admin-9", false)
	require.NoError(t, err)
	assert.Equal(t, 0, cache.Size())

	repo.On("GetRecord", mock.Anything, "entity-1").Return(record, nil).Once()
	repo.On("GetEntity", mock.Anything, "entity-1").Return(entity, nil).Once()

	third, err := svc.Status(context.Background(), "entity-1", auth.RoleVendor)
	require.NoError(t, err)
	assert.True(t, third.Capabilities.CanCreateListings)

	repo.AssertExpectations(t)
}

func TestQueueComputesWaitingAndUrgency(t *testing.T) {
	now := time.Now()
	entries := []*QueueEntry{
		{Record: *NewRecord("fresh", EntityTypeVendor, now.Add(-12*time.Hour)), BusinessName: "Fresh"},
		{Record: *NewRecord("aging", EntityTypeVendor, now.Add(-4*24*time.Hour)), BusinessName: "Aging"},
		{Record: *NewRecord("stale", EntityTypeBuyer, now.Add(-10*24*time.Hour)), BusinessName: "Stale"},
	}

	repo := new(mockRepository)
	repo.On("ListQueue", mock.Anything, mock.MatchedBy(func(f *QueueFilters) bool {
		return f.Page == 1 && f.PageSize == 20
	})).Return(entries, 3, nil)

	svc := newTestService(repo, nil, nil)

	result, err := svc.Queue(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, result.Entries, 3)

	assert.Equal(t, 0, result.Entries[0].WaitingDays)
	assert.Equal(t, UrgencyLow, result.Entries[0].Urgency)
	assert.Equal(t, 4, result.Entries[1].WaitingDays)
	assert.Equal(t, UrgencyMedium, result.Entries[1].Urgency)
	assert.Equal(t, 10, result.Entries[2].WaitingDays)
	assert.Equal(t, UrgencyCritical, result.Entries[2].Urgency)
	assert.Equal(t, 3, result.Total)
}
