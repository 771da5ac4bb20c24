package verification

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/auth"
	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/notifications"
)

// DecisionNotifier delivers approval/rejection notices to the affected
// business. Delivery failures never roll back a decision.
type DecisionNotifier interface {
	NotifyDecision(ctx context.Context, contact notifications.ContactInfo, approved bool, notes string) error
}

// Service coordinates verification decisions, the review queue, and the
// status endpoint consumed by the capability layer.
type Service struct {
	repo     Repository
	notifier DecisionNotifier
	cache    *StatusCache
	urgency  UrgencyThresholds
	logger   *zap.Logger
}

// NewService creates a verification service. notifier may be nil when
// decision notices are disabled, cache may be nil to read through to the
// store on every status call.
func NewService(repo Repository, notifier DecisionNotifier, cache *StatusCache, urgency UrgencyThresholds, logger *zap.Logger) *Service {
	if urgency == (UrgencyThresholds{}) {
		urgency = DefaultUrgencyThresholds()
	}
	return &Service{
		repo:     repo,
		notifier: notifier,
		cache:    cache,
		urgency:  urgency,
		logger:   logger,
	}
}

// Submit registers a new submission for an entity. A first submission
// creates a pending record; a submission after rejection returns the record
// to pending and clears the old reviewer notes. Submitting while pending or
// approved is rejected.
func (s *Service) Submit(ctx context.Context, entityID string, entityType EntityType) (*Record, error) {
	now := time.Now()

	record, err := s.repo.GetRecord(ctx, entityID)
	if err != nil && err != ErrRecordNotFound {
		return nil, err
	}

	if record == nil {
		record = NewRecord(entityID, entityType, now)
		if err := s.repo.CreateRecord(ctx, record); err != nil {
			return nil, err
		}
		s.invalidate(entityID)
		s.logger.Info("Created verification record",
			zap.String("entity_id", entityID),
			zap.String("entity_type", string(entityType)))
		return record, nil
	}

	previous := record.Status
	if err := record.Resubmit(now); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRecord(ctx, record); err != nil {
		return nil, err
	}
	s.invalidate(entityID)
	s.appendHistory(ctx, record.EntityID, previous, record.Status, nil, entityID)

	s.logger.Info("Entity resubmitted for verification", zap.String("entity_id", entityID))
	return record, nil
}

// Approve marks a pending entity as verified.
func (s *Service) Approve(ctx context.Context, entityID, reviewedBy string, notify bool) (*Record, error) {
	now := time.Now()

	record, err := s.repo.GetRecord(ctx, entityID)
	if err != nil {
		return nil, err
	}

	previous := record.Status
	if err := record.Approve(now); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRecord(ctx, record); err != nil {
		return nil, err
	}
	s.invalidate(entityID)
	s.appendHistory(ctx, entityID, previous, record.Status, nil, reviewedBy)

	s.logger.Info("Approved entity verification",
		zap.String("entity_id", entityID),
		zap.String("reviewed_by", reviewedBy))

	if notify {
		s.notifyDecision(ctx, entityID, true, "")
	}
	return record, nil
}

// Reject declines a pending entity with mandatory reviewer notes.
func (s *Service) Reject(ctx context.Context, entityID, reviewedBy, notes string, notify bool) (*Record, error) {
	now := time.Now()

	record, err := s.repo.GetRecord(ctx, entityID)
	if err != nil {
		return nil, err
	}

	previous := record.Status
	if err := record.Reject(notes, now); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateRecord(ctx, record); err != nil {
		return nil, err
	}
	s.invalidate(entityID)
	s.appendHistory(ctx, entityID, previous, record.Status, &notes, reviewedBy)

	s.logger.Info("Rejected entity verification",
		zap.String("entity_id", entityID),
		zap.String("reviewed_by", reviewedBy))

	if notify {
		s.notifyDecision(ctx, entityID, false, notes)
	}
	return record, nil
}

// ApplyDecision syncs one remotely-confirmed bulk decision into the local
// store. Unlike the single-entity endpoints it is idempotent: an entity
// already in the target state is a no-op, so bulk retries never fail on
// their own earlier progress. A no-op also skips the notice, which keeps
// retried items from mailing the business twice.
func (s *Service) ApplyDecision(ctx context.Context, entityID, decision, reason, actor string, notify bool) error {
	now := time.Now()

	switch decision {
	case "approve", "reject":
		record, err := s.repo.GetRecord(ctx, entityID)
		if err != nil {
			return err
		}
		previous := record.Status

		if decision == "approve" {
			if record.Status == StatusApproved {
				return nil
			}
			if err := record.Approve(now); err != nil {
				return err
			}
		} else {
			if record.Status == StatusRejected {
				return nil
			}
			if err := record.Reject(reason, now); err != nil {
				return err
			}
		}

		if err := s.repo.UpdateRecord(ctx, record); err != nil {
			return err
		}
		s.invalidate(entityID)
		var notes *string
		if reason != "" {
			notes = &reason
		}
		s.appendHistory(ctx, entityID, previous, record.Status, notes, actor)
		if notify {
			if decision == "approve" {
				s.notifyDecision(ctx, entityID, true, "")
			} else {
				s.notifyDecision(ctx, entityID, false, reason)
			}
		}
		return nil

	case "activate":
		if err := s.repo.UpdateAccountStatus(ctx, entityID, AccountActive); err != nil {
			return err
		}
		s.invalidate(entityID)
		return nil
	case "suspend":
		if err := s.repo.UpdateAccountStatus(ctx, entityID, AccountSuspended); err != nil {
			return err
		}
		s.invalidate(entityID)
		return nil
	default:
		return fmt.Errorf("unknown decision %q", decision)
	}
}

// Get returns the verification record for an entity.
func (s *Service) Get(ctx context.Context, entityID string) (*Record, error) {
	return s.repo.GetRecord(ctx, entityID)
}

// History returns the decision trail for an entity, newest first.
func (s *Service) History(ctx context.Context, entityID string) ([]*StatusHistory, error) {
	return s.repo.ListHistory(ctx, entityID)
}

// QueueResult is one page of the review queue.
type QueueResult struct {
	Entries  []*QueueEntry `json:"entries"`
	Total    int           `json:"total"`
	Page     int           `json:"page"`
	PageSize int           `json:"pageSize"`
}

// Queue lists entities awaiting review with waiting time and urgency.
func (s *Service) Queue(ctx context.Context, filters *QueueFilters) (*QueueResult, error) {
	if filters == nil {
		filters = &QueueFilters{}
	}
	if filters.Page < 1 {
		filters.Page = 1
	}
	if filters.PageSize < 1 {
		filters.PageSize = 20
	}

	entries, total, err := s.repo.ListQueue(ctx, filters)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	for _, entry := range entries {
		entry.WaitingDays = entry.Record.WaitingDays(now)
		entry.Urgency = s.urgency.Bucket(entry.WaitingDays)
	}

	return &QueueResult{
		Entries:  entries,
		Total:    total,
		Page:     filters.Page,
		PageSize: filters.PageSize,
	}, nil
}

// QueueDigest tallies the pending review queue by urgency band.
type QueueDigest struct {
	Total             int `json:"total"`
	Critical          int `json:"critical"`
	High              int `json:"high"`
	Medium            int `json:"medium"`
	Low               int `json:"low"`
	OldestWaitingDays int `json:"oldestWaitingDays"`
}

// Digest walks the whole pending queue and counts entries per urgency band.
// The worker logs it on a daily schedule so review backlogs surface without
// anyone opening the dashboard.
func (s *Service) Digest(ctx context.Context) (*QueueDigest, error) {
	digest := &QueueDigest{}
	now := time.Now()
	pending := StatusPending
	filters := &QueueFilters{Status: &pending, Page: 1, PageSize: 200}

	for {
		entries, total, err := s.repo.ListQueue(ctx, filters)
		if err != nil {
			return nil, err
		}
		digest.Total = total

		for _, entry := range entries {
			days := entry.Record.WaitingDays(now)
			if days > digest.OldestWaitingDays {
				digest.OldestWaitingDays = days
			}
			switch s.urgency.Bucket(days) {
			case UrgencyCritical:
				digest.Critical++
			case UrgencyHigh:
				digest.High++
			case UrgencyMedium:
				digest.Medium++
			default:
				digest.Low++
			}
		}

		if len(entries) == 0 || filters.Page*filters.PageSize >= total {
			return digest, nil
		}
		filters.Page++
	}
}

// Status assembles the composite verification answer for one entity's user:
// record, precomputed capabilities, restrictions, and next steps. A missing
// record is a valid answer (nil record, fail-closed capabilities), not an
// error.
func (s *Service) Status(ctx context.Context, entityID string, role auth.Role) (*StatusResponse, error) {
	snap, err := s.loadSnapshot(ctx, entityID)
	if err != nil {
		return nil, err
	}

	caps := Resolve(snap.record, role)
	resp := &StatusResponse{
		Record:       snap.record,
		Capabilities: &caps,
		Restrictions: RestrictionInfo{},
		NextSteps:    nextSteps(snap.record),
	}
	if snap.suspended {
		resp.Restrictions = RestrictionInfo{
			HasRestrictions: true,
			Reason:          "Your account is suspended. Contact support to restore access.",
		}
	}

	return resp, nil
}

// StatusForUser answers for the calling user. Users without a linked entity
// (admins) get role capabilities over a nil record.
func (s *Service) StatusForUser(ctx context.Context, user auth.UserContext) (*StatusResponse, error) {
	if user.LinkedEntityID == nil || *user.LinkedEntityID == "" {
		caps := Resolve(nil, user.Role)
		return &StatusResponse{
			Record:       nil,
			Capabilities: &caps,
			Restrictions: RestrictionInfo{},
			NextSteps:    []string{},
		}, nil
	}
	return s.Status(ctx, *user.LinkedEntityID, user.Role)
}

func (s *Service) loadSnapshot(ctx context.Context, entityID string) (*statusSnapshot, error) {
	if s.cache != nil {
		if snap, ok := s.cache.get(entityID); ok {
			return snap, nil
		}
	}

	record, err := s.repo.GetRecord(ctx, entityID)
	if err != nil && err != ErrRecordNotFound {
		return nil, err
	}

	entity, err := s.repo.GetEntity(ctx, entityID)
	if err != nil && err != ErrEntityNotFound {
		return nil, err
	}

	snap := &statusSnapshot{
		record:    record,
		suspended: entity != nil && entity.AccountStatus == AccountSuspended,
	}
	if s.cache != nil {
		s.cache.set(entityID, snap)
	}
	return snap, nil
}

func (s *Service) invalidate(entityID string) {
	if s.cache != nil {
		s.cache.Invalidate(entityID)
	}
}

func nextSteps(record *Record) []string {
	if record == nil {
		return []string{"Submit your business registration to start verification."}
	}
	switch record.Status {
	case StatusPending:
		return []string{"Your submission is under review. You will be notified once a decision is made."}
	case StatusRejected:
		steps := []string{"Review the reviewer notes and update your registration."}
		if record.AdminNotes != nil && *record.AdminNotes != "" {
			steps = append(steps, *record.AdminNotes)
		}
		return append(steps, "Resubmit your registration for another review.")
	default:
		return []string{}
	}
}

func (s *Service) appendHistory(ctx context.Context, entityID string, from, to Status, notes *string, changedBy string) {
	entry := &StatusHistory{
		ID:         uuid.New(),
		EntityID:   entityID,
		FromStatus: from,
		ToStatus:   to,
		Notes:      notes,
		ChangedBy:  changedBy,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.AppendHistory(ctx, entry); err != nil {
		s.logger.Error("Failed to append status history",
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

func (s *Service) notifyDecision(ctx context.Context, entityID string, approved bool, notes string) {
	if s.notifier == nil {
		return
	}
	entity, err := s.repo.GetEntity(ctx, entityID)
	if err != nil {
		s.logger.Warn("Skipping decision notice, entity lookup failed",
			zap.String("entity_id", entityID),
			zap.Error(err))
		return
	}
	contact := notifications.ContactInfo{
		BusinessName: entity.BusinessName,
		Email:        entity.Email,
		Phone:        entity.Phone,
	}
	if err := s.notifier.NotifyDecision(ctx, contact, approved, notes); err != nil {
		s.logger.Warn("Failed to deliver decision notice",
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}
