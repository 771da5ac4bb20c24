package verification

import (
	"time"

	"github.com/google/uuid"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/pkg/workflows"
)

// EntityType distinguishes the two kinds of business accounts subject to
// verification.
type EntityType string

const (
	EntityTypeVendor EntityType = "vendor"
	EntityTypeBuyer  EntityType = "buyer"
)

// ParseEntityType normalizes a wire entity type. Buyer accounts predate
// the vendor/buyer split and may still arrive as "restaurant".
func ParseEntityType(raw string) (EntityType, bool) {
	switch raw {
	case "vendor":
		return EntityTypeVendor, true
	case "buyer", "restaurant":
		return EntityTypeBuyer, true
	default:
		return "", false
	}
}

// Status is the three-state verification lifecycle.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// NormalizeStatus maps boundary values onto the canonical enum. Missing or
// unrecognized statuses degrade to pending, never to approved.
func NormalizeStatus(raw string) Status {
	switch Status(raw) {
	case StatusApproved:
		return StatusApproved
	case StatusRejected:
		return StatusRejected
	default:
		return StatusPending
	}
}

var statusMachine = workflows.NewStateMachine(map[string][]string{
	string(StatusPending):  {string(StatusApproved), string(StatusRejected)},
	string(StatusApproved): {},
	string(StatusRejected): {string(StatusPending)},
})

// StatusMachine exposes the verification transition table.
func StatusMachine() *workflows.StateMachine {
	return statusMachine
}

// Record tracks a business entity's verification state.
// AdminNotes carries reviewer guidance only while status is rejected;
// VerificationDate is set only while status is approved.
type Record struct {
	EntityID         string     `db:"entity_id" json:"entityId"`
	EntityType       EntityType `db:"entity_type" json:"entityType"`
	Status           Status     `db:"status" json:"status"`
	AdminNotes       *string    `db:"admin_notes" json:"adminNotes,omitempty"`
	VerificationDate *time.Time `db:"verification_date" json:"verificationDate,omitempty"`
	SubmittedAt      time.Time  `db:"submitted_at" json:"submittedAt"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// NewRecord creates a pending record for a first-time submission.
func NewRecord(entityID string, entityType EntityType, now time.Time) *Record {
	return &Record{
		EntityID:    entityID,
		EntityType:  entityType,
		Status:      StatusPending,
		SubmittedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Approve moves a pending record to approved. Approval clears stale
// reviewer notes and stamps the verification date.
func (r *Record) Approve(at time.Time) error {
	if err := statusMachine.Transition(string(r.Status), string(StatusApproved)); err != nil {
		return err
	}
	r.Status = StatusApproved
	r.AdminNotes = nil
	date := at
	r.VerificationDate = &date
	r.UpdatedAt = at
	return nil
}

// Reject moves a pending record to rejected. Reviewer notes are mandatory
// since they are the entity's only resubmission guidance.
func (r *Record) Reject(notes string, at time.Time) error {
	if notes == "" {
		return &ValidationError{Field: "adminNotes", Reason: "rejection requires reviewer notes"}
	}
	if err := statusMachine.Transition(string(r.Status), string(StatusRejected)); err != nil {
		return err
	}
	r.Status = StatusRejected
	r.AdminNotes = &notes
	r.VerificationDate = nil
	r.UpdatedAt = at
	return nil
}

// Resubmit returns a rejected record to pending once a new submission has
// actually arrived. The stale reviewer notes are cleared and the waiting
// clock restarts.
func (r *Record) Resubmit(at time.Time) error {
	if err := statusMachine.Transition(string(r.Status), string(StatusPending)); err != nil {
		return err
	}
	r.Status = StatusPending
	r.AdminNotes = nil
	r.VerificationDate = nil
	r.SubmittedAt = at
	r.UpdatedAt = at
	return nil
}

// LegacyIsVerified adapts the three-state model to the boolean shape some
// platform consumers still expect. Only approved reads as verified.
func (r *Record) LegacyIsVerified() bool {
	return r.Status == StatusApproved
}

// WaitingDays reports whole days since the most recent submission.
func (r *Record) WaitingDays(now time.Time) int {
	if now.Before(r.SubmittedAt) {
		return 0
	}
	return int(now.Sub(r.SubmittedAt).Hours() / 24)
}

// ValidationError reports a request rejected before any state change.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Reason
}

// StatusHistory is one reviewer decision or resubmission event.
type StatusHistory struct {
	ID         uuid.UUID `db:"id" json:"id"`
	EntityID   string    `db:"entity_id" json:"entityId"`
	FromStatus Status    `db:"from_status" json:"fromStatus"`
	ToStatus   Status    `db:"to_status" json:"toStatus"`
	Notes      *string   `db:"notes" json:"notes,omitempty"`
	ChangedBy  string    `db:"changed_by" json:"changedBy"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// AccountStatus is the platform-level active/suspended flag, independent of
// verification status. Bulk Activate/Suspend operations flip it.
type AccountStatus string

const (
	AccountActive    AccountStatus = "active"
	AccountSuspended AccountStatus = "suspended"
)

// BusinessEntity is the profile read model backing the review queue and
// export rows.
type BusinessEntity struct {
	EntityID      string        `db:"entity_id" json:"entityId"`
	EntityType    EntityType    `db:"entity_type" json:"entityType"`
	BusinessName  string        `db:"business_name" json:"businessName"`
	OwnerName     string        `db:"owner_name" json:"ownerName"`
	Email         string        `db:"email" json:"email"`
	Phone         string        `db:"phone" json:"phone"`
	AccountStatus AccountStatus `db:"account_status" json:"accountStatus"`
	RevenueTotal  float64       `db:"revenue_total" json:"revenueTotal"`
	OrderTotal    int           `db:"order_total" json:"orderTotal"`
	Rating        float64       `db:"rating" json:"rating"`
}

// RestrictionInfo mirrors the platform's account restriction flag surfaced
// alongside verification status.
type RestrictionInfo struct {
	HasRestrictions bool   `json:"hasRestrictions"`
	Reason          string `json:"reason"`
}

// QueueFilters narrows the review queue listing.
type QueueFilters struct {
	Status     *Status
	EntityType *EntityType
	SearchTerm *string
	Page       int
	PageSize   int
}

// QueueEntry is one review-queue row: the record joined with the entity
// profile, plus waiting time and its urgency band.
type QueueEntry struct {
	Record       Record  `json:"record"`
	BusinessName string  `json:"businessName"`
	OwnerName    string  `json:"ownerName"`
	Email        string  `json:"email"`
	WaitingDays  int     `json:"waitingDays"`
	Urgency      Urgency `json:"urgency"`
}

// Urgency buckets a pending entity by how long it has been waiting.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyHigh     Urgency = "high"
	UrgencyMedium   Urgency = "medium"
	UrgencyLow      Urgency = "low"
)

// UrgencyThresholds holds the waiting-day cutoffs. The cutoffs are
// deployment configuration rather than fixed policy.
type UrgencyThresholds struct {
	CriticalDays int
	HighDays     int
	MediumDays   int
}

// DefaultUrgencyThresholds returns the review-queue SLA used when no
// configuration is supplied.
func DefaultUrgencyThresholds() UrgencyThresholds {
	return UrgencyThresholds{CriticalDays: 7, HighDays: 5, MediumDays: 3}
}

// Bucket maps waiting days onto an urgency band.
func (t UrgencyThresholds) Bucket(waitingDays int) Urgency {
	switch {
	case waitingDays >= t.CriticalDays:
		return UrgencyCritical
	case waitingDays >= t.HighDays:
		return UrgencyHigh
	case waitingDays >= t.MediumDays:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
