package verification

import (
	"fmt"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/auth"
)

// Capability names a single permission derived from verification state and
// role. The set is closed; unknown names never grant anything.
type Capability string

const (
	CapabilityCreateListings  Capability = "canCreateListings"
	CapabilityPlaceOrders     Capability = "canPlaceOrders"
	CapabilityManageBusiness  Capability = "canManageBusiness"
	CapabilityAccessDashboard Capability = "canAccessDashboard"
	CapabilityUpdateProfile   Capability = "canUpdateProfile"
)

// ParseCapability validates a wire capability name against the closed set.
func ParseCapability(raw string) (Capability, bool) {
	switch Capability(raw) {
	case CapabilityCreateListings, CapabilityPlaceOrders, CapabilityManageBusiness,
		CapabilityAccessDashboard, CapabilityUpdateProfile:
		return Capability(raw), true
	default:
		return "", false
	}
}

// CapabilitySet is the full permission snapshot for one user. Fields are
// fixed so a misspelled capability is a compile error, not a silent false.
type CapabilitySet struct {
	CanCreateListings  bool `json:"canCreateListings"`
	CanPlaceOrders     bool `json:"canPlaceOrders"`
	CanManageBusiness  bool `json:"canManageBusiness"`
	CanAccessDashboard bool `json:"canAccessDashboard"`
	CanUpdateProfile   bool `json:"canUpdateProfile"`
}

// Has looks up one capability. Unknown names return false.
func (s CapabilitySet) Has(c Capability) bool {
	switch c {
	case CapabilityCreateListings:
		return s.CanCreateListings
	case CapabilityPlaceOrders:
		return s.CanPlaceOrders
	case CapabilityManageBusiness:
		return s.CanManageBusiness
	case CapabilityAccessDashboard:
		return s.CanAccessDashboard
	case CapabilityUpdateProfile:
		return s.CanUpdateProfile
	default:
		return false
	}
}

// Resolve derives the capability set for a record and role. It is pure and
// total: a nil record fails closed for every verification-gated capability,
// and profile updates are never gated.
func Resolve(record *Record, role auth.Role) CapabilitySet {
	caps := CapabilitySet{CanUpdateProfile: true}

	if role == auth.RoleAdmin {
		caps.CanAccessDashboard = true
		return caps
	}
	if record == nil {
		return caps
	}

	caps.CanAccessDashboard = true
	approved := record.Status == StatusApproved

	switch role {
	case auth.RoleVendor:
		caps.CanCreateListings = approved
		caps.CanManageBusiness = approved
	case auth.RoleBuyerOwner:
		caps.CanPlaceOrders = approved
		caps.CanManageBusiness = approved
	case auth.RoleBuyerManager:
		caps.CanPlaceOrders = approved
	}

	return caps
}

var denialMessages = map[Capability]string{
	CapabilityCreateListings:  "Your business must be verified before you can create listings.",
	CapabilityPlaceOrders:     "Your business must be verified before you can place orders.",
	CapabilityManageBusiness:  "Managing business settings requires an approved verification.",
	CapabilityAccessDashboard: "Dashboard access requires a linked business account.",
	CapabilityUpdateProfile:   "Profile updates are temporarily unavailable.",
}

const genericDenialMessage = "You do not have permission to perform this action."

// DenialMessage renders the human guidance for a denied capability. When the
// record was rejected, the reviewer's notes are appended so the user knows
// what to fix before resubmitting.
func DenialMessage(c Capability, record *Record) string {
	msg, ok := denialMessages[c]
	if !ok {
		msg = genericDenialMessage
	}
	if record != nil && record.Status == StatusRejected && record.AdminNotes != nil && *record.AdminNotes != "" {
		return fmt.Sprintf("%s Reviewer notes: %s", msg, *record.AdminNotes)
	}
	return msg
}
