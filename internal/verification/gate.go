package verification

import (
	"context"
	"fmt"

	"github.com/MdMirzaShihab/aaroth-fresh-admin-backend/internal/auth"
)

// Decision is the outcome of a capability gate evaluation.
type Decision string

const (
	DecisionAllow          Decision = "allow"
	DecisionLoading        Decision = "loading"
	DecisionError          Decision = "error"
	DecisionDenyFallback   Decision = "deny_fallback"
	DecisionDenyRestricted Decision = "deny_restricted"
	DecisionDenyMessage    Decision = "deny_message"
)

// GateResult carries the decision plus whatever the caller needs to render
// it: guidance text for denials, the caller's own fallback content, or the
// fault detail for errors.
type GateResult struct {
	Decision Decision `json:"decision"`
	Message  string   `json:"message,omitempty"`
	Fallback any      `json:"fallback,omitempty"`
}

// CapabilityQuery is a snapshot of one capability lookup. Loading and Err
// describe the state of the underlying status fetch, not of the record.
type CapabilityQuery struct {
	Loading      bool
	Err          error
	Capabilities CapabilitySet
	Record       *Record
	Restrictions RestrictionInfo
	Fallback     any
}

// EvaluateGate decides whether a capability is usable right now.
//
// Loading and error states short-circuit before any capability check: a
// transient fetch fault must surface as Error, never be mistaken for an
// ordinary denial.
func EvaluateGate(capability Capability, q CapabilityQuery) GateResult {
	if q.Loading {
		return GateResult{Decision: DecisionLoading}
	}
	if q.Err != nil {
		return GateResult{Decision: DecisionError, Message: q.Err.Error()}
	}
	if q.Capabilities.Has(capability) {
		return GateResult{Decision: DecisionAllow}
	}
	if q.Fallback != nil {
		return GateResult{Decision: DecisionDenyFallback, Fallback: q.Fallback}
	}
	if q.Restrictions.HasRestrictions && q.Record != nil && q.Record.Status != StatusApproved {
		return GateResult{
			Decision: DecisionDenyRestricted,
			Message:  restrictionMessage(q.Restrictions, q.Record),
		}
	}
	return GateResult{Decision: DecisionDenyMessage, Message: DenialMessage(capability, q.Record)}
}

// restrictionMessage combines the platform restriction reason with any
// reviewer notes so the restriction screen still carries resubmission
// guidance.
func restrictionMessage(info RestrictionInfo, record *Record) string {
	msg := info.Reason
	if msg == "" {
		msg = "Your account is currently restricted."
	}
	if record.Status == StatusRejected && record.AdminNotes != nil && *record.AdminNotes != "" {
		return fmt.Sprintf("%s Reviewer notes: %s", msg, *record.AdminNotes)
	}
	return msg
}

// CheckCapability fetches the caller's verification status and evaluates one
// capability against it. A fetch failure becomes an Error decision rather
// than a denial.
func CheckCapability(ctx context.Context, provider StatusProvider, user auth.UserContext, capability Capability, fallback any) GateResult {
	resp, err := provider.Fetch(ctx, user.UserID)
	if err != nil {
		return EvaluateGate(capability, CapabilityQuery{Err: err})
	}
	return EvaluateGate(capability, CapabilityQuery{
		Capabilities: EffectiveCapabilities(resp, user.Role),
		Record:       resp.Record,
		Restrictions: resp.Restrictions,
		Fallback:     fallback,
	})
}
