// Package workforce implements staff scheduling: PTO requests, backfill
// coverage, training sessions, and on-call rotations. Employee calendars
// are resources like any room or vehicle; the generic engine keeps them
// free of double-bookings.
package workforce

import "github.com/evermore/scheduling-engine/generic"

// =============================================================================
// WORKFORCE RESOURCE KINDS
// =============================================================================

// Resource is the concrete resource kind for the workforce domain.
// Implements generic.ResourceKind.
type Resource string

func (r Resource) KindID() string     { return string(r) }
func (r Resource) KindDomain() string { return "workforce" }

var _ generic.ResourceKind = Resource("")

const (
	KindPTO      Resource = "pto_request"
	KindBackfill Resource = "backfill_assignment"
	KindTraining Resource = "training_record"
	KindOnCall   Resource = "on_call_rotation"
)

func init() {
	generic.RegisterKind(KindPTO)
	generic.RegisterKind(KindBackfill)
	generic.RegisterKind(KindTraining)
	generic.RegisterKind(KindOnCall)
}

func policyKindFor(r Resource) generic.PolicyKind {
	switch r {
	case KindPTO:
		return generic.PolicyPTO
	case KindBackfill:
		return generic.PolicyServiceCoverage
	case KindTraining:
		return generic.PolicyTraining
	default:
		return generic.PolicyOnCall
	}
}

// =============================================================================
// STATUSES
// =============================================================================

// PTO request lifecycle:
// draft -> pending -> approved | rejected; approved -> taken;
// any non-terminal -> cancelled
const (
	StatusDraft     generic.Status = "draft"
	StatusPending   generic.Status = "pending"
	StatusApproved  generic.Status = "approved"
	StatusRejected  generic.Status = "rejected"
	StatusTaken     generic.Status = "taken"
	StatusCancelled generic.Status = "cancelled"
)

// Backfill assignment lifecycle:
// suggested -> pending_confirmation -> confirmed | rejected;
// confirmed -> completed; any non-terminal -> cancelled
const (
	StatusSuggested   generic.Status = "suggested"
	StatusPendingConf generic.Status = "pending_confirmation"
	StatusConfirmed   generic.Status = "confirmed"
	StatusCompleted   generic.Status = "completed"
)

// Training record lifecycle:
// scheduled -> in_progress -> completed; scheduled -> cancelled
const (
	StatusScheduled  generic.Status = "scheduled"
	StatusInProgress generic.Status = "in_progress"
)

// On-call rotation lifecycle:
// scheduled -> active -> completed; scheduled -> cancelled
const (
	StatusActive generic.Status = "active"
)

// Metadata keys specific to the workforce domain.
const (
	MetaRole   = "role"
	MetaReason = "reason"
)
