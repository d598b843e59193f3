// Package booking implements facility scheduling: preparation-room
// reservations, driver/vehicle assignments, and pre-planning appointments.
// It uses the generic engine with booking-specific state machines and
// policy kinds.
package booking

import "github.com/evermore/scheduling-engine/generic"

// =============================================================================
// BOOKING RESOURCE KINDS
// =============================================================================

// Resource is the concrete resource kind for the booking domain.
// Implements generic.ResourceKind.
type Resource string

func (r Resource) KindID() string     { return string(r) }
func (r Resource) KindDomain() string { return "booking" }

var _ generic.ResourceKind = Resource("")

const (
	KindPrepRoom    Resource = "prep_room_reservation"
	KindDriver      Resource = "driver_assignment"
	KindAppointment Resource = "pre_planning_appointment"
)

func init() {
	generic.RegisterKind(KindPrepRoom)
	generic.RegisterKind(KindDriver)
	generic.RegisterKind(KindAppointment)
}

// policyKindFor maps a window kind to the policy that governs it.
func policyKindFor(r Resource) generic.PolicyKind {
	switch r {
	case KindPrepRoom:
		return generic.PolicyPrepRoom
	case KindDriver:
		return generic.PolicyVehicle
	default:
		return generic.PolicyAppointment
	}
}

// =============================================================================
// STATUSES
// =============================================================================

// Prep-room reservation lifecycle:
// pending -> confirmed -> in_progress -> completed
// pending/confirmed -> auto_released | cancelled
const (
	StatusPending      generic.Status = "pending"
	StatusConfirmed    generic.Status = "confirmed"
	StatusInProgress   generic.Status = "in_progress"
	StatusCompleted    generic.Status = "completed"
	StatusAutoReleased generic.Status = "auto_released"
	StatusCancelled    generic.Status = "cancelled"
)

// Pre-planning appointment lifecycle:
// scheduled -> confirmed -> completed; scheduled/confirmed -> cancelled | no_show
const (
	StatusScheduled generic.Status = "scheduled"
	StatusNoShow    generic.Status = "no_show"
)

// Driver/vehicle assignment lifecycle:
// pending -> accepted -> in_progress -> completed; any non-terminal -> cancelled
const (
	StatusAccepted generic.Status = "accepted"
)

// Metadata keys specific to the booking domain.
const (
	MetaDriverID = "driver_id"
	MetaCaseID   = "case_id"
)
