/*
Package generic provides the core temporal scheduling engine.

PURPOSE:
  This package contains tenant-agnostic types and algorithms for reserving
  finite, time-bounded resources without double-booking. Whether the
  resource is a preparation room, a removal vehicle, or an embalmer's
  calendar, the same engine handles conflict detection, availability
  search, lifecycle transitions, and policy-bound validation.

KEY CONCEPTS IN THIS FILE (types.go):
  - Tenant/Resource/Window IDs: Type-safe identifiers
  - ResourceKind: Interface implemented by domain packages
  - StaffMember: A schedulable employee (input to the candidate ranker)

DESIGN PRINCIPLES:
  1. Immutability: Window versions are never modified, only superseded
  2. Determinism: Pure functions take time as input, never read the clock
  3. Type Safety: Strong typing for IDs prevents mixing tenant/resource IDs
  4. Auditability: Every mutation records who performed it and when

USAGE:
  w := generic.Window{
      TenantID:   "chapel-hill",
      ResourceID: "prep-room-1",
      Start:      start,
      End:        start.Add(4 * time.Hour),
  }

SEE ALSO:
  - window.go: Window type and overlap detection
  - policy.go: Versioned tenant policy model
  - machine.go: Lifecycle state machine abstraction
*/
package generic

import "time"

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type ResourceID string
type EmployeeID string
type WindowID string

// Actor identifies who performed a mutation. The engine does not
// authenticate actors, it only records who they claim to be.
type Actor string

const ActorSystem Actor = "system"

// =============================================================================
// RESOURCE KIND - What kind of thing is being reserved
// =============================================================================

// ResourceKind identifies what kind of reservable thing a window claims.
// This is an interface so domain packages define their own concrete types.
// The generic package has NO knowledge of specific kinds.
//
// Domain packages implement this:
//
//	// In booking/types.go
//	type Resource string
//	func (r Resource) KindID() string     { return string(r) }
//	func (r Resource) KindDomain() string { return "booking" }
//	const ResourcePrepRoom Resource = "prep_room"
type ResourceKind interface {
	// KindID returns the unique identifier for this resource kind.
	KindID() string

	// KindDomain returns which domain this kind belongs to.
	KindDomain() string
}

// =============================================================================
// KIND REGISTRY
// =============================================================================

var kindRegistry = map[string]ResourceKind{}

// RegisterKind adds a resource kind to the global registry.
// Domain packages call this from init().
func RegisterKind(k ResourceKind) {
	kindRegistry[k.KindID()] = k
}

// LookupKind resolves a kind identifier to its registered ResourceKind.
// Returns nil if the kind was never registered.
func LookupKind(id string) ResourceKind {
	return kindRegistry[id]
}

// =============================================================================
// STAFF - Schedulable employees (ranker input)
// =============================================================================

// StaffMember is an employee eligible for assignment. The engine treats
// employees as resources: their calendars are finite and must not be
// double-booked any more than a prep room can be.
type StaffMember struct {
	ID       EmployeeID
	TenantID TenantID
	Name     string
	Role     string // e.g. "director", "embalmer", "driver"
	HiredAt  time.Time
}
