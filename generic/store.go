/*
store.go - Persistence, audit, and notification ports

PURPOSE:
  Defines the interfaces between the engine and the outside world. The
  engine is a library: it never opens a database, sends an email, or
  authenticates anyone. Implementations live in generic/store (memory)
  and store/sqlite (production).

KEY INTERFACES:
  WindowStore:    Append-only versioned persistence for windows (SCD2)
  PolicyStore:    Versioned tenant policy rows with close-then-insert
  StaffDirectory: Employee lookup for the candidate ranker
  AuditLog:       Who did what, when - append-only
  Notifier:       Events the engine decides should fire; delivery is
                  somebody else's problem

SCD2 CONTRACT:
  Neither windows nor policies are ever updated in place. A mutation
  closes the current version and inserts the next one atomically; history
  is never physically deleted. Exactly one version per business key is
  current at any instant.

PER-RESOURCE SERIALIZATION:
  Insert and Update take a precheck callback that the store MUST run
  against the resource's current windows inside the same serialization
  scope (lock or transaction) as the write. Two concurrent requests for
  the same prep room must not both pass the conflict check and both
  persist; requests against different resources may proceed in parallel.

SEE ALSO:
  - validate.go: Supplies the precheck (capacity + conflict)
  - generic/store/memory.go: In-memory implementation for tests/dev
  - store/sqlite/: Production implementation
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// WINDOW STORE - Temporal entity persistence (SCD2)
// =============================================================================

// Precheck is evaluated against the resource's current windows inside the
// store's per-resource serialization scope, immediately before the write.
// A non-nil error aborts the write and is returned unchanged.
type Precheck func(existing []Window) error

// WindowStore persists windows as append-only version chains.
type WindowStore interface {
	// Insert persists version 1 of a new window. The precheck (if any)
	// runs against all current windows of the same (tenant, resource)
	// under the resource's serialization scope.
	Insert(ctx context.Context, w Window, precheck Precheck) (Window, error)

	// Update closes the current version and inserts the next one. The
	// given window's Version must match the current version or
	// ErrVersionConflict is returned. The precheck sees the resource's
	// other current windows (the updated window itself excluded).
	Update(ctx context.Context, w Window, precheck Precheck) (Window, error)

	// Get returns the current version of a window.
	Get(ctx context.Context, tenant TenantID, id WindowID) (Window, error)

	// History returns every version of a window, oldest first.
	History(ctx context.Context, tenant TenantID, id WindowID) ([]Window, error)

	// FindCurrentByResource returns current-version windows on a resource
	// whose [Start, End) intersects [from, to), filtered to the given
	// statuses (nil = all), ordered by Start then ID.
	FindCurrentByResource(ctx context.Context, tenant TenantID, resource ResourceID, from, to time.Time, statuses []Status) ([]Window, error)

	// FindCurrentByKind returns current-version windows of a kind in the
	// given statuses (nil = all), ordered by Start then ID. Used by the
	// poller and by capacity checks that span resources.
	FindCurrentByKind(ctx context.Context, tenant TenantID, kind string, statuses []Status) ([]Window, error)
}

// =============================================================================
// POLICY STORE
// =============================================================================

// PolicyStore owns policy rows exclusively. Writes are serialized per
// business key to preserve the single-current-row invariant.
type PolicyStore interface {
	// FindCurrent returns the one current version for the key, or a
	// PolicyNotFoundError.
	FindCurrent(ctx context.Context, key BusinessKey) (PolicyVersion, error)

	// Versions returns all versions for the key, oldest first.
	Versions(ctx context.Context, key BusinessKey) ([]PolicyVersion, error)

	// CloseAndInsert atomically closes the current version (ValidTo = at,
	// IsCurrent = false) and inserts version+1 as current. When the key
	// has no versions yet it inserts version 1 (tenant onboarding).
	CloseAndInsert(ctx context.Context, key BusinessKey, rules Rules, actor Actor, at time.Time) (PolicyVersion, error)
}

// =============================================================================
// STAFF DIRECTORY
// =============================================================================

// StaffDirectory resolves employees for ranking and assignment. Employee
// calendars are stored as windows whose ResourceID is the employee id.
type StaffDirectory interface {
	PutStaff(ctx context.Context, s StaffMember) error
	GetStaff(ctx context.Context, tenant TenantID, id EmployeeID) (StaffMember, error)
	ListByRole(ctx context.Context, tenant TenantID, role string) ([]StaffMember, error)
}

// =============================================================================
// AUDIT LOG
// =============================================================================

// AuditEntry records who did what when. Append-only.
type AuditEntry struct {
	ID       string
	TenantID TenantID
	ActorID  Actor
	Action   AuditAction
	WindowID WindowID
	Kind     PolicyKind // set for policy actions
	At       time.Time
	Details  map[string]string
}

type AuditAction string

const (
	AuditWindowCreated    AuditAction = "window_created"
	AuditWindowTransition AuditAction = "window_transition"
	AuditWindowResched    AuditAction = "window_rescheduled"
	AuditPolicyChanged    AuditAction = "policy_changed"
)

// AuditLog stores audit entries.
type AuditLog interface {
	Append(ctx context.Context, entry AuditEntry) error
	Query(ctx context.Context, filter AuditFilter) ([]AuditEntry, error)
}

type AuditFilter struct {
	TenantID *TenantID
	WindowID *WindowID
	ActorID  *Actor
	Actions  []AuditAction
	From     *time.Time
	To       *time.Time
}

// =============================================================================
// NOTIFIER - Computed "should fire" events
// =============================================================================

type EventKind string

const (
	EventReminderDue    EventKind = "reminder_due"
	EventPolicyChanged  EventKind = "policy_changed"
	EventWindowReleased EventKind = "window_auto_released"
)

// Event is something the engine decided should be communicated. How it is
// delivered (SMS, email, carrier pigeon) is out of scope.
type Event struct {
	Kind     EventKind
	TenantID TenantID
	WindowID WindowID
	Policy   PolicyKind
	At       time.Time
	Details  map[string]string
}

type Notifier interface {
	Publish(ctx context.Context, e Event) error
}

// NopNotifier discards events, for callers that don't care.
type NopNotifier struct{}

func (NopNotifier) Publish(ctx context.Context, e Event) error { return nil }
