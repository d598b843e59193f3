/*
machine.go - Generic lifecycle state machine

PURPOSE:
  Every reservable kind (PTO request, prep-room reservation, driver
  assignment, ...) has its own finite status set and transition table,
  but they all share one shape: a closed table of legal (from, to) pairs,
  guards that can veto a legal transition, and effects that mutate derived
  fields atomically with the status change. One abstraction, parameterized
  by table and guard map, instead of six divergent hand-rolled versions.

GUARDS vs TABLE:
  The table answers "is this transition ever legal?". Guards answer "is it
  legal right now?" - e.g. an appointment cancellation is in the table but
  guarded by a 24-hour lead time. A table miss is always a caller bug
  (InvalidTransitionError); a guard failure is a ValidationError the
  caller can sometimes fix.

EFFECTS:
  Effects run after guards pass and mutate the window in the same Apply
  call that changes the status: check-in timestamps, actual duration,
  mileage allowance. Derived values are recomputed here, never accepted
  from the outside.

TERMINAL STATUSES:
  Terminal statuses (completed, cancelled, rejected, auto_released,
  no_show) are immutable; Apply refuses to leave them regardless of the
  table contents.

EXAMPLE:
  m := generic.NewMachine("prep_room_reservation", "pending",
      map[generic.Status][]generic.Status{
          "pending":   {"confirmed", "auto_released", "cancelled"},
          "confirmed": {"in_progress", "auto_released", "cancelled"},
          ...
      },
      []generic.Status{"completed", "cancelled", "auto_released"},
      []generic.Status{"pending", "confirmed", "in_progress", "completed"},
  )
  m.OnTransition("confirmed", "in_progress", checkInEffect)
  err := m.Apply(&w, "in_progress", tc)

SEE ALSO:
  - booking/machines.go, workforce/machines.go: The six concrete tables
  - errors.go: InvalidTransitionError
*/
package generic

import (
	"sort"
	"time"
)

// =============================================================================
// TRANSITION CONTEXT
// =============================================================================

// TransitionContext carries everything a guard or effect may consult.
// Now is supplied by the caller; machines never read the wall clock.
type TransitionContext struct {
	Now   time.Time
	Actor Actor
	Rules *Rules // current policy for the window's kind; may be nil for unguarded kinds
}

// Guard can veto a transition that the table allows.
type Guard func(w *Window, tc TransitionContext) error

// Effect mutates derived fields atomically with the status change.
type Effect func(w *Window, tc TransitionContext)

// =============================================================================
// MACHINE
// =============================================================================

type transitionKey struct {
	From Status
	To   Status
}

// Machine is a finite state machine over Window statuses.
type Machine struct {
	kind     string
	initial  Status
	table    map[transitionKey]bool
	guards   map[transitionKey][]Guard
	effects  map[transitionKey][]Effect
	terminal map[Status]bool
	blocking map[Status]bool
}

// NewMachine builds a machine from a transition table.
//
// blocking lists the statuses that occupy the resource for conflict
// detection: everything except the "never happened" terminals (cancelled,
// rejected, auto_released, no_show).
func NewMachine(kind string, initial Status, table map[Status][]Status, terminal, blocking []Status) *Machine {
	m := &Machine{
		kind:     kind,
		initial:  initial,
		table:    map[transitionKey]bool{},
		guards:   map[transitionKey][]Guard{},
		effects:  map[transitionKey][]Effect{},
		terminal: map[Status]bool{},
		blocking: map[Status]bool{},
	}
	for from, tos := range table {
		for _, to := range tos {
			m.table[transitionKey{From: from, To: to}] = true
		}
	}
	for _, s := range terminal {
		m.terminal[s] = true
	}
	for _, s := range blocking {
		m.blocking[s] = true
	}
	blockingRegistry[kind] = m.blocking
	return m
}

// =============================================================================
// BLOCKING REGISTRY
// =============================================================================

// blockingRegistry maps a kind id to that kind's blocking statuses.
// NewMachine populates it, so conflict detection can judge an existing
// window by its own lifecycle instead of the lifecycle of the window
// being created: an approved PTO request must block a training session
// on the same employee even though "approved" means nothing to the
// training machine.
var blockingRegistry = map[string]map[Status]bool{}

// BlocksResource reports whether an existing window occupies its resource
// for conflict detection. The window's own kind decides; kinds without a
// registered machine fall back to the caller's machine.
func BlocksResource(w Window, fallback *Machine) bool {
	if w.Kind != nil {
		if blocking, ok := blockingRegistry[w.Kind.KindID()]; ok {
			return blocking[w.Status]
		}
	}
	return fallback.IsBlocking(w.Status)
}

// Kind returns the machine's entity kind name (used in error messages).
func (m *Machine) Kind() string { return m.kind }

// Initial returns the status new windows are created in.
func (m *Machine) Initial() Status { return m.initial }

// IsTerminal reports whether the status is immutable.
func (m *Machine) IsTerminal(s Status) bool { return m.terminal[s] }

// IsBlocking reports whether windows in this status occupy the resource.
func (m *Machine) IsBlocking(s Status) bool { return m.blocking[s] }

// BlockingStatuses returns the statuses that participate in conflict
// detection, in deterministic order.
func (m *Machine) BlockingStatuses() []Status {
	var out []Status
	for s := range m.blocking {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CanTransition reports whether (from, to) is in the table. Guards are not
// consulted.
func (m *Machine) CanTransition(from, to Status) bool {
	return m.table[transitionKey{From: from, To: to}]
}

// Guard registers a guard for a transition. Multiple guards run in
// registration order; the first error wins.
func (m *Machine) Guard(from, to Status, g Guard) *Machine {
	k := transitionKey{From: from, To: to}
	m.guards[k] = append(m.guards[k], g)
	return m
}

// OnTransition registers an effect for a transition.
func (m *Machine) OnTransition(from, to Status, e Effect) *Machine {
	k := transitionKey{From: from, To: to}
	m.effects[k] = append(m.effects[k], e)
	return m
}

// Apply transitions the window to the target status, running guards and
// effects. On success the window's Status, UpdatedBy and UpdatedAt are set
// together with any effect-mutated fields; on error the window is
// untouched.
func (m *Machine) Apply(w *Window, to Status, tc TransitionContext) error {
	from := w.Status
	k := transitionKey{From: from, To: to}

	if m.terminal[from] || !m.table[k] {
		return &InvalidTransitionError{Kind: m.kind, From: from, To: to}
	}
	for _, g := range m.guards[k] {
		if err := g(w, tc); err != nil {
			return err
		}
	}

	w.Status = to
	w.UpdatedBy = tc.Actor
	w.UpdatedAt = tc.Now
	for _, e := range m.effects[k] {
		e(w, tc)
	}
	return nil
}
