/*
window.go - Reservable windows and overlap detection

PURPOSE:
  A Window is a time-bounded claim on a resource: a prep-room reservation,
  a driver assignment, a PTO absence. This file defines the Window type and
  the overlap predicate that every create/update path runs before persisting.

OVERLAP RULE:
  Two windows on the same resource conflict when they share any instant
  after one of them is widened by the resource's buffer:

      aStart < bEnd + buffer  AND  bStart < aEnd + buffer

  The buffer is a mandatory gap between consecutive reservations (cleanup
  time after an embalming, turnaround time for a vehicle). With a 30-minute
  buffer, a room booked 08:00-12:00 is free again at 12:31, not 12:15.

  Windows are half-open [Start, End): back-to-back windows with zero buffer
  do not conflict.

BUFFER SOURCE:
  Buffers are policy fields, never literals. Each resource kind's current
  policy supplies BufferMinutes (see policy.go); callers read it there and
  pass it in. The detector itself has no policy knowledge.

CROSS-MIDNIGHT NOTE:
  The detector compares instants, not calendar days. Callers that fetch a
  day-scoped candidate set must widen the fetch range by the buffer and by
  one day on each side, or cross-midnight windows will be missed.

SEE ALSO:
  - availability.go: Uses Overlaps to walk the calendar for free slots
  - validate.go: Runs the conflict check inside every create path
*/
package generic

import "time"

// Status is a lifecycle state. Each resource kind has its own closed set,
// declared by its Machine (see machine.go).
type Status string

// =============================================================================
// WINDOW - A time-bounded claim on a resource
// =============================================================================

// Window is the persisted form of every reservable thing. Versions are
// append-only: a mutation closes the current version and inserts the next
// one (see WindowStore in store.go).
type Window struct {
	ID       WindowID
	TenantID TenantID

	// What is reserved and for whom.
	Kind       ResourceKind
	ResourceID ResourceID // room, vehicle, or employee
	SubjectID  string     // case, absence, appointment topic

	// Temporal core. Immutable once the window enters a non-cancellable
	// state; End is exclusive.
	Start time.Time
	End   time.Time

	Status  Status
	Version int

	// Derived fields, recomputed at transition boundaries. Never trusted
	// as externally supplied input.
	CheckInAt      *time.Time
	CompletedAt    *time.Time
	CancelledAt    *time.Time
	ActualDuration time.Duration

	// Domain extras (reported miles, mileage allowance, backfill flags).
	Metadata map[string]string

	// Audit fields
	CreatedBy Actor
	CreatedAt time.Time
	UpdatedBy Actor
	UpdatedAt time.Time
}

// Duration returns the scheduled length of the window.
func (w Window) Duration() time.Duration { return w.End.Sub(w.Start) }

// Meta returns a metadata value, tolerating a nil map.
func (w Window) Meta(key string) string {
	if w.Metadata == nil {
		return ""
	}
	return w.Metadata[key]
}

// SetMeta records a metadata value, allocating the map on first use.
func (w *Window) SetMeta(key, value string) {
	if w.Metadata == nil {
		w.Metadata = map[string]string{}
	}
	w.Metadata[key] = value
}

// OverlapsWindow reports whether w and other conflict once the buffer is
// applied. Both windows are assumed to claim the same resource; the caller
// is responsible for scoping the candidate set.
func (w Window) OverlapsWindow(other Window, buffer time.Duration) bool {
	return Overlaps(w.Start, w.End, other.Start, other.End, buffer)
}

// =============================================================================
// CONFLICT DETECTOR - Pure overlap predicate
// =============================================================================

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) conflict once
// the mandatory buffer is applied between them. Symmetric in its window
// arguments; increasing the buffer never hides a detected overlap.
//
// Zero-length windows are rejected upstream by duration validation; this
// predicate does not re-check them.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time, buffer time.Duration) bool {
	return aStart.Before(bEnd.Add(buffer)) && bStart.Before(aEnd.Add(buffer))
}

// FirstConflict returns the first existing window that conflicts with the
// candidate range, or nil. Existing windows are checked in slice order, so
// deterministic callers should pass a deterministically ordered set.
func FirstConflict(start, end time.Time, existing []Window, buffer time.Duration) *Window {
	for i := range existing {
		if Overlaps(start, end, existing[i].Start, existing[i].End, buffer) {
			return &existing[i]
		}
	}
	return nil
}
