/*
validate.go - Validation façade: "can this operation proceed"

PURPOSE:
  Composes the policy store, the conflict detector, and the per-resource
  capacity check into a single decision for every mutating operation.
  Callers (the domain services in booking/ and workforce/) hand in a
  candidate window; they get back either the persisted window or a
  discriminated error naming the rule that failed.

CHECK ORDER (short-circuits on first failure):
  (a) field-level: non-empty tenant/resource/kind, end after start,
      positive duration
  (b) policy-bound ranges: duration within [min, max], advance notice
      >= policy minimum (doubled when the start falls in a blackout
      period), start not beyond the max-advance horizon
  (c) blackout-date overlap, fixed non-working blocks (breaks)
  (d) concurrency caps: active windows of the kind stay within the
      tenant-wide policy limit, and active windows for the resource stay
      within the per-resource limit
  (e) conflict: buffered overlap against existing windows

  Checks (a)-(c) are pure and run before any lock is taken. The kind-wide
  cap spans resources, so it also runs before the lock; the per-resource
  cap and check (e) run inside the store's per-resource serialization
  scope via the Precheck callback, so two racing requests cannot both
  pass and both persist. Whether an existing window blocks is decided by
  that window's own kind (BlocksResource), not by the kind being created.

ERRORS:
  Each failure is a typed error from errors.go. Callers must not retry
  without changing the request; the message says which rule to fix.

SEE ALSO:
  - store.go: Precheck contract
  - machine.go: The machine supplies initial and blocking statuses
*/
package generic

import (
	"context"
	"fmt"
	"time"
)

// Validator is the validation façade. Stateless; safe for concurrent use.
type Validator struct {
	Policies PolicyStore
	Windows  WindowStore
}

// Create validates the candidate window against the current policy for
// kind and, if every check passes, persists it in the machine's initial
// status. The returned window carries the assigned version and status.
func (v *Validator) Create(ctx context.Context, m *Machine, kind PolicyKind, w Window, now time.Time) (Window, error) {
	pv, err := v.Policies.FindCurrent(ctx, BusinessKey{Tenant: w.TenantID, Kind: kind})
	if err != nil {
		return Window{}, err
	}
	rules := pv.Rules

	if err := checkFields(w); err != nil {
		return Window{}, err
	}
	if err := checkPolicyRanges(w, rules, now); err != nil {
		return Window{}, err
	}
	if rules.BlackoutOverlap(w.Start, w.End) {
		return Window{}, &ValidationError{
			Rule:    "blackout",
			Message: fmt.Sprintf("window %s - %s overlaps a blackout period", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02")),
		}
	}
	if rules.BreakOverlap(w.Start, w.End) {
		return Window{}, &ValidationError{
			Rule:    "break",
			Message: fmt.Sprintf("window %s - %s overlaps a fixed non-working block", w.Start.Format("15:04"), w.End.Format("15:04")),
		}
	}
	if err := v.checkKindCap(ctx, m, w, rules, now); err != nil {
		return Window{}, err
	}

	w.Status = m.Initial()
	w.Version = 1
	w.CreatedAt = now
	w.UpdatedAt = now
	w.UpdatedBy = w.CreatedBy

	return v.Windows.Insert(ctx, w, v.precheck(m, w, rules, now))
}

// Reschedule moves an existing window to new times, re-running the full
// check sequence. Only legal while the machine still allows cancellation
// from the window's status; immutable-time states cannot be rescheduled.
func (v *Validator) Reschedule(ctx context.Context, m *Machine, kind PolicyKind, w Window, newStart, newEnd time.Time, actor Actor, now time.Time) (Window, error) {
	if m.IsTerminal(w.Status) {
		return Window{}, &InvalidTransitionError{Kind: m.Kind(), From: w.Status, To: w.Status}
	}
	pv, err := v.Policies.FindCurrent(ctx, BusinessKey{Tenant: w.TenantID, Kind: kind})
	if err != nil {
		return Window{}, err
	}
	rules := pv.Rules

	w.Start = newStart
	w.End = newEnd
	w.UpdatedBy = actor
	w.UpdatedAt = now

	if err := checkFields(w); err != nil {
		return Window{}, err
	}
	if err := checkPolicyRanges(w, rules, now); err != nil {
		return Window{}, err
	}
	if rules.BlackoutOverlap(w.Start, w.End) {
		return Window{}, &ValidationError{Rule: "blackout", Message: "rescheduled window overlaps a blackout period"}
	}
	if rules.BreakOverlap(w.Start, w.End) {
		return Window{}, &ValidationError{Rule: "break", Message: "rescheduled window overlaps a fixed non-working block"}
	}
	if err := v.checkKindCap(ctx, m, w, rules, now); err != nil {
		return Window{}, err
	}

	return v.Windows.Update(ctx, w, v.precheck(m, w, rules, now))
}

// precheck builds the capacity + conflict callback that the store runs
// under the resource's serialization scope.
func (v *Validator) precheck(m *Machine, w Window, rules Rules, now time.Time) Precheck {
	return func(existing []Window) error {
		blocking := make([]Window, 0, len(existing))
		active := 0
		for _, e := range existing {
			// Each existing window blocks according to its OWN
			// lifecycle: cancelled training frees the slot, approved
			// PTO does not, no matter what kind is being created.
			if !BlocksResource(e, m) {
				continue
			}
			blocking = append(blocking, e)
			if e.End.After(now) {
				active++
			}
		}

		if rules.MaxActivePerResource > 0 && active >= rules.MaxActivePerResource {
			return &CapacityError{ResourceID: w.ResourceID, Limit: rules.MaxActivePerResource, Active: active}
		}

		if hit := FirstConflict(w.Start, w.End, blocking, rules.Buffer()); hit != nil {
			return &ConflictError{
				ResourceID: w.ResourceID,
				Existing:   hit.ID,
				Start:      hit.Start,
				End:        hit.End,
				Buffer:     rules.Buffer(),
			}
		}
		return nil
	}
}

// checkKindCap enforces the tenant-wide concurrency cap on a kind: at
// most MaxActivePerKind windows of the kind may be active (ending in the
// future, in a blocking status) across all resources. This cap spans
// resources, so it runs outside the per-resource serialization scope.
func (v *Validator) checkKindCap(ctx context.Context, m *Machine, w Window, rules Rules, now time.Time) error {
	if rules.MaxActivePerKind <= 0 || w.Kind == nil {
		return nil
	}
	current, err := v.Windows.FindCurrentByKind(ctx, w.TenantID, w.Kind.KindID(), m.BlockingStatuses())
	if err != nil {
		return err
	}
	active := 0
	for _, e := range current {
		if e.ID == w.ID {
			// A reschedule keeps its own slot.
			continue
		}
		if e.End.After(now) {
			active++
		}
	}
	if active >= rules.MaxActivePerKind {
		return &CapacityError{ResourceID: w.ResourceID, Limit: rules.MaxActivePerKind, Active: active}
	}
	return nil
}

// =============================================================================
// PURE CHECKS
// =============================================================================

func checkFields(w Window) error {
	switch {
	case w.TenantID == "":
		return &ValidationError{Rule: "field", Field: "tenant_id", Message: "required"}
	case w.ResourceID == "":
		return &ValidationError{Rule: "field", Field: "resource_id", Message: "required"}
	case w.Kind == nil:
		return &ValidationError{Rule: "field", Field: "kind", Message: "required"}
	case !w.End.After(w.Start):
		return &ValidationError{Rule: "field", Field: "end", Message: "must be after start"}
	}
	return nil
}

func checkPolicyRanges(w Window, rules Rules, now time.Time) error {
	dur := w.Duration()
	if rules.MinDurationMinutes > 0 && dur < time.Duration(rules.MinDurationMinutes)*time.Minute {
		return &ValidationError{
			Rule:    "duration_range",
			Message: fmt.Sprintf("duration %s below policy minimum %dm", dur, rules.MinDurationMinutes),
		}
	}
	if rules.MaxDurationMinutes > 0 && dur > time.Duration(rules.MaxDurationMinutes)*time.Minute {
		return &ValidationError{
			Rule:    "duration_range",
			Message: fmt.Sprintf("duration %s above policy maximum %dm", dur, rules.MaxDurationMinutes),
		}
	}

	required := time.Duration(rules.MinAdvanceNoticeHours) * time.Hour
	if rules.InBlackout(w.Start) {
		// Holiday and blackout periods demand twice the usual notice.
		required *= 2
	}
	if required > 0 && w.Start.Sub(now) < required {
		return &ValidationError{
			Rule:    "advance_notice",
			Message: fmt.Sprintf("start must be at least %s away, got %s", required, w.Start.Sub(now)),
		}
	}
	if rules.MaxAdvanceDays > 0 && w.Start.After(now.AddDate(0, 0, rules.MaxAdvanceDays)) {
		return &ValidationError{
			Rule:    "advance_notice",
			Message: fmt.Sprintf("start more than %d days out", rules.MaxAdvanceDays),
		}
	}
	return nil
}
