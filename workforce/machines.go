/*
machines.go - Transition tables for the workforce domain

PURPOSE:
  Four concrete state machines on the generic abstraction. The one
  interesting guard is on PTO approval: when the role's policy mandates
  backfill, a request cannot be approved until a backfill assignment has
  been confirmed for its window. The service records that confirmation in
  the PTO window's metadata; the guard only reads it.

SEE ALSO:
  - generic/machine.go: Machine, Guard, Effect
  - service.go: Backfill suggestion and confirmation flow
*/
package workforce

import (
	"github.com/evermore/scheduling-engine/generic"
)

// =============================================================================
// PTO REQUEST
// =============================================================================

// PTOMachine returns the PTO request lifecycle.
func PTOMachine() *generic.Machine {
	m := generic.NewMachine(string(KindPTO), StatusDraft,
		map[generic.Status][]generic.Status{
			StatusDraft:    {StatusPending, StatusCancelled},
			StatusPending:  {StatusApproved, StatusRejected, StatusCancelled},
			StatusApproved: {StatusTaken, StatusCancelled},
		},
		[]generic.Status{StatusRejected, StatusTaken, StatusCancelled},
		// Draft requests don't block the calendar yet; everything from
		// pending on does.
		[]generic.Status{StatusPending, StatusApproved, StatusTaken},
	)
	m.Guard(StatusPending, StatusApproved, backfillRequirementsMet)
	m.OnTransition(StatusDraft, StatusCancelled, cancelled)
	m.OnTransition(StatusPending, StatusCancelled, cancelled)
	m.OnTransition(StatusApproved, StatusCancelled, cancelled)
	return m
}

// =============================================================================
// BACKFILL ASSIGNMENT
// =============================================================================

// BackfillMachine returns the backfill assignment lifecycle.
func BackfillMachine() *generic.Machine {
	m := generic.NewMachine(string(KindBackfill), StatusSuggested,
		map[generic.Status][]generic.Status{
			StatusSuggested:   {StatusPendingConf, StatusCancelled},
			StatusPendingConf: {StatusConfirmed, StatusRejected, StatusCancelled},
			StatusConfirmed:   {StatusCompleted, StatusCancelled},
		},
		[]generic.Status{StatusRejected, StatusCompleted, StatusCancelled},
		// Suggestions are speculative; only confirmed coverage blocks the
		// covering employee's calendar.
		[]generic.Status{StatusConfirmed, StatusCompleted},
	)
	m.OnTransition(StatusConfirmed, StatusCompleted, complete)
	m.OnTransition(StatusSuggested, StatusCancelled, cancelled)
	m.OnTransition(StatusPendingConf, StatusCancelled, cancelled)
	m.OnTransition(StatusConfirmed, StatusCancelled, cancelled)
	return m
}

// =============================================================================
// TRAINING RECORD
// =============================================================================

// TrainingMachine returns the training session lifecycle.
func TrainingMachine() *generic.Machine {
	m := generic.NewMachine(string(KindTraining), StatusScheduled,
		map[generic.Status][]generic.Status{
			StatusScheduled:  {StatusInProgress, StatusCancelled},
			StatusInProgress: {StatusCompleted},
		},
		[]generic.Status{StatusCompleted, StatusCancelled},
		[]generic.Status{StatusScheduled, StatusInProgress, StatusCompleted},
	)
	m.OnTransition(StatusScheduled, StatusInProgress, checkIn)
	m.OnTransition(StatusInProgress, StatusCompleted, complete)
	m.OnTransition(StatusScheduled, StatusCancelled, cancelled)
	return m
}

// =============================================================================
// ON-CALL ROTATION
// =============================================================================

// OnCallMachine returns the on-call rotation lifecycle.
func OnCallMachine() *generic.Machine {
	m := generic.NewMachine(string(KindOnCall), StatusScheduled,
		map[generic.Status][]generic.Status{
			StatusScheduled: {StatusActive, StatusCancelled},
			StatusActive:    {StatusCompleted, StatusCancelled},
		},
		[]generic.Status{StatusCompleted, StatusCancelled},
		[]generic.Status{StatusScheduled, StatusActive, StatusCompleted},
	)
	m.OnTransition(StatusScheduled, StatusActive, checkIn)
	m.OnTransition(StatusActive, StatusCompleted, complete)
	m.OnTransition(StatusScheduled, StatusCancelled, cancelled)
	m.OnTransition(StatusActive, StatusCancelled, cancelled)
	return m
}

// =============================================================================
// GUARDS AND EFFECTS
// =============================================================================

// backfillRequirementsMet vetoes approval while the role's policy
// mandates backfill and no confirmed coverage exists for the window.
func backfillRequirementsMet(w *generic.Window, tc generic.TransitionContext) error {
	if tc.Rules == nil || !tc.Rules.RequireBackfill {
		return nil
	}
	if w.Meta(generic.MetaBackfillConfirmed) != "true" {
		return &generic.ValidationError{
			Rule:    "backfill_required",
			Message: "PTO approval requires confirmed backfill coverage for the absence window",
		}
	}
	return nil
}

func checkIn(w *generic.Window, tc generic.TransitionContext) {
	at := tc.Now
	w.CheckInAt = &at
}

func complete(w *generic.Window, tc generic.TransitionContext) {
	at := tc.Now
	w.CompletedAt = &at
	if w.CheckInAt != nil {
		w.ActualDuration = at.Sub(*w.CheckInAt)
	} else {
		w.ActualDuration = w.Duration()
	}
}

func cancelled(w *generic.Window, tc generic.TransitionContext) {
	at := tc.Now
	w.CancelledAt = &at
}
