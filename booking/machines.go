/*
machines.go - Transition tables for the booking domain

PURPOSE:
  Three concrete state machines built on the generic abstraction: one per
  reservable kind. Tables declare what is ever legal; guards add
  policy-dependent vetoes (cancellation lead time); effects recompute
  derived fields atomically with the status change.

DERIVED FIELDS:
  - CheckInAt:      set when work starts (embalmer checks in, driver
                    departs)
  - CompletedAt:    set on completion
  - ActualDuration: completion minus check-in when checked in, otherwise
                    the scheduled duration
  - mileage allowance: policy rate x reported miles, recomputed at the
                    transition boundary - a forged allowance in the
                    request payload is ignored

SEE ALSO:
  - generic/machine.go: Machine, Guard, Effect
  - service.go: Applies these machines through the validation façade
*/
package booking

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evermore/scheduling-engine/generic"
)

// =============================================================================
// PREP ROOM RESERVATION
// =============================================================================

// PrepRoomMachine returns the prep-room reservation lifecycle.
// Auto-release fires (via the external poller) when a reservation stays
// pending/confirmed without check-in past the policy timeout.
func PrepRoomMachine() *generic.Machine {
	m := generic.NewMachine(string(KindPrepRoom), StatusPending,
		map[generic.Status][]generic.Status{
			StatusPending:    {StatusConfirmed, StatusAutoReleased, StatusCancelled},
			StatusConfirmed:  {StatusInProgress, StatusAutoReleased, StatusCancelled},
			StatusInProgress: {StatusCompleted},
		},
		[]generic.Status{StatusCompleted, StatusAutoReleased, StatusCancelled},
		[]generic.Status{StatusPending, StatusConfirmed, StatusInProgress, StatusCompleted},
	)
	m.OnTransition(StatusConfirmed, StatusInProgress, checkIn)
	m.OnTransition(StatusInProgress, StatusCompleted, complete)
	m.OnTransition(StatusPending, StatusCancelled, cancelled)
	m.OnTransition(StatusConfirmed, StatusCancelled, cancelled)
	m.OnTransition(StatusPending, StatusAutoReleased, cancelled)
	m.OnTransition(StatusConfirmed, StatusAutoReleased, cancelled)
	return m
}

// =============================================================================
// PRE-PLANNING APPOINTMENT
// =============================================================================

// AppointmentMachine returns the pre-planning appointment lifecycle.
// Cancellation requires the policy lead time (default 24h); that is a
// guard, not a table entry.
func AppointmentMachine() *generic.Machine {
	m := generic.NewMachine(string(KindAppointment), StatusScheduled,
		map[generic.Status][]generic.Status{
			StatusScheduled: {StatusConfirmed, StatusCancelled, StatusNoShow},
			StatusConfirmed: {StatusCompleted, StatusCancelled, StatusNoShow},
		},
		[]generic.Status{StatusCompleted, StatusCancelled, StatusNoShow},
		[]generic.Status{StatusScheduled, StatusConfirmed, StatusCompleted},
	)
	m.Guard(StatusScheduled, StatusCancelled, cancelLeadTime)
	m.Guard(StatusConfirmed, StatusCancelled, cancelLeadTime)
	m.OnTransition(StatusConfirmed, StatusCompleted, complete)
	m.OnTransition(StatusScheduled, StatusCancelled, cancelled)
	m.OnTransition(StatusConfirmed, StatusCancelled, cancelled)
	m.OnTransition(StatusScheduled, StatusNoShow, cancelled)
	m.OnTransition(StatusConfirmed, StatusNoShow, cancelled)
	return m
}

// =============================================================================
// DRIVER / VEHICLE ASSIGNMENT
// =============================================================================

// DriverMachine returns the driver/vehicle assignment lifecycle.
func DriverMachine() *generic.Machine {
	m := generic.NewMachine(string(KindDriver), StatusPending,
		map[generic.Status][]generic.Status{
			StatusPending:    {StatusAccepted, StatusCancelled},
			StatusAccepted:   {StatusInProgress, StatusCancelled},
			StatusInProgress: {StatusCompleted, StatusCancelled},
		},
		[]generic.Status{StatusCompleted, StatusCancelled},
		[]generic.Status{StatusPending, StatusAccepted, StatusInProgress, StatusCompleted},
	)
	m.OnTransition(StatusAccepted, StatusInProgress, checkIn)
	m.OnTransition(StatusInProgress, StatusCompleted, complete)
	m.OnTransition(StatusInProgress, StatusCompleted, mileageAllowance)
	m.OnTransition(StatusPending, StatusCancelled, cancelled)
	m.OnTransition(StatusAccepted, StatusCancelled, cancelled)
	m.OnTransition(StatusInProgress, StatusCancelled, cancelled)
	return m
}

// =============================================================================
// GUARDS AND EFFECTS
// =============================================================================

// cancelLeadTime vetoes cancellations inside the policy lead window.
func cancelLeadTime(w *generic.Window, tc generic.TransitionContext) error {
	hours := 24
	if tc.Rules != nil && tc.Rules.CancelLeadTimeHours > 0 {
		hours = tc.Rules.CancelLeadTimeHours
	}
	lead := time.Duration(hours) * time.Hour
	if w.Start.Sub(tc.Now) < lead {
		return &generic.ValidationError{
			Rule:    "cancel_lead_time",
			Message: fmt.Sprintf("cancellation requires %s notice, appointment starts in %s", lead, w.Start.Sub(tc.Now)),
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

// mileageAllowance recomputes the allowance from the policy rate and the
// driver's reported miles. Any allowance supplied from outside is
// overwritten.
func mileageAllowance(w *generic.Window, tc generic.TransitionContext) {
	if tc.Rules == nil {
		return
	}
	miles, err := decimal.NewFromString(w.Meta(generic.MetaReportedMiles))
	if err != nil {
		miles = decimal.Zero
	}
	w.SetMeta(generic.MetaMileageAllowance, tc.Rules.MileageRate.Mul(miles).StringFixed(2))
}
