/*
predicates.go - Pure predicates for externally triggered jobs

PURPOSE:
  Auto-release and reminder checks are polling concerns: some job wakes
  up, asks "which windows timed out?", and applies domain transitions.
  The engine holds no timers and reads no clocks - it only exposes the
  predicates such a job calls, with now supplied by the caller. The
  reference poller lives in api/poller.go.

SEE ALSO:
  - api/poller.go: Drives these against the window store
  - policy.go: AutoReleaseMinutes, ReminderLeadHours
*/
package generic

import "time"

// Metadata keys shared between services, effects, and predicates.
const (
	MetaReminderSent      = "reminder_sent"
	MetaBackfillConfirmed = "backfill_confirmed"
	MetaBackfillFor       = "backfill_for"
	MetaReportedMiles     = "reported_miles"
	MetaMileageAllowance  = "mileage_allowance"
	MetaPayMultiplier     = "pay_multiplier"
)

// HasAutoReleaseTimeout reports whether a reservation has sat without
// check-in long enough to be released (policy AutoReleaseMinutes, default
// 30, counted from the scheduled start - or from creation for windows
// booked after their start). The caller filters to statuses where
// auto-release is a legal transition; this predicate only answers the
// timing question.
func HasAutoReleaseTimeout(w Window, rules Rules, now time.Time) bool {
	if w.CheckInAt != nil {
		return false
	}
	mins := rules.AutoReleaseMinutes
	if mins <= 0 {
		mins = 30
	}
	from := w.Start
	if w.CreatedAt.After(from) {
		from = w.CreatedAt
	}
	return !now.Before(from.Add(time.Duration(mins) * time.Minute))
}

// NeedsEmailReminder reports whether a reminder should fire for an
// upcoming window: inside the policy lead window, not yet started, and
// not already reminded.
func NeedsEmailReminder(w Window, rules Rules, now time.Time) bool {
	if rules.ReminderLeadHours <= 0 {
		return false
	}
	if w.Meta(MetaReminderSent) == "true" {
		return false
	}
	lead := time.Duration(rules.ReminderLeadHours) * time.Hour
	return !now.Before(w.Start.Add(-lead)) && now.Before(w.Start)
}
