/*
availability.go - Calendar walk for the next free slot

PURPOSE:
  Given the existing windows on a resource and the tenant's business
  rules, find the next slot where a new window of the requested duration
  would pass every constraint: business day, business hours, fixed breaks
  (lunch blocks), blackout dates, and the buffered conflict check.

ALGORITHM:
  Iterate calendar days forward from the requested date, bounded by the
  policy horizon (default 30 days). Skip non-business days and blackout
  days. Within each day, iterate candidate start times at policy
  granularity (default hourly) from business-hours start to business-hours
  end minus the duration. Reject any slot overlapping a break or an
  existing window (buffer applied). Return the first survivor.

DETERMINISM:
  Identical inputs always produce identical output. There is no
  randomness and no clock read beyond the provided `from` argument -
  the poller, the HTTP layer, and tests all pass their own notion of now.

SEE ALSO:
  - window.go: Overlaps predicate
  - policy.go: Rules (business days, hours, granularity, breaks, horizon)
*/
package generic

import "time"

// Slot is a candidate placement returned by availability search.
type Slot struct {
	Start time.Time
	End   time.Time
}

// NextAvailableSlot returns the first slot of the given duration that
// satisfies every business-rule and conflict constraint, searching forward
// from `from`. The second return is false when the horizon is exhausted.
//
// Existing windows should already be filtered to blocking statuses on the
// target resource; the buffer comes from rules, not from the caller.
func NextAvailableSlot(existing []Window, from time.Time, duration time.Duration, rules Rules) (Slot, bool) {
	slots := AvailableSlots(existing, from, duration, rules, 1)
	if len(slots) == 0 {
		return Slot{}, false
	}
	return slots[0], true
}

// AvailableSlots returns up to limit free slots in horizon order.
// limit <= 0 means no limit (every free slot in the horizon).
func AvailableSlots(existing []Window, from time.Time, duration time.Duration, rules Rules, limit int) []Slot {
	if duration <= 0 {
		return nil
	}

	var out []Slot
	buffer := rules.Buffer()
	step := rules.Granularity()
	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())

	for offset := 0; offset < rules.Horizon(); offset++ {
		if offset > 0 {
			day = day.AddDate(0, 0, 1)
		}
		if !rules.IsBusinessDay(day.Weekday()) || rules.InBlackout(day) {
			continue
		}

		dayStart := day.Add(time.Duration(rules.DayStartHour) * time.Hour)
		dayEnd := day.Add(time.Duration(rules.DayEndHour) * time.Hour)

		for start := dayStart; !start.Add(duration).After(dayEnd); start = start.Add(step) {
			if start.Before(from) {
				continue
			}
			end := start.Add(duration)
			if rules.BreakOverlap(start, end) {
				continue
			}
			if FirstConflict(start, end, existing, buffer) != nil {
				continue
			}
			out = append(out, Slot{Start: start, End: end})
			if limit > 0 && len(out) == limit {
				return out
			}
		}
	}
	return out
}
