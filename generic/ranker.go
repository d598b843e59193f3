/*
ranker.go - Candidate ranking for backfill and on-call assignment

PURPOSE:
  When a director takes PTO or a rotation needs coverage, somebody has to
  pick a substitute. The ranker orders eligible staff by how good a fit
  they are: free beats double-booked, lightly loaded beats overworked.

SCORING:
  score = recentLoad + (conflict ? conflictPenalty : 0)

  recentLoad counts confirmed assignments in a trailing window (policy
  RecentLoadDays, default 90) before the candidate window. Conflict is
  computed with the same buffered overlap predicate as every other check.
  Lower score = more preferred; ties break on employee id so the order is
  deterministic.

CONFLICT IS A PENALTY, NOT A FILTER:
  Conflicted candidates sink to the bottom but are never dropped. A
  sudden removal at 2am may justify pulling a director out of a training
  session; that override decision belongs to the caller, not the ranker.

STATELESSNESS:
  Candidates are derived, never persisted. The ranker mutates nothing and
  reads nothing - callers fetch each employee's windows and hand them in.

SEE ALSO:
  - workforce/service.go: SuggestBackfill wires staff directory + store
    into this function
  - window.go: Overlaps
*/
package generic

import (
	"sort"
	"time"
)

// conflictPenalty dominates any plausible workload count so conflicted
// candidates always rank below every free one.
const conflictPenalty = 1_000_000

// Candidate is a scored staff member. Built on demand, never stored.
type Candidate struct {
	EmployeeID EmployeeID
	Name       string
	Role       string
	Conflict   bool
	RecentLoad int
	Score      int
}

// RankCandidates scores each staff member for covering [windowStart,
// windowEnd) and returns them in preference order (best first).
//
// existingByEmployee holds each employee's windows in conflict-relevant
// statuses (confirmed/pending); confirmed ones also feed the workload
// count. The buffer and trailing-load window come from rules.
func RankCandidates(
	staff []StaffMember,
	existingByEmployee map[EmployeeID][]Window,
	windowStart, windowEnd time.Time,
	rules Rules,
	confirmed Status,
) []Candidate {
	loadDays := rules.RecentLoadDays
	if loadDays <= 0 {
		loadDays = 90
	}
	loadFrom := windowStart.AddDate(0, 0, -loadDays)
	buffer := rules.Buffer()

	out := make([]Candidate, 0, len(staff))
	for _, s := range staff {
		c := Candidate{EmployeeID: s.ID, Name: s.Name, Role: s.Role}
		for _, w := range existingByEmployee[s.ID] {
			if Overlaps(windowStart, windowEnd, w.Start, w.End, buffer) {
				c.Conflict = true
			}
			if w.Status == confirmed && !w.Start.Before(loadFrom) && w.Start.Before(windowStart) {
				c.RecentLoad++
			}
		}
		c.Score = c.RecentLoad
		if c.Conflict {
			c.Score += conflictPenalty
		}
		out = append(out, c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out
}
