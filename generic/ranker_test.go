package generic_test

import (
	"testing"
	"time"

	"github.com/evermore/scheduling-engine/generic"
)

func staffer(id, name string) generic.StaffMember {
	return generic.StaffMember{ID: generic.EmployeeID(id), Name: name, Role: "director"}
}

func confirmedWin(id string, start, end time.Time) generic.Window {
	w := win(id, start, end)
	w.Status = "confirmed"
	return w
}

func TestRankCandidates_FreeBeatsConflicted(t *testing.T) {
	// GIVEN: One free director and one double-booked during the window
	// WHEN: Ranking for a 10:00-12:00 cover
	// THEN: The free one ranks first; the conflicted one is kept, not dropped

	staff := []generic.StaffMember{staffer("e-busy", "Busy"), staffer("e-free", "Free")}
	existing := map[generic.EmployeeID][]generic.Window{
		"e-busy": {confirmedWin("w1", at(10, 0), at(11, 0))},
	}

	got := generic.RankCandidates(staff, existing, at(10, 0), at(12, 0), generic.Rules{}, "confirmed")

	if len(got) != 2 {
		t.Fatalf("conflicted candidate dropped: got %d candidates", len(got))
	}
	if got[0].EmployeeID != "e-free" || got[0].Conflict {
		t.Errorf("best candidate = %s (conflict=%v), want free e-free", got[0].EmployeeID, got[0].Conflict)
	}
	if got[1].EmployeeID != "e-busy" || !got[1].Conflict {
		t.Errorf("worst candidate = %s (conflict=%v), want conflicted e-busy", got[1].EmployeeID, got[1].Conflict)
	}
}

func TestRankCandidates_BufferCountsAsConflict(t *testing.T) {
	// GIVEN: An assignment ending 15 minutes before the window, buffer 30
	// WHEN: Ranking
	// THEN: The buffer gap makes it a conflict

	staff := []generic.StaffMember{staffer("e1", "One")}
	existing := map[generic.EmployeeID][]generic.Window{
		"e1": {confirmedWin("w1", at(8, 0), at(9, 45))},
	}
	rules := generic.Rules{BufferMinutes: 30}

	got := generic.RankCandidates(staff, existing, at(10, 0), at(12, 0), rules, "confirmed")
	if !got[0].Conflict {
		t.Error("expected buffered overlap to count as a conflict")
	}
}

func TestRankCandidates_LoadOrdersFreeCandidates(t *testing.T) {
	// GIVEN: Two free directors, one with three recent confirmed shifts
	// WHEN: Ranking
	// THEN: The lightly loaded one wins

	staff := []generic.StaffMember{staffer("e-heavy", "Heavy"), staffer("e-light", "Light")}
	existing := map[generic.EmployeeID][]generic.Window{
		"e-heavy": {
			confirmedWin("w1", at(8, 0).AddDate(0, 0, -10), at(9, 0).AddDate(0, 0, -10)),
			confirmedWin("w2", at(8, 0).AddDate(0, 0, -5), at(9, 0).AddDate(0, 0, -5)),
			confirmedWin("w3", at(8, 0).AddDate(0, 0, -1), at(9, 0).AddDate(0, 0, -1)),
		},
		"e-light": {
			confirmedWin("w4", at(8, 0).AddDate(0, 0, -2), at(9, 0).AddDate(0, 0, -2)),
		},
	}

	got := generic.RankCandidates(staff, existing, at(10, 0), at(12, 0), generic.Rules{}, "confirmed")
	if got[0].EmployeeID != "e-light" {
		t.Errorf("best candidate = %s, want e-light", got[0].EmployeeID)
	}
	if got[1].RecentLoad != 3 {
		t.Errorf("heavy load = %d, want 3", got[1].RecentLoad)
	}
}

func TestRankCandidates_LoadWindowBounds(t *testing.T) {
	// GIVEN: Shifts outside the trailing load window and in non-confirmed status
	// WHEN: Ranking with a 90-day default window
	// THEN: Only confirmed shifts inside [start-90d, start) count

	tooOld := confirmedWin("w-old", at(8, 0).AddDate(0, 0, -120), at(9, 0).AddDate(0, 0, -120))
	future := confirmedWin("w-future", at(8, 0).AddDate(0, 0, 3), at(9, 0).AddDate(0, 0, 3))
	pending := win("w-pending", at(8, 0).AddDate(0, 0, -4), at(9, 0).AddDate(0, 0, -4))
	pending.Status = "pending"
	counted := confirmedWin("w-counted", at(8, 0).AddDate(0, 0, -30), at(9, 0).AddDate(0, 0, -30))

	staff := []generic.StaffMember{staffer("e1", "One")}
	existing := map[generic.EmployeeID][]generic.Window{
		"e1": {tooOld, future, pending, counted},
	}

	got := generic.RankCandidates(staff, existing, at(10, 0), at(12, 0), generic.Rules{}, "confirmed")
	if got[0].RecentLoad != 1 {
		t.Errorf("recent load = %d, want 1 (only the in-window confirmed shift)", got[0].RecentLoad)
	}
}

func TestRankCandidates_TieBreaksOnEmployeeID(t *testing.T) {
	// GIVEN: Three identically scored candidates in shuffled input order
	// WHEN: Ranking
	// THEN: Output is sorted by employee id

	staff := []generic.StaffMember{staffer("e3", "C"), staffer("e1", "A"), staffer("e2", "B")}

	got := generic.RankCandidates(staff, nil, at(10, 0), at(12, 0), generic.Rules{}, "confirmed")
	for i, want := range []generic.EmployeeID{"e1", "e2", "e3"} {
		if got[i].EmployeeID != want {
			t.Errorf("position %d = %s, want %s", i, got[i].EmployeeID, want)
		}
	}
}
