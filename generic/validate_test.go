package generic_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evermore/scheduling-engine/generic"
	"github.com/evermore/scheduling-engine/generic/store"
)

// testKind satisfies ResourceKind without touching the domain packages.
type testKind string

func (k testKind) KindID() string     { return string(k) }
func (k testKind) KindDomain() string { return "test" }

const kindRoom testKind = "test_room"

func newValidatorFixture(t *testing.T, rules generic.Rules) (*generic.Validator, *store.Memory, time.Time) {
	t.Helper()
	mem := store.NewMemory()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	_, err := mem.CloseAndInsert(context.Background(),
		generic.BusinessKey{Tenant: "chapel-hill", Kind: generic.PolicyPrepRoom},
		rules, "setup", now)
	if err != nil {
		t.Fatalf("seeding policy: %v", err)
	}
	return &generic.Validator{Policies: mem, Windows: mem}, mem, now
}

func candidate(start, end time.Time) generic.Window {
	return generic.Window{
		TenantID:   "chapel-hill",
		ResourceID: "prep-room-1",
		Kind:       kindRoom,
		SubjectID:  "case-100",
		Start:      start,
		End:        end,
		CreatedBy:  "director-a",
	}
}

func TestValidatorCreate_PersistsInInitialStatus(t *testing.T) {
	// GIVEN: A valid candidate and a permissive policy
	// WHEN: Create runs
	// THEN: The window is persisted at version 1 in the machine's initial status

	v, mem, now := newValidatorFixture(t, generic.Rules{})
	m := newTestMachine()

	w, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(10, 0), at(12, 0)), now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.Status != "pending" || w.Version != 1 {
		t.Errorf("got status=%s version=%d, want pending v1", w.Status, w.Version)
	}

	stored, err := mem.Get(context.Background(), "chapel-hill", w.ID)
	if err != nil {
		t.Fatalf("window not persisted: %v", err)
	}
	if !stored.Start.Equal(at(10, 0)) {
		t.Errorf("stored start = %v", stored.Start)
	}
}

func TestValidatorCreate_FieldChecks(t *testing.T) {
	// GIVEN: Candidates with a missing field or inverted times
	// WHEN: Create runs
	// THEN: A field-rule ValidationError, nothing persisted

	v, _, now := newValidatorFixture(t, generic.Rules{})
	m := newTestMachine()

	bad := candidate(at(12, 0), at(10, 0)) // end before start
	_, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, bad, now)
	var ve *generic.ValidationError
	if !errors.As(err, &ve) || ve.Rule != "field" {
		t.Fatalf("expected field validation error, got %v", err)
	}

	noTenant := candidate(at(10, 0), at(12, 0))
	noTenant.TenantID = ""
	if _, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, noTenant, now); !errors.Is(err, generic.ErrValidation) {
		t.Fatalf("expected validation error for missing tenant, got %v", err)
	}
}

func TestValidatorCreate_AdvanceNotice(t *testing.T) {
	// GIVEN: A policy requiring 336 hours (14 days) of notice
	// WHEN: Requesting a window 10 days out
	// THEN: advance_notice rejection; 20 days out passes

	v, _, now := newValidatorFixture(t, generic.Rules{MinAdvanceNoticeHours: 336})
	m := newTestMachine()

	tooSoon := candidate(now.AddDate(0, 0, 10), now.AddDate(0, 0, 10).Add(4*time.Hour))
	_, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, tooSoon, now)
	var ve *generic.ValidationError
	if !errors.As(err, &ve) || ve.Rule != "advance_notice" {
		t.Fatalf("expected advance_notice rejection, got %v", err)
	}

	farEnough := candidate(now.AddDate(0, 0, 20), now.AddDate(0, 0, 20).Add(4*time.Hour))
	if _, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, farEnough, now); err != nil {
		t.Fatalf("20 days out should pass: %v", err)
	}
}

func TestValidatorCreate_NoticeDoublesInBlackout(t *testing.T) {
	// GIVEN: 48h base notice and a blackout over the requested day
	// WHEN: Requesting 3 days out (enough normally, short of the doubled 96h)
	// THEN: advance_notice rejection caused by the doubling

	day := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	rules := generic.Rules{
		MinAdvanceNoticeHours: 48,
		Blackouts:             []generic.DateRange{{Start: day, End: day}},
	}
	v, _, now := newValidatorFixture(t, rules)
	m := newTestMachine()

	w := candidate(day.Add(10*time.Hour), day.Add(12*time.Hour))
	_, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, w, now)
	var ve *generic.ValidationError
	if !errors.As(err, &ve) || ve.Rule != "advance_notice" {
		t.Fatalf("expected doubled advance_notice rejection, got %v", err)
	}
}

func TestValidatorCreate_DurationRange(t *testing.T) {
	// GIVEN: A 60-480 minute duration policy
	// WHEN: Requesting 30 minutes, then 9 hours
	// THEN: duration_range rejections both ways

	v, _, now := newValidatorFixture(t, generic.Rules{MinDurationMinutes: 60, MaxDurationMinutes: 480})
	m := newTestMachine()

	for _, tt := range []struct {
		name string
		end  time.Time
	}{
		{"below minimum", at(10, 30)},
		{"above maximum", at(19, 0)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(10, 0), tt.end), now)
			var ve *generic.ValidationError
			if !errors.As(err, &ve) || ve.Rule != "duration_range" {
				t.Fatalf("expected duration_range rejection, got %v", err)
			}
		})
	}
}

func TestValidatorCreate_BlackoutOverlap(t *testing.T) {
	// GIVEN: A blackout on the requested day, generous notice already given
	// WHEN: Create runs
	// THEN: blackout rejection

	day := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	v, _, now := newValidatorFixture(t, generic.Rules{
		Blackouts: []generic.DateRange{{Start: day, End: day}},
	})
	m := newTestMachine()

	_, err := v.Create(context.Background(), m, generic.PolicyPrepRoom,
		candidate(day.Add(10*time.Hour), day.Add(12*time.Hour)), now)
	var ve *generic.ValidationError
	if !errors.As(err, &ve) || ve.Rule != "blackout" {
		t.Fatalf("expected blackout rejection, got %v", err)
	}
}

func TestValidatorCreate_CapacityCap(t *testing.T) {
	// GIVEN: MaxActivePerResource = 1 and one active window on the room
	// WHEN: A non-overlapping second window is requested
	// THEN: Capacity rejection before the conflict check ever matters

	v, _, now := newValidatorFixture(t, generic.Rules{MaxActivePerResource: 1})
	m := newTestMachine()

	if _, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(10, 0), at(12, 0)), now); err != nil {
		t.Fatalf("first window: %v", err)
	}

	_, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(14, 0), at(16, 0)), now)
	if !errors.Is(err, generic.ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	var ce *generic.CapacityError
	if !errors.As(err, &ce) || ce.Limit != 1 || ce.Active != 1 {
		t.Errorf("capacity error detail wrong: %+v", ce)
	}
}

func TestValidatorCreate_BufferedConflict(t *testing.T) {
	// GIVEN: An 08:00-12:00 reservation and a 30-minute buffer policy
	// WHEN: Requesting 12:15, then 12:31
	// THEN: 12:15 conflicts through the buffer; 12:31 is clear

	v, _, now := newValidatorFixture(t, generic.Rules{BufferMinutes: 30})
	m := newTestMachine()

	first, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(8, 0), at(12, 0)), now)
	if err != nil {
		t.Fatalf("first window: %v", err)
	}

	_, err = v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(12, 15), at(14, 0)), now)
	if !errors.Is(err, generic.ErrConflict) {
		t.Fatalf("expected conflict at 12:15, got %v", err)
	}
	var conflict *generic.ConflictError
	if !errors.As(err, &conflict) || conflict.Existing != first.ID {
		t.Errorf("conflict should name the blocking window: %+v", conflict)
	}

	if _, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(12, 31), at(14, 0)), now); err != nil {
		t.Fatalf("12:31 should be clear of the buffer: %v", err)
	}
}

func TestValidatorCreate_CancelledWindowsDoNotBlock(t *testing.T) {
	// GIVEN: A cancelled reservation over the requested time
	// WHEN: Create runs against the same room
	// THEN: Non-blocking statuses are invisible to the conflict check

	v, mem, now := newValidatorFixture(t, generic.Rules{BufferMinutes: 30})
	m := newTestMachine()

	w, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(8, 0), at(12, 0)), now)
	if err != nil {
		t.Fatalf("first window: %v", err)
	}
	if err := m.Apply(&w, "cancelled", generic.TransitionContext{Now: now, Actor: "director-a"}); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := mem.Update(context.Background(), w, nil); err != nil {
		t.Fatalf("persist cancel: %v", err)
	}

	if _, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(9, 0), at(11, 0)), now); err != nil {
		t.Fatalf("cancelled window should not block: %v", err)
	}
}

func TestValidatorCreate_MissingPolicy(t *testing.T) {
	// GIVEN: No policy seeded for the tenant
	// WHEN: Create runs
	// THEN: PolicyNotFoundError, a configuration failure

	mem := store.NewMemory()
	v := &generic.Validator{Policies: mem, Windows: mem}
	m := newTestMachine()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	_, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(10, 0), at(12, 0)), now)
	if !errors.Is(err, generic.ErrPolicyNotFound) {
		t.Fatalf("expected policy-not-found, got %v", err)
	}
}

func TestValidatorReschedule_RerunsChecksAndBumpsVersion(t *testing.T) {
	// GIVEN: A persisted pending window
	// WHEN: Rescheduling to a clear time
	// THEN: Version bumps; a conflicting target is rejected

	v, _, now := newValidatorFixture(t, generic.Rules{BufferMinutes: 30})
	m := newTestMachine()

	w, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(8, 0), at(10, 0)), now)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other := candidate(at(14, 0), at(16, 0))
	other.ResourceID = "prep-room-1"
	if _, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, other, now); err != nil {
		t.Fatalf("create second: %v", err)
	}

	// Into the other reservation's buffer zone.
	_, err = v.Reschedule(context.Background(), m, generic.PolicyPrepRoom, w, at(13, 0), at(13, 45), "director-a", now)
	if !errors.Is(err, generic.ErrConflict) {
		t.Fatalf("expected conflict on reschedule, got %v", err)
	}

	moved, err := v.Reschedule(context.Background(), m, generic.PolicyPrepRoom, w, at(11, 0), at(12, 30), "director-a", now)
	if err != nil {
		t.Fatalf("reschedule to a clear slot: %v", err)
	}
	if moved.Version != 2 || !moved.Start.Equal(at(11, 0)) {
		t.Errorf("got version=%d start=%v, want v2 at 11:00", moved.Version, moved.Start)
	}
}

func TestValidatorReschedule_TerminalRefused(t *testing.T) {
	// GIVEN: A completed window
	// WHEN: Rescheduling
	// THEN: Invalid transition; history is immutable

	v, _, now := newValidatorFixture(t, generic.Rules{})
	m := newTestMachine()

	w := candidate(at(8, 0), at(10, 0))
	w.Status = "completed"

	_, err := v.Reschedule(context.Background(), m, generic.PolicyPrepRoom, w, at(11, 0), at(12, 0), "director-a", now)
	if !errors.Is(err, generic.ErrInvalidTransition) {
		t.Fatalf("expected invalid transition, got %v", err)
	}
}

func TestValidatorCreate_ExistingWindowBlocksByItsOwnKind(t *testing.T) {
	// GIVEN: An absence on the resource whose "approved" status blocks
	//        under its own machine but is meaningless to the room machine
	// WHEN: A room window is created inside the absence
	// THEN: The conflict is detected; cancelling the absence frees the slot

	v, mem, now := newValidatorFixture(t, generic.Rules{})

	const kindAbsence testKind = "test_absence"
	absenceMachine := generic.NewMachine(string(kindAbsence), "pending",
		map[generic.Status][]generic.Status{
			"pending":  {"approved", "cancelled"},
			"approved": {"cancelled"},
		},
		[]generic.Status{"cancelled"},
		[]generic.Status{"pending", "approved"},
	)

	seed := candidate(at(10, 0), at(14, 0))
	seed.Kind = kindAbsence
	absence, err := v.Create(context.Background(), absenceMachine, generic.PolicyPrepRoom, seed, now)
	if err != nil {
		t.Fatalf("creating absence: %v", err)
	}
	if err := absenceMachine.Apply(&absence, "approved", generic.TransitionContext{Now: now, Actor: "manager"}); err != nil {
		t.Fatalf("approving absence: %v", err)
	}
	absence, err = mem.Update(context.Background(), absence, nil)
	if err != nil {
		t.Fatalf("persisting approval: %v", err)
	}

	_, err = v.Create(context.Background(), newTestMachine(), generic.PolicyPrepRoom, candidate(at(11, 0), at(12, 0)), now)
	if !errors.Is(err, generic.ErrConflict) {
		t.Fatalf("approved absence must block the resource, got %v", err)
	}

	if err := absenceMachine.Apply(&absence, "cancelled", generic.TransitionContext{Now: now, Actor: "manager"}); err != nil {
		t.Fatalf("cancelling absence: %v", err)
	}
	if _, err := mem.Update(context.Background(), absence, nil); err != nil {
		t.Fatalf("persisting cancellation: %v", err)
	}
	if _, err := v.Create(context.Background(), newTestMachine(), generic.PolicyPrepRoom, candidate(at(11, 0), at(12, 0)), now); err != nil {
		t.Fatalf("cancelled absence must not block, got %v", err)
	}
}

func TestValidatorCreate_KindWideCapacityCap(t *testing.T) {
	// GIVEN: A policy capping the kind at one active window tenant-wide
	// WHEN: A second window is created on a DIFFERENT resource
	// THEN: Capacity rejection; rescheduling the first keeps its own slot

	v, _, now := newValidatorFixture(t, generic.Rules{MaxActivePerKind: 1})
	m := newTestMachine()

	first, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(10, 0), at(12, 0)), now)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}

	other := candidate(at(10, 0), at(12, 0))
	other.ResourceID = "prep-room-2"
	_, err = v.Create(context.Background(), m, generic.PolicyPrepRoom, other, now)
	var ce *generic.CapacityError
	if !errors.As(err, &ce) || !errors.Is(err, generic.ErrCapacityExceeded) {
		t.Fatalf("expected capacity error across resources, got %v", err)
	}
	if ce.Limit != 1 || ce.Active != 1 {
		t.Errorf("got limit=%d active=%d, want 1/1", ce.Limit, ce.Active)
	}

	if _, err := v.Reschedule(context.Background(), m, generic.PolicyPrepRoom, first, at(13, 0), at(15, 0), "director-a", now); err != nil {
		t.Fatalf("reschedule must not count its own window against the cap: %v", err)
	}
}

func TestValidatorCreate_BreakOverlap(t *testing.T) {
	// GIVEN: A fixed 12:00-13:00 non-working block
	// WHEN: Creating windows at 12:00-13:00, 12:30-13:30, and 13:00-14:00
	// THEN: The first two fail with the break rule; the third passes

	rules := generic.Rules{Breaks: []generic.DayWindow{{StartMinute: 720, EndMinute: 780}}}
	v, _, now := newValidatorFixture(t, rules)
	m := newTestMachine()

	for _, span := range []struct{ startH, startM, endH, endM int }{
		{12, 0, 13, 0},
		{12, 30, 13, 30},
	} {
		_, err := v.Create(context.Background(), m, generic.PolicyPrepRoom,
			candidate(at(span.startH, span.startM), at(span.endH, span.endM)), now)
		var ve *generic.ValidationError
		if !errors.As(err, &ve) || ve.Rule != "break" {
			t.Fatalf("%02d:%02d: expected break rejection, got %v", span.startH, span.startM, err)
		}
	}

	if _, err := v.Create(context.Background(), m, generic.PolicyPrepRoom, candidate(at(13, 0), at(14, 0)), now); err != nil {
		t.Fatalf("window starting at block end must pass, got %v", err)
	}
}
