package workforce_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermore/scheduling-engine/factory"
	"github.com/evermore/scheduling-engine/generic"
	"github.com/evermore/scheduling-engine/generic/store"
	"github.com/evermore/scheduling-engine/workforce"
)

const tenant = generic.TenantID("chapel-hill")

type fixture struct {
	svc   *workforce.Service
	mem   *store.Memory
	clock time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mem:   store.NewMemory(),
		clock: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), // Monday
	}
	ctx := context.Background()
	require.NoError(t, factory.Onboard(ctx, f.mem, tenant, "setup", f.clock))
	f.svc = workforce.NewService(f.mem, f.mem, f.mem, f.mem, store.NewCollectNotifier())
	f.svc.Now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) addStaff(t *testing.T, id, name, role string) {
	t.Helper()
	require.NoError(t, f.mem.PutStaff(context.Background(), generic.StaffMember{
		ID: generic.EmployeeID(id), TenantID: tenant, Name: name, Role: role, HiredAt: f.clock.AddDate(-2, 0, 0),
	}))
}

// absence returns a three-day PTO window safely past the 14-day notice.
func absence() (time.Time, time.Time) {
	start := time.Date(2026, 3, 23, 8, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 3)
}

// =============================================================================
// PTO REQUESTS
// =============================================================================

func TestRequestPTO_AdvanceNotice(t *testing.T) {
	// GIVEN: The default 14-day PTO notice
	// WHEN: Requesting 10 days out, then 21 days out
	// THEN: The short-notice request dies at creation, before any approval routing

	f := newFixture(t)
	ctx := context.Background()

	soon := f.clock.AddDate(0, 0, 10)
	_, err := f.svc.RequestPTO(ctx, tenant, "emp-1", soon, soon.AddDate(0, 0, 2), "vacation", "emp-1")
	require.ErrorIs(t, err, generic.ErrValidation)
	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "advance_notice", ve.Rule)

	start, end := absence()
	w, err := f.svc.RequestPTO(ctx, tenant, "emp-1", start, end, "vacation", "emp-1")
	require.NoError(t, err)
	assert.Equal(t, workforce.StatusDraft, w.Status)
	assert.Equal(t, "vacation", w.Meta(workforce.MetaReason))
}

func TestRequestPTO_MinimumDuration(t *testing.T) {
	// GIVEN: The four-hour PTO minimum
	// WHEN: Requesting a two-hour absence three weeks out
	// THEN: duration_range rejection

	f := newFixture(t)
	start, _ := absence()

	_, err := f.svc.RequestPTO(context.Background(), tenant, "emp-1", start, start.Add(2*time.Hour), "appointment", "emp-1")
	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "duration_range", ve.Rule)
}

func TestPTO_DraftDoesNotBlockCalendar(t *testing.T) {
	// GIVEN: A draft PTO request on emp-1
	// WHEN: A second overlapping request is created, then the first is submitted
	// THEN: Drafts are invisible to conflict checks; pending requests block

	f := newFixture(t)
	ctx := context.Background()
	start, end := absence()

	first, err := f.svc.RequestPTO(ctx, tenant, "emp-1", start, end, "vacation", "emp-1")
	require.NoError(t, err)

	second, err := f.svc.RequestPTO(ctx, tenant, "emp-1", start, end, "conference", "emp-1")
	require.NoError(t, err, "draft must not block")

	_, err = f.svc.SubmitPTO(ctx, tenant, first.ID, "emp-1")
	require.NoError(t, err)

	_, err = f.svc.SubmitPTO(ctx, tenant, second.ID, "emp-1")
	require.NoError(t, err, "submit re-checks nothing; the overlap was accepted at creation")

	// A third request now collides with the pending ones.
	_, err = f.svc.RequestPTO(ctx, tenant, "emp-1", start, end, "again", "emp-1")
	assert.ErrorIs(t, err, generic.ErrConflict)
}

func TestApprovePTO_RequiresConfirmedBackfill(t *testing.T) {
	// GIVEN: A pending PTO request under a backfill-mandating policy
	// WHEN: Approving before any coverage, then after the backfill confirms
	// THEN: The guard holds until MetaBackfillConfirmed is stamped

	f := newFixture(t)
	ctx := context.Background()
	f.addStaff(t, "emp-2", "Rivera", "director")
	start, end := absence()

	pto, err := f.svc.RequestPTO(ctx, tenant, "emp-1", start, end, "vacation", "emp-1")
	require.NoError(t, err)
	_, err = f.svc.SubmitPTO(ctx, tenant, pto.ID, "emp-1")
	require.NoError(t, err)

	_, err = f.svc.ApprovePTO(ctx, tenant, pto.ID, "manager-1")
	require.ErrorIs(t, err, generic.ErrValidation)
	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "backfill_required", ve.Rule)

	bf, err := f.svc.CreateBackfill(ctx, tenant, "emp-2", pto.ID, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, workforce.StatusSuggested, bf.Status)
	assert.True(t, bf.Start.Equal(start) && bf.End.Equal(end), "backfill covers the absence window")

	_, err = f.svc.ProposeBackfill(ctx, tenant, bf.ID, "manager-1")
	require.NoError(t, err)
	_, err = f.svc.ConfirmBackfill(ctx, tenant, bf.ID, "emp-2")
	require.NoError(t, err)

	approved, err := f.svc.ApprovePTO(ctx, tenant, pto.ID, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, workforce.StatusApproved, approved.Status)

	f.clock = start.Add(time.Hour)
	taken, err := f.svc.MarkPTOTaken(ctx, tenant, pto.ID, "manager-1")
	require.NoError(t, err)
	assert.Equal(t, workforce.StatusTaken, taken.Status)
}

func TestRejectBackfill_LeavesPTOUnapprovable(t *testing.T) {
	// GIVEN: A pending PTO whose proposed backfill the candidate rejects
	// WHEN: Approving afterwards
	// THEN: Still vetoed; only a confirmation stamps the request

	f := newFixture(t)
	ctx := context.Background()
	f.addStaff(t, "emp-2", "Rivera", "director")
	start, end := absence()

	pto, err := f.svc.RequestPTO(ctx, tenant, "emp-1", start, end, "vacation", "emp-1")
	require.NoError(t, err)
	_, err = f.svc.SubmitPTO(ctx, tenant, pto.ID, "emp-1")
	require.NoError(t, err)

	bf, err := f.svc.CreateBackfill(ctx, tenant, "emp-2", pto.ID, "manager-1")
	require.NoError(t, err)
	_, err = f.svc.ProposeBackfill(ctx, tenant, bf.ID, "manager-1")
	require.NoError(t, err)
	rejected, err := f.svc.RejectBackfill(ctx, tenant, bf.ID, "emp-2")
	require.NoError(t, err)
	assert.Equal(t, workforce.StatusRejected, rejected.Status)

	_, err = f.svc.ApprovePTO(ctx, tenant, pto.ID, "manager-1")
	assert.ErrorIs(t, err, generic.ErrValidation)
}

// =============================================================================
// BACKFILL SUGGESTION
// =============================================================================

func TestSuggestBackfill_RanksFreeStaffFirst(t *testing.T) {
	// GIVEN: Two directors, one already covering a confirmed window over the absence
	// WHEN: Suggesting backfill for a pending PTO
	// THEN: The free director ranks first; the busy one is flagged, not hidden

	f := newFixture(t)
	ctx := context.Background()
	f.addStaff(t, "emp-busy", "Rivera", "director")
	f.addStaff(t, "emp-free", "Okafor", "director")
	start, end := absence()

	pto, err := f.svc.RequestPTO(ctx, tenant, "emp-1", start, end, "vacation", "emp-1")
	require.NoError(t, err)
	_, err = f.svc.SubmitPTO(ctx, tenant, pto.ID, "emp-1")
	require.NoError(t, err)

	// emp-busy already holds confirmed coverage over the same days.
	_, err = f.mem.Insert(ctx, generic.Window{
		TenantID:   tenant,
		Kind:       workforce.KindBackfill,
		ResourceID: "emp-busy",
		SubjectID:  "other-pto",
		Start:      start,
		End:        end,
		Status:     workforce.StatusConfirmed,
		CreatedBy:  "manager-1",
	}, nil)
	require.NoError(t, err)

	candidates, err := f.svc.SuggestBackfill(ctx, tenant, pto.ID, "director")
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, generic.EmployeeID("emp-free"), candidates[0].EmployeeID)
	assert.False(t, candidates[0].Conflict)
	assert.Equal(t, generic.EmployeeID("emp-busy"), candidates[1].EmployeeID)
	assert.True(t, candidates[1].Conflict)
}

func TestSuggestBackfill_FiltersByRole(t *testing.T) {
	// GIVEN: A director and a driver
	// WHEN: Suggesting backfill for the director role
	// THEN: Only directors are candidates

	f := newFixture(t)
	ctx := context.Background()
	f.addStaff(t, "emp-2", "Rivera", "director")
	f.addStaff(t, "emp-3", "Lund", "driver")
	start, end := absence()

	pto, err := f.svc.RequestPTO(ctx, tenant, "emp-1", start, end, "vacation", "emp-1")
	require.NoError(t, err)

	candidates, err := f.svc.SuggestBackfill(ctx, tenant, pto.ID, "director")
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, generic.EmployeeID("emp-2"), candidates[0].EmployeeID)
}

// =============================================================================
// TRAINING
// =============================================================================

func TestTraining_Lifecycle(t *testing.T) {
	// GIVEN: A training session two weeks out (48h notice required)
	// WHEN: Start and complete with a moving clock
	// THEN: Check-in and actual duration are derived from transitions

	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 16, 9, 0, 0, 0, time.UTC)

	w, err := f.svc.ScheduleTraining(ctx, tenant, "emp-1", "OSHA refresher", start, start.Add(3*time.Hour), "manager-1")
	require.NoError(t, err)
	assert.Equal(t, workforce.StatusScheduled, w.Status)

	f.clock = start.Add(10 * time.Minute)
	w, err = f.svc.StartTraining(ctx, tenant, w.ID, "emp-1")
	require.NoError(t, err)
	require.NotNil(t, w.CheckInAt)

	f.clock = start.Add(3 * time.Hour)
	w, err = f.svc.CompleteTraining(ctx, tenant, w.ID, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, workforce.StatusCompleted, w.Status)
	assert.Equal(t, 2*time.Hour+50*time.Minute, w.ActualDuration)
}

func TestTraining_ShortNoticeRejected(t *testing.T) {
	// GIVEN: The 48-hour training notice
	// WHEN: Scheduling for tomorrow morning
	// THEN: advance_notice rejection

	f := newFixture(t)
	start := f.clock.Add(24 * time.Hour)

	_, err := f.svc.ScheduleTraining(context.Background(), tenant, "emp-1", "CPR", start, start.Add(2*time.Hour), "manager-1")
	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "advance_notice", ve.Rule)
}

// =============================================================================
// ON-CALL ROTATIONS
// =============================================================================

func TestScheduleRotation_StampsPayMultiplier(t *testing.T) {
	// GIVEN: The default 1.5x on-call multiplier
	// WHEN: Scheduling a weekend rotation
	// THEN: The multiplier in force is frozen onto the window

	f := newFixture(t)
	start := time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC) // Friday evening, 11 days out

	w, err := f.svc.ScheduleRotation(context.Background(), tenant, "emp-1", start, start.AddDate(0, 0, 2), "manager-1")
	require.NoError(t, err)
	assert.Equal(t, workforce.StatusScheduled, w.Status)
	assert.Equal(t, "1.5", w.Meta(generic.MetaPayMultiplier))
}

func TestScheduleRotation_MultiplierSurvivesPolicyChange(t *testing.T) {
	// GIVEN: A scheduled rotation stamped at 1.5x
	// WHEN: The on-call policy later moves to 2x
	// THEN: The old rotation keeps its stamp; a new one gets the new rate

	f := newFixture(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC)

	old, err := f.svc.ScheduleRotation(ctx, tenant, "emp-1", start, start.AddDate(0, 0, 2), "manager-1")
	require.NoError(t, err)

	newRules := factory.DefaultRules(generic.PolicyOnCall)
	newRules.PayMultiplier = decimal.NewFromInt(2)
	_, err = f.mem.CloseAndInsert(ctx, generic.BusinessKey{Tenant: tenant, Kind: generic.PolicyOnCall}, newRules, "admin", f.clock)
	require.NoError(t, err)

	stored, err := f.mem.Get(ctx, tenant, old.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.5", stored.Meta(generic.MetaPayMultiplier))

	next, err := f.svc.ScheduleRotation(ctx, tenant, "emp-2", start, start.AddDate(0, 0, 2), "manager-1")
	require.NoError(t, err)
	assert.Equal(t, "2", next.Meta(generic.MetaPayMultiplier))
}

// =============================================================================
// CROSS-KIND CALENDAR INTEGRITY
// =============================================================================

func TestScheduleTraining_BlockedBySubmittedPTO(t *testing.T) {
	// GIVEN: emp-1 with a submitted PTO request over Mar 23-26
	// WHEN: A training session is booked inside the absence window
	// THEN: The PTO blocks it even though "pending" is not a training
	//       status; cancelling the PTO frees the calendar again

	f := newFixture(t)
	ctx := context.Background()
	start, end := absence()

	pto, err := f.svc.RequestPTO(ctx, tenant, "emp-1", start, end, "vacation", "emp-1")
	require.NoError(t, err)
	_, err = f.svc.SubmitPTO(ctx, tenant, pto.ID, "emp-1")
	require.NoError(t, err)

	_, err = f.svc.ScheduleTraining(ctx, tenant, "emp-1", "OSHA refresher", start.Add(time.Hour), start.Add(3*time.Hour), "manager-1")
	require.ErrorIs(t, err, generic.ErrConflict)

	_, err = f.svc.CancelPTO(ctx, tenant, pto.ID, "emp-1")
	require.NoError(t, err)

	w, err := f.svc.ScheduleTraining(ctx, tenant, "emp-1", "OSHA refresher", start.Add(time.Hour), start.Add(3*time.Hour), "manager-1")
	require.NoError(t, err)
	assert.Equal(t, workforce.StatusScheduled, w.Status)
}

func TestConfirmBackfill_DanglingPTOSurfaced(t *testing.T) {
	// GIVEN: A backfill assignment whose covered-PTO reference points nowhere
	// WHEN: The covering employee confirms
	// THEN: The broken reference surfaces instead of silently skipping the
	//       approval stamp

	f := newFixture(t)
	ctx := context.Background()
	start, end := absence()

	bf, err := f.mem.Insert(ctx, generic.Window{
		TenantID:   tenant,
		Kind:       workforce.KindBackfill,
		ResourceID: "emp-cover",
		SubjectID:  "emp-1",
		Start:      start,
		End:        end,
		Status:     workforce.StatusSuggested,
		CreatedBy:  "manager-1",
		Metadata:   map[string]string{generic.MetaBackfillFor: "ghost-pto"},
	}, nil)
	require.NoError(t, err)

	_, err = f.svc.ProposeBackfill(ctx, tenant, bf.ID, "manager-1")
	require.NoError(t, err)

	_, err = f.svc.ConfirmBackfill(ctx, tenant, bf.ID, "emp-cover")
	require.ErrorIs(t, err, generic.ErrWindowNotFound)
}

func TestRotation_MinimumShiftLength(t *testing.T) {
	// GIVEN: The eight-hour rotation minimum
	// WHEN: Scheduling a four-hour rotation
	// THEN: duration_range rejection

	f := newFixture(t)
	start := time.Date(2026, 3, 13, 18, 0, 0, 0, time.UTC)

	_, err := f.svc.ScheduleRotation(context.Background(), tenant, "emp-1", start, start.Add(4*time.Hour), "manager-1")
	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "duration_range", ve.Rule)
}
