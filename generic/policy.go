/*
policy.go - Versioned, tenant-scoped scheduling policy (SCD2)

PURPOSE:
  Defines the rules that parameterize every validator: advance notice,
  duration bounds, buffers, business hours, blackout windows, capacity
  caps, and staffing parameters. A policy is the contract between the
  tenant and the engine about how its resources may be reserved.

VERSIONING (SCD2):
  Policies are never updated in place. Changing a rule closes the current
  row (ValidTo = now) and inserts a new row with Version + 1. Exactly one
  row per (tenant, kind) is current at any instant; the full history is
  kept for audit. See PolicyStore in store.go for the close-then-insert
  contract.

RULES ARE DATA, NOT CODE:
  Every numeric that used to be a literal in a validator lives here.
  Buffers in particular are required policy fields for every resource
  kind; tenant onboarding seeds kind-appropriate defaults (30 minutes for
  prep rooms, 60 for vehicles, 0 for appointments) via the factory
  package.

SIGNIFICANT CHANGE:
  A policy change is "significant" when any numeric threshold differs
  between the old and new rules. The engine only computes the predicate;
  whoever listens on the Notifier port decides how to tell people.

EXAMPLE:
  key := generic.BusinessKey{Tenant: "chapel-hill", Kind: generic.PolicyPrepRoom}
  pv, err := policies.FindCurrent(ctx, key)
  buffer := pv.Rules.Buffer() // 30m

SEE ALSO:
  - validate.go: Evaluates these rules in a fixed order
  - factory/: JSON payload -> Rules, onboarding defaults
  - store.go: PolicyStore port with CloseAndInsert
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// POLICY KIND - One policy per tenant per kind
// =============================================================================

type PolicyKind string

const (
	PolicyPTO             PolicyKind = "pto"
	PolicyTraining        PolicyKind = "training"
	PolicyOnCall          PolicyKind = "on_call"
	PolicyServiceCoverage PolicyKind = "service_coverage"
	PolicyPrepRoom        PolicyKind = "prep_room"
	PolicyAppointment     PolicyKind = "appointment"
	PolicyVehicle         PolicyKind = "vehicle"
)

// PolicyKinds lists every kind a tenant is onboarded with.
var PolicyKinds = []PolicyKind{
	PolicyPTO, PolicyTraining, PolicyOnCall, PolicyServiceCoverage,
	PolicyPrepRoom, PolicyAppointment, PolicyVehicle,
}

// BusinessKey is the stable identity of a policy across all its versions.
type BusinessKey struct {
	Tenant TenantID
	Kind   PolicyKind
}

// =============================================================================
// RULES - The kind-specific parameter payload
// =============================================================================

// DayWindow is a fixed non-working block within a business day, expressed
// in minutes from midnight (e.g. a 12:00-13:00 lunch block is {720, 780}).
type DayWindow struct {
	StartMinute int `json:"start_minute"`
	EndMinute   int `json:"end_minute"`
}

// DateRange is an inclusive blackout range of calendar days.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether the day (any instant of it) falls in the range.
func (r DateRange) Contains(t time.Time) bool {
	day := t.Truncate(24 * time.Hour)
	return !day.Before(r.Start.Truncate(24*time.Hour)) &&
		!day.After(r.End.Truncate(24*time.Hour))
}

// Rules is the numeric/boolean parameter payload of a policy version.
// Fields irrelevant to a kind are zero and ignored by its validators.
type Rules struct {
	// Temporal constraints
	MinAdvanceNoticeHours int `json:"min_advance_notice_hours"`
	MaxAdvanceDays        int `json:"max_advance_days"`
	MinDurationMinutes    int `json:"min_duration_minutes"`
	MaxDurationMinutes    int `json:"max_duration_minutes"`
	BufferMinutes         int `json:"buffer_minutes"`
	CancelLeadTimeHours   int `json:"cancel_lead_time_hours"`

	// Capacity: active windows per resource, and across the whole
	// tenant for the kind (0 = uncapped)
	MaxActivePerResource int `json:"max_active_per_resource"`
	MaxActivePerKind     int `json:"max_active_per_kind"`

	// Business calendar
	BusinessDays           []time.Weekday `json:"business_days"`
	DayStartHour           int            `json:"day_start_hour"`
	DayEndHour             int            `json:"day_end_hour"`
	SlotGranularityMinutes int            `json:"slot_granularity_minutes"`
	Breaks                 []DayWindow    `json:"breaks"`
	HorizonDays            int            `json:"horizon_days"`
	Blackouts              []DateRange    `json:"blackouts"`

	// Staffing
	RequireBackfill bool `json:"require_backfill"`
	RecentLoadDays  int  `json:"recent_load_days"`

	// Timeouts and reminders (evaluated by an external poller)
	AutoReleaseMinutes int `json:"auto_release_minutes"`
	ReminderLeadHours  int `json:"reminder_lead_hours"`

	// Compensation parameters
	PayMultiplier decimal.Decimal `json:"pay_multiplier"`
	MileageRate   decimal.Decimal `json:"mileage_rate"` // allowance per mile
}

// Buffer returns the mandatory gap enforced around windows of this kind.
func (r Rules) Buffer() time.Duration {
	return time.Duration(r.BufferMinutes) * time.Minute
}

// Granularity returns the candidate-slot step for availability search.
func (r Rules) Granularity() time.Duration {
	if r.SlotGranularityMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(r.SlotGranularityMinutes) * time.Minute
}

// Horizon returns how many days ahead availability search walks.
func (r Rules) Horizon() int {
	if r.HorizonDays <= 0 {
		return 30
	}
	return r.HorizonDays
}

// IsBusinessDay reports whether the weekday is a working day. An empty
// BusinessDays list means the default Mon-Fri week.
func (r Rules) IsBusinessDay(d time.Weekday) bool {
	if len(r.BusinessDays) == 0 {
		return d != time.Saturday && d != time.Sunday
	}
	for _, bd := range r.BusinessDays {
		if bd == d {
			return true
		}
	}
	return false
}

// InBlackout reports whether the instant falls on a blackout day.
func (r Rules) InBlackout(t time.Time) bool {
	for _, b := range r.Blackouts {
		if b.Contains(t) {
			return true
		}
	}
	return false
}

// BlackoutOverlap reports whether any day of [start, end] is blacked out.
func (r Rules) BlackoutOverlap(start, end time.Time) bool {
	for day := start.Truncate(24 * time.Hour); !day.After(end); day = day.AddDate(0, 0, 1) {
		if r.InBlackout(day) {
			return true
		}
	}
	return false
}

// BreakOverlap reports whether any part of [start, end) falls inside a
// fixed non-working block. Breaks repeat daily and are hard blocks; no
// buffer applies. Multi-day windows are checked on every day they span.
func (r Rules) BreakOverlap(start, end time.Time) bool {
	if len(r.Breaks) == 0 {
		return false
	}
	for day := start.Truncate(24 * time.Hour); day.Before(end); day = day.AddDate(0, 0, 1) {
		for _, b := range r.Breaks {
			bStart := day.Add(time.Duration(b.StartMinute) * time.Minute)
			bEnd := day.Add(time.Duration(b.EndMinute) * time.Minute)
			if Overlaps(start, end, bStart, bEnd, 0) {
				return true
			}
		}
	}
	return false
}

// =============================================================================
// POLICY VERSION - One SCD2 row
// =============================================================================

// PolicyVersion is a single row in a policy's append-only history.
type PolicyVersion struct {
	ID      string
	Key     BusinessKey
	Version int // monotonic, starts at 1

	ValidFrom time.Time
	ValidTo   *time.Time // nil = current
	IsCurrent bool

	Rules Rules

	CreatedBy Actor
	CreatedAt time.Time
}

// =============================================================================
// SIGNIFICANT CHANGE - Notification predicate
// =============================================================================

// SignificantChange reports whether any numeric threshold differs between
// two rule sets. Calendar shape (business days, breaks, blackouts) is
// compared by count only; a reshuffled but equal-sized calendar is not a
// threshold change.
func SignificantChange(old, new Rules) bool {
	if old.MinAdvanceNoticeHours != new.MinAdvanceNoticeHours ||
		old.MaxAdvanceDays != new.MaxAdvanceDays ||
		old.MinDurationMinutes != new.MinDurationMinutes ||
		old.MaxDurationMinutes != new.MaxDurationMinutes ||
		old.BufferMinutes != new.BufferMinutes ||
		old.CancelLeadTimeHours != new.CancelLeadTimeHours ||
		old.MaxActivePerResource != new.MaxActivePerResource ||
		old.AutoReleaseMinutes != new.AutoReleaseMinutes ||
		old.ReminderLeadHours != new.ReminderLeadHours ||
		old.RecentLoadDays != new.RecentLoadDays {
		return true
	}
	if !old.PayMultiplier.Equal(new.PayMultiplier) || !old.MileageRate.Equal(new.MileageRate) {
		return true
	}
	return len(old.Blackouts) != len(new.Blackouts)
}
