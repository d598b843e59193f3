/*
Package factory provides JSON to Go policy conversion and tenant
onboarding defaults.

PURPOSE:
  Converts JSON rule payloads into generic.Rules so tenant administrators
  can change scheduling behavior without code changes, and seeds every
  new tenant with kind-appropriate defaults. Buffers in particular are
  policy data here, never literals in a validator: prep rooms get 30
  minutes of turnaround, vehicles 60, appointments none.

JSON SCHEMA (per policy kind):
  {
    "min_advance_notice_hours": 336,
    "min_duration_minutes": 60,
    "max_duration_minutes": 480,
    "buffer_minutes": 30,
    "max_active_per_resource": 2,
    "day_start_hour": 8,
    "day_end_hour": 18,
    "slot_granularity_minutes": 60,
    "breaks": [{"start_minute": 720, "end_minute": 780}],
    "horizon_days": 30,
    "blackouts": [{"start": "2025-12-24T00:00:00Z", "end": "2025-12-26T00:00:00Z"}],
    "require_backfill": true,
    "pay_multiplier": "1.5",
    "mileage_rate": "0.67"
  }

USAGE:
  rules, err := factory.ParseRules(payload)
  pv, err := policies.CloseAndInsert(ctx, key, rules, actor, now)

  // New tenant
  err := factory.Onboard(ctx, policies, "chapel-hill", "admin", now)

SEE ALSO:
  - generic/policy.go: Rules definition, SCD2 version model
  - store.go PolicyStore: close-then-insert discipline
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/evermore/scheduling-engine/generic"
)

// =============================================================================
// PARSING
// =============================================================================

// ParseRules decodes a JSON rule payload and validates its shape.
func ParseRules(payload []byte) (generic.Rules, error) {
	var r generic.Rules
	if err := json.Unmarshal(payload, &r); err != nil {
		return generic.Rules{}, fmt.Errorf("invalid rules payload: %w", err)
	}
	if err := Validate(r); err != nil {
		return generic.Rules{}, err
	}
	return r, nil
}

// Validate rejects self-contradictory rule sets before they become a
// policy version. A bad policy poisons every request of its kind, so
// this is stricter than the per-request validators.
func Validate(r generic.Rules) error {
	switch {
	case r.MinAdvanceNoticeHours < 0:
		return &generic.ValidationError{Rule: "policy", Field: "min_advance_notice_hours", Message: "must not be negative"}
	case r.MinDurationMinutes < 0 || r.MaxDurationMinutes < 0:
		return &generic.ValidationError{Rule: "policy", Field: "duration", Message: "must not be negative"}
	case r.MaxDurationMinutes > 0 && r.MinDurationMinutes > r.MaxDurationMinutes:
		return &generic.ValidationError{Rule: "policy", Field: "duration", Message: "min exceeds max"}
	case r.BufferMinutes < 0:
		return &generic.ValidationError{Rule: "policy", Field: "buffer_minutes", Message: "must not be negative"}
	case r.MaxActivePerResource < 0 || r.MaxActivePerKind < 0:
		return &generic.ValidationError{Rule: "policy", Field: "capacity", Message: "must not be negative"}
	case r.DayStartHour < 0 || r.DayEndHour > 24 || (r.DayEndHour != 0 && r.DayStartHour >= r.DayEndHour):
		return &generic.ValidationError{Rule: "policy", Field: "business_hours", Message: "end must be after start within one day"}
	case r.PayMultiplier.IsNegative() || r.MileageRate.IsNegative():
		return &generic.ValidationError{Rule: "policy", Field: "compensation", Message: "must not be negative"}
	}
	for _, b := range r.Breaks {
		if b.StartMinute < 0 || b.EndMinute > 24*60 || b.StartMinute >= b.EndMinute {
			return &generic.ValidationError{Rule: "policy", Field: "breaks", Message: "malformed break block"}
		}
	}
	for _, b := range r.Blackouts {
		if b.End.Before(b.Start) {
			return &generic.ValidationError{Rule: "policy", Field: "blackouts", Message: "range end before start"}
		}
	}
	return nil
}

// =============================================================================
// ONBOARDING DEFAULTS
// =============================================================================

// DefaultRules returns the seed rules for a policy kind. These are the
// values a tenant runs with until an administrator publishes a new
// version.
func DefaultRules(kind generic.PolicyKind) generic.Rules {
	base := generic.Rules{
		DayStartHour:           8,
		DayEndHour:             18,
		SlotGranularityMinutes: 60,
		HorizonDays:            30,
		AutoReleaseMinutes:     30,
		ReminderLeadHours:      24,
		PayMultiplier:          decimal.NewFromInt(1),
		MileageRate:            decimal.Zero,
	}

	switch kind {
	case generic.PolicyPrepRoom:
		base.BufferMinutes = 30
		base.MinDurationMinutes = 60
		base.MaxDurationMinutes = 8 * 60
		base.MinAdvanceNoticeHours = 1
	case generic.PolicyVehicle:
		base.BufferMinutes = 60
		base.MinDurationMinutes = 30
		base.MaxDurationMinutes = 12 * 60
		base.MileageRate = decimal.RequireFromString("0.67")
	case generic.PolicyAppointment:
		base.BufferMinutes = 0
		base.MinDurationMinutes = 30
		base.MaxDurationMinutes = 3 * 60
		base.MinAdvanceNoticeHours = 24
		base.CancelLeadTimeHours = 24
		// Standard lunch block 12:00-13:00.
		base.Breaks = []generic.DayWindow{{StartMinute: 12 * 60, EndMinute: 13 * 60}}
	case generic.PolicyPTO:
		base.MinAdvanceNoticeHours = 14 * 24
		base.MinDurationMinutes = 4 * 60 // half day
		base.MaxDurationMinutes = 0      // bounded by accrual, not by this engine
		base.RequireBackfill = true
		base.RecentLoadDays = 90
	case generic.PolicyTraining:
		base.MinAdvanceNoticeHours = 48
		base.MinDurationMinutes = 30
		base.MaxDurationMinutes = 8 * 60
	case generic.PolicyOnCall:
		base.MinAdvanceNoticeHours = 72
		base.MinDurationMinutes = 8 * 60
		base.MaxDurationMinutes = 7 * 24 * 60
		base.PayMultiplier = decimal.RequireFromString("1.5")
	case generic.PolicyServiceCoverage:
		base.MinAdvanceNoticeHours = 0
		base.MinDurationMinutes = 60
		base.RecentLoadDays = 90
	}
	return base
}

// Onboard seeds version 1 of every policy kind for a new tenant.
// Idempotence is the store's concern: re-onboarding an existing tenant
// produces new versions, it never corrupts the chain.
func Onboard(ctx context.Context, policies generic.PolicyStore, tenant generic.TenantID, actor generic.Actor, at time.Time) error {
	for _, kind := range generic.PolicyKinds {
		key := generic.BusinessKey{Tenant: tenant, Kind: kind}
		if _, err := policies.FindCurrent(ctx, key); err == nil {
			continue // already onboarded
		}
		if _, err := policies.CloseAndInsert(ctx, key, DefaultRules(kind), actor, at); err != nil {
			return fmt.Errorf("onboarding %s/%s: %w", tenant, kind, err)
		}
	}
	return nil
}
