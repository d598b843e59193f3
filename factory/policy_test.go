package factory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evermore/scheduling-engine/factory"
	"github.com/evermore/scheduling-engine/generic"
	"github.com/evermore/scheduling-engine/generic/store"
)

func TestParseRules_ValidPayload(t *testing.T) {
	// GIVEN: A full JSON policy payload
	// WHEN: Parsing
	// THEN: Every field round-trips, decimals included

	payload := []byte(`{
		"min_advance_notice_hours": 336,
		"min_duration_minutes": 240,
		"buffer_minutes": 30,
		"day_start_hour": 8,
		"day_end_hour": 18,
		"slot_granularity_minutes": 60,
		"breaks": [{"start_minute": 720, "end_minute": 780}],
		"horizon_days": 30,
		"blackouts": [{"start": "2026-12-24T00:00:00Z", "end": "2026-12-26T00:00:00Z"}],
		"require_backfill": true,
		"pay_multiplier": "1.5",
		"mileage_rate": "0.67"
	}`)

	rules, err := factory.ParseRules(payload)
	require.NoError(t, err)
	assert.Equal(t, 336, rules.MinAdvanceNoticeHours)
	assert.Equal(t, 30, rules.BufferMinutes)
	assert.True(t, rules.RequireBackfill)
	assert.Equal(t, "1.5", rules.PayMultiplier.String())
	assert.Equal(t, "0.67", rules.MileageRate.String())
	require.Len(t, rules.Breaks, 1)
	assert.Equal(t, 720, rules.Breaks[0].StartMinute)
	require.Len(t, rules.Blackouts, 1)
}

func TestParseRules_MalformedJSON(t *testing.T) {
	_, err := factory.ParseRules([]byte(`{"buffer_minutes": `))
	assert.Error(t, err)
}

func TestParseRules_RejectsContradictions(t *testing.T) {
	// GIVEN: Payloads each violating one structural rule
	// WHEN: Parsing
	// THEN: A policy validation error naming the field

	cases := []struct {
		name    string
		payload string
		field   string
	}{
		{"negative notice", `{"min_advance_notice_hours": -1}`, "min_advance_notice_hours"},
		{"negative buffer", `{"buffer_minutes": -30}`, "buffer_minutes"},
		{"min over max duration", `{"min_duration_minutes": 480, "max_duration_minutes": 60}`, "duration"},
		{"inverted business hours", `{"day_start_hour": 18, "day_end_hour": 8}`, "business_hours"},
		{"negative mileage rate", `{"mileage_rate": "-0.67"}`, "compensation"},
		{"negative kind cap", `{"max_active_per_kind": -2}`, "capacity"},
		{"inverted break", `{"breaks": [{"start_minute": 780, "end_minute": 720}]}`, "breaks"},
		{"inverted blackout", `{"blackouts": [{"start": "2026-12-26T00:00:00Z", "end": "2026-12-24T00:00:00Z"}]}`, "blackouts"},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			_, err := factory.ParseRules([]byte(tt.payload))
			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, "policy", ve.Rule)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestDefaultRules_KindBuffers(t *testing.T) {
	// GIVEN: The onboarding defaults
	// WHEN: Reading the buffers per kind
	// THEN: Prep rooms 30m, vehicles 60m, appointments none

	assert.Equal(t, 30, factory.DefaultRules(generic.PolicyPrepRoom).BufferMinutes)
	assert.Equal(t, 60, factory.DefaultRules(generic.PolicyVehicle).BufferMinutes)
	assert.Equal(t, 0, factory.DefaultRules(generic.PolicyAppointment).BufferMinutes)
}

func TestDefaultRules_AllKindsValid(t *testing.T) {
	// GIVEN: Every policy kind
	// WHEN: Running the defaults through the same validation as admin payloads
	// THEN: No kind ships self-contradictory defaults

	for _, kind := range generic.PolicyKinds {
		assert.NoError(t, factory.Validate(factory.DefaultRules(kind)), "kind %s", kind)
	}
}

func TestDefaultRules_PTOMandatesBackfill(t *testing.T) {
	r := factory.DefaultRules(generic.PolicyPTO)
	assert.True(t, r.RequireBackfill)
	assert.Equal(t, 14*24, r.MinAdvanceNoticeHours)
	assert.Equal(t, 90, r.RecentLoadDays)
}

func TestOnboard_SeedsEveryKindOnce(t *testing.T) {
	// GIVEN: A fresh tenant
	// WHEN: Onboarding twice
	// THEN: Every policy kind exists at version 1; re-onboarding adds nothing

	mem := store.NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, factory.Onboard(ctx, mem, "chapel-hill", "admin", now))

	for _, kind := range generic.PolicyKinds {
		pv, err := mem.FindCurrent(ctx, generic.BusinessKey{Tenant: "chapel-hill", Kind: kind})
		require.NoError(t, err, "kind %s", kind)
		assert.Equal(t, 1, pv.Version)
		assert.True(t, pv.IsCurrent)
	}

	require.NoError(t, factory.Onboard(ctx, mem, "chapel-hill", "admin", now.Add(time.Hour)))
	for _, kind := range generic.PolicyKinds {
		versions, err := mem.Versions(ctx, generic.BusinessKey{Tenant: "chapel-hill", Kind: kind})
		require.NoError(t, err)
		assert.Len(t, versions, 1, "re-onboarding must not mint new versions for %s", kind)
	}
}

func TestOnboard_PreservesAdminOverrides(t *testing.T) {
	// GIVEN: A tenant whose prep-room policy an admin already customized
	// WHEN: Onboard runs again (e.g. to pick up newly added kinds)
	// THEN: The customized policy is untouched

	mem := store.NewMemory()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	custom := factory.DefaultRules(generic.PolicyPrepRoom)
	custom.BufferMinutes = 45
	key := generic.BusinessKey{Tenant: "chapel-hill", Kind: generic.PolicyPrepRoom}
	_, err := mem.CloseAndInsert(ctx, key, custom, "admin", now)
	require.NoError(t, err)

	require.NoError(t, factory.Onboard(ctx, mem, "chapel-hill", "admin", now.Add(time.Hour)))

	pv, err := mem.FindCurrent(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 45, pv.Rules.BufferMinutes)
	assert.Equal(t, 1, pv.Version)
}
