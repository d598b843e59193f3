/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  JSON shapes exchanged with clients. DTOs are decoupled from domain
  types so the wire format can evolve without touching the engine.

CONVENTIONS:
  - Timestamps are RFC 3339 strings
  - Durations cross the wire as integer minutes
  - Money-ish values (mileage allowance, pay multiplier) are decimal
    strings, never floats

SEE ALSO:
  - handlers.go: Serialization to/from these types
*/
package api

import (
	"time"

	"github.com/evermore/scheduling-engine/generic"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateWindowRequest is the shared body for every reservation create.
type CreateWindowRequest struct {
	SubjectID string `json:"subject_id"` // case, family, topic
	Start     string `json:"start"`      // RFC 3339
	End       string `json:"end"`        // RFC 3339

	// Driver assignments only
	DriverID string `json:"driver_id,omitempty"`

	// PTO only
	Reason string `json:"reason,omitempty"`
}

// RescheduleRequest moves a window to a new range.
type RescheduleRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CompleteRunRequest closes a driver assignment with reported miles.
type CompleteRunRequest struct {
	ReportedMiles float64 `json:"reported_miles"`
}

// CreateBackfillRequest picks the covering employee for a PTO window.
type CreateBackfillRequest struct {
	CoveringEmployee string `json:"covering_employee"`
}

// CreateStaffRequest registers an employee.
type CreateStaffRequest struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	HiredAt string `json:"hired_at"` // YYYY-MM-DD
}

// =============================================================================
// RESPONSES
// =============================================================================

// WindowDTO is the wire form of a window version.
type WindowDTO struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenant_id"`
	Kind       string `json:"kind"`
	ResourceID string `json:"resource_id"`
	SubjectID  string `json:"subject_id,omitempty"`

	Start  string `json:"start"`
	End    string `json:"end"`
	Status string `json:"status"`

	Version int `json:"version"`

	CheckInAt             *string `json:"check_in_at,omitempty"`
	CompletedAt           *string `json:"completed_at,omitempty"`
	CancelledAt           *string `json:"cancelled_at,omitempty"`
	ActualDurationMinutes int     `json:"actual_duration_minutes,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedBy string `json:"created_by"`
	CreatedAt string `json:"created_at"`
	UpdatedBy string `json:"updated_by"`
	UpdatedAt string `json:"updated_at"`
}

func toWindowDTO(w generic.Window) WindowDTO {
	kind := ""
	if w.Kind != nil {
		kind = w.Kind.KindID()
	}
	return WindowDTO{
		ID:         string(w.ID),
		TenantID:   string(w.TenantID),
		Kind:       kind,
		ResourceID: string(w.ResourceID),
		SubjectID:  w.SubjectID,
		Start:      w.Start.Format(time.RFC3339),
		End:        w.End.Format(time.RFC3339),
		Status:     string(w.Status),
		Version:    w.Version,

		CheckInAt:             fmtTimePtr(w.CheckInAt),
		CompletedAt:           fmtTimePtr(w.CompletedAt),
		CancelledAt:           fmtTimePtr(w.CancelledAt),
		ActualDurationMinutes: int(w.ActualDuration.Minutes()),

		Metadata: w.Metadata,

		CreatedBy: string(w.CreatedBy),
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
		UpdatedBy: string(w.UpdatedBy),
		UpdatedAt: w.UpdatedAt.Format(time.RFC3339),
	}
}

func toWindowDTOs(ws []generic.Window) []WindowDTO {
	dtos := make([]WindowDTO, len(ws))
	for i, w := range ws {
		dtos[i] = toWindowDTO(w)
	}
	return dtos
}

// SlotDTO is a free slot returned by availability search.
type SlotDTO struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// CandidateDTO is a ranked backfill suggestion.
type CandidateDTO struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Role       string `json:"role"`
	Conflict   bool   `json:"conflict"`
	RecentLoad int    `json:"recent_load"`
	Score      int    `json:"score"`
}

// PolicyDTO is a single policy version.
type PolicyDTO struct {
	ID        string        `json:"id"`
	TenantID  string        `json:"tenant_id"`
	Kind      string        `json:"kind"`
	Version   int           `json:"version"`
	ValidFrom string        `json:"valid_from"`
	ValidTo   *string       `json:"valid_to,omitempty"`
	IsCurrent bool          `json:"is_current"`
	Rules     generic.Rules `json:"rules"`
	CreatedBy string        `json:"created_by"`
	CreatedAt string        `json:"created_at"`
}

func toPolicyDTO(pv generic.PolicyVersion) PolicyDTO {
	return PolicyDTO{
		ID:        pv.ID,
		TenantID:  string(pv.Key.Tenant),
		Kind:      string(pv.Key.Kind),
		Version:   pv.Version,
		ValidFrom: pv.ValidFrom.Format(time.RFC3339),
		ValidTo:   fmtTimePtr(pv.ValidTo),
		IsCurrent: pv.IsCurrent,
		Rules:     pv.Rules,
		CreatedBy: string(pv.CreatedBy),
		CreatedAt: pv.CreatedAt.Format(time.RFC3339),
	}
}

// StaffDTO is the wire form of an employee record.
type StaffDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Role    string `json:"role"`
	HiredAt string `json:"hired_at"`
}

// AuditEntryDTO is a single audit row.
type AuditEntryDTO struct {
	ID       string            `json:"id"`
	TenantID string            `json:"tenant_id"`
	ActorID  string            `json:"actor_id"`
	Action   string            `json:"action"`
	WindowID string            `json:"window_id,omitempty"`
	Kind     string            `json:"kind,omitempty"`
	At       string            `json:"at"`
	Details  map[string]string `json:"details,omitempty"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func fmtTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(time.RFC3339)
	return &s
}
