/*
handlers.go - HTTP API handlers for the scheduling engine

PURPOSE:
  Exposes the scheduling engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain
  services. All routes are tenant-scoped.

ENDPOINTS:
  Tenants:
    POST   /api/tenants/{tenant}/onboard          Seed default policies

  Policies:
    GET    /api/tenants/{tenant}/policies/{kind}          Current version
    GET    /api/tenants/{tenant}/policies/{kind}/history  All versions
    PUT    /api/tenants/{tenant}/policies/{kind}          Publish new version

  Staff:
    POST   /api/tenants/{tenant}/staff            Register employee
    GET    /api/tenants/{tenant}/staff/{id}       Get employee

  Prep rooms:
    POST   /api/tenants/{tenant}/prep-rooms/{room}/reservations
    GET    /api/tenants/{tenant}/prep-rooms/{room}/next-slot
    POST   /api/tenants/{tenant}/reservations/{id}/confirm|check-in|complete|cancel

  Appointments:
    POST   /api/tenants/{tenant}/counselors/{id}/appointments
    GET    /api/tenants/{tenant}/counselors/{id}/next-slot
    POST   /api/tenants/{tenant}/appointments/{id}/confirm|complete|cancel|no-show
    PUT    /api/tenants/{tenant}/appointments/{id}/schedule    Reschedule

  Vehicles:
    POST   /api/tenants/{tenant}/vehicles/{id}/assignments
    GET    /api/tenants/{tenant}/vehicles/{id}/next-slot
    POST   /api/tenants/{tenant}/assignments/{id}/accept|start|complete|cancel

  Workforce:
    POST   /api/tenants/{tenant}/employees/{id}/pto
    POST   /api/tenants/{tenant}/pto/{id}/submit|approve|reject|taken|cancel
    GET    /api/tenants/{tenant}/pto/{id}/backfill-candidates?role=
    POST   /api/tenants/{tenant}/pto/{id}/backfill
    POST   /api/tenants/{tenant}/backfills/{id}/propose|confirm|reject|complete|cancel
    POST   /api/tenants/{tenant}/employees/{id}/training
    POST   /api/tenants/{tenant}/employees/{id}/rotations

  Windows:
    GET    /api/tenants/{tenant}/windows/{id}             Current version
    GET    /api/tenants/{tenant}/windows/{id}/history     Version chain
    GET    /api/tenants/{tenant}/audit?window_id=         Audit trail

ACTOR:
  The X-Actor header names who performs the mutation. The engine records
  the claim; it does not authenticate it.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Window, policy, or employee not found
  - 409: Conflict, capacity, version race, illegal transition
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/evermore/scheduling-engine/booking"
	"github.com/evermore/scheduling-engine/factory"
	"github.com/evermore/scheduling-engine/generic"
	"github.com/evermore/scheduling-engine/workforce"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Booking   *booking.Service
	Workforce *workforce.Service

	Policies generic.PolicyStore
	Staff    generic.StaffDirectory
	Audit    generic.AuditLog
	Notifier generic.Notifier

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time
}

// NewHandler creates a handler over the two domain services and the
// shared ports.
func NewHandler(b *booking.Service, wf *workforce.Service, policies generic.PolicyStore, staff generic.StaffDirectory, audit generic.AuditLog, notifier generic.Notifier) *Handler {
	if notifier == nil {
		notifier = generic.NopNotifier{}
	}
	return &Handler{
		Booking:   b,
		Workforce: wf,
		Policies:  policies,
		Staff:     staff,
		Audit:     audit,
		Notifier:  notifier,
	}
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}

func tenantParam(r *http.Request) generic.TenantID {
	return generic.TenantID(chi.URLParam(r, "tenant"))
}

func windowParam(r *http.Request) generic.WindowID {
	return generic.WindowID(chi.URLParam(r, "id"))
}

// actor reads the claimed actor from the X-Actor header.
func actor(r *http.Request) generic.Actor {
	if a := r.Header.Get("X-Actor"); a != "" {
		return generic.Actor(a)
	}
	return "anonymous"
}

// =============================================================================
// TENANT ONBOARDING
// =============================================================================

// OnboardTenant seeds version 1 of every policy kind for a tenant.
func (h *Handler) OnboardTenant(w http.ResponseWriter, r *http.Request) {
	tenant := tenantParam(r)
	if err := factory.Onboard(r.Context(), h.Policies, tenant, actor(r), h.now()); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"tenant": string(tenant), "status": "onboarded"})
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// GetPolicy returns the current policy version for a kind.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	key := generic.BusinessKey{Tenant: tenantParam(r), Kind: generic.PolicyKind(chi.URLParam(r, "kind"))}
	pv, err := h.Policies.FindCurrent(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPolicyDTO(pv))
}

// GetPolicyHistory returns every version of a policy, oldest first.
func (h *Handler) GetPolicyHistory(w http.ResponseWriter, r *http.Request) {
	key := generic.BusinessKey{Tenant: tenantParam(r), Kind: generic.PolicyKind(chi.URLParam(r, "kind"))}
	versions, err := h.Policies.Versions(r.Context(), key)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]PolicyDTO, len(versions))
	for i, pv := range versions {
		dtos[i] = toPolicyDTO(pv)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PutPolicy publishes a new policy version from a JSON rules payload.
// When the change crosses a numeric threshold, a policy_changed event is
// published for affected-party notification.
func (h *Handler) PutPolicy(w http.ResponseWriter, r *http.Request) {
	key := generic.BusinessKey{Tenant: tenantParam(r), Kind: generic.PolicyKind(chi.URLParam(r, "kind"))}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read body", err)
		return
	}
	rules, err := factory.ParseRules(payload)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	ctx := r.Context()
	var prev *generic.Rules
	if current, err := h.Policies.FindCurrent(ctx, key); err == nil {
		prev = &current.Rules
	}

	pv, err := h.Policies.CloseAndInsert(ctx, key, rules, actor(r), h.now())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if prev != nil && generic.SignificantChange(*prev, rules) {
		_ = h.Notifier.Publish(ctx, generic.Event{
			Kind:     generic.EventPolicyChanged,
			TenantID: key.Tenant,
			Policy:   key.Kind,
			At:       h.now(),
			Details:  map[string]string{"version": strconv.Itoa(pv.Version)},
		})
	}
	if h.Audit != nil {
		_ = h.Audit.Append(ctx, generic.AuditEntry{
			TenantID: key.Tenant,
			ActorID:  actor(r),
			Action:   generic.AuditPolicyChanged,
			Kind:     key.Kind,
			At:       h.now(),
			Details:  map[string]string{"version": strconv.Itoa(pv.Version)},
		})
	}

	writeJSON(w, http.StatusCreated, toPolicyDTO(pv))
}

// =============================================================================
// STAFF HANDLERS
// =============================================================================

// CreateStaff registers an employee.
func (h *Handler) CreateStaff(w http.ResponseWriter, r *http.Request) {
	var req CreateStaffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	hiredAt, err := time.Parse("2006-01-02", req.HiredAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid hired_at format (use YYYY-MM-DD)", err)
		return
	}

	m := generic.StaffMember{
		ID:       generic.EmployeeID(req.ID),
		TenantID: tenantParam(r),
		Name:     req.Name,
		Role:     req.Role,
		HiredAt:  hiredAt,
	}
	if err := h.Staff.PutStaff(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, StaffDTO{
		ID:      string(m.ID),
		Name:    m.Name,
		Role:    m.Role,
		HiredAt: m.HiredAt.Format("2006-01-02"),
	})
}

// GetStaff returns a single employee.
func (h *Handler) GetStaff(w http.ResponseWriter, r *http.Request) {
	m, err := h.Staff.GetStaff(r.Context(), tenantParam(r), generic.EmployeeID(chi.URLParam(r, "id")))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StaffDTO{
		ID:      string(m.ID),
		Name:    m.Name,
		Role:    m.Role,
		HiredAt: m.HiredAt.Format("2006-01-02"),
	})
}

// =============================================================================
// PREP ROOM HANDLERS
// =============================================================================

// CreatePrepRoomReservation books a preparation room for a case.
func (h *Handler) CreatePrepRoomReservation(w http.ResponseWriter, r *http.Request) {
	req, start, end, ok := decodeCreate(w, r)
	if !ok {
		return
	}
	win, err := h.Booking.ReservePrepRoom(r.Context(), tenantParam(r),
		generic.ResourceID(chi.URLParam(r, "room")), req.SubjectID, start, end, actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowDTO(win))
}

// TransitionReservation routes the lifecycle verbs of a prep-room
// reservation.
func (h *Handler) TransitionReservation(w http.ResponseWriter, r *http.Request) {
	tenant, id := tenantParam(r), windowParam(r)
	ctx := r.Context()

	var (
		win generic.Window
		err error
	)
	switch chi.URLParam(r, "verb") {
	case "confirm":
		win, err = h.Booking.ConfirmPrepRoom(ctx, tenant, id, actor(r))
	case "check-in":
		win, err = h.Booking.CheckInPrepRoom(ctx, tenant, id, actor(r))
	case "complete":
		win, err = h.Booking.CompletePrepRoom(ctx, tenant, id, actor(r))
	case "cancel":
		win, err = h.Booking.CancelPrepRoom(ctx, tenant, id, actor(r))
	default:
		writeError(w, http.StatusNotFound, "Unknown action", nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTO(win))
}

// NextPrepRoomSlot returns the next free slot on a room.
func (h *Handler) NextPrepRoomSlot(w http.ResponseWriter, r *http.Request) {
	h.nextSlot(w, r, generic.ResourceID(chi.URLParam(r, "room")), h.Booking.NextPrepRoomSlot)
}

// =============================================================================
// APPOINTMENT HANDLERS
// =============================================================================

// CreateAppointment books a pre-planning appointment with a counselor.
func (h *Handler) CreateAppointment(w http.ResponseWriter, r *http.Request) {
	req, start, end, ok := decodeCreate(w, r)
	if !ok {
		return
	}
	win, err := h.Booking.ScheduleAppointment(r.Context(), tenantParam(r),
		generic.ResourceID(chi.URLParam(r, "id")), req.SubjectID, start, end, actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowDTO(win))
}

// TransitionAppointment routes the lifecycle verbs of an appointment.
func (h *Handler) TransitionAppointment(w http.ResponseWriter, r *http.Request) {
	tenant, id := tenantParam(r), windowParam(r)
	ctx := r.Context()

	var (
		win generic.Window
		err error
	)
	switch chi.URLParam(r, "verb") {
	case "confirm":
		win, err = h.Booking.ConfirmAppointment(ctx, tenant, id, actor(r))
	case "complete":
		win, err = h.Booking.CompleteAppointment(ctx, tenant, id, actor(r))
	case "cancel":
		win, err = h.Booking.CancelAppointment(ctx, tenant, id, actor(r))
	case "no-show":
		win, err = h.Booking.MarkNoShow(ctx, tenant, id, actor(r))
	default:
		writeError(w, http.StatusNotFound, "Unknown action", nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTO(win))
}

// RescheduleAppointment moves an appointment to a new range.
func (h *Handler) RescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	var req RescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid time range", err)
		return
	}

	win, err := h.Booking.RescheduleAppointment(r.Context(), tenantParam(r), windowParam(r), start, end, actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTO(win))
}

// NextAppointmentSlot returns the next free slot on a counselor's calendar.
func (h *Handler) NextAppointmentSlot(w http.ResponseWriter, r *http.Request) {
	h.nextSlot(w, r, generic.ResourceID(chi.URLParam(r, "id")), h.Booking.NextAppointmentSlot)
}

// =============================================================================
// VEHICLE HANDLERS
// =============================================================================

// CreateAssignment books a vehicle and driver for a removal run.
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	req, start, end, ok := decodeCreate(w, r)
	if !ok {
		return
	}
	win, err := h.Booking.AssignDriver(r.Context(), tenantParam(r),
		generic.ResourceID(chi.URLParam(r, "id")), generic.EmployeeID(req.DriverID),
		req.SubjectID, start, end, actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowDTO(win))
}

// TransitionAssignment routes the lifecycle verbs of a driver assignment.
// "complete" expects a CompleteRunRequest body with reported miles.
func (h *Handler) TransitionAssignment(w http.ResponseWriter, r *http.Request) {
	tenant, id := tenantParam(r), windowParam(r)
	ctx := r.Context()

	var (
		win generic.Window
		err error
	)
	switch chi.URLParam(r, "verb") {
	case "accept":
		win, err = h.Booking.AcceptAssignment(ctx, tenant, id, actor(r))
	case "start":
		win, err = h.Booking.StartRun(ctx, tenant, id, actor(r))
	case "complete":
		var req CompleteRunRequest
		if decodeErr := json.NewDecoder(r.Body).Decode(&req); decodeErr != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", decodeErr)
			return
		}
		win, err = h.Booking.CompleteRun(ctx, tenant, id, req.ReportedMiles, actor(r))
	case "cancel":
		win, err = h.Booking.CancelAssignment(ctx, tenant, id, actor(r))
	default:
		writeError(w, http.StatusNotFound, "Unknown action", nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTO(win))
}

// NextVehicleSlot returns the next free slot for a vehicle.
func (h *Handler) NextVehicleSlot(w http.ResponseWriter, r *http.Request) {
	h.nextSlot(w, r, generic.ResourceID(chi.URLParam(r, "id")), h.Booking.NextVehicleSlot)
}

// =============================================================================
// PTO HANDLERS
// =============================================================================

// CreatePTO opens a draft PTO request on an employee's calendar.
func (h *Handler) CreatePTO(w http.ResponseWriter, r *http.Request) {
	req, start, end, ok := decodeCreate(w, r)
	if !ok {
		return
	}
	win, err := h.Workforce.RequestPTO(r.Context(), tenantParam(r),
		generic.EmployeeID(chi.URLParam(r, "id")), start, end, req.Reason, actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowDTO(win))
}

// TransitionPTO routes the lifecycle verbs of a PTO request.
func (h *Handler) TransitionPTO(w http.ResponseWriter, r *http.Request) {
	tenant, id := tenantParam(r), windowParam(r)
	ctx := r.Context()

	var (
		win generic.Window
		err error
	)
	switch chi.URLParam(r, "verb") {
	case "submit":
		win, err = h.Workforce.SubmitPTO(ctx, tenant, id, actor(r))
	case "approve":
		win, err = h.Workforce.ApprovePTO(ctx, tenant, id, actor(r))
	case "reject":
		win, err = h.Workforce.RejectPTO(ctx, tenant, id, actor(r))
	case "taken":
		win, err = h.Workforce.MarkPTOTaken(ctx, tenant, id, actor(r))
	case "cancel":
		win, err = h.Workforce.CancelPTO(ctx, tenant, id, actor(r))
	default:
		writeError(w, http.StatusNotFound, "Unknown action", nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTO(win))
}

// BackfillCandidates ranks staff for covering a PTO window.
func (h *Handler) BackfillCandidates(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		writeError(w, http.StatusBadRequest, "Missing role query parameter", nil)
		return
	}
	candidates, err := h.Workforce.SuggestBackfill(r.Context(), tenantParam(r), windowParam(r), role)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	dtos := make([]CandidateDTO, len(candidates))
	for i, c := range candidates {
		dtos[i] = CandidateDTO{
			EmployeeID: string(c.EmployeeID),
			Name:       c.Name,
			Role:       c.Role,
			Conflict:   c.Conflict,
			RecentLoad: c.RecentLoad,
			Score:      c.Score,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateBackfill opens a backfill assignment covering a PTO window.
func (h *Handler) CreateBackfill(w http.ResponseWriter, r *http.Request) {
	var req CreateBackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	win, err := h.Workforce.CreateBackfill(r.Context(), tenantParam(r),
		generic.EmployeeID(req.CoveringEmployee), windowParam(r), actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowDTO(win))
}

// TransitionBackfill routes the lifecycle verbs of a backfill assignment.
func (h *Handler) TransitionBackfill(w http.ResponseWriter, r *http.Request) {
	tenant, id := tenantParam(r), windowParam(r)
	ctx := r.Context()

	var (
		win generic.Window
		err error
	)
	switch chi.URLParam(r, "verb") {
	case "propose":
		win, err = h.Workforce.ProposeBackfill(ctx, tenant, id, actor(r))
	case "confirm":
		win, err = h.Workforce.ConfirmBackfill(ctx, tenant, id, actor(r))
	case "reject":
		win, err = h.Workforce.RejectBackfill(ctx, tenant, id, actor(r))
	case "complete":
		win, err = h.Workforce.CompleteBackfill(ctx, tenant, id, actor(r))
	case "cancel":
		win, err = h.Workforce.CancelBackfill(ctx, tenant, id, actor(r))
	default:
		writeError(w, http.StatusNotFound, "Unknown action", nil)
		return
	}
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTO(win))
}

// =============================================================================
// TRAINING AND ON-CALL HANDLERS
// =============================================================================

// CreateTraining books a training session on an employee's calendar.
func (h *Handler) CreateTraining(w http.ResponseWriter, r *http.Request) {
	req, start, end, ok := decodeCreate(w, r)
	if !ok {
		return
	}
	win, err := h.Workforce.ScheduleTraining(r.Context(), tenantParam(r),
		generic.EmployeeID(chi.URLParam(r, "id")), req.SubjectID, start, end, actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowDTO(win))
}

// CreateRotation books an on-call rotation.
func (h *Handler) CreateRotation(w http.ResponseWriter, r *http.Request) {
	_, start, end, ok := decodeCreate(w, r)
	if !ok {
		return
	}
	win, err := h.Workforce.ScheduleRotation(r.Context(), tenantParam(r),
		generic.EmployeeID(chi.URLParam(r, "id")), start, end, actor(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWindowDTO(win))
}

// =============================================================================
// WINDOW AND AUDIT HANDLERS
// =============================================================================

// GetWindow returns the current version of a window.
func (h *Handler) GetWindow(w http.ResponseWriter, r *http.Request) {
	win, err := h.Booking.Windows.Get(r.Context(), tenantParam(r), windowParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTO(win))
}

// GetWindowHistory returns every version of a window, oldest first.
func (h *Handler) GetWindowHistory(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Booking.Windows.History(r.Context(), tenantParam(r), windowParam(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if len(ws) == 0 {
		writeError(w, http.StatusNotFound, "Window not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toWindowDTOs(ws))
}

// QueryAudit returns audit entries, optionally filtered by window.
func (h *Handler) QueryAudit(w http.ResponseWriter, r *http.Request) {
	tenant := tenantParam(r)
	filter := generic.AuditFilter{TenantID: &tenant}
	if wid := r.URL.Query().Get("window_id"); wid != "" {
		id := generic.WindowID(wid)
		filter.WindowID = &id
	}

	entries, err := h.Audit.Query(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to query audit log", err)
		return
	}
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:       e.ID,
			TenantID: string(e.TenantID),
			ActorID:  string(e.ActorID),
			Action:   string(e.Action),
			WindowID: string(e.WindowID),
			Kind:     string(e.Kind),
			At:       e.At.Format(time.RFC3339),
			Details:  e.Details,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

func decodeCreate(w http.ResponseWriter, r *http.Request) (CreateWindowRequest, time.Time, time.Time, bool) {
	var req CreateWindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return req, time.Time{}, time.Time{}, false
	}
	start, end, err := parseRange(req.Start, req.End)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid time range (use RFC 3339)", err)
		return req, time.Time{}, time.Time{}, false
	}
	return req, start, end, true
}

func parseRange(startStr, endStr string) (time.Time, time.Time, error) {
	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

type slotFinder func(ctx context.Context, tenant generic.TenantID, resource generic.ResourceID, from time.Time, duration time.Duration) (generic.Slot, bool, error)

func (h *Handler) nextSlot(w http.ResponseWriter, r *http.Request, resource generic.ResourceID, find slotFinder) {
	from := h.now()
	if fromStr := r.URL.Query().Get("from"); fromStr != "" {
		parsed, err := time.Parse(time.RFC3339, fromStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from (use RFC 3339)", err)
			return
		}
		from = parsed
	}

	minutes, err := strconv.Atoi(r.URL.Query().Get("duration_minutes"))
	if err != nil || minutes <= 0 {
		writeError(w, http.StatusBadRequest, "Missing or invalid duration_minutes", err)
		return
	}

	slot, ok, err := find(r.Context(), tenantParam(r), resource, from, time.Duration(minutes)*time.Minute)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "No slot available within the search horizon", nil)
		return
	}
	writeJSON(w, http.StatusOK, SlotDTO{
		Start: slot.Start.Format(time.RFC3339),
		End:   slot.End.Format(time.RFC3339),
	})
}

// writeDomainError maps engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case generic.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, generic.ErrConflict),
		errors.Is(err, generic.ErrCapacityExceeded),
		errors.Is(err, generic.ErrInvalidTransition),
		errors.Is(err, generic.ErrVersionConflict):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, generic.ErrValidation):
		writeError(w, http.StatusBadRequest, "Validation failed", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
