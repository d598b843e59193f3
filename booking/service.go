/*
service.go - Booking operations

PURPOSE:
  The request-layer entry points for facility scheduling. Every mutating
  operation goes through the validation façade (policy load, field and
  range checks, blackout, capacity, buffered conflict - in that order),
  then through the kind's state machine, and lands in the window store as
  a new immutable version. Every mutation is audited with the claimed
  actor.

CONCURRENCY:
  The service holds no state beyond its ports. Conflict checking and
  insertion are serialized per resource by the store (see the Precheck
  contract); operations on different rooms/vehicles proceed in parallel.

TIME:
  Now is injectable for tests and defaults to time.Now. Pure algorithms
  (availability, predicates) receive time as an argument and never read
  the clock themselves.

SEE ALSO:
  - machines.go: The three lifecycle tables
  - generic/validate.go: The check sequence
*/
package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evermore/scheduling-engine/generic"
)

// Service exposes booking operations over the engine ports.
type Service struct {
	Windows  generic.WindowStore
	Policies generic.PolicyStore
	Audit    generic.AuditLog
	Notifier generic.Notifier

	// Now is injectable for tests; nil means time.Now.
	Now func() time.Time

	validator   *generic.Validator
	prepRoom    *generic.Machine
	appointment *generic.Machine
	driver      *generic.Machine
}

// NewService wires a booking service over the given ports.
func NewService(windows generic.WindowStore, policies generic.PolicyStore, audit generic.AuditLog, notifier generic.Notifier) *Service {
	if notifier == nil {
		notifier = generic.NopNotifier{}
	}
	return &Service{
		Windows:     windows,
		Policies:    policies,
		Audit:       audit,
		Notifier:    notifier,
		validator:   &generic.Validator{Policies: policies, Windows: windows},
		prepRoom:    PrepRoomMachine(),
		appointment: AppointmentMachine(),
		driver:      DriverMachine(),
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// =============================================================================
// PREP ROOM RESERVATIONS
// =============================================================================

// ReservePrepRoom books a preparation room for a case. The reservation is
// created pending; the embalmer confirms and later checks in.
func (s *Service) ReservePrepRoom(ctx context.Context, tenant generic.TenantID, room generic.ResourceID, caseID string, start, end time.Time, actor generic.Actor) (generic.Window, error) {
	w := generic.Window{
		ID:         generic.WindowID(uuid.NewString()),
		TenantID:   tenant,
		Kind:       KindPrepRoom,
		ResourceID: room,
		SubjectID:  caseID,
		Start:      start,
		End:        end,
		CreatedBy:  actor,
	}
	return s.create(ctx, s.prepRoom, w)
}

// ConfirmPrepRoom moves a pending reservation to confirmed.
func (s *Service) ConfirmPrepRoom(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.prepRoom, KindPrepRoom, tenant, id, StatusConfirmed, actor)
}

// CheckInPrepRoom records the embalmer starting work.
func (s *Service) CheckInPrepRoom(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.prepRoom, KindPrepRoom, tenant, id, StatusInProgress, actor)
}

// CompletePrepRoom finishes the reservation and records actual duration.
func (s *Service) CompletePrepRoom(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.prepRoom, KindPrepRoom, tenant, id, StatusCompleted, actor)
}

// CancelPrepRoom cancels a pending or confirmed reservation.
func (s *Service) CancelPrepRoom(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.prepRoom, KindPrepRoom, tenant, id, StatusCancelled, actor)
}

// AutoReleasePrepRoom releases a reservation that timed out without
// check-in. Called by the poller after HasAutoReleaseTimeout says so.
func (s *Service) AutoReleasePrepRoom(ctx context.Context, tenant generic.TenantID, id generic.WindowID) (generic.Window, error) {
	w, err := s.transition(ctx, s.prepRoom, KindPrepRoom, tenant, id, StatusAutoReleased, generic.ActorSystem)
	if err != nil {
		return generic.Window{}, err
	}
	_ = s.Notifier.Publish(ctx, generic.Event{
		Kind:     generic.EventWindowReleased,
		TenantID: tenant,
		WindowID: id,
		At:       s.now(),
	})
	return w, nil
}

// NextPrepRoomSlot finds the next free slot on a room.
func (s *Service) NextPrepRoomSlot(ctx context.Context, tenant generic.TenantID, room generic.ResourceID, from time.Time, duration time.Duration) (generic.Slot, bool, error) {
	return s.nextSlot(ctx, s.prepRoom, generic.PolicyPrepRoom, tenant, room, from, duration)
}

// =============================================================================
// PRE-PLANNING APPOINTMENTS
// =============================================================================

// ScheduleAppointment books a pre-planning appointment with a counselor.
// The counselor's calendar is the resource.
func (s *Service) ScheduleAppointment(ctx context.Context, tenant generic.TenantID, counselor generic.ResourceID, family string, start, end time.Time, actor generic.Actor) (generic.Window, error) {
	w := generic.Window{
		ID:         generic.WindowID(uuid.NewString()),
		TenantID:   tenant,
		Kind:       KindAppointment,
		ResourceID: counselor,
		SubjectID:  family,
		Start:      start,
		End:        end,
		CreatedBy:  actor,
	}
	return s.create(ctx, s.appointment, w)
}

func (s *Service) ConfirmAppointment(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.appointment, KindAppointment, tenant, id, StatusConfirmed, actor)
}

func (s *Service) CompleteAppointment(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.appointment, KindAppointment, tenant, id, StatusCompleted, actor)
}

// CancelAppointment cancels with the policy lead-time guard applied.
func (s *Service) CancelAppointment(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.appointment, KindAppointment, tenant, id, StatusCancelled, actor)
}

func (s *Service) MarkNoShow(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.appointment, KindAppointment, tenant, id, StatusNoShow, actor)
}

// RescheduleAppointment moves an appointment, re-running the full check
// sequence against the counselor's calendar.
func (s *Service) RescheduleAppointment(ctx context.Context, tenant generic.TenantID, id generic.WindowID, newStart, newEnd time.Time, actor generic.Actor) (generic.Window, error) {
	w, err := s.Windows.Get(ctx, tenant, id)
	if err != nil {
		return generic.Window{}, err
	}
	updated, err := s.validator.Reschedule(ctx, s.appointment, KindAppointment.policyKind(), w, newStart, newEnd, actor, s.now())
	if err != nil {
		return generic.Window{}, err
	}
	s.auditWindow(ctx, updated, actor, generic.AuditWindowResched)
	return updated, nil
}

// NextAppointmentSlot finds the next free slot on a counselor's calendar.
func (s *Service) NextAppointmentSlot(ctx context.Context, tenant generic.TenantID, counselor generic.ResourceID, from time.Time, duration time.Duration) (generic.Slot, bool, error) {
	return s.nextSlot(ctx, s.appointment, generic.PolicyAppointment, tenant, counselor, from, duration)
}

// =============================================================================
// DRIVER / VEHICLE ASSIGNMENTS
// =============================================================================

// AssignDriver books a vehicle for a removal or transfer run. The vehicle
// is the contended resource; the driver rides along in metadata.
func (s *Service) AssignDriver(ctx context.Context, tenant generic.TenantID, vehicle generic.ResourceID, driver generic.EmployeeID, caseID string, start, end time.Time, actor generic.Actor) (generic.Window, error) {
	w := generic.Window{
		ID:         generic.WindowID(uuid.NewString()),
		TenantID:   tenant,
		Kind:       KindDriver,
		ResourceID: vehicle,
		SubjectID:  caseID,
		Start:      start,
		End:        end,
		CreatedBy:  actor,
	}
	w.SetMeta(MetaDriverID, string(driver))
	return s.create(ctx, s.driver, w)
}

func (s *Service) AcceptAssignment(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.driver, KindDriver, tenant, id, StatusAccepted, actor)
}

func (s *Service) StartRun(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.driver, KindDriver, tenant, id, StatusInProgress, actor)
}

// CompleteRun finishes the assignment. The mileage allowance is
// recomputed from the policy rate and the reported miles; whatever the
// caller put in the window's metadata beforehand is overwritten.
func (s *Service) CompleteRun(ctx context.Context, tenant generic.TenantID, id generic.WindowID, reportedMiles float64, actor generic.Actor) (generic.Window, error) {
	w, err := s.Windows.Get(ctx, tenant, id)
	if err != nil {
		return generic.Window{}, err
	}
	w.SetMeta(generic.MetaReportedMiles, fmt.Sprintf("%.1f", reportedMiles))
	return s.applyAndSave(ctx, s.driver, KindDriver, w, StatusCompleted, actor)
}

func (s *Service) CancelAssignment(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.driver, KindDriver, tenant, id, StatusCancelled, actor)
}

// NextVehicleSlot finds the next free slot for a vehicle.
func (s *Service) NextVehicleSlot(ctx context.Context, tenant generic.TenantID, vehicle generic.ResourceID, from time.Time, duration time.Duration) (generic.Slot, bool, error) {
	return s.nextSlot(ctx, s.driver, generic.PolicyVehicle, tenant, vehicle, from, duration)
}

// =============================================================================
// SHARED PLUMBING
// =============================================================================

func (s *Service) create(ctx context.Context, m *generic.Machine, w generic.Window) (generic.Window, error) {
	created, err := s.validator.Create(ctx, m, Resource(w.Kind.KindID()).policyKind(), w, s.now())
	if err != nil {
		return generic.Window{}, err
	}
	s.auditWindow(ctx, created, created.CreatedBy, generic.AuditWindowCreated)
	return created, nil
}

func (s *Service) transition(ctx context.Context, m *generic.Machine, kind Resource, tenant generic.TenantID, id generic.WindowID, to generic.Status, actor generic.Actor) (generic.Window, error) {
	w, err := s.Windows.Get(ctx, tenant, id)
	if err != nil {
		return generic.Window{}, err
	}
	return s.applyAndSave(ctx, m, kind, w, to, actor)
}

func (s *Service) applyAndSave(ctx context.Context, m *generic.Machine, kind Resource, w generic.Window, to generic.Status, actor generic.Actor) (generic.Window, error) {
	var rules *generic.Rules
	if pv, err := s.Policies.FindCurrent(ctx, generic.BusinessKey{Tenant: w.TenantID, Kind: kind.policyKind()}); err == nil {
		rules = &pv.Rules
	}

	if err := m.Apply(&w, to, generic.TransitionContext{Now: s.now(), Actor: actor, Rules: rules}); err != nil {
		return generic.Window{}, err
	}

	updated, err := s.Windows.Update(ctx, w, nil)
	if err != nil {
		return generic.Window{}, err
	}
	s.auditWindow(ctx, updated, actor, generic.AuditWindowTransition)
	return updated, nil
}

func (s *Service) nextSlot(ctx context.Context, m *generic.Machine, kind generic.PolicyKind, tenant generic.TenantID, resource generic.ResourceID, from time.Time, duration time.Duration) (generic.Slot, bool, error) {
	pv, err := s.Policies.FindCurrent(ctx, generic.BusinessKey{Tenant: tenant, Kind: kind})
	if err != nil {
		return generic.Slot{}, false, err
	}
	rules := pv.Rules

	// Widen the fetch range so cross-midnight windows and buffers at the
	// horizon edges are not missed.
	lo := from.AddDate(0, 0, -1)
	hi := from.AddDate(0, 0, rules.Horizon()+1)
	existing, err := s.Windows.FindCurrentByResource(ctx, tenant, resource, lo, hi, m.BlockingStatuses())
	if err != nil {
		return generic.Slot{}, false, err
	}

	slot, ok := generic.NextAvailableSlot(existing, from, duration, rules)
	return slot, ok, nil
}

func (s *Service) auditWindow(ctx context.Context, w generic.Window, actor generic.Actor, action generic.AuditAction) {
	if s.Audit == nil {
		return
	}
	_ = s.Audit.Append(ctx, generic.AuditEntry{
		ID:       uuid.NewString(),
		TenantID: w.TenantID,
		ActorID:  actor,
		Action:   action,
		WindowID: w.ID,
		At:       s.now(),
		Details: map[string]string{
			"kind":   w.Kind.KindID(),
			"status": string(w.Status),
		},
	})
}

func (r Resource) policyKind() generic.PolicyKind { return policyKindFor(r) }
