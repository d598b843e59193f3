/*
service.go - Workforce operations

PURPOSE:
  Staff scheduling entry points: PTO requests with the backfill guard,
  backfill suggestion/confirmation using the candidate ranker, training
  sessions, and on-call rotations with policy pay multipliers. Every
  create goes through the validation façade; every employee's calendar is
  serialized by the store like any other resource.

BACKFILL FLOW:
  1. Employee submits PTO (draft -> pending).
  2. SuggestBackfill ranks eligible staff for the absence window:
     free candidates first, lightly loaded first, conflicted ones last
     but never hidden (an emergency may justify an override).
  3. A manager creates a backfill assignment for the chosen candidate
     (suggested -> pending_confirmation), the candidate confirms.
  4. Confirmation stamps the PTO request; only then can the role's
     policy-mandated approval guard pass.

SEE ALSO:
  - machines.go: The four lifecycle tables
  - generic/ranker.go: Scoring
*/
package workforce

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/evermore/scheduling-engine/generic"
)

// Service exposes workforce operations over the engine ports.
type Service struct {
	Windows  generic.WindowStore
	Policies generic.PolicyStore
	Staff    generic.StaffDirectory
	Audit    generic.AuditLog
	Notifier generic.Notifier

	Now func() time.Time

	validator *generic.Validator
	pto       *generic.Machine
	backfill  *generic.Machine
	training  *generic.Machine
	onCall    *generic.Machine
}

// NewService wires a workforce service over the given ports.
func NewService(windows generic.WindowStore, policies generic.PolicyStore, staff generic.StaffDirectory, audit generic.AuditLog, notifier generic.Notifier) *Service {
	if notifier == nil {
		notifier = generic.NopNotifier{}
	}
	return &Service{
		Windows:   windows,
		Policies:  policies,
		Staff:     staff,
		Audit:     audit,
		Notifier:  notifier,
		validator: &generic.Validator{Policies: policies, Windows: windows},
		pto:       PTOMachine(),
		backfill:  BackfillMachine(),
		training:  TrainingMachine(),
		onCall:    OnCallMachine(),
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// =============================================================================
// PTO REQUESTS
// =============================================================================

// RequestPTO creates a draft PTO request on the employee's calendar.
// Advance-notice and blackout rules apply at creation, so an employee
// learns about a doomed request before routing it for approval.
func (s *Service) RequestPTO(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, start, end time.Time, reason string, actor generic.Actor) (generic.Window, error) {
	w := generic.Window{
		ID:         generic.WindowID(uuid.NewString()),
		TenantID:   tenant,
		Kind:       KindPTO,
		ResourceID: generic.ResourceID(employee),
		SubjectID:  "absence",
		Start:      start,
		End:        end,
		CreatedBy:  actor,
	}
	w.SetMeta(MetaReason, reason)
	return s.create(ctx, s.pto, w)
}

// SubmitPTO routes a draft request for approval.
func (s *Service) SubmitPTO(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.pto, KindPTO, tenant, id, StatusPending, actor)
}

// ApprovePTO approves a pending request. When the role's policy mandates
// backfill, the guard rejects approval until coverage is confirmed.
func (s *Service) ApprovePTO(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.pto, KindPTO, tenant, id, StatusApproved, actor)
}

func (s *Service) RejectPTO(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.pto, KindPTO, tenant, id, StatusRejected, actor)
}

// MarkPTOTaken records that the absence actually happened.
func (s *Service) MarkPTOTaken(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.pto, KindPTO, tenant, id, StatusTaken, actor)
}

func (s *Service) CancelPTO(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.pto, KindPTO, tenant, id, StatusCancelled, actor)
}

// =============================================================================
// BACKFILL
// =============================================================================

// SuggestBackfill ranks staff with the given role for covering the PTO
// window. Candidates are derived, never persisted; call again for a
// fresh ranking.
func (s *Service) SuggestBackfill(ctx context.Context, tenant generic.TenantID, ptoID generic.WindowID, role string) ([]generic.Candidate, error) {
	pto, err := s.Windows.Get(ctx, tenant, ptoID)
	if err != nil {
		return nil, err
	}
	pv, err := s.Policies.FindCurrent(ctx, generic.BusinessKey{Tenant: tenant, Kind: generic.PolicyServiceCoverage})
	if err != nil {
		return nil, err
	}
	rules := pv.Rules

	staff, err := s.Staff.ListByRole(ctx, tenant, role)
	if err != nil {
		return nil, err
	}

	loadDays := rules.RecentLoadDays
	if loadDays <= 0 {
		loadDays = 90
	}
	lo := pto.Start.AddDate(0, 0, -loadDays)
	hi := pto.End.AddDate(0, 0, 1)

	byEmployee := make(map[generic.EmployeeID][]generic.Window, len(staff))
	for _, member := range staff {
		ws, err := s.Windows.FindCurrentByResource(ctx, tenant, generic.ResourceID(member.ID), lo, hi,
			[]generic.Status{StatusConfirmed, StatusPendingConf, StatusPending, StatusApproved, StatusScheduled, StatusActive})
		if err != nil {
			return nil, err
		}
		byEmployee[member.ID] = ws
	}

	return generic.RankCandidates(staff, byEmployee, pto.Start, pto.End, rules, StatusConfirmed), nil
}

// CreateBackfill opens a backfill assignment for the chosen candidate,
// covering the PTO window. Validated against the covering employee's
// calendar under service-coverage policy.
func (s *Service) CreateBackfill(ctx context.Context, tenant generic.TenantID, covering generic.EmployeeID, ptoID generic.WindowID, actor generic.Actor) (generic.Window, error) {
	pto, err := s.Windows.Get(ctx, tenant, ptoID)
	if err != nil {
		return generic.Window{}, err
	}
	w := generic.Window{
		ID:         generic.WindowID(uuid.NewString()),
		TenantID:   tenant,
		Kind:       KindBackfill,
		ResourceID: generic.ResourceID(covering),
		SubjectID:  string(ptoID),
		Start:      pto.Start,
		End:        pto.End,
		CreatedBy:  actor,
	}
	w.SetMeta(generic.MetaBackfillFor, string(ptoID))
	return s.create(ctx, s.backfill, w)
}

// ProposeBackfill routes a suggestion to the candidate for confirmation.
func (s *Service) ProposeBackfill(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.backfill, KindBackfill, tenant, id, StatusPendingConf, actor)
}

// ConfirmBackfill confirms the assignment and stamps the covered PTO
// request so its approval guard can pass.
func (s *Service) ConfirmBackfill(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	bf, err := s.transition(ctx, s.backfill, KindBackfill, tenant, id, StatusConfirmed, actor)
	if err != nil {
		return generic.Window{}, err
	}

	if ptoID := generic.WindowID(bf.Meta(generic.MetaBackfillFor)); ptoID != "" {
		pto, err := s.Windows.Get(ctx, tenant, ptoID)
		if err != nil {
			// The backfill is confirmed, but the covered PTO never got
			// its stamp; without the error the request would be stuck
			// unapprovable with no visible cause.
			return generic.Window{}, fmt.Errorf("backfill %s confirmed but covered PTO %s could not be stamped: %w", bf.ID, ptoID, err)
		}
		pto.SetMeta(generic.MetaBackfillConfirmed, "true")
		pto.UpdatedBy = actor
		pto.UpdatedAt = s.now()
		if _, err := s.Windows.Update(ctx, pto, nil); err != nil {
			return generic.Window{}, err
		}
	}
	return bf, nil
}

func (s *Service) RejectBackfill(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.backfill, KindBackfill, tenant, id, StatusRejected, actor)
}

func (s *Service) CompleteBackfill(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.backfill, KindBackfill, tenant, id, StatusCompleted, actor)
}

func (s *Service) CancelBackfill(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.backfill, KindBackfill, tenant, id, StatusCancelled, actor)
}

// =============================================================================
// TRAINING
// =============================================================================

// ScheduleTraining books a training session on an employee's calendar.
func (s *Service) ScheduleTraining(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, topic string, start, end time.Time, actor generic.Actor) (generic.Window, error) {
	w := generic.Window{
		ID:         generic.WindowID(uuid.NewString()),
		TenantID:   tenant,
		Kind:       KindTraining,
		ResourceID: generic.ResourceID(employee),
		SubjectID:  topic,
		Start:      start,
		End:        end,
		CreatedBy:  actor,
	}
	return s.create(ctx, s.training, w)
}

func (s *Service) StartTraining(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.training, KindTraining, tenant, id, StatusInProgress, actor)
}

func (s *Service) CompleteTraining(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.training, KindTraining, tenant, id, StatusCompleted, actor)
}

func (s *Service) CancelTraining(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.training, KindTraining, tenant, id, StatusCancelled, actor)
}

// =============================================================================
// ON-CALL ROTATIONS
// =============================================================================

// ScheduleRotation books an on-call rotation. The policy pay multiplier
// in force at creation is recorded on the window so later policy changes
// don't retroactively reprice scheduled rotations.
func (s *Service) ScheduleRotation(ctx context.Context, tenant generic.TenantID, employee generic.EmployeeID, start, end time.Time, actor generic.Actor) (generic.Window, error) {
	pv, err := s.Policies.FindCurrent(ctx, generic.BusinessKey{Tenant: tenant, Kind: generic.PolicyOnCall})
	if err != nil {
		return generic.Window{}, err
	}

	w := generic.Window{
		ID:         generic.WindowID(uuid.NewString()),
		TenantID:   tenant,
		Kind:       KindOnCall,
		ResourceID: generic.ResourceID(employee),
		SubjectID:  "on_call",
		Start:      start,
		End:        end,
		CreatedBy:  actor,
	}
	w.SetMeta(generic.MetaPayMultiplier, pv.Rules.PayMultiplier.String())
	return s.create(ctx, s.onCall, w)
}

func (s *Service) ActivateRotation(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.onCall, KindOnCall, tenant, id, StatusActive, actor)
}

func (s *Service) CompleteRotation(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.onCall, KindOnCall, tenant, id, StatusCompleted, actor)
}

func (s *Service) CancelRotation(ctx context.Context, tenant generic.TenantID, id generic.WindowID, actor generic.Actor) (generic.Window, error) {
	return s.transition(ctx, s.onCall, KindOnCall, tenant, id, StatusCancelled, actor)
}

// =============================================================================
// SHARED PLUMBING
// =============================================================================

func (s *Service) create(ctx context.Context, m *generic.Machine, w generic.Window) (generic.Window, error) {
	created, err := s.validator.Create(ctx, m, policyKindFor(Resource(w.Kind.KindID())), w, s.now())
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

	var rules *generic.Rules
	if pv, err := s.Policies.FindCurrent(ctx, generic.BusinessKey{Tenant: tenant, Kind: policyKindFor(kind)}); err == nil {
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
