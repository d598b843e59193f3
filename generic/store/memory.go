// Package store provides in-memory implementations of the engine ports,
// used by tests and local development.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evermore/scheduling-engine/generic"
)

// =============================================================================
// MEMORY STORE - implements WindowStore, PolicyStore, StaffDirectory, AuditLog
// =============================================================================

// Memory holds every version chain in process. A single mutex serializes
// all writes, which trivially satisfies the per-resource serialization
// contract (prechecks and inserts are atomic). The SQLite store relaxes
// this to transaction-level serialization.
type Memory struct {
	mu       sync.RWMutex
	windows  map[winKey][]generic.Window // version chains, oldest first
	policies map[generic.BusinessKey][]generic.PolicyVersion
	staff    map[staffKey]generic.StaffMember
	audit    []generic.AuditEntry
}

var (
	_ generic.WindowStore    = (*Memory)(nil)
	_ generic.PolicyStore    = (*Memory)(nil)
	_ generic.StaffDirectory = (*Memory)(nil)
	_ generic.AuditLog       = (*Memory)(nil)
	_ generic.Notifier       = (*CollectNotifier)(nil)
)

type winKey struct {
	Tenant generic.TenantID
	ID     generic.WindowID
}

type staffKey struct {
	Tenant generic.TenantID
	ID     generic.EmployeeID
}

func NewMemory() *Memory {
	return &Memory{
		windows:  make(map[winKey][]generic.Window),
		policies: make(map[generic.BusinessKey][]generic.PolicyVersion),
		staff:    make(map[staffKey]generic.StaffMember),
	}
}

// -----------------------------------------------------------------------------
// WindowStore
// -----------------------------------------------------------------------------

func (m *Memory) Insert(_ context.Context, w generic.Window, precheck generic.Precheck) (generic.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if w.ID == "" {
		w.ID = generic.WindowID(uuid.NewString())
	}
	k := winKey{Tenant: w.TenantID, ID: w.ID}
	if len(m.windows[k]) > 0 {
		return generic.Window{}, generic.ErrVersionConflict
	}

	if precheck != nil {
		if err := precheck(m.currentForResourceLocked(w.TenantID, w.ResourceID, "")); err != nil {
			return generic.Window{}, err
		}
	}

	w.Version = 1
	m.windows[k] = []generic.Window{w}
	return w, nil
}

func (m *Memory) Update(_ context.Context, w generic.Window, precheck generic.Precheck) (generic.Window, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := winKey{Tenant: w.TenantID, ID: w.ID}
	chain := m.windows[k]
	if len(chain) == 0 {
		return generic.Window{}, generic.ErrWindowNotFound
	}
	if chain[len(chain)-1].Version != w.Version {
		return generic.Window{}, generic.ErrVersionConflict
	}

	if precheck != nil {
		if err := precheck(m.currentForResourceLocked(w.TenantID, w.ResourceID, w.ID)); err != nil {
			return generic.Window{}, err
		}
	}

	w.Version++
	m.windows[k] = append(chain, w)
	return w, nil
}

func (m *Memory) Get(_ context.Context, tenant generic.TenantID, id generic.WindowID) (generic.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.windows[winKey{Tenant: tenant, ID: id}]
	if len(chain) == 0 {
		return generic.Window{}, generic.ErrWindowNotFound
	}
	return chain[len(chain)-1], nil
}

func (m *Memory) History(_ context.Context, tenant generic.TenantID, id generic.WindowID) ([]generic.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.windows[winKey{Tenant: tenant, ID: id}]
	if len(chain) == 0 {
		return nil, generic.ErrWindowNotFound
	}
	out := make([]generic.Window, len(chain))
	copy(out, chain)
	return out, nil
}

func (m *Memory) FindCurrentByResource(_ context.Context, tenant generic.TenantID, resource generic.ResourceID, from, to time.Time, statuses []generic.Status) ([]generic.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.Window
	for _, w := range m.currentForResourceLocked(tenant, resource, "") {
		if !w.Start.Before(to) || !w.End.After(from) {
			continue
		}
		if !statusMatch(w.Status, statuses) {
			continue
		}
		out = append(out, w)
	}
	sortWindows(out)
	return out, nil
}

func (m *Memory) FindCurrentByKind(_ context.Context, tenant generic.TenantID, kind string, statuses []generic.Status) ([]generic.Window, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.Window
	for k, chain := range m.windows {
		if k.Tenant != tenant || len(chain) == 0 {
			continue
		}
		w := chain[len(chain)-1]
		if w.Kind == nil || w.Kind.KindID() != kind {
			continue
		}
		if !statusMatch(w.Status, statuses) {
			continue
		}
		out = append(out, w)
	}
	sortWindows(out)
	return out, nil
}

// currentForResourceLocked returns the tail of every chain on the
// resource. Callers hold at least a read lock.
func (m *Memory) currentForResourceLocked(tenant generic.TenantID, resource generic.ResourceID, exclude generic.WindowID) []generic.Window {
	var out []generic.Window
	for k, chain := range m.windows {
		if k.Tenant != tenant || k.ID == exclude || len(chain) == 0 {
			continue
		}
		w := chain[len(chain)-1]
		if w.ResourceID == resource {
			out = append(out, w)
		}
	}
	sortWindows(out)
	return out
}

// -----------------------------------------------------------------------------
// PolicyStore
// -----------------------------------------------------------------------------

func (m *Memory) FindCurrent(_ context.Context, key generic.BusinessKey) (generic.PolicyVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.policies[key]
	if len(chain) == 0 {
		return generic.PolicyVersion{}, &generic.PolicyNotFoundError{Tenant: key.Tenant, Kind: key.Kind}
	}
	return chain[len(chain)-1], nil
}

func (m *Memory) Versions(_ context.Context, key generic.BusinessKey) ([]generic.PolicyVersion, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	chain := m.policies[key]
	if len(chain) == 0 {
		return nil, &generic.PolicyNotFoundError{Tenant: key.Tenant, Kind: key.Kind}
	}
	out := make([]generic.PolicyVersion, len(chain))
	copy(out, chain)
	return out, nil
}

func (m *Memory) CloseAndInsert(_ context.Context, key generic.BusinessKey, rules generic.Rules, actor generic.Actor, at time.Time) (generic.PolicyVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	chain := m.policies[key]
	version := 1
	if n := len(chain); n > 0 {
		closedAt := at
		chain[n-1].ValidTo = &closedAt
		chain[n-1].IsCurrent = false
		version = chain[n-1].Version + 1
	}

	pv := generic.PolicyVersion{
		ID:        uuid.NewString(),
		Key:       key,
		Version:   version,
		ValidFrom: at,
		IsCurrent: true,
		Rules:     rules,
		CreatedBy: actor,
		CreatedAt: at,
	}
	m.policies[key] = append(chain, pv)
	return pv, nil
}

// -----------------------------------------------------------------------------
// StaffDirectory
// -----------------------------------------------------------------------------

func (m *Memory) PutStaff(_ context.Context, s generic.StaffMember) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staff[staffKey{Tenant: s.TenantID, ID: s.ID}] = s
	return nil
}

func (m *Memory) GetStaff(_ context.Context, tenant generic.TenantID, id generic.EmployeeID) (generic.StaffMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.staff[staffKey{Tenant: tenant, ID: id}]
	if !ok {
		return generic.StaffMember{}, generic.ErrStaffNotFound
	}
	return s, nil
}

func (m *Memory) ListByRole(_ context.Context, tenant generic.TenantID, role string) ([]generic.StaffMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.StaffMember
	for k, s := range m.staff {
		if k.Tenant == tenant && s.Role == role {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// -----------------------------------------------------------------------------
// AuditLog
// -----------------------------------------------------------------------------

func (m *Memory) Append(_ context.Context, entry generic.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) Query(_ context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.AuditEntry
	for _, e := range m.audit {
		if filter.TenantID != nil && e.TenantID != *filter.TenantID {
			continue
		}
		if filter.WindowID != nil && e.WindowID != *filter.WindowID {
			continue
		}
		if filter.ActorID != nil && e.ActorID != *filter.ActorID {
			continue
		}
		if len(filter.Actions) > 0 && !actionMatch(e.Action, filter.Actions) {
			continue
		}
		if filter.From != nil && e.At.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.At.After(*filter.To) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// =============================================================================
// COLLECT NOTIFIER - Records events for assertions
// =============================================================================

type CollectNotifier struct {
	mu     sync.Mutex
	events []generic.Event
}

func NewCollectNotifier() *CollectNotifier { return &CollectNotifier{} }

func (c *CollectNotifier) Publish(_ context.Context, e generic.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *CollectNotifier) Events() []generic.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]generic.Event, len(c.events))
	copy(out, c.events)
	return out
}

// =============================================================================
// HELPERS
// =============================================================================

func statusMatch(s generic.Status, filter []generic.Status) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if s == f {
			return true
		}
	}
	return false
}

func actionMatch(a generic.AuditAction, filter []generic.AuditAction) bool {
	for _, f := range filter {
		if a == f {
			return true
		}
	}
	return false
}

func sortWindows(ws []generic.Window) {
	sort.Slice(ws, func(i, j int) bool {
		if !ws[i].Start.Equal(ws[j].Start) {
			return ws[i].Start.Before(ws[j].Start)
		}
		return ws[i].ID < ws[j].ID
	})
}
