/*
Package sqlite provides a SQLite-backed implementation of the storage ports.

PURPOSE:
  Implements every persistence interface the engine defines using SQLite.
  In production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

INTERFACES IMPLEMENTED:
  generic.WindowStore:    Append-only versioned window persistence
  generic.PolicyStore:    SCD2 policy rows with close-then-insert
  generic.StaffDirectory: Employee records for the candidate ranker
  generic.AuditLog:       Append-only audit trail

SCD2 ENFORCEMENT:
  Windows and policies are never updated in place. A mutation flips the
  current row's is_current flag (and for policies sets valid_to) and
  inserts the next version in the same transaction. Two partial unique
  indexes make the single-current invariant a database guarantee, not a
  code convention:
  - idx_windows_one_current:  one current row per (tenant_id, window_id)
  - idx_policies_one_current: one current row per (tenant_id, kind)

PER-RESOURCE SERIALIZATION:
  Insert and Update run their precheck inside a BEGIN IMMEDIATE
  transaction, after reading the resource's current windows. SQLite
  allows a single writer, so two concurrent requests for the same prep
  room cannot both pass the conflict check and both persist. A process
  level mutex serializes writers before they reach the database to avoid
  SQLITE_BUSY churn.

WAL MODE:
  The database is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/scheduling.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := booking.NewService(store, store, store, notifier, time.Now)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Port definitions and the precheck contract
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/evermore/scheduling-engine/generic"
)

// Store implements all storage ports using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes writers ahead of SQLite's own lock
}

// Compile-time interface checks.
var (
	_ generic.WindowStore    = (*Store)(nil)
	_ generic.PolicyStore    = (*Store)(nil)
	_ generic.StaffDirectory = (*Store)(nil)
	_ generic.AuditLog       = (*Store)(nil)
)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One writer at a time anyway; a single pooled connection also keeps
	// ":memory:" databases from fragmenting across connections.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Windows (append-only version chains)
	CREATE TABLE IF NOT EXISTS windows (
		row_id TEXT PRIMARY KEY,
		window_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		resource_id TEXT NOT NULL,
		subject_id TEXT,
		start_at TEXT NOT NULL,
		end_at TEXT NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL,
		is_current BOOLEAN NOT NULL DEFAULT TRUE,
		check_in_at TEXT,
		completed_at TEXT,
		cancelled_at TEXT,
		actual_duration_seconds INTEGER DEFAULT 0,
		metadata_json TEXT,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_by TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE(tenant_id, window_id, version)
	);

	-- CRITICAL: exactly one current version per window
	CREATE UNIQUE INDEX IF NOT EXISTS idx_windows_one_current
		ON windows(tenant_id, window_id) WHERE is_current = TRUE;

	-- Conflict detection hot path: current windows of one resource
	CREATE INDEX IF NOT EXISTS idx_windows_resource
		ON windows(tenant_id, resource_id, start_at) WHERE is_current = TRUE;

	-- Poller queries scan by kind and status
	CREATE INDEX IF NOT EXISTS idx_windows_kind_status
		ON windows(tenant_id, kind, status) WHERE is_current = TRUE;

	-- Policies (SCD2)
	CREATE TABLE IF NOT EXISTS policies (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		version INTEGER NOT NULL,
		valid_from TEXT NOT NULL,
		valid_to TEXT,
		is_current BOOLEAN NOT NULL DEFAULT TRUE,
		rules_json TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at TEXT NOT NULL,
		UNIQUE(tenant_id, kind, version)
	);

	-- CRITICAL: exactly one current policy per (tenant, kind)
	CREATE UNIQUE INDEX IF NOT EXISTS idx_policies_one_current
		ON policies(tenant_id, kind) WHERE is_current = TRUE;

	-- Staff
	CREATE TABLE IF NOT EXISTS staff (
		id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		hired_at TEXT NOT NULL,
		PRIMARY KEY (tenant_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_staff_role
		ON staff(tenant_id, role);

	-- Audit log (append-only)
	CREATE TABLE IF NOT EXISTS audit_log (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		window_id TEXT,
		policy_kind TEXT,
		at TEXT NOT NULL,
		details_json TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_audit_tenant_at
		ON audit_log(tenant_id, at);
	CREATE INDEX IF NOT EXISTS idx_audit_window
		ON audit_log(window_id) WHERE window_id IS NOT NULL;
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// WINDOW STORE (generic.WindowStore interface)
// =============================================================================

// Insert persists version 1 of a new window. The precheck runs against the
// resource's current windows inside the same write transaction.
func (s *Store) Insert(ctx context.Context, w generic.Window, precheck generic.Precheck) (generic.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if w.ID == "" {
		w.ID = generic.WindowID(uuid.NewString())
	}
	w.Version = 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.Window{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if precheck != nil {
		existing, err := s.currentByResourceTx(ctx, tx, w.TenantID, w.ResourceID, "")
		if err != nil {
			return generic.Window{}, err
		}
		if err := precheck(existing); err != nil {
			return generic.Window{}, err
		}
	}

	if err := s.insertRow(ctx, tx, w); err != nil {
		return generic.Window{}, err
	}
	if err := tx.Commit(); err != nil {
		return generic.Window{}, fmt.Errorf("failed to commit: %w", err)
	}
	return w, nil
}

// Update closes the current version and inserts the next one. The incoming
// window's Version must match the stored current version.
func (s *Store) Update(ctx context.Context, w generic.Window, precheck generic.Precheck) (generic.Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.Window{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := s.getTx(ctx, tx, w.TenantID, w.ID)
	if err != nil {
		return generic.Window{}, err
	}
	if current.Version != w.Version {
		return generic.Window{}, generic.ErrVersionConflict
	}

	if precheck != nil {
		existing, err := s.currentByResourceTx(ctx, tx, w.TenantID, w.ResourceID, w.ID)
		if err != nil {
			return generic.Window{}, err
		}
		if err := precheck(existing); err != nil {
			return generic.Window{}, err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE windows SET is_current = FALSE
		 WHERE tenant_id = ? AND window_id = ? AND is_current = TRUE`,
		w.TenantID, w.ID,
	); err != nil {
		return generic.Window{}, fmt.Errorf("failed to close version: %w", err)
	}

	w.Version++
	if err := s.insertRow(ctx, tx, w); err != nil {
		return generic.Window{}, err
	}
	if err := tx.Commit(); err != nil {
		return generic.Window{}, fmt.Errorf("failed to commit: %w", err)
	}
	return w, nil
}

// Get returns the current version of a window.
func (s *Store) Get(ctx context.Context, tenant generic.TenantID, id generic.WindowID) (generic.Window, error) {
	return s.getTx(ctx, s.db, tenant, id)
}

// History returns every version of a window, oldest first.
func (s *Store) History(ctx context.Context, tenant generic.TenantID, id generic.WindowID) ([]generic.Window, error) {
	query := windowSelect + `
		WHERE tenant_id = ? AND window_id = ?
		ORDER BY version ASC`
	return s.queryWindows(ctx, s.db, query, tenant, id)
}

// FindCurrentByResource returns current windows on a resource intersecting
// [from, to), filtered to the given statuses, ordered by start then id.
func (s *Store) FindCurrentByResource(ctx context.Context, tenant generic.TenantID, resource generic.ResourceID, from, to time.Time, statuses []generic.Status) ([]generic.Window, error) {
	query := windowSelect + `
		WHERE tenant_id = ? AND resource_id = ? AND is_current = TRUE
		  AND start_at < ? AND end_at > ?`
	args := []any{tenant, resource, to.UTC().Format(time.RFC3339Nano), from.UTC().Format(time.RFC3339Nano)}
	query, args = appendStatusFilter(query, args, statuses)
	query += ` ORDER BY start_at ASC, window_id ASC`
	return s.queryWindows(ctx, s.db, query, args...)
}

// FindCurrentByKind returns current windows of a kind in the given statuses.
func (s *Store) FindCurrentByKind(ctx context.Context, tenant generic.TenantID, kind string, statuses []generic.Status) ([]generic.Window, error) {
	query := windowSelect + `
		WHERE tenant_id = ? AND kind = ? AND is_current = TRUE`
	args := []any{tenant, kind}
	query, args = appendStatusFilter(query, args, statuses)
	query += ` ORDER BY start_at ASC, window_id ASC`
	return s.queryWindows(ctx, s.db, query, args...)
}

const windowSelect = `
	SELECT window_id, tenant_id, kind, resource_id, subject_id,
	       start_at, end_at, status, version,
	       check_in_at, completed_at, cancelled_at, actual_duration_seconds,
	       metadata_json, created_by, created_at, updated_by, updated_at
	FROM windows`

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) getTx(ctx context.Context, q querier, tenant generic.TenantID, id generic.WindowID) (generic.Window, error) {
	query := windowSelect + `
		WHERE tenant_id = ? AND window_id = ? AND is_current = TRUE`
	ws, err := s.queryWindows(ctx, q, query, tenant, id)
	if err != nil {
		return generic.Window{}, err
	}
	if len(ws) == 0 {
		return generic.Window{}, generic.ErrWindowNotFound
	}
	return ws[0], nil
}

// currentByResourceTx returns all current windows on a resource, optionally
// excluding one window id (the one being updated).
func (s *Store) currentByResourceTx(ctx context.Context, q querier, tenant generic.TenantID, resource generic.ResourceID, exclude generic.WindowID) ([]generic.Window, error) {
	query := windowSelect + `
		WHERE tenant_id = ? AND resource_id = ? AND is_current = TRUE`
	args := []any{tenant, resource}
	if exclude != "" {
		query += ` AND window_id != ?`
		args = append(args, exclude)
	}
	query += ` ORDER BY start_at ASC, window_id ASC`
	return s.queryWindows(ctx, q, query, args...)
}

func (s *Store) insertRow(ctx context.Context, tx *sql.Tx, w generic.Window) error {
	metadataJSON, _ := json.Marshal(w.Metadata)

	kindID := ""
	if w.Kind != nil {
		kindID = w.Kind.KindID()
	}

	query := `
		INSERT INTO windows
		(row_id, window_id, tenant_id, kind, resource_id, subject_id,
		 start_at, end_at, status, version, is_current,
		 check_in_at, completed_at, cancelled_at, actual_duration_seconds,
		 metadata_json, created_by, created_at, updated_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, TRUE, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, query,
		uuid.NewString(),
		w.ID, w.TenantID, kindID, w.ResourceID, w.SubjectID,
		w.Start.UTC().Format(time.RFC3339Nano),
		w.End.UTC().Format(time.RFC3339Nano),
		w.Status, w.Version,
		nullTime(w.CheckInAt), nullTime(w.CompletedAt), nullTime(w.CancelledAt),
		int64(w.ActualDuration.Seconds()),
		string(metadataJSON),
		w.CreatedBy, w.CreatedAt.UTC().Format(time.RFC3339Nano),
		w.UpdatedBy, w.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return generic.ErrVersionConflict
		}
		return fmt.Errorf("failed to insert window: %w", err)
	}
	return nil
}

func (s *Store) queryWindows(ctx context.Context, q querier, query string, args ...any) ([]generic.Window, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query windows: %w", err)
	}
	defer rows.Close()

	var windows []generic.Window
	for rows.Next() {
		w, err := scanWindow(rows)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, rows.Err()
}

func scanWindow(rows *sql.Rows) (generic.Window, error) {
	var (
		w               generic.Window
		kindID          string
		subjectID       sql.NullString
		startAt, endAt  string
		checkIn         sql.NullString
		completed       sql.NullString
		cancelled       sql.NullString
		durationSeconds int64
		metadataJSON    sql.NullString
		createdAt       string
		updatedAt       string
	)

	err := rows.Scan(
		&w.ID, &w.TenantID, &kindID, &w.ResourceID, &subjectID,
		&startAt, &endAt, &w.Status, &w.Version,
		&checkIn, &completed, &cancelled, &durationSeconds,
		&metadataJSON, &w.CreatedBy, &createdAt, &w.UpdatedBy, &updatedAt,
	)
	if err != nil {
		return w, fmt.Errorf("failed to scan window: %w", err)
	}

	w.Kind = generic.LookupKind(kindID)
	w.SubjectID = subjectID.String
	w.Start, _ = time.Parse(time.RFC3339Nano, startAt)
	w.End, _ = time.Parse(time.RFC3339Nano, endAt)
	w.CheckInAt = parseTimePtr(checkIn)
	w.CompletedAt = parseTimePtr(completed)
	w.CancelledAt = parseTimePtr(cancelled)
	w.ActualDuration = time.Duration(durationSeconds) * time.Second
	w.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	w.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)

	if metadataJSON.Valid && metadataJSON.String != "" && metadataJSON.String != "null" {
		json.Unmarshal([]byte(metadataJSON.String), &w.Metadata)
	}

	return w, nil
}

func appendStatusFilter(query string, args []any, statuses []generic.Status) (string, []any) {
	if len(statuses) == 0 {
		return query, args
	}
	placeholders := make([]string, len(statuses))
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, st)
	}
	query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	return query, args
}

// =============================================================================
// POLICY STORE (generic.PolicyStore interface)
// =============================================================================

const policySelect = `
	SELECT id, tenant_id, kind, version, valid_from, valid_to, is_current,
	       rules_json, created_by, created_at
	FROM policies`

// FindCurrent returns the one current version for the key.
func (s *Store) FindCurrent(ctx context.Context, key generic.BusinessKey) (generic.PolicyVersion, error) {
	query := policySelect + `
		WHERE tenant_id = ? AND kind = ? AND is_current = TRUE`
	pvs, err := s.queryPolicies(ctx, s.db, query, key.Tenant, key.Kind)
	if err != nil {
		return generic.PolicyVersion{}, err
	}
	if len(pvs) == 0 {
		return generic.PolicyVersion{}, &generic.PolicyNotFoundError{Tenant: key.Tenant, Kind: key.Kind}
	}
	return pvs[0], nil
}

// Versions returns all versions for the key, oldest first.
func (s *Store) Versions(ctx context.Context, key generic.BusinessKey) ([]generic.PolicyVersion, error) {
	query := policySelect + `
		WHERE tenant_id = ? AND kind = ?
		ORDER BY version ASC`
	return s.queryPolicies(ctx, s.db, query, key.Tenant, key.Kind)
}

// CloseAndInsert atomically closes the current version and inserts the next
// one. When the key has no versions yet it inserts version 1.
func (s *Store) CloseAndInsert(ctx context.Context, key generic.BusinessKey, rules generic.Rules, actor generic.Actor, at time.Time) (generic.PolicyVersion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return generic.PolicyVersion{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	version := 1
	var current int
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM policies WHERE tenant_id = ? AND kind = ? AND is_current = TRUE`,
		key.Tenant, key.Kind,
	).Scan(&current)
	switch {
	case err == nil:
		version = current + 1
		if _, err := tx.ExecContext(ctx,
			`UPDATE policies SET is_current = FALSE, valid_to = ?
			 WHERE tenant_id = ? AND kind = ? AND is_current = TRUE`,
			at.UTC().Format(time.RFC3339Nano), key.Tenant, key.Kind,
		); err != nil {
			return generic.PolicyVersion{}, fmt.Errorf("failed to close policy version: %w", err)
		}
	case errors.Is(err, sql.ErrNoRows):
		// onboarding: no prior version
	default:
		return generic.PolicyVersion{}, fmt.Errorf("failed to read current policy: %w", err)
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

	rulesJSON, err := json.Marshal(rules)
	if err != nil {
		return generic.PolicyVersion{}, fmt.Errorf("failed to encode rules: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO policies
		 (id, tenant_id, kind, version, valid_from, valid_to, is_current, rules_json, created_by, created_at)
		 VALUES (?, ?, ?, ?, ?, NULL, TRUE, ?, ?, ?)`,
		pv.ID, key.Tenant, key.Kind, pv.Version,
		at.UTC().Format(time.RFC3339Nano),
		string(rulesJSON), actor, at.UTC().Format(time.RFC3339Nano),
	); err != nil {
		return generic.PolicyVersion{}, fmt.Errorf("failed to insert policy version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return generic.PolicyVersion{}, fmt.Errorf("failed to commit: %w", err)
	}
	return pv, nil
}

func (s *Store) queryPolicies(ctx context.Context, q querier, query string, args ...any) ([]generic.PolicyVersion, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query policies: %w", err)
	}
	defer rows.Close()

	var versions []generic.PolicyVersion
	for rows.Next() {
		var (
			pv        generic.PolicyVersion
			validFrom string
			validTo   sql.NullString
			rulesJSON string
			createdAt string
		)
		if err := rows.Scan(
			&pv.ID, &pv.Key.Tenant, &pv.Key.Kind, &pv.Version,
			&validFrom, &validTo, &pv.IsCurrent, &rulesJSON, &pv.CreatedBy, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan policy: %w", err)
		}
		pv.ValidFrom, _ = time.Parse(time.RFC3339Nano, validFrom)
		pv.ValidTo = parseTimePtr(validTo)
		pv.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		if err := json.Unmarshal([]byte(rulesJSON), &pv.Rules); err != nil {
			return nil, fmt.Errorf("failed to decode rules: %w", err)
		}
		versions = append(versions, pv)
	}
	return versions, rows.Err()
}

// =============================================================================
// STAFF DIRECTORY (generic.StaffDirectory interface)
// =============================================================================

// PutStaff saves or updates an employee record.
func (s *Store) PutStaff(ctx context.Context, m generic.StaffMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO staff (id, tenant_id, name, role, hired_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			hired_at = excluded.hired_at
	`
	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.TenantID, m.Name, m.Role,
		m.HiredAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// GetStaff retrieves an employee by id.
func (s *Store) GetStaff(ctx context.Context, tenant generic.TenantID, id generic.EmployeeID) (generic.StaffMember, error) {
	var m generic.StaffMember
	var hiredAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, tenant_id, name, role, hired_at FROM staff WHERE tenant_id = ? AND id = ?`,
		tenant, id,
	).Scan(&m.ID, &m.TenantID, &m.Name, &m.Role, &hiredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.StaffMember{}, generic.ErrStaffNotFound
	}
	if err != nil {
		return generic.StaffMember{}, err
	}
	m.HiredAt, _ = time.Parse(time.RFC3339Nano, hiredAt)
	return m, nil
}

// ListByRole returns all employees with the given role, ordered by id.
func (s *Store) ListByRole(ctx context.Context, tenant generic.TenantID, role string) ([]generic.StaffMember, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, tenant_id, name, role, hired_at FROM staff
		 WHERE tenant_id = ? AND role = ? ORDER BY id ASC`,
		tenant, role,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []generic.StaffMember
	for rows.Next() {
		var m generic.StaffMember
		var hiredAt string
		if err := rows.Scan(&m.ID, &m.TenantID, &m.Name, &m.Role, &hiredAt); err != nil {
			return nil, err
		}
		m.HiredAt, _ = time.Parse(time.RFC3339Nano, hiredAt)
		members = append(members, m)
	}
	return members, rows.Err()
}

// =============================================================================
// AUDIT LOG (generic.AuditLog interface)
// =============================================================================

// Append adds an audit entry. Append-only: no update or delete path exists.
func (s *Store) Append(ctx context.Context, entry generic.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	detailsJSON, _ := json.Marshal(entry.Details)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit_log (id, tenant_id, actor_id, action, window_id, policy_kind, at, details_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.TenantID, entry.ActorID, entry.Action,
		nullString(string(entry.WindowID)), nullString(string(entry.Kind)),
		entry.At.UTC().Format(time.RFC3339Nano), string(detailsJSON),
	)
	return err
}

// Query returns audit entries matching the filter, oldest first.
func (s *Store) Query(ctx context.Context, filter generic.AuditFilter) ([]generic.AuditEntry, error) {
	query := `
		SELECT id, tenant_id, actor_id, action, window_id, policy_kind, at, details_json
		FROM audit_log WHERE 1 = 1`
	var args []any

	if filter.TenantID != nil {
		query += ` AND tenant_id = ?`
		args = append(args, *filter.TenantID)
	}
	if filter.WindowID != nil {
		query += ` AND window_id = ?`
		args = append(args, *filter.WindowID)
	}
	if filter.ActorID != nil {
		query += ` AND actor_id = ?`
		args = append(args, *filter.ActorID)
	}
	if len(filter.Actions) > 0 {
		placeholders := make([]string, len(filter.Actions))
		for i, a := range filter.Actions {
			placeholders[i] = "?"
			args = append(args, a)
		}
		query += ` AND action IN (` + strings.Join(placeholders, ", ") + `)`
	}
	if filter.From != nil {
		query += ` AND at >= ?`
		args = append(args, filter.From.UTC().Format(time.RFC3339Nano))
	}
	if filter.To != nil {
		query += ` AND at <= ?`
		args = append(args, filter.To.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []generic.AuditEntry
	for rows.Next() {
		var (
			e           generic.AuditEntry
			windowID    sql.NullString
			policyKind  sql.NullString
			at          string
			detailsJSON sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorID, &e.Action, &windowID, &policyKind, &at, &detailsJSON); err != nil {
			return nil, err
		}
		e.WindowID = generic.WindowID(windowID.String)
		e.Kind = generic.PolicyKind(policyKind.String)
		e.At, _ = time.Parse(time.RFC3339Nano, at)
		if detailsJSON.Valid && detailsJSON.String != "" && detailsJSON.String != "null" {
			json.Unmarshal([]byte(detailsJSON.String), &e.Details)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"windows", "policies", "staff", "audit_log"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

func parseTimePtr(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
