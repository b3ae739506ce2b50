/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements every persistence interface (statemachine.StatusStore,
  statemachine.AuditLog, inventory.UnitStore, inventory.RequirementStore,
  inventory.RecordStore) plus the unit-of-work runners and the
  tenant-scoped status-definition store behind customizable kinds. In
  production the same patterns apply to PostgreSQL - only minor SQL
  dialect differences.

TENANT ISOLATION:
  Every query filters by tenant_id. A row in another tenant scans as
  zero rows, which surfaces as ErrNotFound: a cross-tenant reference is
  indistinguishable from a missing one.

QUANTITY GUARDS:
  Guarded updates use UPDATE ... WHERE id = ? AND tenant_id = ? AND
  quantity = ?. Zero rows affected when the row exists means a
  concurrent writer changed the quantity: ErrConflict, never a lost
  update.

AUDIT TABLE:
  audit_entries is append-only: this package contains no UPDATE or
  DELETE against it. Reads return newest first, rowid as tiebreak.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better
  concurrency: readers don't block, single writer at a time, better
  crash recovery.

CONCURRENCY:
  A sync.Mutex serializes units of work. In production with PostgreSQL,
  database-level isolation handles this instead.

USAGE:
  store, err := sqlite.New("./data/inventory.db")   // ":memory:" for tests
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  ledger := inventory.NewLedger(store, tables)

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - statemachine/store.go: Engine-side interface definitions
  - inventory/store.go: Domain-side interface definitions
  - statemachine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/inventory"
	"github.com/warp/inventory-engine/statemachine"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex // serializes units of work
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

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
	-- Status definitions for customizable kinds (tenant-scoped;
	-- fixed kinds live in code and never appear here)
	CREATE TABLE IF NOT EXISTS status_definitions (
		kind TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		code TEXT NOT NULL,
		display_name TEXT NOT NULL,
		display_order INTEGER NOT NULL,
		is_terminal BOOLEAN NOT NULL DEFAULT FALSE,
		color TEXT NOT NULL,
		is_default BOOLEAN NOT NULL DEFAULT FALSE,
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (kind, tenant_id, code)
	);

	CREATE TABLE IF NOT EXISTS transition_rules (
		kind TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (kind, tenant_id, from_status, to_status)
	);

	-- Inventory units (license plates)
	CREATE TABLE IF NOT EXISTS inventory_units (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		number TEXT NOT NULL,
		product_id TEXT NOT NULL,
		quantity TEXT NOT NULL,
		uom TEXT NOT NULL,
		status TEXT NOT NULL,
		qa_status TEXT NOT NULL,
		location_id TEXT,
		warehouse_id TEXT,
		batch_number TEXT,
		expiry_date TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		UNIQUE (tenant_id, number)
	);

	CREATE INDEX IF NOT EXISTS idx_units_tenant_product
		ON inventory_units(tenant_id, product_id);
	CREATE INDEX IF NOT EXISTS idx_units_tenant_status
		ON inventory_units(tenant_id, status);

	-- Work-order material requirements
	CREATE TABLE IF NOT EXISTS material_requirements (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		work_order_id TEXT NOT NULL,
		product_id TEXT NOT NULL,
		name TEXT,
		required_qty TEXT NOT NULL,
		consumed_qty TEXT NOT NULL DEFAULT '0',
		uom TEXT NOT NULL,
		sequence INTEGER NOT NULL DEFAULT 1,
		consume_whole_unit BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requirements_tenant_wo
		ON material_requirements(tenant_id, work_order_id);

	-- Consumption records: created by consume, reversal fields written
	-- exactly once by reverse
	CREATE TABLE IF NOT EXISTS consumption_records (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		work_order_id TEXT NOT NULL,
		requirement_id TEXT NOT NULL,
		unit_id TEXT NOT NULL,
		unit_number TEXT NOT NULL,
		qty TEXT NOT NULL,
		uom TEXT NOT NULL,
		status TEXT NOT NULL,
		consumed_at TEXT NOT NULL,
		consumed_by TEXT NOT NULL,
		reversal_reason TEXT,
		reversal_notes TEXT,
		reversed_at TEXT,
		reversed_by TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_records_tenant_wo_date
		ON consumption_records(tenant_id, work_order_id, consumed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_records_tenant_unit
		ON consumption_records(tenant_id, unit_id);

	-- Audit trail (append-only: no UPDATE or DELETE in this package)
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		subject_type TEXT NOT NULL,
		subject_id TEXT NOT NULL,
		field_name TEXT NOT NULL,
		old_value TEXT,
		new_value TEXT,
		reason TEXT,
		actor_id TEXT NOT NULL,
		occurred_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_audit_tenant_subject
		ON audit_entries(tenant_id, subject_type, subject_id, occurred_at DESC);

	-- Current status for kinds without a dedicated table
	-- (purchase orders, quality holds, ...)
	CREATE TABLE IF NOT EXISTS entity_statuses (
		kind TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		status TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (kind, tenant_id, entity_id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// stores is the per-transaction view implementing inventory.Stores
// (and, by embedding, statemachine.Stores).
type stores struct {
	q querier
}

func (v stores) Statuses() statemachine.StatusStore       { return statusStore{v.q} }
func (v stores) Audit() statemachine.AuditLog             { return auditLog{v.q} }
func (v stores) Units() inventory.UnitStore               { return unitStore{v.q} }
func (v stores) Requirements() inventory.RequirementStore { return requirementStore{v.q} }
func (v stores) Records() inventory.RecordStore           { return recordStore{v.q} }

// InTx executes fn inside a single database transaction. All writes
// performed through the passed store set commit or roll back together.
func (s *Store) InTx(ctx context.Context, fn func(inventory.Stores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(stores{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// Engine adapts the store to the engine's narrower TxRunner, for
// wiring a standalone Applicator.
func (s *Store) Engine() statemachine.TxRunner {
	return engineRunner{s}
}

type engineRunner struct{ s *Store }

func (r engineRunner) InTx(ctx context.Context, fn func(statemachine.Stores) error) error {
	return r.s.InTx(ctx, func(st inventory.Stores) error {
		return fn(st)
	})
}

// View returns a store set reading outside any transaction. Use for
// single-statement reads only.
func (s *Store) View() inventory.Stores {
	return stores{q: s.db}
}

// =============================================================================
// STATUS STORE (statemachine.StatusStore)
// =============================================================================

type statusStore struct{ q querier }

// statusTarget routes a kind to the table holding its current status.
// Kinds without a dedicated table fall through to entity_statuses.
func statusTarget(kind statemachine.EntityKind) (table, idCol string) {
	switch kind {
	case statemachine.KindInventoryUnit:
		return "inventory_units", "id"
	case statemachine.KindConsumptionRecord:
		return "consumption_records", "id"
	default:
		return "", ""
	}
}

func (st statusStore) ReadStatus(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, entityID string) (statemachine.StatusCode, error) {
	var (
		status string
		err    error
	)
	if table, idCol := statusTarget(kind); table != "" {
		err = st.q.QueryRowContext(ctx,
			fmt.Sprintf("SELECT status FROM %s WHERE %s = ? AND tenant_id = ?", table, idCol),
			entityID, tenant,
		).Scan(&status)
	} else {
		err = st.q.QueryRowContext(ctx,
			"SELECT status FROM entity_statuses WHERE kind = ? AND tenant_id = ? AND entity_id = ?",
			kind, tenant, entityID,
		).Scan(&status)
	}
	if err == sql.ErrNoRows {
		return "", &statemachine.NotFoundError{Kind: kind, EntityID: entityID}
	}
	if err != nil {
		return "", fmt.Errorf("failed to read status: %w", err)
	}
	return statemachine.StatusCode(status), nil
}

func (st statusStore) WriteStatus(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, entityID string, status statemachine.StatusCode) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var (
		res sql.Result
		err error
	)
	switch table, idCol := statusTarget(kind); {
	case table == "inventory_units":
		res, err = st.q.ExecContext(ctx,
			"UPDATE inventory_units SET status = ?, updated_at = ? WHERE id = ? AND tenant_id = ?",
			status, now, entityID, tenant,
		)
	case table != "":
		res, err = st.q.ExecContext(ctx,
			fmt.Sprintf("UPDATE %s SET status = ? WHERE %s = ? AND tenant_id = ?", table, idCol),
			status, entityID, tenant,
		)
	default:
		res, err = st.q.ExecContext(ctx,
			"UPDATE entity_statuses SET status = ?, updated_at = ? WHERE kind = ? AND tenant_id = ? AND entity_id = ?",
			status, now, kind, tenant, entityID,
		)
	}
	if err != nil {
		return fmt.Errorf("failed to write status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &statemachine.NotFoundError{Kind: kind, EntityID: entityID}
	}
	return nil
}

// SeedEntityStatus registers an entity of a kind without a dedicated
// table (purchase order, quality hold) with its initial status.
func (s *Store) SeedEntityStatus(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, entityID string, status statemachine.StatusCode) error {
	now := time.Now().UTC().Format(time.RFC3339)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entity_statuses (kind, tenant_id, entity_id, status, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (kind, tenant_id, entity_id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`, kind, tenant, entityID, status, now)
	if err != nil {
		return fmt.Errorf("failed to seed entity status: %w", err)
	}
	return nil
}

// =============================================================================
// AUDIT LOG (statemachine.AuditLog)
// =============================================================================

type auditLog struct{ q querier }

func (a auditLog) Append(ctx context.Context, e statemachine.AuditEntry) error {
	_, err := a.q.ExecContext(ctx, `
		INSERT INTO audit_entries
		(id, tenant_id, subject_type, subject_id, field_name, old_value, new_value, reason, actor_id, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.TenantID, e.SubjectType, e.SubjectID, e.FieldName,
		e.OldValue, e.NewValue, nullString(e.Reason), e.ActorID,
		e.OccurredAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (a auditLog) List(ctx context.Context, tenant statemachine.TenantID, subjectType, subjectID string) ([]statemachine.AuditEntry, error) {
	rows, err := a.q.QueryContext(ctx, `
		SELECT id, tenant_id, subject_type, subject_id, field_name, old_value, new_value, reason, actor_id, occurred_at
		FROM audit_entries
		WHERE tenant_id = ? AND subject_type = ? AND subject_id = ?
		ORDER BY occurred_at DESC, rowid DESC
	`, tenant, subjectType, subjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []statemachine.AuditEntry
	for rows.Next() {
		var (
			e          statemachine.AuditEntry
			oldVal     sql.NullString
			newVal     sql.NullString
			reason     sql.NullString
			occurredAt string
		)
		if err := rows.Scan(&e.ID, &e.TenantID, &e.SubjectType, &e.SubjectID,
			&e.FieldName, &oldVal, &newVal, &reason, &e.ActorID, &occurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		e.OldValue = oldVal.String
		e.NewValue = newVal.String
		e.Reason = reason.String
		e.OccurredAt, _ = time.Parse(time.RFC3339Nano, occurredAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// UNIT STORE (inventory.UnitStore)
// =============================================================================

type unitStore struct{ q querier }

const unitColumns = `id, tenant_id, number, product_id, quantity, uom, status, qa_status,
	location_id, warehouse_id, batch_number, expiry_date, created_at, updated_at`

func (us unitStore) Get(ctx context.Context, tenant statemachine.TenantID, id string) (*inventory.Unit, error) {
	row := us.q.QueryRowContext(ctx,
		"SELECT "+unitColumns+" FROM inventory_units WHERE id = ? AND tenant_id = ?",
		id, tenant,
	)
	return scanUnit(row, id)
}

func (us unitStore) GetByNumber(ctx context.Context, tenant statemachine.TenantID, number string) (*inventory.Unit, error) {
	row := us.q.QueryRowContext(ctx,
		"SELECT "+unitColumns+" FROM inventory_units WHERE number = ? AND tenant_id = ?",
		number, tenant,
	)
	return scanUnit(row, number)
}

func scanUnit(row *sql.Row, ref string) (*inventory.Unit, error) {
	var (
		u           inventory.Unit
		quantity    string
		locationID  sql.NullString
		warehouseID sql.NullString
		batchNumber sql.NullString
		expiryDate  sql.NullString
		createdAt   string
		updatedAt   string
	)
	err := row.Scan(&u.ID, &u.TenantID, &u.Number, &u.ProductID, &quantity, &u.UoM,
		&u.Status, &u.QAStatus, &locationID, &warehouseID, &batchNumber, &expiryDate,
		&createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, &statemachine.NotFoundError{Kind: statemachine.KindInventoryUnit, EntityID: ref}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan inventory unit: %w", err)
	}
	if u.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("corrupt quantity for unit %s: %w", u.ID, err)
	}
	u.LocationID = locationID.String
	u.WarehouseID = warehouseID.String
	u.BatchNumber = batchNumber.String
	if expiryDate.Valid && expiryDate.String != "" {
		if t, perr := time.Parse(time.RFC3339, expiryDate.String); perr == nil {
			u.ExpiryDate = &t
		}
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &u, nil
}

func (us unitStore) Put(ctx context.Context, u *inventory.Unit) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	var expiry any
	if u.ExpiryDate != nil {
		expiry = u.ExpiryDate.Format(time.RFC3339)
	}
	_, err := us.q.ExecContext(ctx, `
		INSERT INTO inventory_units
		(id, tenant_id, number, product_id, quantity, uom, status, qa_status,
		 location_id, warehouse_id, batch_number, expiry_date, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		u.ID, u.TenantID, u.Number, u.ProductID, u.Quantity.String(), u.UoM,
		u.Status, u.QAStatus, nullString(u.LocationID), nullString(u.WarehouseID),
		nullString(u.BatchNumber), expiry,
		u.CreatedAt.Format(time.RFC3339), u.UpdatedAt.Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("unit number %s already exists: %w", u.Number, statemachine.ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("failed to insert inventory unit: %w", err)
	}
	return nil
}

func (us unitStore) DecrementQuantity(ctx context.Context, tenant statemachine.TenantID, id string, amount, expectedCurrent decimal.Decimal) error {
	return us.guardedQuantityUpdate(ctx, tenant, id, expectedCurrent.Sub(amount), expectedCurrent)
}

func (us unitStore) IncrementQuantity(ctx context.Context, tenant statemachine.TenantID, id string, amount, expectedCurrent decimal.Decimal) error {
	return us.guardedQuantityUpdate(ctx, tenant, id, expectedCurrent.Add(amount), expectedCurrent)
}

// guardedQuantityUpdate writes the new quantity only if the stored
// value still equals what the caller read. Zero rows affected when the
// unit exists means a concurrent writer won.
func (us unitStore) guardedQuantityUpdate(ctx context.Context, tenant statemachine.TenantID, id string, next, expected decimal.Decimal) error {
	if next.IsNegative() {
		return &inventory.InsufficientQuantityError{
			Number:    id,
			OnHand:    expected,
			Requested: expected.Sub(next),
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	res, err := us.q.ExecContext(ctx, `
		UPDATE inventory_units SET quantity = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ? AND quantity = ?
	`, next.String(), now, id, tenant, expected.String())
	if err != nil {
		return fmt.Errorf("failed to update quantity: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	// Distinguish a stale guard from a missing unit.
	var one int
	err = us.q.QueryRowContext(ctx,
		"SELECT 1 FROM inventory_units WHERE id = ? AND tenant_id = ?", id, tenant,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return &statemachine.NotFoundError{Kind: statemachine.KindInventoryUnit, EntityID: id}
	}
	if err != nil {
		return fmt.Errorf("failed to check unit existence: %w", err)
	}
	return fmt.Errorf("unit %s quantity changed concurrently: %w", id, statemachine.ErrConflict)
}

// =============================================================================
// REQUIREMENT STORE (inventory.RequirementStore)
// =============================================================================

type requirementStore struct{ q querier }

func (rs requirementStore) Get(ctx context.Context, tenant statemachine.TenantID, id string) (*inventory.MaterialRequirement, error) {
	var (
		r           inventory.MaterialRequirement
		name        sql.NullString
		requiredQty string
		consumedQty string
		createdAt   string
	)
	err := rs.q.QueryRowContext(ctx, `
		SELECT id, tenant_id, work_order_id, product_id, name, required_qty, consumed_qty,
		       uom, sequence, consume_whole_unit, created_at
		FROM material_requirements WHERE id = ? AND tenant_id = ?
	`, id, tenant).Scan(
		&r.ID, &r.TenantID, &r.WorkOrderID, &r.ProductID, &name,
		&requiredQty, &consumedQty, &r.UoM, &r.Sequence, &r.ConsumeWholeUnit, &createdAt,
	)
	if err == sql.ErrNoRows {
		return nil, &statemachine.NotFoundError{Kind: "material_requirement", EntityID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan material requirement: %w", err)
	}
	r.Name = name.String
	if r.RequiredQty, err = decimal.NewFromString(requiredQty); err != nil {
		return nil, fmt.Errorf("corrupt required_qty for requirement %s: %w", id, err)
	}
	if r.ConsumedQty, err = decimal.NewFromString(consumedQty); err != nil {
		return nil, fmt.Errorf("corrupt consumed_qty for requirement %s: %w", id, err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

func (rs requirementStore) Put(ctx context.Context, r *inventory.MaterialRequirement) error {
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	_, err := rs.q.ExecContext(ctx, `
		INSERT INTO material_requirements
		(id, tenant_id, work_order_id, product_id, name, required_qty, consumed_qty,
		 uom, sequence, consume_whole_unit, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.TenantID, r.WorkOrderID, r.ProductID, nullString(r.Name),
		r.RequiredQty.String(), r.ConsumedQty.String(), r.UoM, r.Sequence,
		r.ConsumeWholeUnit, r.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to insert material requirement: %w", err)
	}
	return nil
}

func (rs requirementStore) AddConsumed(ctx context.Context, tenant statemachine.TenantID, id string, delta decimal.Decimal) error {
	cur, err := rs.Get(ctx, tenant, id)
	if err != nil {
		return err
	}
	next := cur.ConsumedQty.Add(delta)
	res, err := rs.q.ExecContext(ctx, `
		UPDATE material_requirements SET consumed_qty = ?
		WHERE id = ? AND tenant_id = ? AND consumed_qty = ?
	`, next.String(), id, tenant, cur.ConsumedQty.String())
	if err != nil {
		return fmt.Errorf("failed to update consumed_qty: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("requirement %s consumed_qty changed concurrently: %w", id, statemachine.ErrConflict)
	}
	return nil
}

// =============================================================================
// RECORD STORE (inventory.RecordStore)
// =============================================================================

type recordStore struct{ q querier }

const recordColumns = `id, tenant_id, work_order_id, requirement_id, unit_id, unit_number,
	qty, uom, status, consumed_at, consumed_by, reversal_reason, reversal_notes, reversed_at, reversed_by`

func (cs recordStore) Get(ctx context.Context, tenant statemachine.TenantID, id string) (*inventory.Record, error) {
	rows, err := cs.q.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM consumption_records WHERE id = ? AND tenant_id = ?",
		id, tenant,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query consumption record: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, &statemachine.NotFoundError{Kind: statemachine.KindConsumptionRecord, EntityID: id}
	}
	return scanRecord(rows)
}

func scanRecord(rows *sql.Rows) (*inventory.Record, error) {
	var (
		r          inventory.Record
		qty        string
		consumedAt string
		reason     sql.NullString
		notes      sql.NullString
		reversedAt sql.NullString
		reversedBy sql.NullString
	)
	err := rows.Scan(&r.ID, &r.TenantID, &r.WorkOrderID, &r.RequirementID, &r.UnitID,
		&r.UnitNumber, &qty, &r.UoM, &r.Status, &consumedAt, &r.ConsumedBy,
		&reason, &notes, &reversedAt, &reversedBy)
	if err != nil {
		return nil, fmt.Errorf("failed to scan consumption record: %w", err)
	}
	if r.Qty, err = decimal.NewFromString(qty); err != nil {
		return nil, fmt.Errorf("corrupt qty for record %s: %w", r.ID, err)
	}
	r.ConsumedAt, _ = time.Parse(time.RFC3339Nano, consumedAt)
	r.ReversalReason = inventory.ReversalReason(reason.String)
	r.ReversalNotes = notes.String
	r.ReversedBy = reversedBy.String
	if reversedAt.Valid && reversedAt.String != "" {
		if t, perr := time.Parse(time.RFC3339Nano, reversedAt.String); perr == nil {
			r.ReversedAt = &t
		}
	}
	return &r, nil
}

func (cs recordStore) Create(ctx context.Context, r *inventory.Record) error {
	_, err := cs.q.ExecContext(ctx, `
		INSERT INTO consumption_records
		(id, tenant_id, work_order_id, requirement_id, unit_id, unit_number,
		 qty, uom, status, consumed_at, consumed_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.TenantID, r.WorkOrderID, r.RequirementID, r.UnitID, r.UnitNumber,
		r.Qty.String(), r.UoM, r.Status, r.ConsumedAt.Format(time.RFC3339Nano), r.ConsumedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert consumption record: %w", err)
	}
	return nil
}

func (cs recordStore) MarkReversed(ctx context.Context, tenant statemachine.TenantID, id string, reason inventory.ReversalReason, notes, actorID string, at time.Time) error {
	res, err := cs.q.ExecContext(ctx, `
		UPDATE consumption_records
		SET reversal_reason = ?, reversal_notes = ?, reversed_at = ?, reversed_by = ?
		WHERE id = ? AND tenant_id = ?
	`, reason, nullString(notes), at.Format(time.RFC3339Nano), actorID, id, tenant)
	if err != nil {
		return fmt.Errorf("failed to mark record reversed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &statemachine.NotFoundError{Kind: statemachine.KindConsumptionRecord, EntityID: id}
	}
	return nil
}

func (cs recordStore) List(ctx context.Context, tenant statemachine.TenantID, workOrderID string, f inventory.ListFilter) ([]inventory.Record, int, error) {
	where := "WHERE tenant_id = ? AND work_order_id = ?"
	args := []any{tenant, workOrderID}
	if f.Status != "" {
		where += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.RequirementID != "" {
		where += " AND requirement_id = ?"
		args = append(args, f.RequirementID)
	}

	var total int
	if err := cs.q.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM consumption_records "+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count consumption records: %w", err)
	}

	order := "ORDER BY consumed_at DESC, rowid DESC"
	if f.SortAsc {
		order = "ORDER BY consumed_at ASC, rowid ASC"
	}
	query := fmt.Sprintf("SELECT %s FROM consumption_records %s %s LIMIT ? OFFSET ?",
		recordColumns, where, order)
	args = append(args, f.PageSize, (f.Page-1)*f.PageSize)

	rows, err := cs.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query consumption records: %w", err)
	}
	defer rows.Close()

	var records []inventory.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, err
		}
		records = append(records, *r)
	}
	return records, total, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
