/*
Status definitions and transition rules for customizable kinds.

PURPOSE:
  Implements statemachine.TableSource and statemachine.DefinitionStore
  over the status_definitions and transition_rules tables. Fixed kinds
  never reach this file; the engine's Registry serves their compiled-in
  tables first and only falls through to here for customizable kinds.

EDIT RULES:
  System statuses accept changes to color and display order only.
  System rules cannot be deleted. A status referenced by entities or
  remaining rules cannot be deleted. Every mutation rebuilds the table
  through statemachine.NewTable before committing, so a write that
  would leave the table invalid (missing default, dangling rule, over
  the destination cap) rolls back with the table error.

SEE ALSO:
  - statemachine/definitions.go: Interface and error contract
  - statemachine/tables.go: Compiled-in tables and seed defaults
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/warp/inventory-engine/statemachine"
)

// =============================================================================
// TABLE SOURCE (statemachine.TableSource)
// =============================================================================

// Table loads and assembles the transition table for a customizable
// kind. Returns ErrTableNotFound when the tenant has no definitions
// for the kind.
func (s *Store) Table(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID) (*statemachine.Table, error) {
	return loadTable(ctx, s.db, kind, tenant)
}

func loadTable(ctx context.Context, q querier, kind statemachine.EntityKind, tenant statemachine.TenantID) (*statemachine.Table, error) {
	defs, err := listDefinitions(ctx, q, kind, tenant)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, statemachine.ErrTableNotFound
	}
	rules, err := listRules(ctx, q, kind, tenant)
	if err != nil {
		return nil, err
	}
	return statemachine.NewTable(kind, defs, rules)
}

func listDefinitions(ctx context.Context, q querier, kind statemachine.EntityKind, tenant statemachine.TenantID) ([]statemachine.StatusDefinition, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT code, display_name, display_order, is_terminal, color, is_default, is_system
		FROM status_definitions
		WHERE kind = ? AND tenant_id = ?
		ORDER BY display_order ASC, code ASC
	`, kind, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query status definitions: %w", err)
	}
	defer rows.Close()

	var defs []statemachine.StatusDefinition
	for rows.Next() {
		var d statemachine.StatusDefinition
		if err := rows.Scan(&d.Code, &d.DisplayName, &d.DisplayOrder,
			&d.IsTerminal, &d.Color, &d.IsDefault, &d.IsSystem); err != nil {
			return nil, fmt.Errorf("failed to scan status definition: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func listRules(ctx context.Context, q querier, kind statemachine.EntityKind, tenant statemachine.TenantID) ([]statemachine.TransitionRule, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT from_status, to_status, is_system
		FROM transition_rules
		WHERE kind = ? AND tenant_id = ?
		ORDER BY from_status ASC, to_status ASC
	`, kind, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to query transition rules: %w", err)
	}
	defer rows.Close()

	var rules []statemachine.TransitionRule
	for rows.Next() {
		var r statemachine.TransitionRule
		if err := rows.Scan(&r.From, &r.To, &r.IsSystem); err != nil {
			return nil, fmt.Errorf("failed to scan transition rule: %w", err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// =============================================================================
// DEFINITION STORE (statemachine.DefinitionStore)
// =============================================================================

func (s *Store) ListStatusDefinitions(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID) ([]statemachine.StatusDefinition, error) {
	return listDefinitions(ctx, s.db, kind, tenant)
}

func (s *Store) ListTransitionRules(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID) ([]statemachine.TransitionRule, error) {
	return listRules(ctx, s.db, kind, tenant)
}

func (s *Store) CreateStatusDefinition(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, def statemachine.StatusDefinition) error {
	return s.inDefinitionTx(ctx, kind, tenant, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM status_definitions
			WHERE kind = ? AND tenant_id = ? AND code = ?
		`, kind, tenant, def.Code).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check status existence: %w", err)
		}
		if exists > 0 {
			return fmt.Errorf("%s/%s: %w", kind, def.Code, statemachine.ErrDuplicateStatus)
		}
		if def.IsDefault {
			// Only one default per kind: demote the current one.
			if _, err := tx.ExecContext(ctx, `
				UPDATE status_definitions SET is_default = FALSE
				WHERE kind = ? AND tenant_id = ? AND is_default = TRUE
			`, kind, tenant); err != nil {
				return fmt.Errorf("failed to demote default status: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO status_definitions
			(kind, tenant_id, code, display_name, display_order, is_terminal, color, is_default, is_system, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, kind, tenant, def.Code, def.DisplayName, def.DisplayOrder,
			def.IsTerminal, def.Color, def.IsDefault, false,
			time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("failed to insert status definition: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateStatusDefinition(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, def statemachine.StatusDefinition) error {
	return s.inDefinitionTx(ctx, kind, tenant, func(tx *sql.Tx) error {
		cur, err := getDefinition(ctx, tx, kind, tenant, def.Code)
		if err != nil {
			return err
		}
		if cur.IsSystem {
			// System statuses: cosmetic fields only.
			if def.IsTerminal != cur.IsTerminal || def.IsDefault != cur.IsDefault {
				return fmt.Errorf("%s/%s: %w", kind, def.Code, statemachine.ErrSystemManaged)
			}
			_, err = tx.ExecContext(ctx, `
				UPDATE status_definitions SET color = ?, display_order = ?, display_name = ?
				WHERE kind = ? AND tenant_id = ? AND code = ?
			`, def.Color, def.DisplayOrder, def.DisplayName, kind, tenant, def.Code)
			if err != nil {
				return fmt.Errorf("failed to update status definition: %w", err)
			}
			return nil
		}
		if def.IsDefault && !cur.IsDefault {
			if _, err := tx.ExecContext(ctx, `
				UPDATE status_definitions SET is_default = FALSE
				WHERE kind = ? AND tenant_id = ? AND is_default = TRUE
			`, kind, tenant); err != nil {
				return fmt.Errorf("failed to demote default status: %w", err)
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE status_definitions
			SET display_name = ?, display_order = ?, is_terminal = ?, color = ?, is_default = ?
			WHERE kind = ? AND tenant_id = ? AND code = ?
		`, def.DisplayName, def.DisplayOrder, def.IsTerminal, def.Color, def.IsDefault,
			kind, tenant, def.Code)
		if err != nil {
			return fmt.Errorf("failed to update status definition: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteStatusDefinition(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, code statemachine.StatusCode) error {
	return s.inDefinitionTx(ctx, kind, tenant, func(tx *sql.Tx) error {
		cur, err := getDefinition(ctx, tx, kind, tenant, code)
		if err != nil {
			return err
		}
		if cur.IsSystem {
			return fmt.Errorf("%s/%s: %w", kind, code, statemachine.ErrSystemManaged)
		}

		var inUse int
		err = tx.QueryRowContext(ctx, `
			SELECT COUNT(*) FROM entity_statuses
			WHERE kind = ? AND tenant_id = ? AND status = ?
		`, kind, tenant, code).Scan(&inUse)
		if err != nil {
			return fmt.Errorf("failed to check status usage: %w", err)
		}
		if inUse > 0 {
			return fmt.Errorf("%s/%s referenced by %d entities: %w", kind, code, inUse, statemachine.ErrStatusInUse)
		}

		// Rules touching the status go with it.
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM transition_rules
			WHERE kind = ? AND tenant_id = ? AND (from_status = ? OR to_status = ?)
		`, kind, tenant, code, code); err != nil {
			return fmt.Errorf("failed to delete transition rules: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM status_definitions
			WHERE kind = ? AND tenant_id = ? AND code = ?
		`, kind, tenant, code); err != nil {
			return fmt.Errorf("failed to delete status definition: %w", err)
		}
		return nil
	})
}

func (s *Store) CreateTransitionRule(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, rule statemachine.TransitionRule) error {
	return s.inDefinitionTx(ctx, kind, tenant, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO transition_rules (kind, tenant_id, from_status, to_status, is_system, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, kind, tenant, rule.From, rule.To, false, time.Now().UTC().Format(time.RFC3339))
		if isUniqueConstraintError(err) {
			return nil // rule already present, idempotent
		}
		if err != nil {
			return fmt.Errorf("failed to insert transition rule: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteTransitionRule(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, from, to statemachine.StatusCode) error {
	return s.inDefinitionTx(ctx, kind, tenant, func(tx *sql.Tx) error {
		var isSystem bool
		err := tx.QueryRowContext(ctx, `
			SELECT is_system FROM transition_rules
			WHERE kind = ? AND tenant_id = ? AND from_status = ? AND to_status = ?
		`, kind, tenant, from, to).Scan(&isSystem)
		if err == sql.ErrNoRows {
			return statemachine.ErrNoSuchRule
		}
		if err != nil {
			return fmt.Errorf("failed to read transition rule: %w", err)
		}
		if isSystem {
			return fmt.Errorf("rule %s -> %s: %w", from, to, statemachine.ErrSystemManaged)
		}
		_, err = tx.ExecContext(ctx, `
			DELETE FROM transition_rules
			WHERE kind = ? AND tenant_id = ? AND from_status = ? AND to_status = ?
		`, kind, tenant, from, to)
		if err != nil {
			return fmt.Errorf("failed to delete transition rule: %w", err)
		}
		return nil
	})
}

// SeedDefaults installs the factory table for a customizable kind if
// the tenant has none. Called on first touch of a kind; idempotent.
func (s *Store) SeedDefaults(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, defs []statemachine.StatusDefinition, rules []statemachine.TransitionRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM status_definitions WHERE kind = ? AND tenant_id = ?
	`, kind, tenant).Scan(&count); err != nil {
		return fmt.Errorf("failed to check existing definitions: %w", err)
	}
	if count > 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	for _, d := range defs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO status_definitions
			(kind, tenant_id, code, display_name, display_order, is_terminal, color, is_default, is_system, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, kind, tenant, d.Code, d.DisplayName, d.DisplayOrder,
			d.IsTerminal, d.Color, d.IsDefault, d.IsSystem, now); err != nil {
			return fmt.Errorf("failed to seed status %s: %w", d.Code, err)
		}
	}
	for _, r := range rules {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO transition_rules (kind, tenant_id, from_status, to_status, is_system, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, kind, tenant, r.From, r.To, r.IsSystem, now); err != nil {
			return fmt.Errorf("failed to seed rule %s -> %s: %w", r.From, r.To, err)
		}
	}
	return tx.Commit()
}

// inDefinitionTx runs fn in a transaction and, before committing,
// rebuilds the kind's table so an invalid end state rolls back.
func (s *Store) inDefinitionTx(ctx context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, fn func(tx *sql.Tx) error) error {
	if statemachine.IsFixedKind(kind) {
		return fmt.Errorf("kind %s: %w", kind, statemachine.ErrSystemManaged)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	// A kind with no definitions left is fine (table gone); anything
	// else must assemble into a valid table.
	defs, err := listDefinitions(ctx, tx, kind, tenant)
	if err != nil {
		return err
	}
	if len(defs) > 0 {
		rules, err := listRules(ctx, tx, kind, tenant)
		if err != nil {
			return err
		}
		if _, err := statemachine.NewTable(kind, defs, rules); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func getDefinition(ctx context.Context, tx *sql.Tx, kind statemachine.EntityKind, tenant statemachine.TenantID, code statemachine.StatusCode) (*statemachine.StatusDefinition, error) {
	var d statemachine.StatusDefinition
	err := tx.QueryRowContext(ctx, `
		SELECT code, display_name, display_order, is_terminal, color, is_default, is_system
		FROM status_definitions
		WHERE kind = ? AND tenant_id = ? AND code = ?
	`, kind, tenant, code).Scan(&d.Code, &d.DisplayName, &d.DisplayOrder,
		&d.IsTerminal, &d.Color, &d.IsDefault, &d.IsSystem)
	if err == sql.ErrNoRows {
		return nil, &statemachine.NotFoundError{Kind: kind, EntityID: string(code)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read status definition: %w", err)
	}
	return &d, nil
}
