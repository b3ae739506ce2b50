// Package store provides in-memory implementations of the transition
// engine's storage interfaces, for tests and dev.
package store

import (
	"context"
	"sync"

	"github.com/warp/inventory-engine/statemachine"
)

// =============================================================================
// MEMORY - In-memory StatusStore + AuditLog + TxRunner
// =============================================================================

type entityKey struct {
	Kind     statemachine.EntityKind
	Tenant   statemachine.TenantID
	EntityID string
}

// Memory holds entity statuses and audit entries in maps. Transactions
// are simulated with a snapshot + rollback on error, mirroring the
// all-or-nothing contract of the production store.
type Memory struct {
	mu       sync.RWMutex
	txMu     sync.Mutex // serializes whole units of work
	statuses map[entityKey]statemachine.StatusCode
	audit    []statemachine.AuditEntry
}

func NewMemory() *Memory {
	return &Memory{statuses: make(map[entityKey]statemachine.StatusCode)}
}

// SeedStatus registers an entity with an initial status. Test setup only.
func (m *Memory) SeedStatus(kind statemachine.EntityKind, tenant statemachine.TenantID, entityID string, status statemachine.StatusCode) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[entityKey{kind, tenant, entityID}] = status
}

// =============================================================================
// statemachine.Stores
// =============================================================================

func (m *Memory) Statuses() statemachine.StatusStore { return (*memoryStatuses)(m) }
func (m *Memory) Audit() statemachine.AuditLog       { return (*memoryAudit)(m) }

type memoryStatuses Memory

func (s *memoryStatuses) ReadStatus(_ context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, entityID string) (statemachine.StatusCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	status, ok := s.statuses[entityKey{kind, tenant, entityID}]
	if !ok {
		return "", &statemachine.NotFoundError{Kind: kind, EntityID: entityID}
	}
	return status, nil
}

func (s *memoryStatuses) WriteStatus(_ context.Context, kind statemachine.EntityKind, tenant statemachine.TenantID, entityID string, status statemachine.StatusCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := entityKey{kind, tenant, entityID}
	if _, ok := s.statuses[key]; !ok {
		return &statemachine.NotFoundError{Kind: kind, EntityID: entityID}
	}
	s.statuses[key] = status
	return nil
}

type memoryAudit Memory

func (a *memoryAudit) Append(_ context.Context, e statemachine.AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.audit = append(a.audit, e)
	return nil
}

// List returns entries newest first. Storage order is insertion order,
// so newest-first is a reverse walk with OccurredAt as the tiebreak.
func (a *memoryAudit) List(_ context.Context, tenant statemachine.TenantID, subjectType, subjectID string) ([]statemachine.AuditEntry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []statemachine.AuditEntry
	for i := len(a.audit) - 1; i >= 0; i-- {
		e := a.audit[i]
		if e.TenantID == tenant && e.SubjectType == subjectType && e.SubjectID == subjectID {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// statemachine.TxRunner
// =============================================================================

// InTx executes fn against a snapshot-guarded view. On error the
// pre-transaction state is restored. Units of work are serialized, so
// concurrent callers see one-at-a-time semantics like the production
// store's transactions.
func (m *Memory) InTx(_ context.Context, fn func(statemachine.Stores) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snapStatuses := make(map[entityKey]statemachine.StatusCode, len(m.statuses))
	for k, v := range m.statuses {
		snapStatuses[k] = v
	}
	snapAudit := append([]statemachine.AuditEntry(nil), m.audit...)
	m.mu.Unlock()

	if err := fn(txView{m}); err != nil {
		m.mu.Lock()
		m.statuses = snapStatuses
		m.audit = snapAudit
		m.mu.Unlock()
		return err
	}
	return nil
}

type txView struct{ m *Memory }

func (v txView) Statuses() statemachine.StatusStore { return v.m.Statuses() }
func (v txView) Audit() statemachine.AuditLog       { return v.m.Audit() }
