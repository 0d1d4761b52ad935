// Package memory provides the in-memory ledger store: three primary maps keyed
// by record identifier plus the by-student and by-term index families.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"sitcomledger/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

// ErrStoreNotEmpty is returned when a snapshot is replayed into a store that
// already holds records.
var ErrStoreNotEmpty = errors.New("snapshot replay requires an empty store")

// CommitHook runs after rules pass and before staged changes become visible.
// Returning an error aborts the commit. Durable backends use it to append rows.
type CommitHook func(ctx context.Context, changes []domain.Change) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook registers a hook executed on every successful transaction.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) {
		if hook != nil {
			s.hooks = append(s.hooks, hook)
		}
	}
}

// Store provides an in-memory transactional store for the ledger.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *domain.RulesEngine
	hooks  []CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RulesEngine exposes the configured engine.
func (s *Store) RulesEngine() *domain.RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// RunInTransaction executes fn against a staged layer over the committed
// state. Rules are evaluated over the recorded changes; the staged layer is
// merged only when fn, the rules and every commit hook succeed.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTransaction(&s.state)
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, tx.Snapshot(), tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	if len(tx.changes) > 0 {
		for _, hook := range s.hooks {
			if err := hook(ctx, tx.changes); err != nil {
				return result, fmt.Errorf("commit hook: %w", err)
			}
		}
	}

	s.state.merge(&tx.staged)
	return result, nil
}

// View executes fn against the committed state under the read lock. Index
// accessors return copies so fn may retain them.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(newView(&s.state))
}

// Load appends already derived records in order, bypassing rules and commit
// hooks. Durable backends use it to replay persisted rows on open.
func (s *Store) Load(records ...domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := newTransaction(&s.state)
	for _, r := range records {
		if !r.Kind().Valid() {
			return fmt.Errorf("load: %w: %q", domain.ErrUnknownKind, r.Kind())
		}
		if err := tx.create(r); err != nil {
			return fmt.Errorf("load: %w", err)
		}
	}
	s.state.merge(&tx.staged)
	return nil
}

// Len returns the number of stored records across all kinds.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.len()
}

// Counts returns the number of stored records per kind.
func (s *Store) Counts() map[domain.RecordKind]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[domain.RecordKind]int{
		domain.KindStaffCompetence: len(s.state.staff),
		domain.KindActivity:        len(s.state.activities),
		domain.KindAutoCompetence:  len(s.state.auto),
	}
}

// ExportState copies the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(&s.state)
}

// ImportState replaces the store state with the provided snapshot. Snapshots
// whose indices disagree with their primary maps are rejected.
func (s *Store) ImportState(snapshot Snapshot) error {
	state := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	if err := checkConsistency(&state); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

// ReplayState appends the records of snapshot in their recorded order and
// passes them to the commit hooks as one batch, so journaled backends persist
// the restored ledger. Rules are not evaluated since the records are already
// derived. The store must be empty, and the replayed indices must match the
// snapshot's own.
func (s *Store) ReplayState(ctx context.Context, snapshot Snapshot) error {
	want := memoryStateFromSnapshot(migrateSnapshot(snapshot))
	if err := checkConsistency(&want); err != nil {
		return fmt.Errorf("replay snapshot: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if n := s.state.len(); n > 0 {
		return fmt.Errorf("replay snapshot: %w: %d records present", ErrStoreNotEmpty, n)
	}

	tx := newTransaction(&s.state)
	for _, r := range want.ordered() {
		if err := tx.create(r); err != nil {
			return fmt.Errorf("replay snapshot: %w", err)
		}
	}
	if !sameIndices(&tx.staged, &want) {
		return fmt.Errorf("replay snapshot: %w: indices differ from record order", ErrInconsistentState)
	}
	if len(tx.changes) > 0 {
		for _, hook := range s.hooks {
			if err := hook(ctx, tx.changes); err != nil {
				return fmt.Errorf("commit hook: %w", err)
			}
		}
	}
	s.state.merge(&tx.staged)
	return nil
}

// CheckConsistency verifies the committed state's index invariants.
func (s *Store) CheckConsistency() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return checkConsistency(&s.state)
}
