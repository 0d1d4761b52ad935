// Package postgres provides a Postgres-backed ledger store that journals every
// committed record and serves reads from the in-memory store.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"sitcomledger/internal/infra/persistence/memory"
	"sitcomledger/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// DefaultDSN keeps parity with the configuration defaults.
	DefaultDSN = "postgres://localhost/sitcomledger?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const schema = `CREATE TABLE IF NOT EXISTS ledger_records (
	seq BIGSERIAL PRIMARY KEY,
	kind TEXT NOT NULL,
	record_id TEXT NOT NULL,
	student_id BIGINT NOT NULL,
	term INTEGER NOT NULL,
	payload JSONB NOT NULL,
	UNIQUE (kind, record_id)
)`

// Store persists records to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to DefaultDSN),
// ensures the journal table exists and replays it into memory.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = DefaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	s, err := openStore(ctx, db, engine)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func openStore(ctx context.Context, db *sql.DB, engine *domain.RulesEngine) (*Store, error) {
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure ledger table: %w", err)
	}
	entries, err := loadJournal(ctx, db)
	if err != nil {
		return nil, err
	}
	records, err := memory.DecodeJournal(entries)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.append))
	if err := s.Load(records...); err != nil {
		return nil, err
	}
	return s, nil
}

// ImportState replays snapshot into an empty journal, appending every record
// in its recorded order. A journal that already holds rows is never replaced.
func (s *Store) ImportState(snapshot memory.Snapshot) error {
	if err := s.ReplayState(context.Background(), snapshot); err != nil {
		return fmt.Errorf("postgres store: %w", err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func loadJournal(ctx context.Context, db *sql.DB) ([]memory.JournalEntry, error) {
	rows, err := db.QueryContext(ctx, `SELECT kind, record_id, student_id, term, payload FROM ledger_records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []memory.JournalEntry
	for rows.Next() {
		var (
			e    memory.JournalEntry
			kind string
		)
		if err := rows.Scan(&kind, &e.RecordID, &e.Student, &e.Term, &e.Payload); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		e.Kind = domain.RecordKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ledger: %w", err)
	}
	return entries, nil
}

func (s *Store) append(ctx context.Context, changes []domain.Change) error {
	entries, err := memory.JournalEntries(changes)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_records (kind, record_id, student_id, term, payload) VALUES ($1,$2,$3,$4,$5)`,
			string(e.Kind), e.RecordID, e.Student, e.Term, e.Payload,
		); err != nil {
			return fmt.Errorf("insert %s %s: %w", e.Kind, e.RecordID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
