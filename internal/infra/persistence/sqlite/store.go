// Package sqlite persists the ledger as an append-only journal table in a
// SQLite database while serving reads from the in-memory store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"sitcomledger/internal/infra/persistence/memory"
	"sitcomledger/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when NewStore receives an empty path.
const DefaultPath = "sitcomledger.db"

const schema = `CREATE TABLE IF NOT EXISTS ledger_records (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	record_id TEXT NOT NULL,
	student_id INTEGER NOT NULL,
	term INTEGER NOT NULL,
	payload BLOB NOT NULL,
	UNIQUE(kind, record_id)
)`

// Store appends every committed record to SQLite before it becomes visible in memory.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path and replays its journal.
func NewStore(path string, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create ledger table: %w", err)
	}
	s := &Store{db: db, path: path}
	s.Store = memory.NewStore(engine, memory.WithCommitHook(s.append))
	if err := s.load(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT kind, record_id, student_id, term, payload FROM ledger_records ORDER BY seq`)
	if err != nil {
		return fmt.Errorf("select ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var entries []memory.JournalEntry
	for rows.Next() {
		var e memory.JournalEntry
		var kind string
		if err := rows.Scan(&kind, &e.RecordID, &e.Student, &e.Term, &e.Payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		e.Kind = domain.RecordKind(kind)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate ledger: %w", err)
	}
	records, err := memory.DecodeJournal(entries)
	if err != nil {
		return err
	}
	return s.Load(records...)
}

func (s *Store) append(ctx context.Context, changes []domain.Change) (retErr error) {
	entries, err := memory.JournalEntries(changes)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, e := range entries {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO ledger_records(kind, record_id, student_id, term, payload) VALUES(?,?,?,?,?)`,
			string(e.Kind), e.RecordID, e.Student, e.Term, e.Payload,
		); err != nil {
			return fmt.Errorf("insert %s %s: %w", e.Kind, e.RecordID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ImportState replays snapshot into an empty journal, appending every record
// in its recorded order. A journal that already holds rows is never replaced.
func (s *Store) ImportState(snapshot memory.Snapshot) error {
	if err := s.ReplayState(context.Background(), snapshot); err != nil {
		return fmt.Errorf("sqlite store: %w", err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }
