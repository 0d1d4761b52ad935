package ledger

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"sitcomledger/internal/infra/persistence/memory"
	"sitcomledger/internal/infra/persistence/postgres"
	"sitcomledger/internal/infra/persistence/postgres/testutil"
	"sitcomledger/internal/infra/persistence/sqlite"
	"sitcomledger/pkg/domain"
)

func TestOpenPersistentStoreMemory(t *testing.T) {
	store, err := OpenPersistentStore(StorageOptions{Driver: StorageMemory}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("expected memory store, got %T", store)
	}
}

func TestOpenPersistentStoreSQLiteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := OpenPersistentStore(StorageOptions{SQLitePath: path}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	sq, ok := store.(*sqlite.Store)
	if !ok {
		t.Fatalf("expected sqlite store, got %T", store)
	}
	defer sq.Close()

	svc := NewService(store, WithSeedSource(NewSequenceSeedSource(0)))
	if _, _, err := svc.GrantCompetenceByStaff(context.Background(), "staff", 7, 30001, 1, 2020); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := svc.ImportState(memory.Snapshot{}); !errors.Is(err, memory.ErrStoreNotEmpty) {
		t.Fatalf("journaled store must refuse replay over existing rows, got %v", err)
	}
	if sq.Path() != path {
		t.Fatalf("unexpected path %s", sq.Path())
	}
}

func TestOpenPersistentStorePostgres(t *testing.T) {
	db, _ := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(_, _ string) (*sql.DB, error) { return db, nil })
	defer restore()

	store, err := OpenPersistentStore(StorageOptions{Driver: StoragePostgres, PostgresDSN: "postgres://stub"}, nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, ok := store.(*postgres.Store); !ok {
		t.Fatalf("expected postgres store, got %T", store)
	}
	svc := NewService(store)
	if _, _, err := svc.ApproveActivity(context.Background(), "staff", 7, 4000000001, 1, 2020); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if got := svc.ActivitiesOf(context.Background(), 7); len(got) != 1 {
		t.Fatalf("expected one activity, got %v", got)
	}
}

func TestOpenPersistentStoreErrors(t *testing.T) {
	if _, err := OpenPersistentStore(StorageOptions{Driver: "mongo"}, nil); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	var _ domain.PersistentStore = (*sqlite.Store)(nil)
}
