package archive

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"sitcomledger/internal/infra/persistence/memory"
	"sitcomledger/pkg/domain"
)

func seededSnapshot(t *testing.T) memory.Snapshot {
	t.Helper()
	store := memory.NewStore(nil)
	err := store.Load(
		domain.StaffGrantedCompetence{ID: domain.RecordID{1}, StudentID: 7, CompetenceID: 30001, Granter: "staff", Term: 12020},
		domain.ApprovedActivity{ID: domain.RecordID{2}, StudentID: 7, ActivityID: 4000000001, Approver: "staff", Term: 22020},
		domain.AutoGrantedCompetence{ID: domain.RecordID{3}, StudentID: 7, CompetenceID: 30002, Term: 22020},
	)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return store.ExportState()
}

func fixedArchiver(store Store, ids ...string) *Archiver {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	return NewArchiver(store,
		WithClock(func() time.Time {
			at = at.Add(time.Minute)
			return at
		}),
		WithIDGenerator(func() string {
			id := ids[n%len(ids)]
			n++
			return id
		}),
	)
}

func TestArchiveAndRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Options{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	a := fixedArchiver(store, "first", "second")
	snap := seededSnapshot(t)

	obj, err := a.Archive(ctx, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if obj.Key != "snapshots/2024-05-01T12:01:00.000000000Z-first.json" {
		t.Fatalf("unexpected key %s", obj.Key)
	}
	if obj.Metadata["records"] != "3" || obj.ContentType != "application/json" {
		t.Fatalf("unexpected metadata %+v", obj)
	}

	env, err := a.Restore(ctx, obj.Key)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if env.Counts[domain.KindActivity] != 1 || !env.CreatedAt.Equal(time.Date(2024, 5, 1, 12, 1, 0, 0, time.UTC)) {
		t.Fatalf("unexpected envelope %+v", env)
	}
	restored := memory.NewStore(nil)
	if err := restored.ImportState(env.Snapshot); err != nil {
		t.Fatalf("import: %v", err)
	}
	if restored.Len() != 3 {
		t.Fatalf("expected 3 records, got %d", restored.Len())
	}
	_ = restored.View(ctx, func(v domain.TransactionView) error {
		if got := v.CompetenciesOf(7); len(got) != 2 || got[0] != 30001 || got[1] != 30002 {
			t.Fatalf("unexpected competences %v", got)
		}
		return nil
	})

	second, err := a.Archive(ctx, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	latest, err := a.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != second.Key {
		t.Fatalf("latest %s want %s", latest, second.Key)
	}
}

func TestArchiveOnFilesystem(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Options{FSRoot: filepath.Join(t.TempDir(), "archive")})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if store.Driver() != DriverFilesystem {
		t.Fatalf("empty driver should select fs, got %s", store.Driver())
	}
	a := NewArchiver(store)
	obj, err := a.Archive(ctx, seededSnapshot(t))
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !strings.HasPrefix(obj.Key, SnapshotPrefix) || !strings.HasSuffix(obj.Key, ".json") {
		t.Fatalf("unexpected key %s", obj.Key)
	}
	if _, err := a.Restore(ctx, obj.Key); err != nil {
		t.Fatalf("restore: %v", err)
	}
}

func TestArchiveErrors(t *testing.T) {
	ctx := context.Background()
	store, _ := Open(ctx, Options{Driver: DriverMemory})
	a := fixedArchiver(store, "dup")

	if _, err := a.Latest(ctx); !errors.Is(err, ErrNoSnapshots) {
		t.Fatalf("expected no snapshots, got %v", err)
	}
	if _, err := a.Restore(ctx, "snapshots/missing.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	if _, err := store.Put(ctx, "snapshots/bogus.json", bytes.NewBufferString(`{"format":"other"}`), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := a.Restore(ctx, "snapshots/bogus.json"); err == nil {
		t.Fatalf("expected format error")
	}
	if _, err := store.Put(ctx, "snapshots/garbage.json", bytes.NewBufferString("{"), PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := a.Restore(ctx, "snapshots/garbage.json"); err == nil {
		t.Fatalf("expected decode error")
	}

	if _, err := Open(ctx, Options{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
	if _, err := Open(ctx, Options{Driver: DriverS3}); err == nil {
		t.Fatalf("expected missing bucket error")
	}
}

func TestKeyFormat(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))
	if got := Key(at, "id"); got != "snapshots/2025-01-02T02:04:05.000000000Z-id.json" {
		t.Fatalf("unexpected key %s", got)
	}
	if got := Key(at.Add(1500*time.Microsecond), "id"); got != "snapshots/2025-01-02T02:04:05.001500000Z-id.json" {
		t.Fatalf("unexpected key %s", got)
	}
}

func TestLatestWithinOneSecond(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, Options{Driver: DriverMemory})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	ids := []string{"ffff", "0000"}
	n := 0
	a := NewArchiver(store,
		WithClock(func() time.Time {
			at = at.Add(time.Millisecond)
			return at
		}),
		WithIDGenerator(func() string {
			id := ids[n]
			n++
			return id
		}),
	)
	snap := seededSnapshot(t)
	if _, err := a.Archive(ctx, snap); err != nil {
		t.Fatalf("archive: %v", err)
	}
	newer, err := a.Archive(ctx, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	latest, err := a.Latest(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != newer.Key {
		t.Fatalf("latest %s want %s", latest, newer.Key)
	}
}
