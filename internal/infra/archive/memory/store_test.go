package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"sitcomledger/internal/archive/core"
)

func TestStorePutGetList(t *testing.T) {
	ctx := context.Background()
	store := New()
	if store.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	meta := map[string]string{"records": "3"}
	obj, err := store.Put(ctx, "snapshots/b.json", bytes.NewBufferString(`{"v":1}`), core.PutOptions{ContentType: "application/json", Metadata: meta})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	meta["records"] = "mutated"
	if obj.Size != 7 || obj.ETag == "" || obj.Metadata["records"] != "3" {
		t.Fatalf("unexpected object %+v", obj)
	}
	if _, err := store.Put(ctx, "snapshots/a.json", bytes.NewBufferString("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "other/c.json", bytes.NewBufferString("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, rc, err := store.Get(ctx, "snapshots/b.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"v":1}` || got.ContentType != "application/json" {
		t.Fatalf("unexpected get %+v %s", got, body)
	}

	list, err := store.List(ctx, "snapshots/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Key != "snapshots/a.json" || list[1].Key != "snapshots/b.json" {
		t.Fatalf("unexpected list %+v", list)
	}
	all, _ := store.List(ctx, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 objects, got %d", len(all))
	}
}

func TestStoreErrors(t *testing.T) {
	ctx := context.Background()
	store := New()
	if _, err := store.Put(ctx, " ", bytes.NewBufferString("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
		t.Fatalf("expected invalid key, got %v", err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewBufferString("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Put(ctx, "k", bytes.NewBufferString("y"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected exists, got %v", err)
	}
	if _, _, err := store.Get(ctx, "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
