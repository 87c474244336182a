package storage

import (
	"context"
	"os"
	"testing"

	"vault_go/internal/engine"
)

func TestOpStore_AppendAndLoad(t *testing.T) {
	dbPath := "test_ops.db"
	defer os.Remove(dbPath)
	defer os.Remove(dbPath + "-wal")
	defer os.Remove(dbPath + "-shm")

	store, err := NewOpStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	if err := store.Append(ctx, 1, 1000, engine.OpSetTokenConfig, []byte(`{"asset":"eth"}`)); err != nil {
		t.Fatalf("Failed to append op 1: %v", err)
	}
	if err := store.Append(ctx, 2, 2000, engine.OpSwap, []byte(`{"asset_in":"eth"}`)); err != nil {
		t.Fatalf("Failed to append op 2: %v", err)
	}

	loaded, err := store.LoadOps(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to load ops: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Expected 2 ops, got %d", len(loaded))
	}
	if loaded[0].Seq != 1 || loaded[0].Kind != engine.OpSetTokenConfig || loaded[0].Ts != 1000 {
		t.Errorf("Op 1 mismatch: %+v", loaded[0])
	}
	if loaded[1].Seq != 2 || loaded[1].Kind != engine.OpSwap {
		t.Errorf("Op 2 mismatch: %+v", loaded[1])
	}
	if string(loaded[1].Payload) != `{"asset_in":"eth"}` {
		t.Errorf("Op 2 payload mismatch: %s", loaded[1].Payload)
	}

	// Loading past the tail returns nothing.
	tail, err := store.LoadOps(ctx, 3)
	if err != nil {
		t.Fatalf("Failed to load tail: %v", err)
	}
	if len(tail) != 0 {
		t.Errorf("Expected no ops past tail, got %d", len(tail))
	}
}

func TestOpStore_GetLastSeq(t *testing.T) {
	dbPath := "test_lastseq.db"
	defer os.Remove(dbPath)
	defer os.Remove(dbPath + "-wal")
	defer os.Remove(dbPath + "-shm")

	store, err := NewOpStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	lastSeq, err := store.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq failed: %v", err)
	}
	if lastSeq != 0 {
		t.Errorf("Expected 0 for empty DB, got %d", lastSeq)
	}

	if err := store.Append(ctx, 5, 1000, engine.OpAccrueFunding, []byte(`{}`)); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}
	if err := store.Append(ctx, 10, 2000, engine.OpAccrueFunding, []byte(`{}`)); err != nil {
		t.Fatalf("Failed to append: %v", err)
	}

	lastSeq, err = store.GetLastSeq(ctx)
	if err != nil {
		t.Fatalf("GetLastSeq failed: %v", err)
	}
	if lastSeq != 10 {
		t.Errorf("Expected 10, got %d", lastSeq)
	}
}

func TestOpStore_Metadata(t *testing.T) {
	dbPath := "test_meta.db"
	defer os.Remove(dbPath)
	defer os.Remove(dbPath + "-wal")
	defer os.Remove(dbPath + "-shm")

	store, err := NewOpStore(dbPath)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()

	v, err := store.GetMetadata(ctx, "missing")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if v != "" {
		t.Errorf("Expected empty value for missing key, got %q", v)
	}

	if err := store.UpsertMetadata(ctx, "schema", "1", 1000); err != nil {
		t.Fatalf("UpsertMetadata failed: %v", err)
	}
	if err := store.UpsertMetadata(ctx, "schema", "2", 2000); err != nil {
		t.Fatalf("UpsertMetadata upsert failed: %v", err)
	}

	v, err = store.GetMetadata(ctx, "schema")
	if err != nil {
		t.Fatalf("GetMetadata failed: %v", err)
	}
	if v != "2" {
		t.Errorf("Expected upserted value 2, got %q", v)
	}
}
