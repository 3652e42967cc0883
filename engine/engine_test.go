package engine

import (
	"context"
	"io"
	"testing"

	"github.com/FlorianSauer/fragstore/fscfg"
	"github.com/FlorianSauer/fragstore/meta"
	"github.com/FlorianSauer/fragstore/meta/memdb"
	"github.com/FlorianSauer/fragstore/pack"
	"github.com/FlorianSauer/fragstore/store"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	db, err := memdb.Open(":memory:")
	if err != nil {
		t.Fatalf("memdb.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	backend := store.NewMemory(1<<20, "")
	return New(db, backend, pack.DefaultConfig())
}

func TestSaveBytesThenLoadBytesRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	data := []byte("the quick brown fox jumps over the lazy dog")
	_, err := e.SaveBytes(ctx, WriteOptions{Name: "doc.txt"}, data)
	if err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}

	got, err := e.LoadBytes(ctx, "doc.txt", 0)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, data)
	}
}

func TestSaveBytesOverwriteRejectsExistingName(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.SaveBytes(ctx, WriteOptions{Name: "a.txt"}, []byte("v1")); err != nil {
		t.Fatalf("SaveBytes v1: %v", err)
	}
	_, err := e.SaveBytes(ctx, WriteOptions{Name: "a.txt", Overwrite: false}, []byte("v2"))
	if err == nil {
		t.Fatal("expected CompoundAlreadyExists on a non-overwrite save of an existing name")
	}
}

func TestCopySharesFragmentsWithSource(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	data := []byte("shared content")
	if _, err := e.SaveBytes(ctx, WriteOptions{Name: "src.txt"}, data); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}
	if _, err := e.Copy(ctx, "src.txt", "dst.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}

	got, err := e.LoadBytes(ctx, "dst.txt", 0)
	if err != nil {
		t.Fatalf("LoadBytes dst: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("copy mismatch: got %q, want %q", got, data)
	}
}

func TestDeleteThenCollectGarbageReclaimsFragments(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	data := []byte("to be deleted")
	if _, err := e.SaveBytes(ctx, WriteOptions{Name: "gone.txt"}, data); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}
	if err := e.Delete(ctx, "gone.txt", 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	report, err := e.CollectGarbage(ctx, GCOptions{})
	if err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}
	if report.FragmentsDeleted == 0 {
		t.Fatal("expected CollectGarbage to reclaim the orphaned fragment")
	}

	if _, err := e.Meta.GetCompound(ctx, "gone.txt", 0); err == nil {
		t.Fatal("deleted compound should no longer resolve")
	}
}

func TestWipeAllRemovesEveryCompound(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	for _, name := range []string{"a.txt", "b.txt", "c.txt"} {
		if _, err := e.SaveBytes(ctx, WriteOptions{Name: name}, []byte(name)); err != nil {
			t.Fatalf("SaveBytes %s: %v", name, err)
		}
	}

	if err := e.WipeAll(ctx, true); err != nil {
		t.Fatalf("WipeAll: %v", err)
	}

	list, err := e.List(ctx, meta.ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no compounds after WipeAll, got %d", len(list))
	}
}

func TestNewFromConfigAppliesFragmentAndEncapDefaults(t *testing.T) {
	db, err := memdb.Open(":memory:")
	if err != nil {
		t.Fatalf("memdb.Open: %v", err)
	}
	defer db.Close()
	backend := store.NewMemory(1<<20, "")

	cfg := fscfg.Default()
	cfg.Fragment.DefaultSize = 1 << 10
	cfg.Encap.DefaultCompressTag = "pass"
	cfg.Encap.DefaultWrapTag = "pass"
	cfg.Access.LockShards = 4
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	e := NewFromConfig(cfg, db, backend)
	if e.DefaultFragmentSize != 1<<10 {
		t.Fatalf("DefaultFragmentSize = %d, want %d", e.DefaultFragmentSize, 1<<10)
	}

	ctx := context.Background()
	if _, err := e.SaveBytes(ctx, WriteOptions{Name: "cfg.txt"}, []byte("via config")); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}
	got, err := e.LoadBytes(ctx, "cfg.txt", 0)
	if err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	if string(got) != "via config" {
		t.Fatalf("got %q", got)
	}
}

func TestLoadReaderStreamsCompoundBytes(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	data := []byte("streamed via io.Reader")
	if _, err := e.SaveBytes(ctx, WriteOptions{Name: "stream.txt"}, data); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}

	r := e.LoadReader(ctx, "stream.txt", 0)
	defer r.Close()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != string(data) {
		t.Fatalf("got %q, want %q", got, data)
	}
}

func TestStorageConsistencyOkOnFreshEngine(t *testing.T) {
	e := newTestEngine(t)
	ctx := context.Background()

	if _, err := e.SaveBytes(ctx, WriteOptions{Name: "fine.txt"}, []byte("all good")); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}
	if err := e.Cache.Flush(ctx, true); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	report, err := e.StorageConsistency(ctx)
	if err != nil {
		t.Fatalf("StorageConsistency: %v", err)
	}
	if !report.Ok {
		t.Fatalf("expected a consistent store, got details: %v", report.Details)
	}
}
