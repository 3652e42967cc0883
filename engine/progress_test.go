package engine

import (
	"context"
	"testing"
)

type recordingProgress struct {
	updates [][2]int64
}

func (p *recordingProgress) Update(delta, total int64) {
	p.updates = append(p.updates, [2]int64{delta, total})
}

func TestReportProgressNilIsNoop(t *testing.T) {
	e := &Engine{}
	e.reportProgress(1, 10) // must not panic
}

func TestReportProgressCallsHook(t *testing.T) {
	rp := &recordingProgress{}
	e := &Engine{Progress: rp}
	e.reportProgress(2, 5)
	if len(rp.updates) != 1 || rp.updates[0] != [2]int64{2, 5} {
		t.Fatalf("unexpected updates: %+v", rp.updates)
	}
}

func TestGCRunReportsProgressPerFragmentChunk(t *testing.T) {
	e := newTestEngine(t)
	rp := &recordingProgress{}
	e.Progress = rp

	ctx := context.Background()
	if _, err := e.SaveBytes(ctx, WriteOptions{Name: "x.txt"}, []byte("data")); err != nil {
		t.Fatalf("SaveBytes: %v", err)
	}
	if err := e.Delete(ctx, "x.txt", 0); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := e.CollectGarbage(ctx, GCOptions{}); err != nil {
		t.Fatalf("CollectGarbage: %v", err)
	}
	if len(rp.updates) == 0 {
		t.Fatal("expected at least one progress update during CollectGarbage")
	}
}
