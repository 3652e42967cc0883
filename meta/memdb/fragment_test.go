package memdb

import (
	"context"
	"testing"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/meta"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func makeFragment(t *testing.T, s *Store, payload string) *meta.Fragment {
	t.Helper()
	hash := cos.SHA256([]byte(payload))
	f := &meta.Fragment{Hash: hash, Size: int64(len(payload)), PayloadSize: int64(len(payload))}
	id, err := s.MakeFragment(context.Background(), f)
	if err != nil {
		t.Fatalf("MakeFragment: %v", err)
	}
	f.ID = id
	return f
}

// TestGetUnreferencedFragments_ReferencedByCompound verifies that a
// fragment reachable only through a compound's sequence mapping (no
// fragment-resource mapping yet) is NOT reported as unreferenced: the
// query models compound-reference GC semantics, not resource-mapping
// presence.
func TestGetUnreferencedFragments_ReferencedByCompound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := makeFragment(t, s, "referenced payload")

	c := &meta.Compound{Name: "doc", Hash: cos.SHA256([]byte("doc")), Size: 1}
	seq := []meta.CompoundFragment{{FragmentID: f.ID, SequenceIndex: 0}}
	if err := s.AddOverwriteCompoundAndMapFragments(ctx, c, seq); err != nil {
		t.Fatalf("AddOverwriteCompoundAndMapFragments: %v", err)
	}

	unreferenced, err := s.GetUnreferencedFragments(ctx, 0)
	if err != nil {
		t.Fatalf("GetUnreferencedFragments: %v", err)
	}
	for _, u := range unreferenced {
		if u.ID == f.ID {
			t.Fatalf("fragment %d has a live compound sequence mapping, should not be unreferenced", f.ID)
		}
	}
}

// TestGetUnreferencedFragments_NoCompound verifies that a fragment row
// with no compound sequence mapping at all (even though it has a
// resource mapping) IS reported as unreferenced.
func TestGetUnreferencedFragments_NoCompound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := makeFragment(t, s, "orphan payload")
	r := &meta.Resource{Name: "res-1", Size: 100, PayloadSize: int64(f.Size), Hash: cos.SHA256([]byte("res"))}
	resID, err := s.MakeResource(ctx, r)
	if err != nil {
		t.Fatalf("MakeResource: %v", err)
	}
	if err := s.MakeAndMapFragmentsToResource(ctx, resID, []meta.Fragment{*f}, []int64{0}); err != nil {
		t.Fatalf("MakeAndMapFragmentsToResource: %v", err)
	}

	unreferenced, err := s.GetUnreferencedFragments(ctx, 0)
	if err != nil {
		t.Fatalf("GetUnreferencedFragments: %v", err)
	}
	found := false
	for _, u := range unreferenced {
		if u.ID == f.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("fragment %d has no compound sequence mapping, should be reported unreferenced", f.ID)
	}

	// But it DOES have a resource mapping, so the consistency check must
	// not flag it.
	resourceless, err := s.GetFragmentsWithoutResourceMapping(ctx)
	if err != nil {
		t.Fatalf("GetFragmentsWithoutResourceMapping: %v", err)
	}
	for _, u := range resourceless {
		if u.ID == f.ID {
			t.Fatalf("fragment %d has a resource mapping, should not appear in GetFragmentsWithoutResourceMapping", f.ID)
		}
	}
}

// TestGetFragmentsWithoutResourceMapping_Missing verifies a fragment row
// created without ever being mapped to a resource is reported by
// GetFragmentsWithoutResourceMapping even though a compound references
// it (the two queries are independent axes).
func TestGetFragmentsWithoutResourceMapping_Missing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := makeFragment(t, s, "mapping-less payload")
	c := &meta.Compound{Name: "doc2", Hash: cos.SHA256([]byte("doc2")), Size: 1}
	seq := []meta.CompoundFragment{{FragmentID: f.ID, SequenceIndex: 0}}
	if err := s.AddOverwriteCompoundAndMapFragments(ctx, c, seq); err != nil {
		t.Fatalf("AddOverwriteCompoundAndMapFragments: %v", err)
	}

	resourceless, err := s.GetFragmentsWithoutResourceMapping(ctx)
	if err != nil {
		t.Fatalf("GetFragmentsWithoutResourceMapping: %v", err)
	}
	found := false
	for _, u := range resourceless {
		if u.ID == f.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("fragment %d has no resource mapping, should be reported by GetFragmentsWithoutResourceMapping", f.ID)
	}
}

func TestGetUnreferencedFragments_Limit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		makeFragment(t, s, string(rune('a'+i))+"-unused")
	}

	out, err := s.GetUnreferencedFragments(ctx, 3)
	if err != nil {
		t.Fatalf("GetUnreferencedFragments: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected limit of 3, got %d", len(out))
	}
}
