package engine

import (
	"context"
	"sort"

	"github.com/FlorianSauer/fragstore/access"
	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/encap"
	"github.com/FlorianSauer/fragstore/meta"
	"github.com/FlorianSauer/fragstore/pack"
)

// OptimizeResourceSpace repacks every resource whose unreferenced
// fraction is at or above unusedPct into a compact replacement holding
// only still-referenced fragments, moving the mapping over. The stale resource is left in place — after
// moveFragmentMappings it may still be shared by other fragments.
func (e *Engine) OptimizeResourceSpace(ctx context.Context, unusedPct float64) (int, error) {
	used, err := e.Meta.GetResourceWithReferencedFragmentSize(ctx)
	if err != nil {
		return 0, err
	}
	resources, err := e.Meta.ListResources(ctx)
	if err != nil {
		return 0, err
	}

	repacked := 0
	total := int64(len(resources))
	for _, r := range resources {
		if r.PayloadSize == 0 {
			continue
		}
		referenced := used[r.ID]
		unused := float64(r.PayloadSize-referenced) / float64(r.PayloadSize)
		if unused < unusedPct {
			e.reportProgress(1, total)
			continue
		}
		if err := e.repackResource(ctx, r); err != nil {
			return repacked, err
		}
		repacked++
		e.reportProgress(1, total)
	}
	return repacked, nil
}

func (e *Engine) repackResource(ctx context.Context, r *meta.Resource) error {
	holder := access.NewHolder()
	if err := e.resourceLocks.Exclusive(r.Name, holder, true, 0); err != nil {
		return err
	}
	defer e.resourceLocks.ExclusiveRelease(r.Name, holder)

	mappings, err := e.Meta.GetFragmentsWithOffsetOnResource(ctx, r.ID)
	if err != nil {
		return err
	}
	if len(mappings) == 0 {
		return nil
	}
	ids := make([]meta.ID, len(mappings))
	for i, m := range mappings {
		ids[i] = m.FragmentID
	}
	frags, err := e.Meta.GetFragmentsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	hashes := make([]string, len(frags))
	for i, f := range frags {
		hashes[i] = f.Hash.String()
	}
	fragRelease, err := e.fragLocks.MassAcquire(hashes, true, true, 0)
	if err != nil {
		return err
	}
	defer fragRelease()

	raw, err := e.Storage.Load(ctx, r.Name)
	if err != nil {
		return err
	}
	pipeline, err := encap.New(encap.Tags{Compress: r.CompressTag, Wrap: r.WrapTag})
	if err != nil {
		return err
	}
	payload, err := pipeline.Decapsulate(raw)
	if err != nil {
		return err
	}

	compact := make([]byte, 0, len(payload))
	offsets := make([]int64, len(mappings))
	for i, m := range mappings {
		f := frags[i]
		end := m.FragmentOffset + f.Size
		if end > int64(len(payload)) {
			continue
		}
		offsets[i] = int64(len(compact))
		compact = append(compact, payload[m.FragmentOffset:end]...)
	}

	newEncapsulated, err := pipeline.Encapsulate(compact)
	if err != nil {
		return err
	}
	newHash := cos.SHA256(newEncapsulated)
	name, err := e.Storage.Save(ctx, newEncapsulated, newHash)
	if err != nil {
		return err
	}
	newID, err := e.Meta.MakeResource(ctx, &meta.Resource{
		Name:        name,
		Size:        int64(len(newEncapsulated)),
		PayloadSize: int64(len(compact)),
		Hash:        newHash,
		WrapTag:     r.WrapTag,
		CompressTag: r.CompressTag,
	})
	if err != nil {
		return err
	}
	fragsCopy := make([]meta.Fragment, len(frags))
	for i, f := range frags {
		fragsCopy[i] = *f
	}
	if err := e.Meta.MakeAndMapFragmentsToResource(ctx, newID, fragsCopy, offsets); err != nil {
		return err
	}
	return e.Meta.MoveFragmentMappings(ctx, r.ID, newID)
}

// OptimizeResourceUsage folds under-filled resources into others by
// setting the cache's policy to FillAlways and readding each one's
// fragments, alternating the sort direction on every iteration so the
// fill doesn't always start from the same end.
func (e *Engine) OptimizeResourceUsage(ctx context.Context, fillPct float64) (int, error) {
	old := e.Cache.SetPolicy(pack.FillAlways)
	defer e.Cache.SetPolicy(old)

	touched := 0
	descending := true
	for {
		resources, err := e.Meta.ListResources(ctx)
		if err != nil {
			return touched, err
		}
		sort.Slice(resources, func(i, j int) bool {
			if descending {
				return resources[i].Size > resources[j].Size
			}
			return resources[i].Size < resources[j].Size
		})
		descending = !descending

		progressed := false
		for _, r := range resources {
			if r.PayloadSize == 0 {
				continue
			}
			fullness := float64(r.Size) / float64(e.Storage.MaxResourceSize())
			if fullness >= fillPct {
				continue
			}
			if err := e.Cache.ReaddResource(ctx, r.ID); err != nil {
				return touched, err
			}
			if err := e.Cache.Flush(ctx, true); err != nil {
				return touched, err
			}
			touched++
			progressed = true
		}
		if !progressed {
			return touched, nil
		}
	}
}

// DefragmentResources re-adds every fragment in first-compound-usage
// order (and then every currently unreferenced fragment) under the Pass
// policy, so sequentially-read fragments tend to land in the same
// resource.
func (e *Engine) DefragmentResources(ctx context.Context) (int, error) {
	old := e.Cache.SetPolicy(pack.Pass)
	defer e.Cache.SetPolicy(old)

	frags, err := e.Meta.GetAllFragmentsSortedByCompoundUsage(ctx)
	if err != nil {
		return 0, err
	}
	readded := 0
	for _, f := range frags {
		if err := e.Cache.ReaddFragment(ctx, f.Hash); err != nil {
			return readded, err
		}
		readded++
		e.reportProgress(1, int64(len(frags)))
	}

	unreferenced, err := e.Meta.GetUnreferencedFragments(ctx, 0)
	if err != nil {
		return readded, err
	}
	for _, f := range unreferenced {
		if err := e.Cache.ReaddFragment(ctx, f.Hash); err != nil {
			return readded, err
		}
		readded++
		e.reportProgress(1, int64(len(unreferenced)))
	}

	if err := e.Cache.Flush(ctx, true); err != nil {
		return readded, err
	}
	return readded, nil
}
