package engine

import (
	"context"

	"github.com/FlorianSauer/fragstore/access"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/meta"
)

// Copy duplicates src's current content under dst as a brand-new live
// compound, sharing src's fragments.
func (e *Engine) Copy(ctx context.Context, src, dst string) (*meta.Compound, error) {
	release, err := e.compoundLocks.MassAcquire([]string{src, dst}, true, true, 0)
	if err != nil {
		return nil, err
	}
	defer release()

	srcC, err := e.Meta.GetCompound(ctx, src, 0)
	if err != nil {
		return nil, err
	}
	if has, err := e.Meta.HasCompound(ctx, dst, 0); err != nil {
		return nil, err
	} else if has {
		return nil, &ferrors.CompoundAlreadyExists{Name: dst}
	}

	seq, err := e.Meta.GetSequence(ctx, srcC.ID)
	if err != nil {
		return nil, err
	}
	ids := make([]meta.ID, len(seq))
	for i, row := range seq {
		ids[i] = row.FragmentID
	}
	frags, err := e.Meta.GetFragmentsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	fragRelease, err := e.fragLocks.MassAcquire(hashStrings(frags), true, true, 0)
	if err != nil {
		return nil, err
	}
	defer fragRelease()

	dstC := &meta.Compound{
		Name:        dst,
		Type:        srcC.Type,
		Hash:        srcC.Hash,
		Size:        srcC.Size,
		WrapTag:     srcC.WrapTag,
		CompressTag: srcC.CompressTag,
	}
	newSeq := make([]meta.CompoundFragment, len(seq))
	for i, row := range seq {
		newSeq[i] = meta.CompoundFragment{FragmentID: row.FragmentID, SequenceIndex: i}
	}
	if err := e.Meta.AddOverwriteCompoundAndMapFragments(ctx, dstC, newSeq); err != nil {
		return nil, err
	}
	return dstC, nil
}

// Snapshot freezes the current live content of name under the next free
// positive version.
func (e *Engine) Snapshot(ctx context.Context, name string) (*meta.Compound, error) {
	holder := access.NewHolder()
	if err := e.compoundLocks.Exclusive(name, holder, true, 0); err != nil {
		return nil, err
	}
	defer e.compoundLocks.ExclusiveRelease(name, holder)

	live, err := e.Meta.GetCompound(ctx, name, 0)
	if err != nil {
		return nil, err
	}
	return e.Meta.MakeSnapshot(ctx, live)
}

// Rename moves oldName to newName, forbidding collision with an existing
// target.
func (e *Engine) Rename(ctx context.Context, oldName, newName string, withSnapshots bool) error {
	release, err := e.compoundLocks.MassAcquire([]string{oldName, newName}, true, true, 0)
	if err != nil {
		return err
	}
	defer release()

	if has, err := e.Meta.HasCompound(ctx, newName, 0); err != nil {
		return err
	} else if has {
		return &ferrors.CompoundAlreadyExists{Name: newName}
	}
	return e.Meta.RenameCompound(ctx, oldName, newName, withSnapshots)
}

// Delete removes the single compound row of name at version (0 for the
// live row) together with its sequence mapping. Other versions of name are
// not removed; each snapshot is deleted by its own call with its version.
// Fragments and resources are untouched; CollectGarbage reclaims them.
func (e *Engine) Delete(ctx context.Context, name string, version int) error {
	holder := access.NewHolder()
	if err := e.compoundLocks.Exclusive(name, holder, true, 0); err != nil {
		return err
	}
	defer e.compoundLocks.ExclusiveRelease(name, holder)

	return e.Meta.DeleteCompound(ctx, name, version)
}

// List forwards to the metadata store's filtered compound listing.
func (e *Engine) List(ctx context.Context, filter meta.ListFilter) ([]*meta.Compound, error) {
	return e.Meta.ListCompounds(ctx, filter)
}

// WipeAll truncates the compound table and, if collectGarbage, reclaims
// every now-unreferenced fragment and resource afterwards.
func (e *Engine) WipeAll(ctx context.Context, collectGarbage bool) error {
	all, err := e.Meta.ListCompounds(ctx, meta.ListFilter{IncludeSnapshots: true})
	if err != nil {
		return err
	}
	names := make([]string, 0, len(all))
	seen := make(map[string]bool)
	for _, c := range all {
		if !seen[c.Name] {
			seen[c.Name] = true
			names = append(names, c.Name)
		}
	}
	release, err := e.compoundLocks.MassAcquire(names, true, true, 0)
	if err != nil {
		return err
	}
	defer release()

	if err := e.Meta.Wipe(ctx); err != nil {
		return err
	}
	if collectGarbage {
		_, err := e.CollectGarbage(ctx, GCOptions{})
		return err
	}
	return nil
}

// Statistics reports the aggregate counts and sums over the metadata
// store, also pushing the snapshot into e.Stats if configured.
func (e *Engine) Statistics(ctx context.Context) (meta.Stats, error) {
	s, err := e.Meta.Stats(ctx)
	if err == nil {
		e.Stats.Observe(s)
	}
	return s, err
}

