package engine

import (
	"context"

	"github.com/FlorianSauer/fragstore/access"
	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/meta"
)

// GCOptions configures CollectGarbage.
type GCOptions struct {
	KeepFragments             bool
	KeepResources             bool
	KeepUnreferencedResources bool
	ChunkSize                 int // default 500
}

// GCReport summarizes one CollectGarbage run.
type GCReport struct {
	FragmentsDeleted      int
	ResourcesDeleted      int
	BackendOrphansDeleted int
}

func (o GCOptions) chunkSize() int {
	if o.ChunkSize > 0 {
		return o.ChunkSize
	}
	return 500
}

// CollectGarbage reclaims fragments and resources no longer referenced by
// any compound.
func (e *Engine) CollectGarbage(ctx context.Context, opts GCOptions) (GCReport, error) {
	var report GCReport
	e.Stats.GCRun()

	if !opts.KeepFragments {
		n, err := e.collectUnreferencedFragments(ctx, opts.chunkSize())
		if err != nil {
			return report, err
		}
		report.FragmentsDeleted = n
	}

	if !opts.KeepResources {
		n, err := e.collectUnreferencedResources(ctx)
		if err != nil {
			return report, err
		}
		report.ResourcesDeleted = n
	}

	if !opts.KeepUnreferencedResources {
		n, err := e.collectBackendOrphans(ctx)
		if err != nil {
			return report, err
		}
		report.BackendOrphansDeleted = n
	}

	e.Stats.GCReclaimed(report.FragmentsDeleted, report.ResourcesDeleted)
	return report, nil
}

// collectUnreferencedFragments finds fragments with no sequence-mapping
// reference, mass-exclusive-locks them by hash in chunks, and deletes
// each chunk (cascading their resource mapping rows).
func (e *Engine) collectUnreferencedFragments(ctx context.Context, chunkSize int) (int, error) {
	deleted := 0
	for {
		frags, err := e.Meta.GetUnreferencedFragments(ctx, chunkSize)
		if err != nil {
			return deleted, err
		}
		if len(frags) == 0 {
			return deleted, nil
		}

		hashes := make([]string, len(frags))
		ids := make([]meta.ID, len(frags))
		sums := make([]cos.Cksum, len(frags))
		for i, f := range frags {
			hashes[i] = f.Hash.String()
			ids[i] = f.ID
			sums[i] = f.Hash
		}
		release, err := e.fragLocks.MassAcquire(hashes, true, true, 0)
		if err != nil {
			return deleted, err
		}
		err = e.Meta.DeleteFragments(ctx, ids)
		release()
		if err != nil {
			return deleted, err
		}
		e.Cache.ForgetFragments(sums)
		deleted += len(frags)
		e.reportProgress(int64(len(frags)), 0)
	}
}

// collectUnreferencedResources finds resources with no fragment mapping
// left, deletes their backend blob, then their metadata row.
func (e *Engine) collectUnreferencedResources(ctx context.Context) (int, error) {
	resources, err := e.Meta.GetUnreferencedResources(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, r := range resources {
		holder := access.NewHolder()
		if err := e.resourceLocks.Exclusive(r.Name, holder, true, 0); err != nil {
			return deleted, err
		}
		err := e.Storage.Delete(ctx, r.Name)
		if err == nil {
			err = e.Meta.DeleteResource(ctx, r.ID)
		}
		e.resourceLocks.ExclusiveRelease(r.Name, holder)
		if err != nil {
			return deleted, err
		}
		deleted++
		e.reportProgress(1, int64(len(resources)))
	}
	return deleted, nil
}

// collectBackendOrphans lists the backend, subtracts every name known to
// metadata, and deletes the remainder: blobs the backend holds that no
// resource row references at all.
func (e *Engine) collectBackendOrphans(ctx context.Context) (int, error) {
	names, err := e.Storage.List(ctx)
	if err != nil {
		return 0, err
	}
	known, err := e.Meta.ListResources(ctx)
	if err != nil {
		return 0, err
	}
	knownNames := make(map[string]bool, len(known))
	for _, r := range known {
		knownNames[r.Name] = true
	}

	deleted := 0
	for _, name := range names {
		if knownNames[name] {
			continue
		}
		if err := e.Storage.Delete(ctx, name); err != nil {
			return deleted, err
		}
		deleted++
		e.reportProgress(1, int64(len(names)))
	}
	return deleted, nil
}
