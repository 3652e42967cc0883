package engine

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/encap"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/meta"
)

// consistencyConcurrency bounds how many resources/compounds
// StorageContent and AllCompounds verify at once.
const consistencyConcurrency = 16

// verifyResourceContent downloads r fresh and checks its length, hash,
// and decapsulated length against the metadata row.
func (e *Engine) verifyResourceContent(ctx context.Context, r *meta.Resource) error {
	raw, err := e.Storage.Load(ctx, r.Name)
	if err != nil {
		return err
	}
	if int64(len(raw)) != r.Size {
		return &ferrors.ResourceManipulated{ResourceName: r.Name, Reason: "length mismatch"}
	}
	if actual := cos.SHA256(raw); !actual.Equal(r.Hash) {
		return &ferrors.ResourceManipulated{ResourceName: r.Name, Reason: "hash mismatch"}
	}
	pipeline, err := encap.New(encap.Tags{Compress: r.CompressTag, Wrap: r.WrapTag})
	if err != nil {
		return err
	}
	payload, err := pipeline.Decapsulate(raw)
	if err != nil {
		return err
	}
	if int64(len(payload)) != r.PayloadSize {
		return &ferrors.ResourceManipulated{ResourceName: r.Name, Reason: "decapsulated length mismatch"}
	}
	return nil
}

// ConsistencyReport is the outcome of one named consistency check.
type ConsistencyReport struct {
	Name    string
	Ok      bool
	Details []error
}

// StorageConsistency verifies that every resource name recorded in
// metadata also appears in the backend's listing.
func (e *Engine) StorageConsistency(ctx context.Context) (ConsistencyReport, error) {
	report := ConsistencyReport{Name: "StorageConsistency", Ok: true}
	backendNames, err := e.Storage.List(ctx)
	if err != nil {
		return report, err
	}
	have := make(map[string]bool, len(backendNames))
	for _, n := range backendNames {
		have[n] = true
	}
	resources, err := e.Meta.ListResources(ctx)
	if err != nil {
		return report, err
	}
	for _, r := range resources {
		if !have[r.Name] {
			report.Ok = false
			report.Details = append(report.Details, &ferrors.ResourceMissing{ResourceName: r.Name})
		}
	}
	return report, nil
}

// MetaResourcelessFragments verifies no fragment lacks a
// fragment–resource mapping.
func (e *Engine) MetaResourcelessFragments(ctx context.Context) (ConsistencyReport, error) {
	report := ConsistencyReport{Name: "MetaResourcelessFragments", Ok: true}
	frags, err := e.Meta.GetFragmentsWithoutResourceMapping(ctx)
	if err != nil {
		return report, err
	}
	for _, f := range frags {
		report.Ok = false
		report.Details = append(report.Details, &ferrors.FragmentMissing{FragmentHash: f.Hash})
	}
	return report, nil
}

// MetaFragmentlessCompounds verifies no non-empty compound lacks a
// sequence mapping.
func (e *Engine) MetaFragmentlessCompounds(ctx context.Context) (ConsistencyReport, error) {
	report := ConsistencyReport{Name: "MetaFragmentlessCompounds", Ok: true}
	compounds, err := e.Meta.ListCompounds(ctx, meta.ListFilter{IncludeSnapshots: true})
	if err != nil {
		return report, err
	}
	for _, c := range compounds {
		if c.Size == 0 {
			continue
		}
		seq, err := e.Meta.GetSequence(ctx, c.ID)
		if err != nil {
			return report, err
		}
		if len(seq) == 0 {
			report.Ok = false
			report.Details = append(report.Details, fmt.Errorf("compound %q (version %d) has no sequence mapping", c.Name, c.Version))
		}
	}
	return report, nil
}

// StorageContent downloads and fully verifies every resource (length,
// hash, decapsulated length), fanning out over a bounded worker group.
func (e *Engine) StorageContent(ctx context.Context) (ConsistencyReport, error) {
	report := ConsistencyReport{Name: "StorageContent", Ok: true}
	resources, err := e.Meta.ListResources(ctx)
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	sema := make(chan struct{}, consistencyConcurrency)
	total := int64(len(resources))
	for _, r := range resources {
		r := r
		group.Go(func() error {
			select {
			case sema <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sema }()
			if err := e.verifyResourceContent(gctx, r); err != nil {
				mu.Lock()
				report.Ok = false
				report.Details = append(report.Details, err)
				mu.Unlock()
			}
			e.reportProgress(1, total)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// AllCompounds stream-loads every compound, discarding the bytes, relying
// on Load's own per-fragment and per-stream verification to surface
// FragmentManipulated/CompoundManipulated. Compounds are verified over a
// bounded worker group.
func (e *Engine) AllCompounds(ctx context.Context) (ConsistencyReport, error) {
	report := ConsistencyReport{Name: "AllCompounds", Ok: true}
	compounds, err := e.Meta.ListCompounds(ctx, meta.ListFilter{IncludeSnapshots: true})
	if err != nil {
		return report, err
	}

	var mu sync.Mutex
	group, gctx := errgroup.WithContext(ctx)
	sema := make(chan struct{}, consistencyConcurrency)
	total := int64(len(compounds))
	for _, c := range compounds {
		c := c
		group.Go(func() error {
			select {
			case sema <- struct{}{}:
			case <-gctx.Done():
				return nil
			}
			defer func() { <-sema }()
			if err := e.Load(gctx, c.Name, c.Version, func([]byte) error { return nil }); err != nil {
				mu.Lock()
				report.Ok = false
				report.Details = append(report.Details, err)
				mu.Unlock()
			}
			e.reportProgress(1, total)
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return report, err
	}
	return report, nil
}

// RepairReport summarizes one Repair run.
type RepairReport struct {
	Repaired     int
	Unrepairable int
}

// Repair looks, for each fragmentless compound, for another compound
// sharing the same content hash that still has a sequence mapping, and
// copies that mapping over.
func (e *Engine) Repair(ctx context.Context) (RepairReport, error) {
	var report RepairReport
	compounds, err := e.Meta.ListCompounds(ctx, meta.ListFilter{IncludeSnapshots: true})
	if err != nil {
		return report, err
	}

	byHash := make(map[[32]byte][]*meta.Compound)
	for _, c := range compounds {
		byHash[c.Hash] = append(byHash[c.Hash], c)
	}

	for _, c := range compounds {
		if c.Size == 0 {
			continue
		}
		seq, err := e.Meta.GetSequence(ctx, c.ID)
		if err != nil {
			return report, err
		}
		if len(seq) > 0 {
			continue
		}
		repaired := false
		for _, sibling := range byHash[c.Hash] {
			if sibling.ID == c.ID {
				continue
			}
			siblingSeq, err := e.Meta.GetSequence(ctx, sibling.ID)
			if err != nil {
				return report, err
			}
			if len(siblingSeq) == 0 {
				continue
			}
			copied := make([]meta.CompoundFragment, len(siblingSeq))
			for i, row := range siblingSeq {
				copied[i] = meta.CompoundFragment{FragmentID: row.FragmentID, SequenceIndex: i}
			}
			if err := e.Meta.AddOverwriteCompoundAndMapFragments(ctx, c, copied); err != nil {
				return report, err
			}
			repaired = true
			break
		}
		if repaired {
			report.Repaired++
		} else {
			report.Unrepairable++
		}
	}
	return report, nil
}
