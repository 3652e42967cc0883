// Package engine implements the facade: save/load,
// copy/rename/snapshot/delete, wipe, statistics, and the maintenance
// algorithms (garbage collection, space/usage optimization,
// defragmentation, consistency checks, repair) over the lower
// components (meta, pack, cwriter, access, store).
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package engine

import (
	"context"
	"io"

	"github.com/FlorianSauer/fragstore/access"
	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/cwriter"
	"github.com/FlorianSauer/fragstore/encap"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/fsstats"
	"github.com/FlorianSauer/fragstore/meta"
	"github.com/FlorianSauer/fragstore/pack"
	"github.com/FlorianSauer/fragstore/store"
	"github.com/FlorianSauer/fragstore/stream"
)

// Engine is the top-level entry point wiring every component together.
// All exported methods are safe for concurrent use from multiple
// goroutines.
type Engine struct {
	Meta     meta.Metadata
	Storage  store.Storage
	Cache    *pack.Cache
	Pending  *meta.Pending
	Stats    *fsstats.Registry // nil disables metrics
	Progress Progress          // nil disables progress reporting

	compoundLocks *access.Manager[string]
	fragLocks     *access.Manager[string]
	resourceLocks *access.Manager[string]

	DefaultFragmentSize int64
	DefaultCompressTag  string
	DefaultWrapTag      string
}

// New wires an Engine over the given metadata store and backend, using
// cfg for the fragment cache's packing policy defaults.
func New(m meta.Metadata, s store.Storage, cfg pack.Config) *Engine {
	pending := meta.NewPending()
	return &Engine{
		Meta:                m,
		Storage:             s,
		Cache:               pack.NewCache(cfg, m, pending, s),
		Pending:             pending,
		compoundLocks:       access.NewManager[string](func(v string) string { return v }),
		fragLocks:           access.NewManager[string](func(v string) string { return v }),
		resourceLocks:       access.NewManager[string](func(v string) string { return v }),
		DefaultFragmentSize: 4 << 20, // 4 MiB
		DefaultCompressTag:  "pass",
		DefaultWrapTag:      "pass",
	}
}

// WriteOptions configures SaveBytes/SaveStream/OpenWritable.
type WriteOptions struct {
	Name             string
	Type             meta.CompoundType
	FragmentSize     int64
	CompressTag      string
	WrapTag          string
	Overwrite        bool
	PreCalcStreamHash bool
}

func (e *Engine) fillDefaults(opts *WriteOptions) {
	if opts.FragmentSize <= 0 {
		opts.FragmentSize = e.DefaultFragmentSize
	}
	if opts.CompressTag == "" {
		opts.CompressTag = e.DefaultCompressTag
	}
	if opts.WrapTag == "" {
		opts.WrapTag = e.DefaultWrapTag
	}
}

// OpenWritable starts a new compound write. The caller must Write then Close (or Abort).
func (e *Engine) OpenWritable(ctx context.Context, opts WriteOptions) (*cwriter.Writer, error) {
	e.fillDefaults(&opts)
	return cwriter.Open(ctx, cwriter.Options{
		FragmentSize: opts.FragmentSize,
		CompressTag:  opts.CompressTag,
		WrapTag:      opts.WrapTag,
		Overwrite:    opts.Overwrite,
		Name:         opts.Name,
		Type:         opts.Type,
	}, e.Meta, e.Pending, e.Cache, e.compoundLocks, e.fragLocks)
}

// SaveBytes writes data as a compound in one call. When opts.Overwrite and opts.PreCalcStreamHash are both set and the name already
// exists, a matching content hash short-circuits as CompoundAlreadyExists
// without writing anything.
func (e *Engine) SaveBytes(ctx context.Context, opts WriteOptions, data []byte) (*meta.Compound, error) {
	e.fillDefaults(&opts)
	if opts.Overwrite && opts.PreCalcStreamHash {
		if existing, err := e.Meta.GetCompound(ctx, opts.Name, 0); err == nil {
			if existing.Hash.Equal(cos.SHA256(data)) {
				return nil, &ferrors.CompoundAlreadyExists{Name: opts.Name}
			}
		}
	}
	w, err := e.OpenWritable(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Write(ctx, data); err != nil {
		w.Abort(ctx)
		return nil, err
	}
	c, err := w.Close(ctx)
	if err == nil {
		e.Stats.CompoundSaved()
	}
	return c, err
}

// Load streams the plaintext of compound name/version back to yield,
// verifying every fragment and the whole-stream hash. yield is called once per fragment's plaintext, in order; an
// error from yield aborts the load (e.g. the caller cancelled).
func (e *Engine) Load(ctx context.Context, name string, version int, yield func([]byte) error) error {
	if err := e.compoundLocks.Parallel(name, true, 0); err != nil {
		return err
	}
	defer e.compoundLocks.ParallelRelease(name)

	c, err := e.lookupCompound(ctx, name, version)
	if err != nil {
		return err
	}
	seq, err := e.Meta.GetSequence(ctx, c.ID)
	if err != nil {
		return err
	}
	ids := make([]meta.ID, len(seq))
	for i, row := range seq {
		ids[i] = row.FragmentID
	}
	frags, err := e.Meta.GetFragmentsByIDs(ctx, ids)
	if err != nil {
		return err
	}

	pipeline, err := encap.New(encap.Tags{Compress: c.CompressTag, Wrap: c.WrapTag})
	if err != nil {
		return err
	}

	running := cos.NewCksumHash()
	total := int64(len(frags))
	for _, f := range frags {
		key := f.Hash.String()
		if err := e.fragLocks.Parallel(key, true, 0); err != nil {
			return err
		}
		err := e.loadOneFragment(ctx, pipeline, f, running, yield)
		e.fragLocks.ParallelRelease(key)
		if err != nil {
			return err
		}
		e.reportProgress(1, total)
	}

	if !running.Sum().Equal(c.Hash) {
		e.Stats.ManipulatedHit()
		return &ferrors.CompoundManipulated{Name: name}
	}
	e.Stats.CompoundLoaded()
	return nil
}

// LoadReader adapts Load's per-fragment yield callback into an
// io.ReadCloser for callers that want ordinary streaming I/O. The
// returned reader must be closed; closing it before EOF aborts the
// underlying Load.
func (e *Engine) LoadReader(ctx context.Context, name string, version int) io.ReadCloser {
	return stream.ReaderFromFragments(ctx, func(ctx context.Context, yield func([]byte) error) error {
		return e.Load(ctx, name, version, yield)
	})
}

// LoadBytes is a convenience wrapper around Load that buffers the whole
// stream in memory.
func (e *Engine) LoadBytes(ctx context.Context, name string, version int) ([]byte, error) {
	var out []byte
	err := e.Load(ctx, name, version, func(p []byte) error {
		out = append(out, p...)
		return nil
	})
	return out, err
}

// loadOneFragment fetches, verifies, decapsulates, and yields a single
// fragment's plaintext, folding it into running as it goes. Called with
// the fragment's shared lock held.
func (e *Engine) loadOneFragment(ctx context.Context, pipeline *encap.Pipeline, f *meta.Fragment, running *cos.CksumHash, yield func([]byte) error) error {
	encapsulated, err := e.Cache.Load(ctx, f.Hash)
	if err != nil {
		return err
	}
	if int64(len(encapsulated)) != f.Size {
		e.Stats.ManipulatedHit()
		return &ferrors.FragmentManipulated{FragmentHash: f.Hash, Reason: "length mismatch"}
	}
	if actual := cos.SHA256(encapsulated); !actual.Equal(f.Hash) {
		e.Stats.ManipulatedHit()
		return &ferrors.FragmentManipulated{FragmentHash: f.Hash, Reason: "hash mismatch"}
	}
	plaintext, err := pipeline.Decapsulate(encapsulated)
	if err != nil {
		return err
	}
	if _, err := running.Write(plaintext); err != nil {
		return err
	}
	return yield(plaintext)
}

func (e *Engine) lookupCompound(ctx context.Context, name string, version int) (*meta.Compound, error) {
	if version == 0 {
		if pc, ok := e.Pending.LookupCompoundByName(name); ok {
			c := pc.Compound
			return &c, nil
		}
	}
	return e.Meta.GetCompound(ctx, name, version)
}

func hashStrings(frags []*meta.Fragment) []string {
	out := make([]string, len(frags))
	for i, f := range frags {
		out[i] = f.Hash.String()
	}
	return out
}

