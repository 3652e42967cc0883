// Package cwriter implements the writable compound builder: stream chunking and hashing on write, handing encapsulated
// fragments to the fragment cache, and registering the finished compound
// with the pending-objects controller on close.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package cwriter

import (
	"context"
	"fmt"

	"github.com/FlorianSauer/fragstore/access"
	"github.com/FlorianSauer/fragstore/cmn/cos"
	"github.com/FlorianSauer/fragstore/encap"
	"github.com/FlorianSauer/fragstore/ferrors"
	"github.com/FlorianSauer/fragstore/meta"
	"github.com/FlorianSauer/fragstore/pack"
)

// Options configures one writer.
type Options struct {
	FragmentSize    int64
	CompressTag     string
	WrapTag         string
	Overwrite       bool
	Name            string
	Type            meta.CompoundType
}

// Writer builds one compound: Write any number of times, then Close
// exactly once. A Writer is not safe for concurrent use by multiple
// goroutines.
type Writer struct {
	opts    Options
	m       meta.Metadata
	pending *meta.Pending
	cache   *pack.Cache
	locks   *access.Manager[string]
	fragLocks *access.Manager[string]
	holder  access.Holder
	pipeline *encap.Pipeline

	streamHash *cos.CksumHash
	streamSize int64
	buf        []byte
	seqHashes  []cos.Cksum

	skipSet map[cos.Cksum]bool // fragments already reserved by an overwrite's existing sequence

	closed bool
	failed bool
}

// Open begins a write under OPTS: it takes the
// exclusive compound-name lock, checks for a colliding existing compound
// when Overwrite is false, and — when overwriting — takes parallel locks
// on every fragment hash the existing compound references so a
// concurrent GC can't remove them while this writer decides whether to
// reuse them.
func Open(ctx context.Context, opts Options, m meta.Metadata, p *meta.Pending, cache *pack.Cache, locks *access.Manager[string], fragLocks *access.Manager[string]) (*Writer, error) {
	if opts.FragmentSize <= 0 {
		return nil, fmt.Errorf("cwriter: fragment size must be positive")
	}
	holder := access.NewHolder()
	if err := locks.Exclusive(opts.Name, holder, true, 0); err != nil {
		return nil, err
	}

	w := &Writer{
		opts:       opts,
		m:          m,
		pending:    p,
		cache:      cache,
		locks:      locks,
		fragLocks:  fragLocks,
		holder:     holder,
		streamHash: cos.NewCksumHash(),
		skipSet:    make(map[cos.Cksum]bool),
	}

	pipeline, err := encap.New(encap.Tags{Compress: opts.CompressTag, Wrap: opts.WrapTag})
	if err != nil {
		locks.ExclusiveRelease(opts.Name, holder)
		return nil, err
	}
	w.pipeline = pipeline

	exists, err := m.HasCompound(ctx, opts.Name, 0)
	if err != nil {
		locks.ExclusiveRelease(opts.Name, holder)
		return nil, err
	}
	if exists && !opts.Overwrite {
		locks.ExclusiveRelease(opts.Name, holder)
		return nil, &ferrors.CompoundAlreadyExists{Name: opts.Name}
	}
	if exists && opts.Overwrite {
		existing, err := m.GetCompound(ctx, opts.Name, 0)
		if err != nil {
			locks.ExclusiveRelease(opts.Name, holder)
			return nil, err
		}
		existingSeq, err := m.GetSequence(ctx, existing.ID)
		if err != nil {
			locks.ExclusiveRelease(opts.Name, holder)
			return nil, err
		}
		ids := make([]meta.ID, len(existingSeq))
		for i, row := range existingSeq {
			ids[i] = row.FragmentID
		}
		frags, err := m.GetFragmentsByIDs(ctx, ids)
		if err != nil {
			locks.ExclusiveRelease(opts.Name, holder)
			return nil, err
		}
		for _, f := range frags {
			if err := fragLocks.Parallel(f.Hash.String(), true, 0); err != nil {
				w.rollbackFragLocks()
				locks.ExclusiveRelease(opts.Name, holder)
				return nil, err
			}
			w.skipSet[f.Hash] = true
		}
	}

	cache.OpenWriter()
	return w, nil
}

func (w *Writer) rollbackFragLocks() {
	for h := range w.skipSet {
		w.fragLocks.ParallelRelease(h.String())
	}
}

// Write appends plaintext bytes to the stream, cutting and handing off
// any complete fragment_size chunks.
func (w *Writer) Write(ctx context.Context, p []byte) error {
	if w.closed {
		return fmt.Errorf("cwriter: write after close")
	}
	if _, err := w.streamHash.Write(p); err != nil {
		return err
	}
	w.streamSize += int64(len(p))
	w.buf = append(w.buf, p...)
	for int64(len(w.buf)) >= w.opts.FragmentSize {
		cut := w.buf[:w.opts.FragmentSize]
		w.buf = append([]byte(nil), w.buf[w.opts.FragmentSize:]...)
		if err := w.cutFragment(ctx, cut); err != nil {
			w.failed = true
			return err
		}
	}
	return nil
}

func (w *Writer) cutFragment(ctx context.Context, plaintext []byte) error {
	encapsulated, err := w.pipeline.Encapsulate(plaintext)
	if err != nil {
		return err
	}
	hash := cos.SHA256(encapsulated)
	if !w.skipSet[hash] {
		if err := w.fragLocks.Parallel(hash.String(), true, 0); err != nil {
			return err
		}
		w.skipSet[hash] = true
	}
	if _, err := w.cache.Add(ctx, int64(len(plaintext)), encapsulated); err != nil {
		return err
	}
	w.seqHashes = append(w.seqHashes, hash)
	return nil
}

// Close flushes any residual buffer as a final (possibly undersized)
// fragment, registers the compound with the pending-objects controller,
// and releases every lock this writer holds. Append
// semantics are unsupported; a fresh Writer must always replace the
// entire stream.
func (w *Writer) Close(ctx context.Context) (*meta.Compound, error) {
	if w.closed {
		return nil, fmt.Errorf("cwriter: already closed")
	}
	w.closed = true
	defer w.releaseLocks()

	if len(w.buf) > 0 {
		if err := w.cutFragment(ctx, w.buf); err != nil {
			w.failed = true
			return nil, err
		}
		w.buf = nil
	}

	c := &meta.Compound{
		Name:        w.opts.Name,
		Type:        w.opts.Type,
		Hash:        w.streamHash.Sum(),
		Size:        w.streamSize,
		WrapTag:     w.opts.WrapTag,
		CompressTag: w.opts.CompressTag,
	}
	w.pending.AddCompound(&meta.PendingCompound{Compound: *c, Seq: w.seqHashes})

	if err := w.cache.CloseWriter(ctx, true); err != nil {
		w.failed = true
		return nil, err
	}
	return c, nil
}

// Abort discards this writer's reservations without registering a
// pending compound, used when the caller can't finish writing.
func (w *Writer) Abort(ctx context.Context) {
	if w.closed {
		return
	}
	w.closed = true
	w.failed = true
	_ = w.cache.CloseWriter(ctx, false)
	w.releaseLocks()
}

func (w *Writer) releaseLocks() {
	for h := range w.skipSet {
		w.fragLocks.ParallelRelease(h.String())
	}
	w.locks.ExclusiveRelease(w.opts.Name, w.holder)
}

func (w *Writer) Failed() bool { return w.failed }
