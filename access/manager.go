// Package access implements the reader–writer lock table: one logical lock per value of a namespace (compound names,
// fragment hashes, resource names), with parallel (shared) and exclusive
// (single, re-entrant) modes, deadlock-free mass acquisition, and
// reference-counted teardown so idle values don't retain lock objects.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package access

import (
	"cmp"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/OneOfOne/xxhash"

	"github.com/FlorianSauer/fragstore/cmn/debug"
)

// entry is a reference-counted access object: count tracks how many
// goroutines currently reference it (held or waiting), so the last
// release can remove it from the shard map.
type entry struct {
	acc   *access
	count int
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Manager is the per-namespace lock table for values of type V. V must be
// ordered so MassAcquire can sort values into a canonical order before
// acquiring them, which is what makes concurrent overlapping mass
// acquisitions deadlock-free.
type Manager[V cmp.Ordered] struct {
	shards []*shard
	keyOf  func(V) string
}

// NewManager creates a Manager sharded across runtime.GOMAXPROCS(0)
// buckets. keyOf renders a namespace value to the string used as the map
// key and hash input (e.g. a compound name is already a string; a
// fragment hash uses cos.Cksum.String()).
func NewManager[V cmp.Ordered](keyOf func(V) string) *Manager[V] {
	return NewManagerWithShards[V](keyOf, 0)
}

// NewManagerWithShards is NewManager with an explicit shard count.
// shards<=0 falls back to runtime.GOMAXPROCS(0) (Access.LockShards in
// fscfg.Config lets callers override the default).
func NewManagerWithShards[V cmp.Ordered](keyOf func(V) string, shards int) *Manager[V] {
	n := shards
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	if n < 1 {
		n = 1
	}
	m := &Manager[V]{shards: make([]*shard, n), keyOf: keyOf}
	for i := range m.shards {
		m.shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return m
}

func (m *Manager[V]) shardFor(key string) *shard {
	h := xxhash.ChecksumString64(key)
	return m.shards[h%uint64(len(m.shards))]
}

// acquireEntry returns the access object for value, creating it and
// bumping its refcount if necessary. Must be paired with releaseEntry.
func (m *Manager[V]) acquireEntry(v V) (*access, *shard, string) {
	key := m.keyOf(v)
	sh := m.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.entries[key]
	if !ok {
		e = &entry{acc: newAccess()}
		sh.entries[key] = e
	}
	e.count++
	sh.mu.Unlock()
	return e.acc, sh, key
}

func (m *Manager[V]) releaseEntry(sh *shard, key string) {
	sh.mu.Lock()
	e, ok := sh.entries[key]
	debug.Assert(ok, "access: releaseEntry for a key with no live entry")
	if ok {
		e.count--
		if e.count <= 0 {
			delete(sh.entries, key)
		}
	}
	sh.mu.Unlock()
}

func deadlineFrom(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// Parallel acquires value for shared (parallel) access. blocking=false
// returns ErrNonBlocking immediately if unavailable; timeout<=0 with
// blocking=true waits indefinitely.
func (m *Manager[V]) Parallel(v V, blocking bool, timeout time.Duration) error {
	acc, sh, key := m.acquireEntry(v)
	if err := acc.acquireParallel(NewHolder(), blocking, deadlineFrom(timeout)); err != nil {
		m.releaseEntry(sh, key)
		return err
	}
	return nil
}

// ParallelRelease releases a value acquired via Parallel.
func (m *Manager[V]) ParallelRelease(v V) {
	key := m.keyOf(v)
	sh := m.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.entries[key]
	sh.mu.Unlock()
	if !ok {
		return
	}
	e.acc.releaseParallel()
	m.releaseEntry(sh, key)
}

// Exclusive acquires value for exclusive access under the given Holder
// (re-entrant: the same Holder may call Exclusive again without
// blocking, and must release once per acquisition).
func (m *Manager[V]) Exclusive(v V, h Holder, blocking bool, timeout time.Duration) error {
	acc, sh, key := m.acquireEntry(v)
	if err := acc.acquireExclusive(h, blocking, deadlineFrom(timeout)); err != nil {
		m.releaseEntry(sh, key)
		return err
	}
	return nil
}

// ExclusiveRelease releases one level of exclusive access acquired via
// Exclusive under Holder h.
func (m *Manager[V]) ExclusiveRelease(v V, h Holder) {
	key := m.keyOf(v)
	sh := m.shardFor(key)
	sh.mu.Lock()
	e, ok := sh.entries[key]
	sh.mu.Unlock()
	if !ok {
		return
	}
	e.acc.releaseExclusive(h)
	m.releaseEntry(sh, key)
}

// MassAcquire acquires every value in values under the same mode
// (exclusive or parallel), ordering them by V's natural ordering first so
// two callers mass-acquiring overlapping-but-differently-ordered sets
// (e.g. {a,b} and {b,a}) can't deadlock against each other. On partial failure every value already acquired by
// this call is released before the error is returned.
//
// release is non-nil only on success; the caller must call it exactly
// once to release every value acquired by this call.
func (m *Manager[V]) MassAcquire(values []V, exclusive bool, blocking bool, timeout time.Duration) (release func(), err error) {
	ordered := slices.Clone(values)
	slices.SortFunc(ordered, func(a, b V) int { return cmp.Compare(a, b) })

	h := NewHolder()
	acquired := make([]V, 0, len(ordered))
	for _, v := range ordered {
		if exclusive {
			err = m.Exclusive(v, h, blocking, timeout)
		} else {
			err = m.Parallel(v, blocking, timeout)
		}
		if err != nil {
			m.releaseAll(acquired, exclusive, h)
			return nil, err
		}
		acquired = append(acquired, v)
	}
	return func() { m.releaseAll(acquired, exclusive, h) }, nil
}

func (m *Manager[V]) releaseAll(values []V, exclusive bool, h Holder) {
	for i := len(values) - 1; i >= 0; i-- {
		if exclusive {
			m.ExclusiveRelease(values[i], h)
		} else {
			m.ParallelRelease(values[i])
		}
	}
}
