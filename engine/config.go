/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package engine

import (
	"github.com/FlorianSauer/fragstore/access"
	"github.com/FlorianSauer/fragstore/fscfg"
	"github.com/FlorianSauer/fragstore/meta"
	"github.com/FlorianSauer/fragstore/pack"
	"github.com/FlorianSauer/fragstore/store"
)

// packConfigFrom translates fscfg's JSON-friendly PackConf into pack.Config.
// cfg is assumed already Validate()d.
func packConfigFrom(cfg fscfg.Config) pack.Config {
	p := pack.DefaultConfig()
	p.CompressTagResource = cfg.Encap.DefaultCompressTag
	p.WrapTagResource = cfg.Encap.DefaultWrapTag
	p.GCChunkSize = cfg.GC.ChunkSize
	if cfg.Pack.Binning == "bin_packing" {
		p.Strategy = pack.BinPacking
	} else {
		p.Strategy = pack.Filling
	}
	switch cfg.Pack.Policy {
	case "pass":
		p.AutoDeleteResource = false
	case "fill_always":
		p.AutoDeleteResource = true
	case "fill":
		p.AutoDeleteResource = true
	}
	return p
}

// NewFromConfig wires an Engine the way New does, but takes its tunables
// from a single fscfg.Config instead of a bare pack.Config: fragment
// chunking, default encap tags, GC chunk size, packing policy, and the
// access manager's lock-table shard count all come from cfg.
func NewFromConfig(cfg fscfg.Config, m meta.Metadata, s store.Storage) *Engine {
	if cfg.Log.VerboseStorage {
		s = store.NewVerbose(s)
	}
	pending := meta.NewPending()
	shards := cfg.Access.LockShards
	e := &Engine{
		Meta:          m,
		Storage:       s,
		Cache:         pack.NewCache(packConfigFrom(cfg), m, pending, s),
		Pending:       pending,
		compoundLocks: access.NewManagerWithShards[string](func(v string) string { return v }, shards),
		fragLocks:     access.NewManagerWithShards[string](func(v string) string { return v }, shards),
		resourceLocks: access.NewManagerWithShards[string](func(v string) string { return v }, shards),
		DefaultCompressTag: cfg.Encap.DefaultCompressTag,
		DefaultWrapTag:     cfg.Encap.DefaultWrapTag,
	}
	if cfg.Fragment.DefaultSize > 0 {
		e.DefaultFragmentSize = cfg.Fragment.DefaultSize
	} else {
		e.DefaultFragmentSize = 4 << 20
	}
	switch cfg.Pack.Policy {
	case "fill":
		e.Cache.SetPolicy(pack.Fill)
	case "fill_always":
		e.Cache.SetPolicy(pack.FillAlways)
	}
	return e
}

// DefaultGCOptions returns the GCOptions matching cfg.GC, for a caller
// that wants CollectGarbage's defaults to come from the same config
// NewFromConfig used to build the Engine.
func DefaultGCOptions(cfg fscfg.Config) GCOptions {
	return GCOptions{
		KeepFragments:             cfg.GC.KeepFragments,
		KeepResources:             cfg.GC.KeepResources,
		KeepUnreferencedResources: cfg.GC.KeepUnreferencedResources,
		ChunkSize:                 cfg.GC.ChunkSize,
	}
}
