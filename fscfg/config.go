// Package fscfg is the ambient Config: one struct per concern, nested
// together and validated as a whole with Validate() error.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package fscfg

import (
	"fmt"

	"github.com/FlorianSauer/fragstore/cmn/jsp"
)

// Config is the top-level, JSON-persisted configuration for one engine
// instance.
type Config struct {
	Fragment FragmentConf `json:"fragment"`
	Pack     PackConf     `json:"pack"`
	Encap    EncapConf    `json:"encap"`
	Access   AccessConf   `json:"access"`
	GC       GCConf       `json:"gc"`
	Log      LogConf      `json:"log"`
}

// FragmentConf controls the default chunking applied by OpenWritable/SaveBytes.
type FragmentConf struct {
	DefaultSize int64 `json:"default_size"` // bytes; 0 means engine default (4 MiB)
}

// PackConf holds the packing policy and binning strategy defaults.
// MaxResourceSize is validated but not read by engine.NewFromConfig; the
// resource size limit comes from the storage backend's MaxResourceSize.
type PackConf struct {
	MaxResourceSize int64  `json:"max_resource_size"`
	Policy          string `json:"policy"`  // "pass" | "fill" | "fill_always"
	Binning         string `json:"binning"` // "filling" | "bin_packing"
}

// EncapConf names the default compress/wrap tag stack.
type EncapConf struct {
	DefaultCompressTag string `json:"default_compress_tag"`
	DefaultWrapTag     string `json:"default_wrap_tag"`
	AESRandomNonce     bool   `json:"aes_random_nonce"`
}

// AccessConf sizes the access manager's shard table.
type AccessConf struct {
	LockShards int `json:"lock_shards"`
}

// GCConf defaults CollectGarbage's chunking and retention flags.
type GCConf struct {
	ChunkSize                 int  `json:"chunk_size"`
	KeepFragments             bool `json:"keep_fragments"`
	KeepResources             bool `json:"keep_resources"`
	KeepUnreferencedResources bool `json:"keep_unreferenced_resources"`
}

// LogConf gates verbose logging and the storage backend's log level.
type LogConf struct {
	Level          string `json:"level"`
	VerboseStorage bool   `json:"verbose_storage"`
}

// Default returns a Config that passes Validate. Its pack policy ("fill")
// and lock-shard count (64) differ from what New uses without a config
// (Pass and runtime.GOMAXPROCS(0) shards).
func Default() Config {
	return Config{
		Fragment: FragmentConf{DefaultSize: 4 << 20},
		Pack:     PackConf{MaxResourceSize: 64 << 20, Policy: "fill", Binning: "filling"},
		Encap:    EncapConf{DefaultCompressTag: "pass", DefaultWrapTag: "pass"},
		Access:   AccessConf{LockShards: 64},
		GC:       GCConf{ChunkSize: 500},
		Log:      LogConf{Level: "info"},
	}
}

// Validate returns the first violated invariant, or nil.
func (c Config) Validate() error {
	if c.Fragment.DefaultSize < 0 {
		return fmt.Errorf("fragment.default_size must be >= 0, got %d", c.Fragment.DefaultSize)
	}
	if c.Pack.MaxResourceSize <= 0 {
		return fmt.Errorf("pack.max_resource_size must be > 0, got %d", c.Pack.MaxResourceSize)
	}
	switch c.Pack.Policy {
	case "pass", "fill", "fill_always":
	default:
		return fmt.Errorf("pack.policy: unknown %q", c.Pack.Policy)
	}
	switch c.Pack.Binning {
	case "filling", "bin_packing":
	default:
		return fmt.Errorf("pack.binning: unknown %q", c.Pack.Binning)
	}
	if c.Access.LockShards <= 0 {
		return fmt.Errorf("access.lock_shards must be > 0, got %d", c.Access.LockShards)
	}
	if c.GC.ChunkSize <= 0 {
		return fmt.Errorf("gc.chunk_size must be > 0, got %d", c.GC.ChunkSize)
	}
	return nil
}

// JspOpts implements jsp.Opts: configs are saved with a length prefix and a
// trailing checksum. On Load a truncated file is reported as an error, and a
// file whose checksum does not match is removed.
func (c Config) JspOpts() jsp.Options { return jsp.Options{Checksum: true} }

// Save persists c to filepath atomically.
func (c Config) Save(filepath string) error { return jsp.SaveMeta(filepath, c, c) }

// Load reads and validates a Config from filepath.
func Load(filepath string) (Config, error) {
	var c Config
	if err := jsp.LoadMeta(filepath, &c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}
