// Package store defines the Storage contract — the
// abstract blob backend the engine uploads resources to and downloads
// them from — plus a handful of reference implementations and a
// name-keyed builder registry mirroring the one in package encap.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package store

import (
	"context"

	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// Storage is the backend contract every resource upload/download goes
// through. The resource name Save hands back is an opaque handle: the
// engine never parses it.
type Storage interface {
	// Identifier names the backend instance, used in diagnostics and
	// consistency-check output.
	Identifier() string

	// MaxResourceSize bounds how large a single packed resource payload
	// may be before the packer must start a new one.
	MaxResourceSize() int64

	// RequiredWrapTag is the wrap tag suffix every resource-side
	// encapsulation tag stack must end with for this backend, e.g. a photo-hosting backend requiring "png4".
	RequiredWrapTag() string

	Load(ctx context.Context, name string) ([]byte, error)
	Save(ctx context.Context, data []byte, hash cos.Cksum) (name string, err error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]string, error)
	Wipe(ctx context.Context) error
}

// Sizable is implemented by backends that track total/used capacity.
type Sizable interface {
	Storage
	TotalSize() int64 // -1 == unbounded
	CurrentSize() int64
	HasFreeSize(required int64) bool
}
