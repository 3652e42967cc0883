// Package ferrors collects the typed error kinds surfaced by the core,
// shared by every component so callers can type-switch or errors.As
// regardless of which package raised the condition.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package ferrors

import (
	"fmt"

	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// CompoundAlreadyExists is raised when a writer opens with overwrite=false
// on an existing name, or a pre-hash short-circuit finds an identical
// stream already stored.
type CompoundAlreadyExists struct{ Name string }

func (e *CompoundAlreadyExists) Error() string {
	return fmt.Sprintf("compound %q already exists", e.Name)
}

// CompoundNotExisting is raised by load/delete/rename of an unknown name.
type CompoundNotExisting struct {
	Name    string
	Version int
}

func (e *CompoundNotExisting) Error() string {
	if e.Version == 0 {
		return fmt.Sprintf("compound %q does not exist", e.Name)
	}
	return fmt.Sprintf("compound %q version %d does not exist", e.Name, e.Version)
}

// ResourceManipulated is raised when a downloaded resource's length or
// hash doesn't match its metadata row, or its decapsulated length doesn't
// match payload_size. Fatal for that read; the caller may rerun GC to
// mark the resource suspicious.
type ResourceManipulated struct {
	ResourceName string
	Reason       string
}

func (e *ResourceManipulated) Error() string {
	return fmt.Sprintf("resource %q manipulated: %s", e.ResourceName, e.Reason)
}

// FragmentManipulated is raised when a fragment's length or hash doesn't
// match on load. Fatal for the enclosing compound load.
type FragmentManipulated struct {
	FragmentHash cos.Cksum
	Reason       string
}

func (e *FragmentManipulated) Error() string {
	return fmt.Sprintf("fragment %s manipulated: %s", e.FragmentHash, e.Reason)
}

// CompoundManipulated is raised when the running stream hash computed
// during Load doesn't match the recorded compound.Hash.
type CompoundManipulated struct {
	Name string
}

func (e *CompoundManipulated) Error() string {
	return fmt.Sprintf("compound %q manipulated: stream hash mismatch after full load", e.Name)
}

// FragmentMissing is raised when a referenced fragment has no
// fragment–resource mapping.
type FragmentMissing struct{ FragmentHash cos.Cksum }

func (e *FragmentMissing) Error() string {
	return fmt.Sprintf("fragment %s has no resource mapping", e.FragmentHash)
}

// ResourceMissing is raised when a referenced resource isn't present in
// the backend listing.
type ResourceMissing struct{ ResourceName string }

func (e *ResourceMissing) Error() string {
	return fmt.Sprintf("resource %q missing from backend", e.ResourceName)
}

// Unsupported is raised for an unknown wrap/compress tag or an
// unsupported operation (e.g. writer append mode). Fatal: a
// configuration error, not a runtime condition a caller should retry.
type Unsupported struct{ What string }

func (e *Unsupported) Error() string { return "unsupported: " + e.What }
