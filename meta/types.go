// Package meta defines the metadata data model: Compound, Fragment,
// Resource and the two mapping tables, the Metadata store contract
// consumed by every higher component, and the in-memory
// pending-objects controller.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package meta

import (
	"github.com/FlorianSauer/fragstore/cmn/cos"
)

// CompoundType distinguishes a stored stream's kind.
type CompoundType int

const (
	File CompoundType = iota
	Dir
)

func (t CompoundType) String() string {
	if t == Dir {
		return "dir"
	}
	return "file"
}

// ID is an opaque, backend-assigned row identifier. Records reference
// each other by ID, never by embedded pointer.
type ID int64

// Compound is a named, immutable-by-version record describing one stored
// stream. Version nil (Version == 0, see IsLive) identifies
// the live row; Version >= 1 identifies a snapshot.
type Compound struct {
	ID          ID
	Name        string
	Type        CompoundType
	Hash        cos.Cksum // SHA-256 of the plaintext stream
	Size        int64     // plaintext byte count
	WrapTag     string
	CompressTag string
	Version     int // 0 == live, >=1 == snapshot
}

func (c *Compound) IsLive() bool { return c.Version == 0 }

// Fragment is a content-addressed chunk of compound payload after
// compound-side encapsulation.
type Fragment struct {
	ID          ID
	Hash        cos.Cksum // SHA-256 over the encapsulated bytes; primary dedup key
	Size        int64     // encapsulated size
	PayloadSize int64     // plaintext size, before compound-side encapsulation
}

// Resource is an opaque uploaded blob holding one or more encapsulated,
// concatenated fragments.
type Resource struct {
	ID          ID
	Name        string // backend-assigned
	Size        int64  // bytes as stored at the backend
	PayloadSize int64  // sum of contained fragment sizes, before resource-side encapsulation
	Hash        cos.Cksum
	WrapTag     string
	CompressTag string
}

// CompoundFragment is one row of the ordered compound↔fragment mapping:
// (compound_id, fragment_id, sequence_index), dense from 0.
type CompoundFragment struct {
	CompoundID    ID
	FragmentID    ID
	SequenceIndex int
}

// FragmentResource is the fragment↔resource mapping: a
// function, fragment_id unique, recording where within the resource the
// fragment's encapsulated bytes live.
type FragmentResource struct {
	FragmentID     ID
	ResourceID     ID
	FragmentOffset int64
}
