// Package compress implements the "compress" half of the encapsulation
// pipeline: invertible compressors identified by a short tag, stackable
// by joining tags with "-".
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package compress

import (
	"fmt"
	"strings"
)

// Compressor is one named, invertible compression codec.
type Compressor interface {
	Tag() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

var registry = map[string]Compressor{}

func init() {
	Register(PassThrough{})
	Register(Zlib{})
	Register(Bz2{})
	Register(Lzma{})
}

// Register adds a Compressor to the registry.
func Register(c Compressor) {
	registry[c.Tag()] = c
}

// Lookup resolves a single (non-stacked) tag to a Compressor.
func Lookup(tag string) (Compressor, error) {
	if c, ok := registry[tag]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("compress: unsupported tag %q", tag)
}

// Stacked composes an ordered list of compressors, applied in order on
// Compress and in reverse order on Decompress.
type Stacked struct {
	tag         string
	compressors []Compressor
}

// Parse resolves a "-"-joined tag such as "zlib-bz2" into a Stacked
// compressor; a single element resolves to the plain Compressor.
func Parse(tag string) (Compressor, error) {
	parts := strings.Split(tag, "-")
	compressors := make([]Compressor, 0, len(parts))
	for _, p := range parts {
		c, err := Lookup(p)
		if err != nil {
			return nil, err
		}
		compressors = append(compressors, c)
	}
	if len(compressors) == 1 {
		return compressors[0], nil
	}
	return &Stacked{tag: tag, compressors: compressors}, nil
}

func (s *Stacked) Tag() string { return s.tag }

func (s *Stacked) Compress(data []byte) ([]byte, error) {
	var err error
	for _, c := range s.compressors {
		data, err = c.Compress(data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (s *Stacked) Decompress(data []byte) ([]byte, error) {
	var err error
	for i := len(s.compressors) - 1; i >= 0; i-- {
		data, err = s.compressors[i].Decompress(data)
		if err != nil {
			return nil, err
		}
	}
	return data, nil
}
