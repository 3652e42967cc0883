// Package encap implements the encapsulation pipeline: the
// composition Encapsulate(bytes) = wrap(compress(bytes)), and its inverse
// Decapsulate. Unknown wrap/compress tags are a fatal configuration error,
// surfaced here as a plain error for the caller to escalate.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package encap

import (
	"fmt"

	"github.com/FlorianSauer/fragstore/encap/compress"
	"github.com/FlorianSauer/fragstore/encap/wrap"
)

// Tags names the wrap/compress tag pair applied to one payload (a
// fragment on the compound side, a resource on the resource side).
type Tags struct {
	Compress string
	Wrap     string
}

// Pipeline resolves a Tags pair into ready-to-use Compressor/Wrapper
// instances once, so repeated Encapsulate/Decapsulate calls don't re-parse
// the stack tag each time.
type Pipeline struct {
	tags       Tags
	compressor compress.Compressor
	wrapper    wrap.Wrapper
}

// New resolves tags against the wrap/compress registries. It returns an
// error (never panics) so callers can turn an unknown tag into whatever
// fatal-configuration-error shape they want.
func New(tags Tags) (*Pipeline, error) {
	c, err := compress.Parse(tags.Compress)
	if err != nil {
		return nil, fmt.Errorf("encap: %w", err)
	}
	w, err := wrap.Parse(tags.Wrap)
	if err != nil {
		return nil, fmt.Errorf("encap: %w", err)
	}
	return &Pipeline{tags: tags, compressor: c, wrapper: w}, nil
}

func (p *Pipeline) Tags() Tags { return p.tags }

// Encapsulate computes wrap(compress(data)).
func (p *Pipeline) Encapsulate(data []byte) ([]byte, error) {
	compressed, err := p.compressor.Compress(data)
	if err != nil {
		return nil, fmt.Errorf("encap: compress: %w", err)
	}
	wrapped, err := p.wrapper.Wrap(compressed)
	if err != nil {
		return nil, fmt.Errorf("encap: wrap: %w", err)
	}
	return wrapped, nil
}

// Decapsulate inverts Encapsulate: unwrap then decompress.
func (p *Pipeline) Decapsulate(data []byte) ([]byte, error) {
	unwrapped, err := p.wrapper.Unwrap(data)
	if err != nil {
		return nil, fmt.Errorf("encap: unwrap: %w", err)
	}
	decompressed, err := p.compressor.Decompress(unwrapped)
	if err != nil {
		return nil, fmt.Errorf("encap: decompress: %w", err)
	}
	return decompressed, nil
}

// RequiresWrapSuffix reports whether tags.Wrap ends with the given
// required tag.
func RequiresWrapSuffix(tagsWrap, required string) bool {
	if required == "" || required == "pass" {
		return true
	}
	n, r := len(tagsWrap), len(required)
	if n < r {
		return false
	}
	if tagsWrap[n-r:] != required {
		return false
	}
	// must be a tag-boundary match: either exact, or preceded by '-'
	return n == r || tagsWrap[n-r-1] == '-'
}
