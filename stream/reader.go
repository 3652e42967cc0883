// Package stream adapts the per-fragment byte-sequence generator
// produced by engine.Load back into a single io.Reader, for callers
// that want ordinary streaming I/O instead of a yield callback.
/*
 * Copyright (c) 2024, fragstore authors. All rights reserved.
 */
package stream

import (
	"context"
	"io"
	"sync/atomic"
)

// FragmentFunc matches engine.Load's signature: it calls yield once per
// fragment's plaintext, in order, and returns yield's error (or its own)
// if the sequence is aborted.
type FragmentFunc func(ctx context.Context, yield func([]byte) error) error

// fragmentReader is the io.ReadCloser returned by ReaderFromFragments. It
// tracks how many bytes have been handed to callers of Read, mirroring a
// forward-only seek position.
type fragmentReader struct {
	*io.PipeReader
	read int64
}

// Read delegates to the underlying pipe and advances the byte counter
// exposed by BytesRead.
func (r *fragmentReader) Read(p []byte) (int, error) {
	n, err := r.PipeReader.Read(p)
	atomic.AddInt64(&r.read, int64(n))
	return n, err
}

// BytesRead returns the number of bytes delivered to Read so far.
func (r *fragmentReader) BytesRead() int64 {
	return atomic.LoadInt64(&r.read)
}

// ReaderFromFragments runs load in a background goroutine, piping every
// yielded fragment into the returned io.ReadCloser. load's yield callback
// blocks until a reader drains the corresponding bytes, so at most one
// fragment's plaintext is buffered at a time. The caller must Close the
// reader (which unblocks and aborts load if it hasn't finished) even
// after reading all bytes, to release the pipe.
//
// An error returned by load (including one propagated from a closed
// reader) surfaces from the final Read call, per io.Reader convention.
func ReaderFromFragments(ctx context.Context, load FragmentFunc) io.ReadCloser {
	pr, pw := io.Pipe()
	go func() {
		err := load(ctx, func(p []byte) error {
			_, werr := pw.Write(p)
			return werr
		})
		pw.CloseWithError(err)
	}()
	return &fragmentReader{PipeReader: pr}
}
