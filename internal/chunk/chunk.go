// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package chunk defines the restartable-producer abstraction the rest of the
// streaming composition core is built on: a Source is a lazy, finite,
// forward-only sequence of byte chunks, consumed one Next call at a time.
package chunk

import (
	"context"
	"errors"
	"io"
)

// Chunk is one opaque run of bytes produced by a Source in a single Next
// call. It may be empty; consumers must pass empty chunks through rather than
// dropping them.
type Chunk []byte

// ErrExhausted is returned by a resource.NonRestartable factory when it is
// invoked a second time (for example by a second resource.Stream.Iterate),
// since the single source it wraps has already been handed out.
var ErrExhausted = errors.New("chunk: source already exhausted")

// Source is a lazy, finite, forward-only producer of byte chunks.
//
// Next returns (chunk, nil) for a produced chunk, (nil, io.EOF) when the
// source is done, or (nil, err) for any other error, which aborts whatever
// consumes it. After Next returns io.EOF or a non-nil error, calling Next
// again is undefined behavior unless the concrete type documents otherwise
// (a resource.Stream does not — only Iterate restarts it).
//
// Close releases any resources the source holds (file handles, network
// connections) and must be safe to call more than once. Whichever component
// currently owns the source for the duration of its use is responsible for
// calling Close exactly once on every exit path: normal completion, failure,
// or cancellation.
type Source interface {
	Next(ctx context.Context) (Chunk, error)
	Close() error
}

// FromBytes returns a Source that yields b as a single chunk, then io.EOF.
// If b is empty, the first Next call returns io.EOF directly with no chunk,
// per the "chunks may be any non-negative size including zero" rule — an
// explicitly empty buffer is simply a source with nothing to say.
func FromBytes(b []byte) Source {
	return &byteSource{data: b}
}

type byteSource struct {
	data []byte
	done bool
}

func (s *byteSource) Next(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	if len(s.data) == 0 {
		return nil, io.EOF
	}
	return Chunk(s.data), nil
}

func (s *byteSource) Close() error { return nil }

// FromReader returns a Source that pulls up to chunkSize bytes per Next from
// r via io.ReadFull-style accumulation, surfacing io.EOF once r is exhausted.
// If r implements io.Closer, Close delegates to it; otherwise Close is a
// no-op. chunkSize <= 0 defaults to 32KiB, the same buffer size io.Copy
// uses.
func FromReader(r io.Reader, chunkSize int) Source {
	if chunkSize <= 0 {
		chunkSize = 32 * 1024
	}
	return &readerSource{r: r, chunkSize: chunkSize}
}

type readerSource struct {
	r         io.Reader
	chunkSize int
	done      bool
}

func (s *readerSource) Next(ctx context.Context) (Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.done {
		return nil, io.EOF
	}

	buf := make([]byte, s.chunkSize)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case err == nil:
		return Chunk(buf[:n]), nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		// Short final read: still a valid chunk, next call reports EOF.
		s.done = true
		return Chunk(buf[:n]), nil
	case errors.Is(err, io.EOF):
		s.done = true
		if n > 0 {
			return Chunk(buf[:n]), nil
		}
		return nil, io.EOF
	default:
		s.done = true
		return nil, err
	}
}

func (s *readerSource) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// AsReader bridges a Source back into an io.Reader for consumers — such as
// an HTTP client request body or an S3 upload — that are out of scope for
// this core and only understand the pull-on-demand io.Reader shape. It
// buffers only the tail of the current chunk that Read hasn't yet copied
// out, never the whole stream.
func AsReader(ctx context.Context, src Source) io.Reader {
	return &sourceReader{ctx: ctx, src: src}
}

type sourceReader struct {
	ctx  context.Context
	src  Source
	pend Chunk
	err  error
}

func (r *sourceReader) Read(p []byte) (int, error) {
	for len(r.pend) == 0 {
		if r.err != nil {
			return 0, r.err
		}
		chunk, err := r.src.Next(r.ctx)
		if err != nil {
			r.err = err
			if len(chunk) == 0 {
				return 0, err
			}
		}
		r.pend = chunk
	}
	n := copy(p, r.pend)
	r.pend = r.pend[n:]
	return n, nil
}
