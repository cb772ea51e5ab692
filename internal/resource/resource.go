// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package resource makes a chunk.Source restartable by capturing the recipe
// that produces it — a factory and its bound arguments — instead of a live
// producer. Iterating a Stream transparently invokes the factory; each
// iteration starts an independent underlying source with no shared state.
package resource

import (
	"context"

	"github.com/nishisan-dev/streamzip/internal/chunk"
)

// Factory produces a fresh chunk.Source. Bound arguments are curried into the
// closure at construction time (Func below), matching the spec's
// resource-stream-function decorator without needing variadic args plumbed
// through every call site.
type Factory func(ctx context.Context) (chunk.Source, error)

// Stream wraps a Factory so each Iterate call starts a brand-new producer.
// Wrapping performs no work: constructing a Stream never calls the factory.
//
// A Stream is itself a valid chunk.Source (see Next): using it that way
// consumes exactly one iteration and does not itself support restart — call
// Iterate again for that.
type Stream struct {
	factory Factory
	current chunk.Source
	started bool
}

// Wrap captures factory in a Stream. No work is performed until Iterate (or
// Next, which self-iterates lazily) is called.
func Wrap(factory Factory) *Stream {
	return &Stream{factory: factory}
}

// Func adapts a chunk-producing factory that takes one bound argument into a
// callable with the same parameter shape that, instead of starting the
// producer immediately, returns a Stream carrying (factory, arg). Call-site
// syntax mirrors calling the factory directly.
func Func[T any](factory func(ctx context.Context, arg T) (chunk.Source, error)) func(arg T) *Stream {
	return func(arg T) *Stream {
		return Wrap(func(ctx context.Context) (chunk.Source, error) {
			return factory(ctx, arg)
		})
	}
}

// Iterate invokes the wrapped factory and returns a fresh chunk.Source. Each
// call is independent: no state is shared between successive iterations, and
// the Stream does not observe or cache the bytes the returned source
// produces.
func (s *Stream) Iterate(ctx context.Context) (chunk.Source, error) {
	return s.factory(ctx)
}

// Next lazily iterates on first use and delegates to the produced source
// thereafter, so a Stream used directly as a chunk.Source behaves like any
// other single-shot source from the current iteration's viewpoint.
// Constructing a Stream does no work; the factory only runs on the first
// Next or an explicit Iterate call — this is what keeps NewStream lazy per
// the composition core's Laziness property.
func (s *Stream) Next(ctx context.Context) (chunk.Chunk, error) {
	if !s.started {
		src, err := s.factory(ctx)
		if err != nil {
			return nil, err
		}
		s.current = src
		s.started = true
	}
	return s.current.Next(ctx)
}

// Close releases the currently active iteration's source, if any. It is a
// no-op if Next/Iterate was never called.
func (s *Stream) Close() error {
	if s.current == nil {
		return nil
	}
	return s.current.Close()
}

// NonRestartable wraps a single, already-constructed chunk.Source as a
// Factory that hands it out exactly once. A second Iterate call returns
// chunk.ErrExhausted instead of silently handing back the same (already
// drained) source — this is what lets callers tell "legitimately empty
// archive" apart from "caller tried to restart something that can't be."
// Use this only to adapt a pre-existing, non-restartable producer; any
// Factory that itself creates a fresh Source per call needs no such wrapper.
func NonRestartable(src chunk.Source) Factory {
	used := false
	return func(ctx context.Context) (chunk.Source, error) {
		if used {
			return nil, chunk.ErrExhausted
		}
		used = true
		return src, nil
	}
}
