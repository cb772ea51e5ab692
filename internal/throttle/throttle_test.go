// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package throttle

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nishisan-dev/streamzip/internal/chunk"
)

func TestNew_BypassWhenDisabled(t *testing.T) {
	src := chunk.FromBytes([]byte("hello"))
	got := New(src, 0)
	if got != src {
		t.Fatal("expected New to return the source unchanged when bytesPerSec <= 0")
	}
}

func TestSource_PassesBytesThroughUnmodified(t *testing.T) {
	src := New(chunk.FromBytes([]byte("hello world")), 1<<30)
	ctx := context.Background()

	var out []byte
	for {
		c, err := src.Next(ctx)
		out = append(out, c...)
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if string(out) != "hello world" {
		t.Fatalf("got %q, want %q", out, "hello world")
	}
}

func TestSource_ThrottlesLargeChunk(t *testing.T) {
	payload := make([]byte, 100)
	src := New(chunk.FromBytes(payload), 50) // 50 B/s, burst 50

	start := time.Now()
	_, err := src.Next(context.Background())
	elapsed := time.Since(start)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// 100 bytes at 50 B/s in 50-byte installments needs at least one
	// multi-hundred-ms wait; a few milliseconds would mean no throttling
	// actually happened.
	if elapsed < 500*time.Millisecond {
		t.Fatalf("expected Next to block for throttling, elapsed only %v", elapsed)
	}
}

func TestSource_ContextCancellationPropagates(t *testing.T) {
	src := New(chunk.FromBytes(make([]byte, 1000)), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := src.Next(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestSource_CloseDelegates(t *testing.T) {
	closed := false
	src := New(&closeTrackingSource{onClose: func() { closed = true }}, 100)
	if err := src.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !closed {
		t.Fatal("expected Close to delegate to the wrapped source")
	}
}

type closeTrackingSource struct {
	onClose func()
}

func (s *closeTrackingSource) Next(ctx context.Context) (chunk.Chunk, error) {
	return nil, io.EOF
}

func (s *closeTrackingSource) Close() error {
	s.onClose()
	return nil
}
