// Copyright (c) 2025 Nishisan. All rights reserved.
// Use of this source code is governed by the N-Backup License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package zipstream

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/nishisan-dev/streamzip/internal/chunk"
	"github.com/nishisan-dev/streamzip/internal/dedup"
)

func materialize(t *testing.T, src chunk.Source) []byte {
	t.Helper()
	ctx := context.Background()
	var out []byte
	for {
		c, err := src.Next(ctx)
		out = append(out, c...)
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

// readBack opens the produced archive with the standard library's zip
// reader, used here purely as a correctness oracle.
func readBack(t *testing.T, raw []byte) *zip.Reader {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("archive/zip rejected the stream: %v", err)
	}
	return r
}

func contents(t *testing.T, f *zip.File) []byte {
	t.Helper()
	rc, err := f.Open()
	if err != nil {
		t.Fatalf("opening %q: %v", f.Name, err)
	}
	defer rc.Close()
	b, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading %q: %v", f.Name, err)
	}
	return b
}

func TestNewStream_RoundTripDeflate(t *testing.T) {
	entries := []Entry{
		NewEntry("a.txt", chunk.FromBytes([]byte("hello"))),
		NewEntry("dir/b.txt", chunk.FromBytes([]byte(strings.Repeat("world", 500)))),
		NewEntry("empty.txt", chunk.FromBytes(nil)),
	}

	raw := materialize(t, NewStream(entries))
	zr := readBack(t, raw)

	if len(zr.File) != 3 {
		t.Fatalf("expected 3 files, got %d", len(zr.File))
	}
	want := map[string]string{
		"a.txt":     "hello",
		"dir/b.txt": strings.Repeat("world", 500),
		"empty.txt": "",
	}
	for _, f := range zr.File {
		got := string(contents(t, f))
		if got != want[f.Name] {
			t.Errorf("entry %q: got %d bytes, want %d bytes", f.Name, len(got), len(want[f.Name]))
		}
		if f.Method != zip.Deflate {
			t.Errorf("entry %q: method = %d, want Deflate", f.Name, f.Method)
		}
	}
}

func TestNewStream_RoundTripStored(t *testing.T) {
	entries := []Entry{
		NewEntry("a.bin", chunk.FromBytes([]byte{1, 2, 3, 4, 5})),
	}

	raw := materialize(t, NewStream(entries, WithCompression(Stored)))
	zr := readBack(t, raw)

	if len(zr.File) != 1 {
		t.Fatalf("expected 1 file, got %d", len(zr.File))
	}
	f := zr.File[0]
	if f.Method != zip.Store {
		t.Errorf("method = %d, want Store", f.Method)
	}
	got := contents(t, f)
	if !bytes.Equal(got, []byte{1, 2, 3, 4, 5}) {
		t.Errorf("got %v, want [1 2 3 4 5]", got)
	}
}

func TestNewStream_MultiChunkEntryStreamsAcrossNextCalls(t *testing.T) {
	// A source that only ever yields 3 bytes at a time exercises the
	// encoder's payload loop spanning many Next calls per entry.
	payload := []byte(strings.Repeat("abcdefghij", 100))
	entries := []Entry{
		NewEntry("big.txt", chunk.FromReader(bytes.NewReader(payload), 3)),
	}

	raw := materialize(t, NewStream(entries))
	zr := readBack(t, raw)
	got := contents(t, zr.File[0])
	if !bytes.Equal(got, payload) {
		t.Fatalf("payload mismatch: got %d bytes, want %d bytes", len(got), len(payload))
	}
}

func TestNewStream_DeduplicatesCollidingNames(t *testing.T) {
	entries := []Entry{
		NewEntry("report.txt", chunk.FromBytes([]byte("first"))),
		NewEntry("report.txt", chunk.FromBytes([]byte("second"))),
		NewEntry("report.txt", chunk.FromBytes([]byte("third"))),
	}

	raw := materialize(t, NewStream(entries))
	zr := readBack(t, raw)

	names := make(map[string]string)
	for _, f := range zr.File {
		names[f.Name] = string(contents(t, f))
	}

	want := map[string]string{
		"report.txt":     "first",
		"report (1).txt": "second",
		"report (2).txt": "third",
	}
	for name, body := range want {
		got, ok := names[name]
		if !ok {
			t.Fatalf("missing entry %q in %v", name, names)
		}
		if got != body {
			t.Errorf("entry %q: got %q, want %q", name, got, body)
		}
	}
}

func TestNewStream_WithNoneSkipsDeduplication(t *testing.T) {
	entries := []Entry{
		NewEntry("same.txt", chunk.FromBytes([]byte("one"))),
		NewEntry("same.txt", chunk.FromBytes([]byte("two"))),
	}

	raw := materialize(t, NewStream(entries, WithDeduplicator(dedup.None())))
	zr := readBack(t, raw)

	if len(zr.File) != 2 {
		t.Fatalf("expected 2 files, got %d", len(zr.File))
	}
	for _, f := range zr.File {
		if f.Name != "same.txt" {
			t.Errorf("got name %q, want %q", f.Name, "same.txt")
		}
	}
	if string(contents(t, zr.File[0])) != "one" || string(contents(t, zr.File[1])) != "two" {
		t.Fatalf("entries did not preserve per-entry payload identity")
	}
}

func TestNewStream_EmptyEntryList(t *testing.T) {
	raw := materialize(t, NewStream(nil))
	zr := readBack(t, raw)
	if len(zr.File) != 0 {
		t.Fatalf("expected 0 files, got %d", len(zr.File))
	}
}

func TestNewStream_EntrySourceFailurePropagates(t *testing.T) {
	wantErr := errors.New("disk error")
	entries := []Entry{
		NewEntry("bad.txt", &failingSource{err: wantErr}),
	}

	src := NewStream(entries)
	ctx := context.Background()
	var err error
	for {
		_, e := src.Next(ctx)
		if e != nil {
			err = e
			break
		}
	}
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected wrapped %v, got %v", wantErr, err)
	}
}

func TestNewStreamResource_RestartsIndependently(t *testing.T) {
	build := func(ctx context.Context) ([]Entry, error) {
		return []Entry{
			NewEntry("a.txt", chunk.FromBytes([]byte("hello"))),
		}, nil
	}

	s := NewStreamResource(build)
	ctx := context.Background()

	first, err := s.Iterate(ctx)
	if err != nil {
		t.Fatalf("first Iterate: %v", err)
	}
	firstRaw := materialize(t, first)

	second, err := s.Iterate(ctx)
	if err != nil {
		t.Fatalf("second Iterate: %v", err)
	}
	secondRaw := materialize(t, second)

	zr1 := readBack(t, firstRaw)
	zr2 := readBack(t, secondRaw)
	if string(contents(t, zr1.File[0])) != "hello" || string(contents(t, zr2.File[0])) != "hello" {
		t.Fatalf("expected both iterations to independently reproduce the archive")
	}
}

// TestNewStream_IsLazy verifies that constructing the stream performs no I/O:
// a source that panics on Next must never be touched until the consumer
// actually pulls from the encoder.
func TestNewStream_IsLazy(t *testing.T) {
	entries := []Entry{
		NewEntry("never.txt", &panicOnNextSource{}),
	}
	_ = NewStream(entries)
	// Reaching here without panicking demonstrates construction alone never
	// called Next on the entry's source.
}

// TestNewStream_ByteOrder checks the archive begins with a local file header
// signature and that the central-directory signature appears only after
// every entry's payload and data descriptor.
func TestNewStream_ByteOrder(t *testing.T) {
	entries := []Entry{
		NewEntry("a.txt", chunk.FromBytes([]byte("one"))),
		NewEntry("b.txt", chunk.FromBytes([]byte("two"))),
	}
	raw := materialize(t, NewStream(entries))

	if len(raw) < 4 {
		t.Fatalf("archive too short: %d bytes", len(raw))
	}
	gotSig := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	if gotSig != sigLocalFileHeader {
		t.Fatalf("first 4 bytes = %#x, want local file header signature %#x", gotSig, sigLocalFileHeader)
	}

	cdSig := []byte{0x50, 0x4b, 0x01, 0x02}
	firstCD := bytes.Index(raw, cdSig)
	if firstCD < 0 {
		t.Fatalf("central directory signature not found")
	}

	ddSig := []byte{0x50, 0x4b, 0x07, 0x08}
	lastDD := bytes.LastIndex(raw, ddSig)
	if lastDD < 0 {
		t.Fatalf("data descriptor signature not found")
	}
	if firstCD < lastDD {
		t.Fatalf("central directory signature at %d appears before last data descriptor at %d", firstCD, lastDD)
	}
}

// TestNewStream_CloseMidPayloadReleasesActiveSourceOnce verifies that
// dropping the consumer mid-payload releases the currently streaming entry's
// source exactly once, and never touches entries that were never started.
func TestNewStream_CloseMidPayloadReleasesActiveSourceOnce(t *testing.T) {
	active := &closeCountingSource{chunks: [][]byte{[]byte("first"), []byte("second")}}
	untouched := &closeCountingSource{chunks: [][]byte{[]byte("never reached")}}
	entries := []Entry{
		NewEntry("a.txt", active),
		NewEntry("b.txt", untouched),
	}

	src := NewStream(entries, WithCompression(Stored))
	ctx := context.Background()

	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("local header Next: %v", err)
	}
	if _, err := src.Next(ctx); err != nil {
		t.Fatalf("first payload chunk Next: %v", err)
	}

	closer, ok := src.(interface{ Close() error })
	if !ok {
		t.Fatalf("encoder does not implement Close")
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if active.closeCount != 1 {
		t.Errorf("active source closed %d times, want 1", active.closeCount)
	}
	if untouched.closeCount != 0 {
		t.Errorf("untouched source closed %d times, want 0", untouched.closeCount)
	}
}

type closeCountingSource struct {
	chunks     [][]byte
	idx        int
	closeCount int
}

func (s *closeCountingSource) Next(ctx context.Context) (chunk.Chunk, error) {
	if s.idx >= len(s.chunks) {
		return nil, io.EOF
	}
	c := s.chunks[s.idx]
	s.idx++
	return chunk.Chunk(c), nil
}

func (s *closeCountingSource) Close() error {
	s.closeCount++
	return nil
}

type panicOnNextSource struct{}

func (panicOnNextSource) Next(ctx context.Context) (chunk.Chunk, error) {
	panic("Next must not be called before the consumer pulls from the encoder")
}

func (panicOnNextSource) Close() error { return nil }

type failingSource struct {
	err error
}

func (s *failingSource) Next(ctx context.Context) (chunk.Chunk, error) {
	return nil, s.err
}

func (s *failingSource) Close() error { return nil }
