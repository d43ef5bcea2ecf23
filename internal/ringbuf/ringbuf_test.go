// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package ringbuf

import (
	"bytes"
	"testing"
)

func TestDrainReturnsExactStreamWhenWithinCapacity(t *testing.T) {
	b := New(16)
	stream := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	for _, v := range stream {
		b.Push(v)
	}

	out, overflow := b.Drain()
	if overflow {
		t.Fatal("overflow must be false for a stream within capacity")
	}
	if !bytes.Equal(out, stream) {
		t.Fatalf("got %v, want %v", out, stream)
	}
	if b.Count() != 0 {
		t.Fatal("buffer must be empty after Drain")
	}
}

func TestOverflowKeepsLastCapacityBytes(t *testing.T) {
	const capacity = 8
	b := New(capacity)
	stream := make([]byte, 20)
	for i := range stream {
		stream[i] = byte(i)
	}
	for _, v := range stream {
		b.Push(v)
	}

	out, overflow := b.Drain()
	if !overflow {
		t.Fatal("overflow must be true once the stream exceeds capacity")
	}
	want := stream[len(stream)-capacity:]
	if !bytes.Equal(out, want) {
		t.Fatalf("got %v, want %v", out, want)
	}
}

func TestDrainClearsOverflowSticky(t *testing.T) {
	b := New(4)
	for i := 0; i < 10; i++ {
		b.Push(byte(i))
	}
	if _, overflow := b.Drain(); !overflow {
		t.Fatal("expected overflow on first drain")
	}
	b.Push(0xAA)
	out, overflow := b.Drain()
	if overflow {
		t.Fatal("overflow must clear after a drain with no further overrun")
	}
	if !bytes.Equal(out, []byte{0xAA}) {
		t.Fatalf("got %v", out)
	}
}

func TestClearEmptiesBuffer(t *testing.T) {
	b := New(4)
	b.Push(1)
	b.Push(2)
	b.Clear()
	if b.Count() != 0 {
		t.Fatal("Clear must empty the buffer")
	}
	out, overflow := b.Drain()
	if len(out) != 0 || overflow {
		t.Fatal("cleared buffer must drain empty with no overflow")
	}
}
