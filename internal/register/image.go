// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package register holds the four Modbus data tables (coils, discrete
// inputs, holding registers, input registers) that a Slave exposes and a
// Master reads/writes into on the caller's behalf. Bit tables are packed
// word-by-word (coil c lives in word c/16, bit c%16) so that Master-side
// copy-back and the FC15 bit-packing rule fall out of the same layout
// instead of needing a byte-per-coil-to-word translation at the boundary.
package register

import (
	"fmt"
	"sync"
)

// Image is the register set a single Handler binds to. Each of the four
// tables is a slice of 16-bit words sized independently by Sizes; the bit
// tables hold 16 addressable bits per word (so Coils holds 16*len(Coils)
// addressable coils).
type Image struct {
	mu sync.RWMutex

	Coils     []uint16
	Discretes []uint16
	Holding   []uint16
	Input     []uint16

	storage Storage
}

// Sizes describes how many words to allocate per table.
type Sizes struct {
	CoilWords     int
	DiscreteWords int
	HoldingWords  int
	InputWords    int
}

// New allocates a zeroed Image sized per sz, optionally backed by storage.
// If storage is non-nil its Load result seeds the returned Image instead of
// a fresh zeroed one.
func New(sz Sizes, storage Storage) (*Image, error) {
	if storage != nil {
		img, err := storage.Load(sz)
		if err != nil {
			return nil, fmt.Errorf("register: load persisted image: %w", err)
		}
		img.storage = storage
		return img, nil
	}
	return &Image{
		Coils:     make([]uint16, sz.CoilWords),
		Discretes: make([]uint16, sz.DiscreteWords),
		Holding:   make([]uint16, sz.HoldingWords),
		Input:     make([]uint16, sz.InputWords),
	}, nil
}

// Lock acquires the register-image mutex for writers. The write function
// handlers (FC5, FC6, FC15, FC16) and SendQuery hold this for the duration
// of their access.
func (img *Image) Lock()   { img.mu.Lock() }
func (img *Image) Unlock() { img.mu.Unlock() }

// RLock/RUnlock support read-only callers that don't need the full write
// lock; the read function handlers (FC1-FC4) take this one.
func (img *Image) RLock()   { img.mu.RLock() }
func (img *Image) RUnlock() { img.mu.RUnlock() }

// BitWords returns the number of words needed to hold n packed bits.
func BitWords(n uint16) int {
	words := int(n) / 16
	if n%16 != 0 {
		words++
	}
	return words
}

// GetBit reads bit (index % 16) of word (index / 16) from table.
func GetBit(table []uint16, index uint16) bool {
	word := table[index/16]
	return (word>>(index%16))&1 != 0
}

// SetBit writes bit (index % 16) of word (index / 16) in table.
func SetBit(table []uint16, index uint16, v bool) {
	bit := uint16(1) << (index % 16)
	if v {
		table[index/16] |= bit
	} else {
		table[index/16] &^= bit
	}
}

// MarkWritten tells the storage backend (if any) that table changed at
// [address, address+quantity), so it can flush or mark itself dirty. Every
// function handler that mutates a table calls this before releasing the
// write lock.
func (img *Image) MarkWritten(table TableKind, address, quantity uint16) {
	if img.storage != nil {
		img.storage.OnWrite(img, table, address, quantity)
	}
}

// TableKind identifies one of the four register tables, used for
// persistence dirty-tracking.
type TableKind int

const (
	TableCoils TableKind = iota
	TableDiscretes
	TableHolding
	TableInput
)
