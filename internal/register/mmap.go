// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package register

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/edsrzf/mmap-go"
)

// MmapStorage backs an Image with a memory-mapped file, giving
// OS-managed, zero-copy persistence: writes into the Image are writes into
// the page cache, and Close (or the kernel's own writeback) gets them to
// disk.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
	sz   Sizes
}

// NewMmapStorage creates a storage backend rooted at path. The file is
// created and sized on the first Load.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{path: path}
}

func wordLayout(sz Sizes) (total, offCoils, offDiscretes, offHolding, offInput int) {
	sizeCoils := sz.CoilWords * 2
	sizeDiscretes := sz.DiscreteWords * 2
	sizeHolding := sz.HoldingWords * 2
	sizeInput := sz.InputWords * 2

	offCoils = 0
	offDiscretes = offCoils + sizeCoils
	offHolding = offDiscretes + sizeDiscretes
	offInput = offHolding + sizeHolding
	total = offInput + sizeInput
	return
}

func (m *MmapStorage) Load(sz Sizes) (*Image, error) {
	total, offCoils, offDiscretes, offHolding, offInput := wordLayout(sz)

	f, err := os.OpenFile(m.path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("register: open mmap file %s: %w", m.path, err)
	}
	m.file = f

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	if fi.Size() != int64(total) {
		if err := f.Truncate(int64(total)); err != nil {
			f.Close()
			return nil, fmt.Errorf("register: resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("register: mmap: %w", err)
	}
	m.data = data
	m.sz = sz

	return &Image{
		Coils:     wordsFor(data[offCoils : offCoils+sz.CoilWords*2]),
		Discretes: wordsFor(data[offDiscretes : offDiscretes+sz.DiscreteWords*2]),
		Holding:   wordsFor(data[offHolding : offHolding+sz.HoldingWords*2]),
		Input:     wordsFor(data[offInput : offInput+sz.InputWords*2]),
	}, nil
}

// wordsFor reinterprets a byte slice of even length as a []uint16 sharing
// the same backing array, in host byte order. The Image's own big-endian
// wire conversions happen at the frame boundary, not here, so host order is
// fine for the in-memory representation.
func wordsFor(b []byte) []uint16 {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*uint16)(unsafe.Pointer(&b[0])), len(b)/2)
}

func (m *MmapStorage) OnWrite(img *Image, table TableKind, address, quantity uint16) {
	if err := m.data.Flush(); err != nil {
		// best effort: a missed flush is recovered on the next successful
		// one, not worth failing the Modbus transaction over.
		_ = err
	}
}

func (m *MmapStorage) Close() error {
	if m.data != nil {
		if err := m.data.Unmap(); err != nil {
			return err
		}
		m.data = nil
	}
	if m.file != nil {
		err := m.file.Close()
		m.file = nil
		return err
	}
	return nil
}
