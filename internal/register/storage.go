// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package register

// Storage persists an Image across process restarts. This is a Go-native
// extension absent from the original embedded firmware (whose register
// image lives in SRAM for the process's — the MCU's — entire lifetime);
// once the engine runs as a long-lived host process it becomes worth
// letting a Slave's holding registers survive a restart.
type Storage interface {
	// Load returns an Image sized per sz, populated from whatever was
	// previously persisted (or zeroed, if nothing was).
	Load(sz Sizes) (*Image, error)

	// OnWrite is invoked with the write lock held, immediately after a
	// write function handler mutates table in [address,
	// address+quantity).
	OnWrite(img *Image, table TableKind, address, quantity uint16)

	// Close releases any file handles or mappings.
	Close() error
}

// MemoryStorage is a no-op Storage: the Image lives only in process
// memory. This is the default when no persistence is configured.
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage { return &MemoryStorage{} }

func (*MemoryStorage) Load(sz Sizes) (*Image, error) {
	return &Image{
		Coils:     make([]uint16, sz.CoilWords),
		Discretes: make([]uint16, sz.DiscreteWords),
		Holding:   make([]uint16, sz.HoldingWords),
		Input:     make([]uint16, sz.InputWords),
	}, nil
}

func (*MemoryStorage) OnWrite(*Image, TableKind, uint16, uint16) {}
func (*MemoryStorage) Close() error                              { return nil }
