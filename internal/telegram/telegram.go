// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package telegram defines the Master-side request the application enqueues
// and the engine's worker consumes.
package telegram

// Telegram is a single Master query. Words is caller-owned: it is
// the source for write function codes and the destination for read ones.
// The caller must not mutate or free Words until it has received on
// Result — the worker writes into it after the reply arrives and only
// then signals completion.
type Telegram struct {
	Station  byte
	Function byte
	Address  uint16
	Quantity uint16
	Words    []uint16

	// Result is the Go analogue of the captured caller task identity: the
	// enqueuing goroutine holds the read end, so delivering into Result IS
	// the direct notification back to that caller. A nil error means
	// ERR_OK_QUERY; any non-nil error is one of the sentinels in
	// internal/engine/errors.go.
	Result chan error
}
