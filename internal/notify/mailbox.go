// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package notify provides Mailbox, the Go analogue of a FreeRTOS direct
// task notification delivered with eSetValueWithOverwrite semantics: a
// single 32-bit value, latest-write-wins, consumed by exactly one waiter.
// The T3.5 timer and the Master's Timeout timer both post through a
// Mailbox rather than a richer channel type, preserving
// the firmware's "0 means frame ready, nonzero encodes an error" in-band
// sentinel discipline — nothing downstream needs a payload richer than a
// single code, so there's nothing to gain from a tagged variant.
package notify

import (
	"sync"
	"time"
)

// Mailbox holds at most one pending uint32 value. Post overwrites whatever
// was pending; Wait blocks until a value is posted (or the stop channel
// closes) and consumes it.
type Mailbox struct {
	mu      sync.Mutex
	pending bool
	value   uint32
	signal  chan struct{}
}

// NewMailbox returns an empty Mailbox ready to use.
func NewMailbox() *Mailbox {
	return &Mailbox{signal: make(chan struct{}, 1)}
}

// Post delivers v, overwriting any value not yet consumed.
func (m *Mailbox) Post(v uint32) {
	m.mu.Lock()
	m.pending = true
	m.value = v
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// Wait blocks until a value is posted or stop is closed, returning the
// value and true, or (0, false) if stop fired first.
func (m *Mailbox) Wait(stop <-chan struct{}) (uint32, bool) {
	for {
		m.mu.Lock()
		if m.pending {
			v := m.value
			m.pending = false
			m.mu.Unlock()
			return v, true
		}
		m.mu.Unlock()

		select {
		case <-m.signal:
			continue
		case <-stop:
			return 0, false
		}
	}
}

// WaitTimeout blocks until a value is posted or d elapses, returning the
// value and true, or (0, false) on timeout.
func (m *Mailbox) WaitTimeout(d time.Duration) (uint32, bool) {
	stop := make(chan struct{})
	timer := time.AfterFunc(d, func() { close(stop) })
	defer timer.Stop()
	return m.Wait(stop)
}

// TryWait returns immediately: (value, true) if one was pending, else
// (0, false). Used by the Master worker to discard a stray notification
// left over from Idle without blocking.
func (m *Mailbox) TryWait() (uint32, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.pending {
		v := m.value
		m.pending = false
		return v, true
	}
	return 0, false
}
