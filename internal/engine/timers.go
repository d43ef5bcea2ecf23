// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import "time"

// notifyTimeout is the nonzero value posted to frameReady on Timeout
// expiry; 0 is reserved for "frame ready".
const notifyTimeout uint32 = 1

// armT35 (re)starts the inter-frame silence timer. Called from the
// receive goroutine after every byte is pushed into the ring buffer,
// standing in for the ISR that re-arms T3.5 on each received byte.
func (h *Handler) armT35() {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	if h.t35Timer != nil {
		h.t35Timer.Stop()
	}
	h.t35Timer = time.AfterFunc(h.t35, h.onT35Expiry)
}

func (h *Handler) onT35Expiry() {
	// A late-but-valid answer must not race the Timeout notification: stop
	// Timeout here so its callback cannot fire after frameReady has already
	// been told "frame ready".
	if h.role == RoleMaster {
		h.timerMu.Lock()
		if h.timeoutTimer != nil {
			h.timeoutTimer.Stop()
		}
		h.timerMu.Unlock()
	}
	h.frameReady.Post(0)
}

// armTimeout (re)starts the Master reply deadline. Called from send(),
// after line turnaround completes, so the transmit time itself is excluded
// from the caller's deadline budget.
func (h *Handler) armTimeout() {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	if h.timeoutTimer != nil {
		h.timeoutTimer.Stop()
	}
	h.timeoutTimer = time.AfterFunc(h.timeoutPeriod, h.onTimeoutExpiry)
}

func (h *Handler) stopTimeout() {
	h.timerMu.Lock()
	defer h.timerMu.Unlock()
	if h.timeoutTimer != nil {
		h.timeoutTimer.Stop()
	}
}

func (h *Handler) onTimeoutExpiry() {
	h.frameReady.Post(notifyTimeout)
}
