// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import (
	"errors"
	"io"
)

// receiveLoop stands in for the UART RX ISR / DMA idle-line callback: it
// pulls bytes off the wire one at a time, pushes each into the ring
// buffer, and re-arms T3.5. It runs for the Handler's lifetime.
func (h *Handler) receiveLoop() {
	for {
		b, err := h.port.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			// A read-deadline timeout is the common case when the line is
			// simply idle; keep polling rather than treating it as an error.
			continue
		}
		h.rx.Push(b)
		h.armT35()
	}
}
