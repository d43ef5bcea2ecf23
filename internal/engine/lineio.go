// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import "time"

// txCompleteTimeout bounds how long send waits for the line to finish
// shifting out the last bit before giving up.
const txCompleteTimeout = 250 * time.Millisecond

// send performs the half-duplex turnaround: drive the line to transmit,
// write out, wait for the shift register to empty, then release the line
// back to receive. out must already carry its trailing CRC.
func (h *Handler) send(out []byte) error {
	if h.drivePin != nil {
		if err := h.drivePin.Set(true); err != nil {
			h.log.Warn("drive pin assert failed", "err", err)
		}
	}
	if err := h.port.SetDirection(true); err != nil {
		h.recordError(err)
		return err
	}

	if _, err := h.port.Write(out); err != nil {
		h.recordError(err)
		return err
	}

	if err := h.port.WaitTxComplete(txCompleteTimeout); err != nil {
		h.recordError(ErrTxStall)
		return ErrTxStall
	}

	if h.drivePin != nil {
		if err := h.drivePin.Set(false); err != nil {
			h.log.Warn("drive pin release failed", "err", err)
		}
	}
	if err := h.port.SetDirection(false); err != nil {
		h.log.Warn("switch to receive failed", "err", err)
	}

	if h.role == RoleMaster {
		h.armTimeout()
	}

	h.recordOut()
	return nil
}
