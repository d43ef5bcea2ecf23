// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import (
	"errors"

	"github.com/haldex/modbus-rtu/internal/crc"
	"github.com/haldex/modbus-rtu/internal/frame"
)

// slaveLoop is the Slave worker: wait-for-frame, validate, then either
// ignore, reply with an exception, or dispatch and reply.
func (h *Handler) slaveLoop() {
	for {
		h.frameReady.Wait(nil)

		buf, overflow := h.rx.Drain()
		if overflow {
			h.recordError(ErrBuffOverflow)
			continue
		}
		if len(buf) == 0 {
			continue
		}
		h.handleRequest(buf)
	}
}

func (h *Handler) handleRequest(in []byte) {
	if len(in) < 1 || in[frame.ID] != h.stationID {
		return // not addressed to us: silently dropped, no error recorded
	}
	h.recordIn()

	if len(in) < frame.MinFrame {
		h.recordError(ErrBadSize)
		return
	}
	if !crc.Valid(in) {
		h.recordError(ErrBadCRC)
		return
	}

	fc := in[frame.FUNC]
	if !frame.IsSupported(fc) {
		h.replyException(fc, frame.ExcIllegalFunction)
		return
	}

	n, err := dispatchTable[fc](h, in)
	if err != nil {
		var exc *Exception
		if errors.As(err, &exc) {
			h.replyException(fc, exc.Code)
			return
		}
		h.recordError(err)
		return
	}

	h.send(h.buf[:n])
}

func (h *Handler) replyException(fc, code byte) {
	n := frame.BuildException(h.buf, h.stationID, fc, code)
	out := frame.Append(h.buf[:n])
	h.send(out)

	h.mu.Lock()
	h.lastErr = &Exception{Code: code}
	h.mu.Unlock()
}
