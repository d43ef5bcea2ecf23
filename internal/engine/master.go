// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import (
	"fmt"

	"github.com/haldex/modbus-rtu/internal/crc"
	"github.com/haldex/modbus-rtu/internal/frame"
	"github.com/haldex/modbus-rtu/internal/register"
	"github.com/haldex/modbus-rtu/internal/telegram"
)

// masterLoop is the Master worker: dequeue a telegram, send it, wait for
// either a valid reply or a timeout, and report the outcome back to the
// caller.
func (h *Handler) masterLoop() {
	for {
		t := h.queue.Dequeue()

		// Anything that arrived while Idle is unsolicited; drain and
		// discard it now rather than letting it race the next SendQuery.
		h.rx.Clear()
		h.frameReady.TryWait()

		if err := h.sendQuery(t); err != nil {
			t.Result <- err
			continue
		}

		v, _ := h.frameReady.Wait(nil)
		h.stopTimeout()
		h.setState(stateIdle)

		if v != 0 {
			h.recordError(ErrTimeOut)
			t.Result <- ErrTimeOut
			continue
		}

		buf, overflow := h.rx.Drain()
		if overflow {
			h.recordError(ErrBuffOverflow)
			t.Result <- ErrBuffOverflow
			continue
		}

		if err := h.processAnswer(t, buf); err != nil {
			h.recordError(err)
			t.Result <- err
			continue
		}
		h.recordIn()
		t.Result <- nil
	}
}

// sendQuery builds and transmits the request for t.
func (h *Handler) sendQuery(t telegram.Telegram) error {
	if h.role != RoleMaster {
		return ErrNotMaster
	}
	if h.getState() != stateIdle {
		return ErrPolling
	}
	if t.Station < 1 || t.Station > 247 {
		return ErrBadSlaveID
	}

	h.image.Lock()
	n, err := buildRequest(h, t)
	h.image.Unlock()
	if err != nil {
		return err
	}

	h.setState(stateWaiting)
	if err := h.send(h.buf[:n]); err != nil {
		h.setState(stateIdle)
		return err
	}
	return nil
}

// buildRequest composes the PDU for t into h.buf and returns its length,
// CRC included. Must be called with the register-image
// mutex held, since multi-write FCs read the caller's word array through
// the same telegram the mutex is documented to protect.
func buildRequest(h *Handler, t telegram.Telegram) (int, error) {
	hiA, loA := frame.HiLo(t.Address)

	switch t.Function {
	case frame.FuncReadCoils, frame.FuncReadDiscreteInputs,
		frame.FuncReadHoldingRegisters, frame.FuncReadInputRegisters:
		h.buf[frame.ID] = t.Station
		h.buf[frame.FUNC] = t.Function
		h.buf[frame.AddHi], h.buf[frame.AddLo] = hiA, loA
		hiQ, loQ := frame.HiLo(t.Quantity)
		h.buf[frame.NbHi], h.buf[frame.NbLo] = hiQ, loQ
		return len(frame.Append(h.buf[:6])), nil

	case frame.FuncWriteSingleCoil:
		var v uint16
		if len(t.Words) > 0 && t.Words[0] != 0 {
			v = 0xFF00
		}
		h.buf[frame.ID] = t.Station
		h.buf[frame.FUNC] = t.Function
		h.buf[frame.AddHi], h.buf[frame.AddLo] = hiA, loA
		h.buf[frame.NbHi], h.buf[frame.NbLo] = frame.HiLo(v)
		return len(frame.Append(h.buf[:6])), nil

	case frame.FuncWriteSingleRegister:
		if len(t.Words) < 1 {
			return 0, fmt.Errorf("engine: FC6 telegram requires one word")
		}
		h.buf[frame.ID] = t.Station
		h.buf[frame.FUNC] = t.Function
		h.buf[frame.AddHi], h.buf[frame.AddLo] = hiA, loA
		h.buf[frame.NbHi], h.buf[frame.NbLo] = frame.HiLo(t.Words[0])
		return len(frame.Append(h.buf[:6])), nil

	case frame.FuncWriteMultipleCoils:
		words := register.BitWords(t.Quantity)
		if len(t.Words) < words {
			return 0, fmt.Errorf("engine: FC15 telegram needs %d words, got %d", words, len(t.Words))
		}
		byteCount := words * 2
		h.buf[frame.ID] = t.Station
		h.buf[frame.FUNC] = t.Function
		h.buf[frame.AddHi], h.buf[frame.AddLo] = hiA, loA
		h.buf[frame.NbHi], h.buf[frame.NbLo] = frame.HiLo(t.Quantity)
		h.buf[frame.ByteCnt] = byte(byteCount)
		for i := 0; i < words; i++ {
			// little-endian within each word pair
			h.buf[7+2*i] = byte(t.Words[i])
			h.buf[7+2*i+1] = byte(t.Words[i] >> 8)
		}
		n := 7 + byteCount
		return len(frame.Append(h.buf[:n])), nil

	case frame.FuncWriteMultipleRegs:
		qty := int(t.Quantity)
		if len(t.Words) < qty {
			return 0, fmt.Errorf("engine: FC16 telegram needs %d words, got %d", qty, len(t.Words))
		}
		h.buf[frame.ID] = t.Station
		h.buf[frame.FUNC] = t.Function
		h.buf[frame.AddHi], h.buf[frame.AddLo] = hiA, loA
		h.buf[frame.NbHi], h.buf[frame.NbLo] = frame.HiLo(t.Quantity)
		h.buf[frame.ByteCnt] = byte(qty * 2)
		for i := 0; i < qty; i++ {
			hi, lo := frame.HiLo(t.Words[i])
			h.buf[7+2*i] = hi
			h.buf[7+2*i+1] = lo
		}
		n := 7 + qty*2
		return len(frame.Append(h.buf[:n])), nil

	default:
		return 0, fmt.Errorf("engine: unsupported function code 0x%02x", t.Function)
	}
}

// processAnswer validates buf and, for read function codes,
// copies the reply back into the caller's word array.
func (h *Handler) processAnswer(t telegram.Telegram, buf []byte) error {
	if len(buf) < 6 {
		return ErrBadSize
	}
	if !crc.Valid(buf) {
		return ErrBadCRC
	}
	if buf[frame.FUNC]&0x80 != 0 {
		return &Exception{Code: buf[2]}
	}
	if !frame.IsSupported(buf[frame.FUNC]) {
		return ErrIllegalFunction
	}

	switch t.Function {
	case frame.FuncReadCoils, frame.FuncReadDiscreteInputs, frame.FuncReadHoldingRegisters, frame.FuncReadInputRegisters:
		byteCount := int(buf[2])
		if 3+byteCount+2 > len(buf) {
			return ErrBadSize
		}
		if t.Function == frame.FuncReadCoils || t.Function == frame.FuncReadDiscreteInputs {
			copyBitsBack(t, buf, byteCount)
		} else {
			copyWordsBack(t, buf, byteCount)
		}
	}
	return nil
}

// copyBitsBack implements FC1/FC2 copy-back: the first reply byte goes
// into the high half of caller word 0, the second into the low half, and
// so on. Caller must have verified 3+byteCount+2 <= len(buf).
func copyBitsBack(t telegram.Telegram, buf []byte, byteCount int) {
	data := buf[3 : 3+byteCount]
	for i, b := range data {
		wordIdx := i / 2
		if wordIdx >= len(t.Words) {
			break
		}
		if i%2 == 0 {
			t.Words[wordIdx] = (t.Words[wordIdx] &^ 0xFF00) | uint16(b)<<8
		} else {
			t.Words[wordIdx] = (t.Words[wordIdx] &^ 0x00FF) | uint16(b)
		}
	}
}

// copyWordsBack implements FC3/FC4 copy-back: big-endian pairs into
// successive caller words. Caller must have verified 3+byteCount+2 <=
// len(buf).
func copyWordsBack(t telegram.Telegram, buf []byte, byteCount int) {
	qty := byteCount / 2
	for i := 0; i < qty && i < len(t.Words); i++ {
		t.Words[i] = frame.Word(buf[3+2*i], buf[3+2*i+1])
	}
}
