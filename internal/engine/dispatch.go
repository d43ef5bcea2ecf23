// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import (
	"github.com/haldex/modbus-rtu/internal/frame"
	"github.com/haldex/modbus-rtu/internal/register"
)

// fcHandler is the shared signature every function-code routine
// implements: read the request out of in, mutate the register image if
// it's a write, build the reply into h.buf, and return its length
// (CRC included). A non-nil *Exception means "reply with this wire
// exception instead"; any other non-nil error is a validation failure
// that should be logged but produces no reply.
type fcHandler func(h *Handler, in []byte) (int, error)

var dispatchTable = map[byte]fcHandler{
	frame.FuncReadCoils: func(h *Handler, in []byte) (int, error) {
		return fcReadBits(h, in, h.image.Coils, frame.FuncReadCoils)
	},
	frame.FuncReadDiscreteInputs: func(h *Handler, in []byte) (int, error) {
		return fcReadBits(h, in, h.image.Discretes, frame.FuncReadDiscreteInputs)
	},
	frame.FuncReadHoldingRegisters: func(h *Handler, in []byte) (int, error) {
		return fcReadWords(h, in, h.image.Holding, frame.FuncReadHoldingRegisters)
	},
	frame.FuncReadInputRegisters: func(h *Handler, in []byte) (int, error) {
		return fcReadWords(h, in, h.image.Input, frame.FuncReadInputRegisters)
	},
	frame.FuncWriteSingleCoil:     fcWriteSingleCoil,
	frame.FuncWriteSingleRegister: fcWriteSingleRegister,
	frame.FuncWriteMultipleCoils:  fcWriteMultipleCoils,
	frame.FuncWriteMultipleRegs:   fcWriteMultipleRegs,
}

// fcReadBits implements FC1/FC2: byte count = ceil(quantity/8),
// header {id, func, byteCount}, then each coil's bit copied into the
// reply bitmap LSB-first.
func fcReadBits(h *Handler, in []byte, table []uint16, fc byte) (int, error) {
	address := frame.Word(in[2], in[3])
	qty := frame.Word(in[4], in[5])

	startWord := int(address) / 16
	words := register.BitWords(qty)
	if startWord+words > len(table) {
		return 0, &Exception{Code: frame.ExcIllegalDataAddr}
	}

	byteCount := int(qty+7) / 8
	replyLen := 3 + byteCount + 2
	if replyLen > frame.MaxFrame {
		return 0, &Exception{Code: frame.ExcIllegalDataValue}
	}

	h.image.RLock()
	h.buf[frame.ID] = h.stationID
	h.buf[frame.FUNC] = fc
	h.buf[2] = byte(byteCount) // reply header's third byte is a byte count, not an address
	for i := 0; i < byteCount; i++ {
		h.buf[3+i] = 0
	}
	for i := uint16(0); i < qty; i++ {
		if register.GetBit(table, address+i) {
			h.buf[3+int(i)/8] |= 1 << (i % 8)
		}
	}
	h.image.RUnlock()

	n := 3 + byteCount
	out := frame.Append(h.buf[:n])
	return len(out), nil
}

// fcReadWords implements FC3/FC4: header {id, func, 2*quantity},
// then each register as a big-endian pair.
func fcReadWords(h *Handler, in []byte, table []uint16, fc byte) (int, error) {
	address := frame.Word(in[2], in[3])
	qty := frame.Word(in[4], in[5])

	if int(address)+int(qty) > len(table) {
		return 0, &Exception{Code: frame.ExcIllegalDataAddr}
	}
	replyLen := 3 + int(qty)*2 + 2
	if replyLen > frame.MaxFrame {
		return 0, &Exception{Code: frame.ExcIllegalDataValue}
	}

	h.image.RLock()
	h.buf[frame.ID] = h.stationID
	h.buf[frame.FUNC] = fc
	h.buf[2] = byte(qty * 2) // reply header's third byte is a byte count, not an address
	for i := uint16(0); i < qty; i++ {
		hi, lo := frame.HiLo(table[int(address)+int(i)])
		h.buf[3+2*i] = hi
		h.buf[3+2*i+1] = lo
	}
	h.image.RUnlock()

	n := 3 + int(qty)*2
	out := frame.Append(h.buf[:n])
	return len(out), nil
}

// fcWriteSingleCoil implements FC5: only 0xFF00 (set) and 0x0000 (clear) are accepted.
func fcWriteSingleCoil(h *Handler, in []byte) (int, error) {
	address := frame.Word(in[2], in[3])
	value := frame.Word(in[4], in[5])

	wordIdx := int(address) / 16
	if wordIdx >= len(h.image.Coils) {
		return 0, &Exception{Code: frame.ExcIllegalDataAddr}
	}

	var set bool
	switch value {
	case 0xFF00:
		set = true
	case 0x0000:
		set = false
	default:
		return 0, &Exception{Code: frame.ExcIllegalDataValue}
	}

	h.image.Lock()
	register.SetBit(h.image.Coils, address, set)
	h.image.MarkWritten(register.TableCoils, address, 1)
	h.image.Unlock()

	copy(h.buf[:6], in[:6])
	out := frame.Append(h.buf[:6])
	return len(out), nil
}

// fcWriteSingleRegister implements FC6.
func fcWriteSingleRegister(h *Handler, in []byte) (int, error) {
	address := frame.Word(in[2], in[3])
	value := frame.Word(in[4], in[5])

	if int(address) >= len(h.image.Holding) {
		return 0, &Exception{Code: frame.ExcIllegalDataAddr}
	}

	h.image.Lock()
	h.image.Holding[address] = value
	h.image.MarkWritten(register.TableHolding, address, 1)
	h.image.Unlock()

	copy(h.buf[:6], in[:6])
	out := frame.Append(h.buf[:6])
	return len(out), nil
}

// fcWriteMultipleCoils implements FC15: payload bits, starting at
// byte 7, packed into coil words starting at address.
func fcWriteMultipleCoils(h *Handler, in []byte) (int, error) {
	address := frame.Word(in[2], in[3])
	qty := frame.Word(in[4], in[5])
	byteCount := int(in[6])

	if len(in) < frame.ByteCnt+1+byteCount+2 {
		return 0, &Exception{Code: frame.ExcIllegalDataValue}
	}
	if byteCount != (int(qty)+7)/8 {
		return 0, &Exception{Code: frame.ExcIllegalDataValue}
	}
	payload := in[frame.ByteCnt+1 : frame.ByteCnt+1+byteCount]

	startWord := int(address) / 16
	words := register.BitWords(qty)
	if startWord+words > len(h.image.Coils) {
		return 0, &Exception{Code: frame.ExcIllegalDataAddr}
	}

	h.image.Lock()
	for i := uint16(0); i < qty; i++ {
		byteIdx := int(i) / 8
		bitIdx := uint(i) % 8
		bit := (payload[byteIdx]>>bitIdx)&1 != 0
		register.SetBit(h.image.Coils, address+i, bit)
	}
	h.image.MarkWritten(register.TableCoils, address, qty)
	h.image.Unlock()

	copy(h.buf[:6], in[:6])
	out := frame.Append(h.buf[:6])
	return len(out), nil
}

// fcWriteMultipleRegs implements FC16. The reply carries the full 16-bit
// written quantity, matching standard Modbus rather than truncating it to
// a single byte.
func fcWriteMultipleRegs(h *Handler, in []byte) (int, error) {
	address := frame.Word(in[2], in[3])
	qty := frame.Word(in[4], in[5])
	byteCount := int(in[6])

	if len(in) < frame.ByteCnt+1+byteCount+2 {
		return 0, &Exception{Code: frame.ExcIllegalDataValue}
	}
	if byteCount != int(qty)*2 {
		return 0, &Exception{Code: frame.ExcIllegalDataValue}
	}
	payload := in[frame.ByteCnt+1 : frame.ByteCnt+1+byteCount]

	if int(address)+int(qty) > len(h.image.Holding) {
		return 0, &Exception{Code: frame.ExcIllegalDataAddr}
	}

	h.image.Lock()
	for i := uint16(0); i < qty; i++ {
		h.image.Holding[int(address)+int(i)] = frame.Word(payload[2*i], payload[2*i+1])
	}
	h.image.MarkWritten(register.TableHolding, address, qty)
	h.image.Unlock()

	h.buf[frame.ID] = in[frame.ID]
	h.buf[frame.FUNC] = in[frame.FUNC]
	h.buf[frame.AddHi] = in[frame.AddHi]
	h.buf[frame.AddLo] = in[frame.AddLo]
	hi, lo := frame.HiLo(qty)
	h.buf[frame.NbHi] = hi
	h.buf[frame.NbLo] = lo

	out := frame.Append(h.buf[:6])
	return len(out), nil
}
