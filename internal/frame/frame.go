// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package frame defines the Modbus RTU wire layout: field offsets, the
// supported function-code whitelist, exception codes, and the small
// helpers for reading/writing the big-endian header fields shared by the
// Master and Slave sides of the engine.
package frame

import "github.com/haldex/modbus-rtu/internal/crc"

// Field offsets within a work buffer.
const (
	ID       = 0
	FUNC     = 1
	AddHi    = 2
	AddLo    = 3
	NbHi     = 4
	NbLo     = 5
	ByteCnt  = 6
	MinFrame = 7 // request must be at least this long to be worth parsing
)

// MaxFrame bounds the work buffer and the ring buffer behind it. Matches
// the classic Modbus RTU ADU cap: 253-byte PDU + id + 2-byte CRC.
const MaxFrame = 256

// ExceptionSize is the length, CRC included, of an exception reply.
const ExceptionSize = 5

// Function codes supported by this engine.
const (
	FuncReadCoils            = 0x01
	FuncReadDiscreteInputs   = 0x02
	FuncReadHoldingRegisters = 0x03
	FuncReadInputRegisters   = 0x04
	FuncWriteSingleCoil      = 0x05
	FuncWriteSingleRegister  = 0x06
	FuncWriteMultipleCoils   = 0x0F
	FuncWriteMultipleRegs    = 0x10
)

// Supported lists the whitelist in dispatch order; used by the validator
// and by tests that want to enumerate every function code the engine
// knows about.
var Supported = [...]byte{
	FuncReadCoils,
	FuncReadDiscreteInputs,
	FuncReadHoldingRegisters,
	FuncReadInputRegisters,
	FuncWriteSingleCoil,
	FuncWriteSingleRegister,
	FuncWriteMultipleCoils,
	FuncWriteMultipleRegs,
}

// IsSupported reports whether fc is one of the eight whitelisted codes.
func IsSupported(fc byte) bool {
	for _, s := range Supported {
		if s == fc {
			return true
		}
	}
	return false
}

// Modbus exception codes, returned on the wire by a Slave.
const (
	ExcIllegalFunction  = 0x01
	ExcIllegalDataAddr  = 0x02
	ExcIllegalDataValue = 0x03
)

// Word packs two bytes into a big-endian 16-bit value, the wire's native
// order for addresses, quantities and register values.
func Word(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

// HiLo splits a 16-bit value into its big-endian byte pair.
func HiLo(v uint16) (hi, lo byte) {
	return byte(v >> 8), byte(v)
}

// BuildException overwrites buf in place with a 3-byte exception PDU body
// (id, func|0x80, code) and returns the work-buffer length before CRC is
// appended (3); the caller appends the CRC to reach ExceptionSize.
func BuildException(buf []byte, stationID, fc, code byte) int {
	buf[ID] = stationID
	buf[FUNC] = fc | 0x80
	buf[2] = code
	return 3
}

// Append appends the wire CRC to buf and returns the extended slice.
func Append(buf []byte) []byte {
	return crc.Append(buf)
}
