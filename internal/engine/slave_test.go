// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import (
	"testing"
	"time"

	"github.com/haldex/modbus-rtu/internal/crc"
	"github.com/haldex/modbus-rtu/internal/frame"
	"github.com/haldex/modbus-rtu/internal/register"
)

const testT35 = 5 * time.Millisecond

func newTestSlave(t *testing.T, stationID byte, sizes register.Sizes) (*Handler, *fakePort) {
	t.Helper()
	img, err := register.New(sizes, nil)
	if err != nil {
		t.Fatal(err)
	}
	port := newFakePort()
	h, err := NewHandler(Config{
		Role:      RoleSlave,
		StationID: stationID,
		Port:      port,
		Image:     img,
		T35:       testT35,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	return h, port
}

// TestSlaveFC3ReadHoldingRegisters implements the literal end-to-end
// scenario: read 10 HR from address 0, HR[0..10) = {0,...,9}.
func TestSlaveFC3ReadHoldingRegisters(t *testing.T) {
	sizes := register.Sizes{HoldingWords: 16}
	h, port := newTestSlave(t, 1, sizes)
	for i := 0; i < 10; i++ {
		h.image.Holding[i] = uint16(i)
	}

	req := crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	if req[len(req)-2] != 0xC5 || req[len(req)-1] != 0xCD {
		t.Fatalf("fixed vector CRC mismatch: got % X", req[len(req)-2:])
	}
	port.Feed(req)

	reply := waitForWrite(t, port, 500*time.Millisecond)
	want := []byte{0x01, 0x03, 0x14, 0x00, 0x00, 0x00, 0x01, 0x00, 0x02, 0x00, 0x03,
		0x00, 0x04, 0x00, 0x05, 0x00, 0x06, 0x00, 0x07, 0x00, 0x08, 0x00, 0x09}
	if len(reply) != len(want)+2 {
		t.Fatalf("reply length = %d, want %d", len(reply), len(want)+2)
	}
	for i, b := range want {
		if reply[i] != b {
			t.Fatalf("reply[%d] = 0x%02X, want 0x%02X", i, reply[i], b)
		}
	}
	if !crc.Valid(reply) {
		t.Fatal("reply fails CRC check")
	}
}

// TestSlaveFC6WriteSingleRegister covers writing 0x1234
// at address 5, station 2.
func TestSlaveFC6WriteSingleRegister(t *testing.T) {
	h, port := newTestSlave(t, 2, register.Sizes{HoldingWords: 16})

	req := crc.Append([]byte{0x02, 0x06, 0x00, 0x05, 0x12, 0x34})
	port.Feed(req)

	reply := waitForWrite(t, port, 500*time.Millisecond)
	if len(reply) != len(req) {
		t.Fatalf("reply length = %d, want %d (echo)", len(reply), len(req))
	}
	for i := range req[:6] {
		if reply[i] != req[i] {
			t.Fatalf("reply[%d] = 0x%02X, want echoed 0x%02X", i, reply[i], req[i])
		}
	}

	h.image.RLock()
	got := h.image.Holding[5]
	h.image.RUnlock()
	if got != 0x1234 {
		t.Fatalf("HR[5] = 0x%04X, want 0x1234", got)
	}
}

// TestSlaveFC1ReadCoils covers reading 9 coils starting
// at 2, with coils {2,3,5,8,10} set and the rest clear.
func TestSlaveFC1ReadCoils(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{CoilWords: 1})

	h.image.Lock()
	for _, c := range []uint16{2, 3, 5, 8, 10} {
		register.SetBit(h.image.Coils, c, true)
	}
	h.image.Unlock()

	req := crc.Append([]byte{0x01, 0x01, 0x00, 0x02, 0x00, 0x09})
	port.Feed(req)

	reply := waitForWrite(t, port, 500*time.Millisecond)
	if reply[0] != 0x01 || reply[1] != 0x01 {
		t.Fatalf("unexpected header: % X", reply[:2])
	}
	byteCount := int(reply[2])
	if byteCount != 2 {
		t.Fatalf("byteCount = %d, want 2 (ceil(9/8))", byteCount)
	}
	data := reply[3 : 3+byteCount]
	// Coils 2,3,5,8 land in byte0 (bits 0,1,3,6); coil 10 lands in byte1
	// bit 0.
	wantByte0 := byte(0b0100_1011)
	wantByte1 := byte(0b0000_0001)
	if data[0] != wantByte0 {
		t.Fatalf("byte0 = %08b, want %08b", data[0], wantByte0)
	}
	if data[1] != wantByte1 {
		t.Fatalf("byte1 = %08b, want %08b", data[1], wantByte1)
	}
	if !crc.Valid(reply) {
		t.Fatal("reply fails CRC check")
	}
}

// TestSlaveFC16WriteMultipleRegisters checks that both registers are
// written and that the reply echoes the address and the 16-bit quantity
// (NbHi:NbLo = 0x0002). With a quantity below 256 this reply is
// byte-for-byte the same as one with a truncated quantity.
func TestSlaveFC16WriteMultipleRegisters(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{HoldingWords: 16})

	req := crc.Append([]byte{0x01, 0x10, 0x00, 0x04, 0x00, 0x02, 0x04, 0xAA, 0x55, 0x12, 0x34})
	port.Feed(req)

	reply := waitForWrite(t, port, 500*time.Millisecond)
	want := []byte{0x01, 0x10, 0x00, 0x04, 0x00, 0x02}
	if len(reply) != len(want)+2 {
		t.Fatalf("reply length = %d, want %d", len(reply), len(want)+2)
	}
	for i, b := range want {
		if reply[i] != b {
			t.Fatalf("reply[%d] = 0x%02X, want 0x%02X", i, reply[i], b)
		}
	}

	h.image.RLock()
	got4, got5 := h.image.Holding[4], h.image.Holding[5]
	h.image.RUnlock()
	if got4 != 0xAA55 || got5 != 0x1234 {
		t.Fatalf("HR[4:6] = {0x%04X, 0x%04X}, want {0xAA55, 0x1234}", got4, got5)
	}
}

// TestSlaveBadCRCProducesNoReply covers the case where a flipped CRC
// byte produces no reply, records ErrBadCRC and bumps the error counter.
func TestSlaveBadCRCProducesNoReply(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{HoldingWords: 16})

	req := crc.Append([]byte{0x01, 0x03, 0x00, 0x00, 0x00, 0x0A})
	req[len(req)-1] ^= 0xFF // flip the CRC
	port.Feed(req)

	time.Sleep(10 * testT35)
	if port.writeCount() != 0 {
		t.Fatalf("expected no reply, got %d writes", port.writeCount())
	}
	if h.LastError() != ErrBadCRC {
		t.Fatalf("LastError = %v, want ErrBadCRC", h.LastError())
	}
	_, _, errs := h.Counters()
	if errs != 1 {
		t.Fatalf("error counter = %d, want 1", errs)
	}
}

// TestSlaveDropsFrameForOtherStation verifies the invariant that a frame
// addressed to a different station is silently dropped: no reply, and
// last_error is left untouched.
func TestSlaveDropsFrameForOtherStation(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{HoldingWords: 16})

	req := crc.Append([]byte{0x09, 0x03, 0x00, 0x00, 0x00, 0x0A})
	port.Feed(req)

	time.Sleep(10 * testT35)
	if port.writeCount() != 0 {
		t.Fatalf("expected no reply, got %d writes", port.writeCount())
	}
	if h.LastError() != nil {
		t.Fatalf("LastError = %v, want nil", h.LastError())
	}
}

// TestSlaveRejectsShortFrame covers the boundary: a 6-byte request is
// rejected with ErrBadSize.
func TestSlaveRejectsShortFrame(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{HoldingWords: 16})

	req := crc.Append([]byte{0x01, 0x03, 0x00, 0x00})
	if len(req) != 6 {
		t.Fatalf("test setup: request length = %d, want 6", len(req))
	}
	port.Feed(req)

	time.Sleep(10 * testT35)
	if h.LastError() != ErrBadSize {
		t.Fatalf("LastError = %v, want ErrBadSize", h.LastError())
	}
}

// TestSlaveIllegalFunctionRepliesException exercises an unsupported
// function code producing an ILLEGAL_FUNCTION exception reply.
func TestSlaveIllegalFunctionRepliesException(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{HoldingWords: 16})

	req := crc.Append([]byte{0x01, 0x17, 0x00, 0x00, 0x00, 0x01})
	port.Feed(req)

	reply := waitForWrite(t, port, 500*time.Millisecond)
	if len(reply) != frame.ExceptionSize {
		t.Fatalf("reply length = %d, want %d", len(reply), frame.ExceptionSize)
	}
	if reply[1] != 0x17|0x80 {
		t.Fatalf("reply func = 0x%02X, want 0x%02X", reply[1], 0x17|0x80)
	}
	if reply[2] != frame.ExcIllegalFunction {
		t.Fatalf("exception code = 0x%02X, want 0x%02X", reply[2], frame.ExcIllegalFunction)
	}
}

// TestSlaveFC2ReadDiscreteInputs covers the discrete-input table, which
// shares fcReadBits with FC1 but reads a distinct backing array.
func TestSlaveFC2ReadDiscreteInputs(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{DiscreteWords: 1})

	h.image.Lock()
	register.SetBit(h.image.Discretes, 0, true)
	register.SetBit(h.image.Discretes, 3, true)
	h.image.Unlock()

	req := crc.Append([]byte{0x01, 0x02, 0x00, 0x00, 0x00, 0x04})
	port.Feed(req)

	reply := waitForWrite(t, port, 500*time.Millisecond)
	if reply[1] != 0x02 {
		t.Fatalf("reply func = 0x%02X, want 0x02", reply[1])
	}
	if reply[2] != 1 {
		t.Fatalf("byteCount = %d, want 1", reply[2])
	}
	if reply[3] != 0b0000_1001 {
		t.Fatalf("data = %08b, want %08b", reply[3], 0b0000_1001)
	}
}

// TestSlaveFC4ReadInputRegisters covers the input-register table, sharing
// fcReadWords with FC3 but reading the Input array instead of Holding.
func TestSlaveFC4ReadInputRegisters(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{InputWords: 4})
	h.image.Input[2] = 0xBEEF

	req := crc.Append([]byte{0x01, 0x04, 0x00, 0x02, 0x00, 0x01})
	port.Feed(req)

	reply := waitForWrite(t, port, 500*time.Millisecond)
	want := []byte{0x01, 0x04, 0x02, 0xBE, 0xEF}
	for i, b := range want {
		if reply[i] != b {
			t.Fatalf("reply[%d] = 0x%02X, want 0x%02X", i, reply[i], b)
		}
	}
}

// TestSlaveFC5WriteSingleCoil covers the two legal coil values and the
// rejection of anything else.
func TestSlaveFC5WriteSingleCoil(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{CoilWords: 1})

	req := crc.Append([]byte{0x01, 0x05, 0x00, 0x03, 0xFF, 0x00})
	port.Feed(req)
	reply := waitForWrite(t, port, 500*time.Millisecond)
	for i, b := range req[:6] {
		if reply[i] != b {
			t.Fatalf("reply[%d] = 0x%02X, want echoed 0x%02X", i, reply[i], b)
		}
	}
	h.image.RLock()
	set := register.GetBit(h.image.Coils, 3)
	h.image.RUnlock()
	if !set {
		t.Fatal("coil 3 was not set")
	}
}

// TestSlaveFC5RejectsBadValue covers the boundary: any value other than
// 0xFF00/0x0000 is ERR_ILLEGAL_DATA_VALUE, not a silent truncation.
func TestSlaveFC5RejectsBadValue(t *testing.T) {
	_, port := newTestSlave(t, 1, register.Sizes{CoilWords: 1})

	req := crc.Append([]byte{0x01, 0x05, 0x00, 0x03, 0x12, 0x34})
	port.Feed(req)

	reply := waitForWrite(t, port, 500*time.Millisecond)
	if reply[1] != 0x05|0x80 {
		t.Fatalf("reply func = 0x%02X, want exception", reply[1])
	}
	if reply[2] != frame.ExcIllegalDataValue {
		t.Fatalf("exception code = 0x%02X, want 0x%02X", reply[2], frame.ExcIllegalDataValue)
	}
}

// TestSlaveFC15WriteMultipleCoils covers packing caller bytes into the
// coil table starting at an arbitrary address.
func TestSlaveFC15WriteMultipleCoils(t *testing.T) {
	h, port := newTestSlave(t, 1, register.Sizes{CoilWords: 1})

	// Coils 1..10, byte0=0b0000_0101 (coils 1,3), byte1=0b0000_0001 (coil 9).
	req := crc.Append([]byte{0x01, 0x0F, 0x00, 0x01, 0x00, 0x0A, 0x02, 0b0000_0101, 0b0000_0001})
	port.Feed(req)

	reply := waitForWrite(t, port, 500*time.Millisecond)
	want := []byte{0x01, 0x0F, 0x00, 0x01, 0x00, 0x0A}
	for i, b := range want {
		if reply[i] != b {
			t.Fatalf("reply[%d] = 0x%02X, want 0x%02X", i, reply[i], b)
		}
	}

	h.image.RLock()
	defer h.image.RUnlock()
	for _, c := range []uint16{1, 3, 9} {
		if !register.GetBit(h.image.Coils, c) {
			t.Fatalf("coil %d not set", c)
		}
	}
	for _, c := range []uint16{2, 4, 5, 6, 7, 8, 10} {
		if register.GetBit(h.image.Coils, c) {
			t.Fatalf("coil %d unexpectedly set", c)
		}
	}
}
