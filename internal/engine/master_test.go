// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package engine

import (
	"testing"
	"time"

	"github.com/haldex/modbus-rtu/internal/register"
	"github.com/haldex/modbus-rtu/internal/telegram"
)

func newTestMaster(t *testing.T, port *fakePort, timeout time.Duration) *Handler {
	t.Helper()
	img, err := register.New(register.Sizes{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	h, err := NewHandler(Config{
		Role:       RoleMaster,
		Port:       port,
		Image:      img,
		T35:        testT35,
		Timeout:    timeout,
		QueueDepth: 4,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}
	return h
}

// TestMasterFC3RoundTrip wires a Master and a Slave back to back over a
// simulated half-duplex link and checks the "round-trip idempotence"
// property: FC3 for [a,a+n) copies HR[a..a+n) on the slave back into the
// caller's words.
func TestMasterFC3RoundTrip(t *testing.T) {
	masterPort := newFakePort()
	slavePort := newFakePort()
	masterPort.peer = slavePort
	slavePort.peer = masterPort

	slaveImg, err := register.New(register.Sizes{HoldingWords: 16}, nil)
	if err != nil {
		t.Fatal(err)
	}
	slave, err := NewHandler(Config{
		Role:      RoleSlave,
		StationID: 7,
		Port:      slavePort,
		Image:     slaveImg,
		T35:       testT35,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := slave.Start(); err != nil {
		t.Fatal(err)
	}

	master := newTestMaster(t, masterPort, time.Second)

	for i := 0; i < 5; i++ {
		slave.image.Holding[i] = uint16(100 + i)
	}

	words := make([]uint16, 5)
	result := make(chan error, 1)
	err = master.Query(telegram.Telegram{
		Station:  7,
		Function: 0x03,
		Address:  0,
		Quantity: 5,
		Words:    words,
		Result:   result,
	})
	if err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("query failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for query result")
	}

	for i := 0; i < 5; i++ {
		if words[i] != uint16(100+i) {
			t.Fatalf("words[%d] = %d, want %d", i, words[i], 100+i)
		}
	}
}

// TestMasterTimeout covers the case where the slave never answers:
// so after the configured deadline the caller receives ErrTimeOut and the
// handler returns to Idle.
func TestMasterTimeout(t *testing.T) {
	port := newFakePort() // no peer: writes vanish, nothing ever replies
	master := newTestMaster(t, port, 20*time.Millisecond)

	words := make([]uint16, 1)
	result := make(chan error, 1)
	if err := master.Query(telegram.Telegram{
		Station:  9,
		Function: 0x03,
		Address:  0,
		Quantity: 1,
		Words:    words,
		Result:   result,
	}); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-result:
		if err != ErrTimeOut {
			t.Fatalf("result = %v, want ErrTimeOut", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for query result")
	}

	if master.getState() != stateIdle {
		t.Fatal("handler did not return to Idle after timeout")
	}
}

// TestMasterRejectsPollingWhileWaiting covers the boundary case: a
// second SendQuery while state == Waiting returns ErrPolling without
// touching the wire.
func TestMasterRejectsPollingWhileWaiting(t *testing.T) {
	port := newFakePort()
	master := newTestMaster(t, port, time.Second)

	result1 := make(chan error, 1)
	if err := master.Query(telegram.Telegram{
		Station: 9, Function: 0x03, Address: 0, Quantity: 1,
		Words: make([]uint16, 1), Result: result1,
	}); err != nil {
		t.Fatal(err)
	}
	waitForWriteCount(t, port, 1, 500*time.Millisecond)

	err := master.sendQuery(telegram.Telegram{Station: 9, Function: 0x03, Address: 0, Quantity: 1, Words: make([]uint16, 1)})
	if err != ErrPolling {
		t.Fatalf("sendQuery while Waiting = %v, want ErrPolling", err)
	}
	if port.writeCount() != 1 {
		t.Fatalf("writeCount = %d, want 1 (second query must not touch the wire)", port.writeCount())
	}
}

// TestMasterRejectsBadSlaveID covers the pre-flight ERR_BAD_SLAVE_ID
// rejection.
func TestMasterRejectsBadSlaveID(t *testing.T) {
	port := newFakePort()
	master := newTestMaster(t, port, time.Second)

	err := master.sendQuery(telegram.Telegram{Station: 0, Function: 0x03, Address: 0, Quantity: 1})
	if err != ErrBadSlaveID {
		t.Fatalf("err = %v, want ErrBadSlaveID", err)
	}
}
