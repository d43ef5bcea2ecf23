// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package serialport defines the UART driver contract the engine depends
// on and a concrete adapter over github.com/grid-x/serial for real
// RS-485 links. The contract is deliberately narrow: non-blocking-ish byte
// receive, buffered transmit, a transmit-complete signal, and a
// half-duplex direction switch — everything the engine may assume of its
// UART driver and nothing more.
package serialport

import "time"

// Port is the transport a Handler drives. Implementations need not be
// literally non-blocking (a host OS serial port's Read/Write already block
// the calling goroutine, which is fine — that goroutine is the engine's
// own receiver/line-I/O goroutine, not an ISR), but ReadByte must return as
// soon as one byte is available.
type Port interface {
	// ReadByte blocks until one byte is available or the port's own read
	// deadline elapses, returning (0, err) on timeout. The receiver
	// goroutine calls this in a tight loop, standing in for the UART RX
	// ISR / DMA idle-line callback.
	ReadByte() (byte, error)

	// Write sends buf and blocks until it has been handed to the driver.
	// It does not itself guarantee the shift register is empty — that is
	// WaitTxComplete's job.
	Write(buf []byte) (int, error)

	// WaitTxComplete blocks, up to timeout, until the last bit of the most
	// recent Write is known to be on the wire. A Port that cannot observe
	// this directly (most host UARTs can't) may approximate it with a
	// bounded delay computed from baud rate and frame length; it must
	// still respect timeout and return ErrTxStall rather than hang.
	WaitTxComplete(timeout time.Duration) error

	// SetDirection switches the line to transmit (true) or receive
	// (false). For full-duplex hardware this may be a no-op; for RS-485
	// it drives the kernel's half-duplex ioctl and/or an external
	// DrivePin.
	SetDirection(transmit bool) error
}

// DrivePin is the optional discrete GPIO driving an external transceiver's
// drive-enable pin, for hardware that doesn't support RS-485 ioctls and
// needs the application to toggle the pin itself.
type DrivePin interface {
	// Set drives the pin high (transmit=true) or low (transmit=false).
	Set(transmit bool) error
}
