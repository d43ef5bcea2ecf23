// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package serialport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/grid-x/serial"
)

// ErrTxStall is returned by WaitTxComplete when the computed transmit delay
// is longer than the timeout it was given.
var ErrTxStall = errors.New("serialport: transmit did not complete in time")

// Config carries the RS-485 knobs alongside the basic line parameters, so
// they travel with the port rather than living only in the application's
// own config struct.
type Config struct {
	Device   string
	BaudRate int
	DataBits int
	Parity   string
	StopBits int
	Timeout  time.Duration

	RS485              bool
	DelayRtsBeforeSend time.Duration
	DelayRtsAfterSend  time.Duration
	RtsHighDuringSend  bool
	RtsHighAfterSend   bool
	RxDuringTx         bool
}

// GridSerialPort adapts github.com/grid-x/serial to the Port contract.
type GridSerialPort struct {
	cfg  Config
	port io.ReadWriteCloser
}

// Open opens the underlying serial device.
func Open(cfg Config) (*GridSerialPort, error) {
	sc := &serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
	}
	sc.RS485.Enabled = cfg.RS485
	sc.RS485.DelayRtsBeforeSend = cfg.DelayRtsBeforeSend
	sc.RS485.DelayRtsAfterSend = cfg.DelayRtsAfterSend
	sc.RS485.RtsHighDuringSend = cfg.RtsHighDuringSend
	sc.RS485.RtsHighAfterSend = cfg.RtsHighAfterSend
	sc.RS485.RxDuringTx = cfg.RxDuringTx

	p, err := serial.Open(sc)
	if err != nil {
		return nil, fmt.Errorf("serialport: open %s: %w", cfg.Device, err)
	}
	return &GridSerialPort{cfg: cfg, port: p}, nil
}

func (p *GridSerialPort) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(p.port, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (p *GridSerialPort) Write(buf []byte) (int, error) {
	return p.port.Write(buf)
}

// WaitTxComplete approximates the shift-register-empty wait with a
// character-time delay computed from baud rate, since most host UARTs
// don't expose a transmit-complete status bit to user space.
func (p *GridSerialPort) WaitTxComplete(timeout time.Duration) error {
	delay := charTimes(p.cfg.BaudRate, 2) // stop/start bit framing overhead
	if delay > timeout {
		return ErrTxStall
	}
	time.Sleep(delay)
	return nil
}

func (p *GridSerialPort) SetDirection(transmit bool) error {
	// When RS485 is enabled, grid-x/serial's kernel ioctl handles RTS
	// toggling around each Write automatically; nothing to do here.
	return nil
}

func (p *GridSerialPort) Close() error {
	return p.port.Close()
}

// charTimes returns n intervals of 1.5 ten-bit character times at baudRate
// (15,000,000/baudRate microseconds each), using a fixed 750 microseconds
// per interval when baudRate is unset or above 19200.
func charTimes(baudRate, n int) time.Duration {
	if baudRate <= 0 || baudRate > 19200 {
		return time.Duration(750*n) * time.Microsecond
	}
	return time.Duration(15_000_000/baudRate*n) * time.Microsecond
}
