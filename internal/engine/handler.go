// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package engine is the Modbus RTU protocol core: framing against the T3.5
// silence timer, request/reply validation, function-code dispatch, and the
// Master-side request/reply correlation with timeout. One Handler binds a
// role, a serial Port, a register Image, and exactly one worker goroutine.
package engine

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/haldex/modbus-rtu/internal/frame"
	"github.com/haldex/modbus-rtu/internal/notify"
	"github.com/haldex/modbus-rtu/internal/register"
	"github.com/haldex/modbus-rtu/internal/ringbuf"
	"github.com/haldex/modbus-rtu/internal/serialport"
	"github.com/haldex/modbus-rtu/internal/telegram"
)

// Role selects Master or Slave behavior for a Handler.
type Role int

const (
	RoleSlave Role = iota
	RoleMaster
)

func (r Role) String() string {
	if r == RoleMaster {
		return "master"
	}
	return "slave"
}

type state int

const (
	stateIdle state = iota
	stateWaiting
)

// Config describes one Handler. Port and Image are required; Timeout and
// QueueDepth only apply to a Master.
type Config struct {
	Role      Role
	StationID byte // 1..247 for Slave; ignored (forced to 0) for Master

	Port     serialport.Port
	DrivePin serialport.DrivePin // optional

	Image *register.Image

	T35        time.Duration // inter-frame silence
	Timeout    time.Duration // Master reply deadline
	QueueDepth int           // Master telegram queue capacity

	Logger *slog.Logger
}

// Handler is a long-lived Master or Slave binding one serial port, one
// register Image, and one worker goroutine. The zero value is not
// ready to use; construct with NewHandler.
type Handler struct {
	role      Role
	stationID byte

	port     serialport.Port
	drivePin serialport.DrivePin
	image    *register.Image

	t35           time.Duration
	timeoutPeriod time.Duration

	buf []byte // work buffer; owned exclusively by the worker goroutine
	rx  *ringbuf.Buffer

	frameReady *notify.Mailbox // 0 = frame ready, notifyTimeout = Master deadline hit

	timerMu      sync.Mutex
	t35Timer     *time.Timer
	timeoutTimer *time.Timer

	queue *telegramQueue // Master only

	mu        sync.Mutex
	state     state
	countIn   uint64
	countOut  uint64
	countErr  uint64
	lastErr   error
	startedAt bool

	log *slog.Logger
}

// NewHandler validates cfg and constructs a Handler: the register image is
// linked, the work buffer and ring buffer are sized, and (for a Master) a
// telegram queue is created. It does not start any goroutine; call Start
// for that.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Port == nil {
		return nil, fmt.Errorf("engine: Config.Port is required")
	}
	if cfg.Image == nil {
		return nil, fmt.Errorf("engine: Config.Image is required")
	}
	if cfg.T35 <= 0 {
		return nil, fmt.Errorf("engine: Config.T35 must be positive")
	}

	h := &Handler{
		role:          cfg.Role,
		port:          cfg.Port,
		drivePin:      cfg.DrivePin,
		image:         cfg.Image,
		t35:           cfg.T35,
		timeoutPeriod: cfg.Timeout,
		buf:           make([]byte, frame.MaxFrame),
		rx:            ringbuf.New(frame.MaxFrame),
		frameReady:    notify.NewMailbox(),
		log:           cfg.Logger,
	}
	if h.log == nil {
		h.log = slog.Default()
	}

	switch cfg.Role {
	case RoleSlave:
		if cfg.StationID < 1 || cfg.StationID > 247 {
			return nil, fmt.Errorf("engine: Slave station id must be 1..247, got %d", cfg.StationID)
		}
		h.stationID = cfg.StationID
	case RoleMaster:
		if cfg.Timeout <= 0 {
			return nil, fmt.Errorf("engine: Master Config.Timeout must be positive")
		}
		if cfg.QueueDepth <= 0 {
			return nil, fmt.Errorf("engine: Master Config.QueueDepth must be positive")
		}
		h.stationID = 0
		h.queue = newTelegramQueue(cfg.QueueDepth)
	default:
		return nil, fmt.Errorf("engine: unknown Role %v", cfg.Role)
	}

	return h, nil
}

// Start places the line in receive mode and launches the worker and
// receive goroutines. It runs for the process lifetime; teardown is out
// of scope.
func (h *Handler) Start() error {
	h.mu.Lock()
	if h.startedAt {
		h.mu.Unlock()
		return fmt.Errorf("engine: handler already started")
	}
	h.startedAt = true
	h.countIn, h.countOut, h.countErr = 0, 0, 0
	h.mu.Unlock()

	if err := h.port.SetDirection(false); err != nil {
		return fmt.Errorf("engine: arm reception: %w", err)
	}

	go h.receiveLoop()
	if h.role == RoleMaster {
		go h.masterLoop()
	} else {
		go h.slaveLoop()
	}
	return nil
}

// Role reports whether this Handler is a Master or a Slave.
func (h *Handler) Role() Role { return h.role }

// StationID reports the configured station id (0 for a Master).
func (h *Handler) StationID() byte { return h.stationID }

// Counters returns the frame in/out/error counters.
func (h *Handler) Counters() (in, out, errs uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.countIn, h.countOut, h.countErr
}

// LastError returns the most recently recorded error, or nil.
func (h *Handler) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastErr
}

func (h *Handler) recordIn() {
	h.mu.Lock()
	h.countIn++
	h.mu.Unlock()
}

func (h *Handler) recordOut() {
	h.mu.Lock()
	h.countOut++
	h.mu.Unlock()
}

func (h *Handler) recordError(err error) {
	h.mu.Lock()
	h.lastErr = err
	h.countErr++
	h.mu.Unlock()
	h.log.Warn("modbus handler error", "role", h.role, "station", h.stationID, "err", err)
}

func (h *Handler) setState(s state) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handler) getState() state {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Query enqueues t for a Master Handler; rejected for a Slave.
func (h *Handler) Query(t telegram.Telegram) error {
	if h.role != RoleMaster {
		return ErrNotMaster
	}
	if t.Result == nil {
		return fmt.Errorf("engine: telegram.Result channel is required")
	}
	h.queue.Enqueue(t)
	return nil
}

// QueryInject clears the Master's pending queue and enqueues t at the
// head. Rejected for a Slave, for symmetry with Query.
func (h *Handler) QueryInject(t telegram.Telegram) error {
	if h.role != RoleMaster {
		return ErrNotMaster
	}
	if t.Result == nil {
		return fmt.Errorf("engine: telegram.Result channel is required")
	}
	h.queue.InjectHead(t)
	return nil
}
