// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/haldex/modbus-rtu/internal/config"
	"github.com/haldex/modbus-rtu/internal/engine"
	"github.com/haldex/modbus-rtu/internal/register"
	"github.com/haldex/modbus-rtu/internal/serialport"
)

func main() {
	configFile := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	setupLogger(cfg.Log)

	slog.Info("Starting Modbus RTU engine...")

	registry := engine.NewRegistry(len(cfg.Handlers))

	for _, hc := range cfg.Handlers {
		h, err := buildHandler(hc)
		if err != nil {
			// Configuration errors are fatal: the implementation halts
			// rather than continuing with an inconsistent handler.
			slog.Error("failed to build handler", "name", hc.Name, "err", err)
			os.Exit(1)
		}
		if err := registry.Register(hc.Name, h); err != nil {
			slog.Error("failed to register handler", "name", hc.Name, "err", err)
			os.Exit(1)
		}
		if err := h.Start(); err != nil {
			slog.Error("failed to start handler", "name", hc.Name, "err", err)
			os.Exit(1)
		}
		slog.Info("handler started", "name", hc.Name, "role", h.Role(), "station", h.StationID())
	}

	if registry.Len() == 0 {
		slog.Error("no handlers configured. Exiting.")
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

func buildHandler(hc config.HandlerConfig) (*engine.Handler, error) {
	port, err := serialport.Open(serialport.Config{
		Device:             hc.Serial.Device,
		BaudRate:           hc.Serial.BaudRate,
		DataBits:           hc.Serial.DataBits,
		Parity:             hc.Serial.Parity,
		StopBits:           hc.Serial.StopBits,
		Timeout:            hc.Serial.Timeout,
		RS485:              hc.Serial.RS485,
		DelayRtsBeforeSend: hc.Serial.DelayRtsBeforeSend,
		DelayRtsAfterSend:  hc.Serial.DelayRtsAfterSend,
		RtsHighDuringSend:  hc.Serial.RtsHighDuringSend,
		RtsHighAfterSend:   hc.Serial.RtsHighAfterSend,
		RxDuringTx:         hc.Serial.RxDuringTx,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port: %w", err)
	}

	storage, err := buildStorage(hc.Persist)
	if err != nil {
		return nil, fmt.Errorf("build storage: %w", err)
	}

	sizes := register.Sizes{
		CoilWords:     hc.Registers.CoilWords,
		DiscreteWords: hc.Registers.DiscreteWords,
		HoldingWords:  hc.Registers.HoldingWords,
		InputWords:    hc.Registers.InputWords,
	}
	img, err := register.New(sizes, storage)
	if err != nil {
		return nil, fmt.Errorf("build register image: %w", err)
	}

	role := engine.RoleSlave
	if strings.EqualFold(hc.Role, "master") {
		role = engine.RoleMaster
	}

	return engine.NewHandler(engine.Config{
		Role:       role,
		StationID:  hc.StationID,
		Port:       port,
		Image:      img,
		T35:        hc.T35,
		Timeout:    hc.Timeout,
		QueueDepth: hc.QueueDepth,
		Logger:     slog.Default(),
	})
}

func buildStorage(pc config.PersistenceConfig) (register.Storage, error) {
	switch strings.ToLower(pc.Type) {
	case "", "memory":
		return register.NewMemoryStorage(), nil
	case "mmap":
		if pc.Path == "" {
			return nil, fmt.Errorf("persistence.path is required for type %q", pc.Type)
		}
		return register.NewMmapStorage(pc.Path), nil
	default:
		return nil, fmt.Errorf("unknown persistence type %q", pc.Type)
	}
}

func setupLogger(cfg config.LogConfig) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	switch cfg.Level {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	var handler slog.Handler
	if cfg.File != "" && cfg.File != "-" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			fmt.Printf("Failed to open log file, falling back to stdout: %v\n", err)
			handler = slog.NewTextHandler(os.Stdout, opts)
		} else {
			handler = slog.NewTextHandler(f, opts)
		}
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
