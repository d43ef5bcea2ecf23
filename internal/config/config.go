// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package config loads the handler fleet's configuration via viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the top-level configuration: one process may run several
// independent Handlers, each on its own serial port.
type Config struct {
	Log      LogConfig       `mapstructure:"log"`
	Handlers []HandlerConfig `mapstructure:"handlers"`
}

// LogConfig configures the slog handler cmd/modbusrtu wires up.
type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
	File  string `mapstructure:"file"`
}

// HandlerConfig describes one Handler.
type HandlerConfig struct {
	Name      string `mapstructure:"name"`
	Role      string `mapstructure:"role"` // "master" or "slave"
	StationID byte   `mapstructure:"station_id"`

	Serial    SerialConfig      `mapstructure:"serial"`
	Registers RegisterConfig    `mapstructure:"registers"`
	Persist   PersistenceConfig `mapstructure:"persistence"`

	T35        time.Duration `mapstructure:"t35"`
	Timeout    time.Duration `mapstructure:"timeout"`     // Master only
	QueueDepth int           `mapstructure:"queue_depth"` // Master only
}

// RegisterConfig sizes the four data tables, in 16-bit words.
type RegisterConfig struct {
	CoilWords     int `mapstructure:"coil_words"`
	DiscreteWords int `mapstructure:"discrete_words"`
	HoldingWords  int `mapstructure:"holding_words"`
	InputWords    int `mapstructure:"input_words"`
}

// PersistenceConfig selects how a Slave's register image survives a
// restart; absent from the original embedded firmware, where the image
// lives in SRAM for the MCU's lifetime.
type PersistenceConfig struct {
	Type string `mapstructure:"type"` // "memory" (default) or "mmap"
	Path string `mapstructure:"path"` // file path, required for "mmap"
}

// SerialConfig mirrors serialport.Config's field set so it can be decoded
// straight out of YAML/TOML/JSON via mapstructure.
type SerialConfig struct {
	Device   string        `mapstructure:"device"`
	BaudRate int           `mapstructure:"baud_rate"`
	DataBits int           `mapstructure:"data_bits"`
	Parity   string        `mapstructure:"parity"`
	StopBits int           `mapstructure:"stop_bits"`
	Timeout  time.Duration `mapstructure:"timeout"`

	RS485              bool          `mapstructure:"rs485"`
	DelayRtsBeforeSend time.Duration `mapstructure:"delay_rts_before_send"`
	DelayRtsAfterSend  time.Duration `mapstructure:"delay_rts_after_send"`
	RtsHighDuringSend  bool          `mapstructure:"rts_high_during_send"`
	RtsHighAfterSend   bool          `mapstructure:"rts_high_after_send"`
	RxDuringTx         bool          `mapstructure:"rx_during_tx"`
}

// LoadConfig reads configFile (or the standard search path, if empty) and
// returns a fully defaulted, validated Config.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/modbus-rtu/")
		v.AddConfigPath("$HOME/.modbus-rtu")
		v.AddConfigPath(".")
	}

	v.SetDefault("log.level", "info")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	for i := range cfg.Handlers {
		if err := fixupHandler(&cfg.Handlers[i]); err != nil {
			return nil, fmt.Errorf("config: handler %q: %w", cfg.Handlers[i].Name, err)
		}
	}
	return &cfg, nil
}

func fixupHandler(h *HandlerConfig) error {
	h.Serial.Parity = strings.ToUpper(h.Serial.Parity)
	if h.Serial.Timeout == 0 {
		h.Serial.Timeout = 500 * time.Millisecond
	}
	if h.T35 == 0 {
		h.T35 = 2 * time.Millisecond
	}

	switch strings.ToLower(h.Role) {
	case "master":
		if h.Timeout == 0 {
			h.Timeout = time.Second
		}
		if h.QueueDepth == 0 {
			h.QueueDepth = 8
		}
	case "slave":
		if h.StationID < 1 || h.StationID > 247 {
			return fmt.Errorf("station_id must be 1..247 for a slave, got %d", h.StationID)
		}
	default:
		return fmt.Errorf("role must be \"master\" or \"slave\", got %q", h.Role)
	}
	return nil
}
