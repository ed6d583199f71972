package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/extern-runtime/host"
)

type fileConfig struct {
	HeapPages    uint32 `toml:"heap_pages"`
	MaxHeapPages uint32 `toml:"max_heap_pages"`
	Tick         string `toml:"tick"`
	LogLevel     string `toml:"log_level"`
}

type config struct {
	Host     host.Config
	Tick     time.Duration
	LogLevel zapcore.Level
}

func defaultConfig() config {
	return config{
		Host:     host.DefaultConfig(),
		Tick:     10 * time.Millisecond,
		LogLevel: zapcore.InfoLevel,
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("heap_pages") {
		if raw.HeapPages == 0 {
			return config{}, fmt.Errorf("heap_pages must be positive")
		}
		cfg.Host.HeapPages = raw.HeapPages
	}
	if meta.IsDefined("max_heap_pages") {
		cfg.Host.MaxHeapPages = raw.MaxHeapPages
	}
	if cfg.Host.MaxHeapPages != 0 && cfg.Host.MaxHeapPages < cfg.Host.HeapPages {
		return config{}, fmt.Errorf("max_heap_pages %d is below heap_pages %d",
			cfg.Host.MaxHeapPages, cfg.Host.HeapPages)
	}

	if meta.IsDefined("tick") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Tick))
		if err != nil {
			return config{}, fmt.Errorf("parse tick: %w", err)
		}
		if d <= 0 {
			return config{}, fmt.Errorf("tick must be positive")
		}
		cfg.Tick = d
	}

	if meta.IsDefined("log_level") {
		lvl, err := zapcore.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return config{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = lvl
	}
	return cfg, nil
}
