package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

type serverConfig struct {
	Addr     string
	LogLevel zerolog.Level
	Pretty   bool
}

func defaultConfig() serverConfig {
	return serverConfig{
		Addr:     ":8080",
		LogLevel: zerolog.InfoLevel,
		Pretty:   true,
	}
}

type fileConfig struct {
	Addr     string `toml:"addr"`
	LogLevel string `toml:"log_level"`
	Pretty   bool   `toml:"pretty"`
}

func loadConfig(path string) (serverConfig, error) {
	cfg := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serverConfig{}, fmt.Errorf("load config: %w", err)
	}

	if meta.IsDefined("addr") {
		addr := strings.TrimSpace(raw.Addr)
		if addr != "" {
			cfg.Addr = addr
		}
	}

	if meta.IsDefined("log_level") {
		level, err := zerolog.ParseLevel(strings.TrimSpace(raw.LogLevel))
		if err != nil {
			return serverConfig{}, fmt.Errorf("parse log_level: %w", err)
		}
		cfg.LogLevel = level
	}

	if meta.IsDefined("pretty") {
		cfg.Pretty = raw.Pretty
	}

	return cfg, nil
}
