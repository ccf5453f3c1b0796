package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Syriven/netvend/internal/protocol/session"
)

type fileConfig struct {
	Server            string `toml:"server"`
	KeyFile           string `toml:"key_file"`
	Output            string `toml:"output"`
	ConnectTimeout    string `toml:"connect_timeout"`
	ReadTimeout       string `toml:"read_timeout"`
	WriteTimeout      string `toml:"write_timeout"`
	HandshakeAttempts int    `toml:"handshake_attempts"`
}

type clientConfig struct {
	Server            string
	KeyFile           string
	Output            string
	Session           session.Config
	HandshakeAttempts int
}

func defaultClientConfig() clientConfig {
	return clientConfig{
		Server:            fmt.Sprintf("localhost:%d", session.DefaultPort),
		KeyFile:           "agent.pem",
		Output:            "text",
		Session:           session.DefaultConfig(),
		HandshakeAttempts: 3,
	}
}

func loadClientConfig(path string) (clientConfig, error) {
	cfg := defaultClientConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return clientConfig{}, fmt.Errorf("load client config: %w", err)
	}

	if meta.IsDefined("server") {
		if v := strings.TrimSpace(raw.Server); v != "" {
			cfg.Server = v
		}
	}
	if meta.IsDefined("key_file") {
		if v := strings.TrimSpace(raw.KeyFile); v != "" {
			cfg.KeyFile = v
		}
	}
	if meta.IsDefined("output") {
		cfg.Output = strings.ToLower(strings.TrimSpace(raw.Output))
	}
	if meta.IsDefined("connect_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ConnectTimeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse connect_timeout: %w", err)
		}
		cfg.Session.ConnectTimeout = d
	}
	if meta.IsDefined("read_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.ReadTimeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse read_timeout: %w", err)
		}
		cfg.Session.ReadTimeout = d
	}
	if meta.IsDefined("write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.WriteTimeout))
		if err != nil {
			return clientConfig{}, fmt.Errorf("parse write_timeout: %w", err)
		}
		cfg.Session.WriteTimeout = d
	}
	if meta.IsDefined("handshake_attempts") {
		cfg.HandshakeAttempts = raw.HandshakeAttempts
	}
	if err := validateOutput(cfg.Output); err != nil {
		return clientConfig{}, err
	}
	cfg.Session = cfg.Session.WithDefaults()
	return cfg, nil
}

func validateOutput(format string) error {
	switch format {
	case "text", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q (text|json|yaml)", format)
	}
}
