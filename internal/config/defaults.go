package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns a Config with sensible default values
func DefaultConfig() *Config {
	return &Config{
		TokenFile: "authorized_tokens.json",
		OutputDir: "reports",
		DBPath:    "inspector.db",
		Scan: ScanSettings{
			Rate:        10,
			Concurrency: 5,
			Timeout:     5 * time.Second,
			Ports:       "",
			Profile:     "",
		},
		DNS: DNSConfig{
			Servers: []string{},
		},
		HTTP: HTTPConfig{
			UserAgent:          "inspector/1.0",
			InsecureSkipVerify: false,
			MaxRedirects:       10,
		},
		Log: LogConfig{
			Level: "info",
			File:  "logs/audit.log",
		},
		Scope: ScopeConfig{
			Domains: []string{},
			CIDRs:   []string{},
		},
	}
}

// WriteDefault writes a default configuration to the specified path.
// An existing file is only replaced when force is set.
func WriteDefault(fs afero.Fs, path string, force bool) error {
	if !force {
		exists, err := afero.Exists(fs, path)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("config file %s already exists: %w", path, os.ErrExist)
		}
	}

	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
