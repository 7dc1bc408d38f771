package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TOMLConfig represents the structure of the server config file
type TOMLConfig struct {
	Server TOMLServerSection `toml:"server"`
	Limits TOMLLimitsSection `toml:"limits"`
}

type TOMLServerSection struct {
	Host         string `toml:"host"`
	TCPPort      int    `toml:"tcp_port"`
	HTTPPort     int    `toml:"http_port"`
	DefaultGroup string `toml:"default_group"`
}

type TOMLLimitsSection struct {
	MaxIdentityLength   int `toml:"max_identity_length"`
	MaxGroupNameLength  int `toml:"max_group_name_length"`
	WriteTimeoutSeconds int `toml:"write_timeout_seconds"`
}

// ServerConfig holds the resolved runtime configuration
type ServerConfig struct {
	Host               string
	TCPPort            int
	HTTPPort           int
	DefaultGroup       string
	MaxIdentityLength  int
	MaxGroupNameLength int
	WriteTimeout       time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() ServerConfig {
	return ServerConfig{
		Host:               "0.0.0.0",
		TCPPort:            5000,
		HTTPPort:           5080,
		DefaultGroup:       "Global",
		MaxIdentityLength:  32,
		MaxGroupNameLength: 32,
		WriteTimeout:       10 * time.Second,
	}
}

// DefaultTOMLConfig returns the default TOML configuration
func DefaultTOMLConfig() TOMLConfig {
	defaults := DefaultConfig()
	return TOMLConfig{
		Server: TOMLServerSection{
			Host:         defaults.Host,
			TCPPort:      defaults.TCPPort,
			HTTPPort:     defaults.HTTPPort,
			DefaultGroup: defaults.DefaultGroup,
		},
		Limits: TOMLLimitsSection{
			MaxIdentityLength:   defaults.MaxIdentityLength,
			MaxGroupNameLength:  defaults.MaxGroupNameLength,
			WriteTimeoutSeconds: int(defaults.WriteTimeout / time.Second),
		},
	}
}

// LoadConfig loads configuration from a TOML file, creates default if not found
func LoadConfig(path string) (TOMLConfig, error) {
	// Expand ~ in path
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return TOMLConfig{}, fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(homeDir, path[2:])
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// File doesn't exist, create default config
		config := DefaultTOMLConfig()
		if err := writeDefaultConfig(path, config); err != nil {
			// If we can't write, just return defaults without error
			return config, nil
		}
		return config, nil
	}

	var config TOMLConfig
	if _, err := toml.DecodeFile(path, &config); err != nil {
		return TOMLConfig{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// writeDefaultConfig writes the default config to a file
func writeDefaultConfig(path string, config TOMLConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	header := `# ChatRelay Server Configuration
# This file was auto-generated with default values
# Edit as needed and restart the server for changes to take effect

`
	if _, err := f.WriteString(header); err != nil {
		return err
	}

	encoder := toml.NewEncoder(f)
	if err := encoder.Encode(config); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// ToServerConfig converts TOMLConfig to ServerConfig, falling back to
// defaults for unset fields
func (c *TOMLConfig) ToServerConfig() ServerConfig {
	cfg := DefaultConfig()

	if strings.TrimSpace(c.Server.Host) != "" {
		cfg.Host = c.Server.Host
	}

	if c.Server.TCPPort != 0 {
		cfg.TCPPort = c.Server.TCPPort
	}

	if c.Server.HTTPPort != 0 {
		cfg.HTTPPort = c.Server.HTTPPort
	}

	if strings.TrimSpace(c.Server.DefaultGroup) != "" {
		cfg.DefaultGroup = c.Server.DefaultGroup
	}

	if c.Limits.MaxIdentityLength != 0 {
		cfg.MaxIdentityLength = c.Limits.MaxIdentityLength
	}

	if c.Limits.MaxGroupNameLength != 0 {
		cfg.MaxGroupNameLength = c.Limits.MaxGroupNameLength
	}

	if c.Limits.WriteTimeoutSeconds != 0 {
		cfg.WriteTimeout = time.Duration(c.Limits.WriteTimeoutSeconds) * time.Second
	}

	return cfg
}
