// Package config holds the operator-facing YAML bootstrap files
// (gateway.yaml / node.yaml) and the TLV-encoded persisted state that
// survives process restarts (record.go).
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// GatewayConfig is the first-run bootstrap file for enigmaiot-gateway.
type GatewayConfig struct {
	Channel         int           `yaml:"channel"`
	ListenAddress   string        `yaml:"listen_address"`
	LogLevel        string        `yaml:"log_level"`
	MetricsAddress  string        `yaml:"metrics_address"`
	NodeTableSize   int           `yaml:"node_table_size"`
	MaxKeyValidity  time.Duration `yaml:"max_key_validity"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	Persistence     PersistenceConfig `yaml:"persistence"`
	StatePath       string        `yaml:"state_path"`
	// SleepyNodeMACs are the hex MACs of nodes known to deep-sleep between
	// transmissions, provisioned here because a sleepy node has no spare
	// round-trip to announce its own capability during the handshake.
	SleepyNodeMACs []string `yaml:"sleepy_node_macs"`
}

// NodeConfig is the first-run bootstrap file for enigmaiot-node. GatewayMAC
// is only consulted on a node's very first run, to seed the radio's static
// peer directory before any frame has been exchanged; once registered, the
// node's persisted record is authoritative.
type NodeConfig struct {
	ListenAddress    string        `yaml:"listen_address"`
	GatewayAddress   string        `yaml:"gateway_address"`
	GatewayMAC       string        `yaml:"gateway_mac"`
	LogLevel         string        `yaml:"log_level"`
	Sleepy           bool          `yaml:"sleepy"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	DownstreamTTL    time.Duration `yaml:"downstream_ttl"`
	StatePath        string        `yaml:"state_path"`
}

// PersistenceConfig names the optional warm-cache/audit backends. Either
// field may be left blank; both are best-effort and never block protocol
// operation when unreachable.
type PersistenceConfig struct {
	RedisAddress string `yaml:"redis_address"`
	PostgresDSN  string `yaml:"postgres_dsn"`
}

var (
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultDownstreamTTL    = 10 * time.Minute
)

// LoadGatewayConfig reads and validates a gateway.yaml bootstrap file.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read gateway config: %w", err)
	}
	cfg := defaultGatewayConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse gateway config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: invalid gateway config: %w", err)
	}
	return cfg, nil
}

// LoadNodeConfig reads and validates a node.yaml bootstrap file.
func LoadNodeConfig(path string) (*NodeConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read node config: %w", err)
	}
	cfg := defaultNodeConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse node config: %w", err)
	}
	if cfg.GatewayAddress == "" {
		return nil, fmt.Errorf("config: invalid node config: gateway_address is required")
	}
	return cfg, nil
}

func defaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Channel:          1,
		ListenAddress:    ":7667",
		LogLevel:         "info",
		MetricsAddress:   ":9667",
		NodeTableSize:    100,
		MaxKeyValidity:   24 * time.Hour,
		HandshakeTimeout: DefaultHandshakeTimeout,
		StatePath:        "/var/lib/enigmaiot/gateway.state",
	}
}

func defaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		ListenAddress:    ":0",
		LogLevel:         "info",
		HandshakeTimeout: DefaultHandshakeTimeout,
		DownstreamTTL:    DefaultDownstreamTTL,
		StatePath:        "/var/lib/enigmaiot/node.state",
	}
}

func (c *GatewayConfig) validate() error {
	if c.Channel < 1 || c.Channel > 14 {
		return fmt.Errorf("channel %d out of range 1-14", c.Channel)
	}
	if c.ListenAddress == "" {
		return fmt.Errorf("listen_address is required")
	}
	if c.NodeTableSize <= 0 {
		return fmt.Errorf("node_table_size must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("invalid log_level: %s", c.LogLevel)
	}
	return nil
}

// WriteGatewayConfig writes cfg to path as YAML, for first-run provisioning.
func WriteGatewayConfig(cfg *GatewayConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal gateway config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// WriteNodeConfig writes cfg to path as YAML, for first-run provisioning.
func WriteNodeConfig(cfg *NodeConfig, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshal node config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
