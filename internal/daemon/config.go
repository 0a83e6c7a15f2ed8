// Package daemon manages the VeriMesh daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	Node      NodeConfig      `toml:"node"`
	Gossip    GossipConfig    `toml:"gossip"`
	Verify    VerifyConfig    `toml:"verify"`
	API       APIConfig       `toml:"api"`
	Telemetry TelemetryConfig `toml:"telemetry"`
}

// NodeConfig identifies this node.
type NodeConfig struct {
	Version      string   `toml:"version"`
	Capabilities []string `toml:"capabilities"`
}

// GossipConfig controls the gossip transport and liveness loop.
type GossipConfig struct {
	UnicastPort       int    `toml:"unicast_port"`
	DiscoveryPort     int    `toml:"discovery_port"`
	BroadcastAddr     string `toml:"broadcast_addr"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	DiscoveryInterval string `toml:"discovery_interval"`
	OfflineThreshold  string `toml:"offline_threshold"`
	ResponseTimeout   string `toml:"response_timeout"`
}

// VerifyConfig controls trace verification.
type VerifyConfig struct {
	TraceDir         string `toml:"trace_dir"`
	MaxCacheAgeHours int    `toml:"max_cache_age_hours"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// TelemetryConfig controls observability endpoints.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// DefaultConfig returns sensible defaults rooted under the VeriMesh home.
func DefaultConfig() Config {
	homeDir := verimeshHome()
	return Config{
		Node: NodeConfig{
			Version:      "0.1.0",
			Capabilities: []string{"sync", "discovery", "verify"},
		},
		Gossip: GossipConfig{
			UnicastPort:       29876,
			DiscoveryPort:     29877,
			BroadcastAddr:     "255.255.255.255",
			HeartbeatInterval: "30s",
			DiscoveryInterval: "300s",
			OfflineThreshold:  "120s",
			ResponseTimeout:   "5s",
		},
		Verify: VerifyConfig{
			TraceDir:         filepath.Join(homeDir, "traces"),
			MaxCacheAgeHours: 24,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 29878,
		},
		Telemetry: TelemetryConfig{
			Prometheus: false,
		},
	}
}

// LoadConfig reads config from ~/.verimesh/config.toml, falling back to
// defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(verimeshHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet — use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.verimesh/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(verimeshHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// verimeshHome returns the VeriMesh data directory.
func verimeshHome() string {
	if env := os.Getenv("VERIMESH_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".verimesh")
}

// VerimeshHome is exported for use by other packages.
func VerimeshHome() string {
	return verimeshHome()
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
