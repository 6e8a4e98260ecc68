// Package config loads the YAML configuration for the Hub, the
// Gateway, and channel plugins, following the teacher's
// internal/infra/config pattern: a single gopkg.in/yaml.v3 document,
// environment overrides, and a validated result.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"relayhub/internal/domain"
)

// HubConfig is the top-level configuration for the Hub process: where
// its identity lives, where the Gateway is, what port the local plugin
// RPC transport listens on, and which channels to spawn.
type HubConfig struct {
	DeviceID    string                   `yaml:"device_id"`
	IdentityDir string                   `yaml:"identity_dir"`
	GatewayURL  string                   `yaml:"gateway_url"`
	PluginPort  int                      `yaml:"plugin_port"`
	LogLevel    string                   `yaml:"log_level"`
	LogFormat   string                   `yaml:"log_format"`
	Channels    []domain.ChannelConfig   `yaml:"channels"`
	Agent       AgentConfig              `yaml:"agent"`
	Pairing     PairingConfig            `yaml:"pairing"`
}

// PairingConfig configures the Hub's pairing.Controller: how long an
// operator-facing pairing code stays valid, and how long an issued
// device Attestation is trusted for before it must be re-paired.
type PairingConfig struct {
	SessionTTL     time.Duration `yaml:"session_ttl"`
	AttestationTTL time.Duration `yaml:"attestation_ttl"`
}

// LoggerConfig configures internal/infra/logger.New, shared by every
// process (Hub, Gateway, channel plugins) so their log lines come out
// in the same shape regardless of which one emits them.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// AgentConfig configures the agent worker's collaborator driver.
type AgentConfig struct {
	Driver       string        `yaml:"driver"` // "ollama" or "noop"
	OllamaHost   string        `yaml:"ollama_host"`
	Model        string        `yaml:"model"`
	SystemPrompt string        `yaml:"system_prompt"`
	Timeout      time.Duration `yaml:"timeout"`
	HistoryTurns int           `yaml:"history_turns"`
}

// GatewayConfig is the top-level configuration for the standalone
// Gateway relay process.
type GatewayConfig struct {
	ListenAddr   string        `yaml:"listen_addr"`
	TrustDir     string        `yaml:"trust_dir"`
	LogLevel     string        `yaml:"log_level"`
	LogFormat    string        `yaml:"log_format"`
	HandshakeTTL time.Duration `yaml:"handshake_ttl"`
	PairingTTL   time.Duration `yaml:"pairing_ttl"`
}

// DefaultHubConfig returns the baseline Hub configuration applied
// before a YAML file is merged in.
func DefaultHubConfig() *HubConfig {
	return &HubConfig{
		DeviceID:    "desktop-0",
		IdentityDir: "./data/identity",
		GatewayURL:  "ws://127.0.0.1:8787/relay",
		PluginPort:  8765,
		LogLevel:    "info",
		LogFormat:   "json",
		Agent: AgentConfig{
			Driver:       "noop",
			OllamaHost:   "http://127.0.0.1:11434",
			Model:        "llama3.2",
			SystemPrompt: "You are a concise personal assistant relaying messages between channels.",
			Timeout:      30 * time.Second,
			HistoryTurns: 12,
		},
		Pairing: PairingConfig{
			SessionTTL:     5 * time.Minute,
			AttestationTTL: 90 * 24 * time.Hour,
		},
	}
}

// DefaultGatewayConfig returns the baseline Gateway configuration
// applied before a YAML file is merged in.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		ListenAddr:   "127.0.0.1:8787",
		TrustDir:     "./data/gateway",
		LogLevel:     "info",
		LogFormat:    "json",
		HandshakeTTL: 10 * time.Second,
		PairingTTL:   5 * time.Minute,
	}
}

// LoadHubConfig reads path, falling back to defaults if the file does
// not exist, then validates the result.
func LoadHubConfig(path string) (*HubConfig, error) {
	cfg := DefaultHubConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	applyHubEnvOverrides(cfg)
	if err := ValidateHubConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadGatewayConfig reads path, falling back to defaults if the file
// does not exist, then validates the result.
func LoadGatewayConfig(path string) (*GatewayConfig, error) {
	cfg := DefaultGatewayConfig()
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	applyGatewayEnvOverrides(cfg)
	if err := ValidateGatewayConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return err
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyHubEnvOverrides(cfg *HubConfig) {
	if v := os.Getenv("RELAYHUB_GATEWAY_URL"); v != "" {
		cfg.GatewayURL = v
	}
	if v := os.Getenv("RELAYHUB_IDENTITY_DIR"); v != "" {
		cfg.IdentityDir = v
	}
	if v := os.Getenv("RELAYHUB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

func applyGatewayEnvOverrides(cfg *GatewayConfig) {
	if v := os.Getenv("RELAYHUB_GATEWAY_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("RELAYHUB_GATEWAY_TRUST_DIR"); v != "" {
		cfg.TrustDir = v
	}
}

// validatePermissions requires the config file not be group/world
// readable, since it may be interpolated with a passphrase env var
// that guards locally-sealed key material.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	if info.Mode().Perm()&0077 != 0 {
		return fmt.Errorf("config file %s is readable by group/other; chmod 600 it", path)
	}
	return nil
}
