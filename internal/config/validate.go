package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors so a caller sees
// every problem at once instead of fixing them one at a time.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// ValidateHubConfig checks cfg for structural correctness.
func ValidateHubConfig(cfg *HubConfig) error {
	ve := &ValidationError{}
	if cfg.DeviceID == "" {
		ve.Add("device_id must not be empty")
	}
	if cfg.IdentityDir == "" {
		ve.Add("identity_dir must not be empty")
	}
	if cfg.GatewayURL == "" {
		ve.Add("gateway_url must not be empty")
	} else if u, err := url.Parse(cfg.GatewayURL); err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
		ve.Add("gateway_url must be a ws:// or wss:// URL, got %q", cfg.GatewayURL)
	}
	if cfg.PluginPort <= 0 || cfg.PluginPort > 65535 {
		ve.Add("plugin_port must be between 1 and 65535, got %d", cfg.PluginPort)
	}
	seen := map[string]bool{}
	for _, ch := range cfg.Channels {
		if ch.Name == "" {
			ve.Add("channel config missing name")
			continue
		}
		if seen[ch.Name] {
			ve.Add("duplicate channel name %q", ch.Name)
		}
		seen[ch.Name] = true
		if ch.Enabled {
			if _, ok := ch.EffectiveCommand(); !ok {
				ve.Add("channel %q is enabled but has no command", ch.Name)
			}
		}
	}
	validateAgentConfig(cfg.Agent, ve)
	validatePairingConfig(cfg.Pairing, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validatePairingConfig(p PairingConfig, ve *ValidationError) {
	if p.SessionTTL <= 0 {
		ve.Add("pairing.session_ttl must be > 0")
	}
	if p.AttestationTTL <= 0 {
		ve.Add("pairing.attestation_ttl must be > 0")
	}
}

func validateAgentConfig(a AgentConfig, ve *ValidationError) {
	switch a.Driver {
	case "ollama", "noop":
	default:
		ve.Add("agent.driver must be 'ollama' or 'noop', got %q", a.Driver)
	}
	if a.Driver == "ollama" && a.OllamaHost == "" {
		ve.Add("agent.ollama_host must be set when driver is 'ollama'")
	}
	if a.Timeout <= 0 {
		ve.Add("agent.timeout must be > 0")
	}
	if a.HistoryTurns < 0 {
		ve.Add("agent.history_turns must be >= 0")
	}
}

// ValidateGatewayConfig checks cfg for structural correctness.
func ValidateGatewayConfig(cfg *GatewayConfig) error {
	ve := &ValidationError{}
	if cfg.ListenAddr == "" {
		ve.Add("listen_addr must not be empty")
	}
	if cfg.TrustDir == "" {
		ve.Add("trust_dir must not be empty")
	}
	if cfg.HandshakeTTL <= 0 {
		ve.Add("handshake_ttl must be > 0")
	}
	if cfg.PairingTTL <= 0 {
		ve.Add("pairing_ttl must be > 0")
	}
	if ve.HasErrors() {
		return ve
	}
	return nil
}
