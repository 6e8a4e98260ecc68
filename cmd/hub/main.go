// Command hub runs the standalone Hub process: it loads the desktop's
// own identity, drives the agent worker against the configured
// language-model Driver, and supervises the configured channel
// plugins, routing messages between them over Plane A. It never talks
// to a paired device directly — that is the Gateway's job, reached
// through the mandatory devices channel plugin like any other channel.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relayhub/internal/agent"
	"relayhub/internal/config"
	"relayhub/internal/domain"
	"relayhub/internal/identity"
	"relayhub/internal/infra/logger"
	"relayhub/internal/pairing"
	"relayhub/internal/router"
	"relayhub/internal/supervisor"
)

// masterKeyPassphraseEnv names the environment variable the Hub reads
// to unseal its own desktop trust root at rest. The devices channel
// plugin reads the same variable to unseal the identical key material
// it loads independently from the same identity_dir.
const masterKeyPassphraseEnv = "RELAYHUB_MASTER_KEY_PASSPHRASE"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadHubConfig(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(config.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	idStore, err := identity.LoadOrCreate(cfg.IdentityDir, cfg.DeviceID, os.Getenv(masterKeyPassphraseEnv))
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}
	ledger, err := identity.NewDeviceLedger(cfg.IdentityDir)
	if err != nil {
		return fmt.Errorf("device ledger: %w", err)
	}

	ctrl := pairing.New(ledger, idStore.PrivateKey(), cfg.Pairing.SessionTTL, cfg.Pairing.AttestationTTL)

	driver, err := buildDriver(cfg.Agent)
	if err != nil {
		return fmt.Errorf("agent driver: %w", err)
	}

	rt := router.New(nil)

	// The supervisor's event hook needs to hand pairing_request events
	// back to the supervisor itself (to deliver the pairing_response),
	// so the two are built in two steps like pluginsdk's own Host/Plugin
	// wiring: the Supervisor exists before the closure that references it
	// runs for the first time.
	var sup *supervisor.Supervisor
	onRecv := func(msg domain.UnifiedMessage) {
		if err := rt.Inbound(msg); err != nil {
			log.Warn("hub: dropped inbound message", "channel", msg.Channel, "error", err)
		}
	}
	onEvent := func(channelID, event string, data json.RawMessage) {
		if event == "pairing_request" {
			handlePairingRequestEvent(ctrl, sup, channelID, data, log)
			return
		}
		log.Info("hub: channel event", "channel_id", channelID, "event", event)
	}
	sup = supervisor.New(fmt.Sprintf("127.0.0.1:%d", cfg.PluginPort), 10*time.Second, onRecv, onEvent, log)

	worker := agent.New(rt, driver, cfg.Agent.SystemPrompt, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go worker.Run(ctx)
	go pumpOutbound(ctx, rt, sup, log)

	log.Info("hub starting", "device_id", cfg.DeviceID, "plugin_port", cfg.PluginPort, "gateway_url", cfg.GatewayURL)

	// Start blocks until ctx is cancelled, at which point it stops every
	// channel subprocess and shuts down the local RPC listener itself.
	err = sup.Start(ctx, cfg.Channels)
	rt.Close()
	if err != nil && ctx.Err() == nil {
		return err
	}
	log.Info("hub stopped")
	return nil
}

// pumpOutbound drains the router's outbound queue and hands each
// message to the supervisor for delivery through the originating
// channel plugin, until the queue is closed.
func pumpOutbound(ctx context.Context, rt *router.Router, sup *supervisor.Supervisor, log interface {
	Error(msg string, args ...any)
}) {
	for {
		msg, err := rt.NextOutbound(ctx)
		if err != nil {
			return
		}
		if err := sup.Send(msg.Channel, msg); err != nil {
			log.Error("hub: failed to deliver outbound message", "channel", msg.Channel, "error", err)
		}
	}
}

// buildDriver constructs the agent worker's language-model backend per
// cfg.Driver.
func buildDriver(cfg config.AgentConfig) (agent.Driver, error) {
	switch cfg.Driver {
	case "ollama":
		return agent.NewOllamaDriver(cfg.OllamaHost, cfg.Model)
	case "noop", "":
		return agent.NoopDriver{}, nil
	default:
		return nil, fmt.Errorf("unknown agent driver %q", cfg.Driver)
	}
}

func configPath() string {
	for i, arg := range os.Args {
		if arg == "--config" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--config=") {
			return strings.TrimPrefix(arg, "--config=")
		}
	}
	if p := os.Getenv("RELAYHUB_HUB_CONFIG"); p != "" {
		return p
	}
	return "hub.yaml"
}
