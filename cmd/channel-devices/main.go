// Command channel-devices is the mandatory devices channel plugin: a
// separate OS process the Hub's supervisor spawns, which holds the
// Hub<->Gateway WebSocket and bridges pairing and relay traffic back to
// the Hub over the local Plane A RPC connection.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"relayhub/internal/channelplugin/devices"
	"relayhub/internal/config"
	"relayhub/internal/domain"
	"relayhub/internal/infra/logger"
	"relayhub/pkg/pluginsdk"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	hubURL := phbWS()
	if hubURL == "" {
		return fmt.Errorf("missing --phb-ws flag (the hub always appends it when spawning a channel)")
	}

	level := os.Getenv("RELAYHUB_LOG_LEVEL")
	if level == "" {
		level = "info"
	}
	log, logCloser, err := logger.New(config.LoggerConfig{Level: level, Format: "json", Output: "stderr"})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	plugin := devices.New(nil, log)
	host := pluginsdk.NewHost(hubURL, devices.ChannelID, "1.0.0", "Gateway relay bridge for paired devices", plugin, func(ctx context.Context, msg domain.UnifiedMessage) error {
		return plugin.Send(ctx, msg)
	}, log)
	plugin.SetSender(host)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("channel-devices starting", "hub_url", hubURL)
	return host.Run(ctx)
}

func phbWS() string {
	for i, arg := range os.Args {
		if arg == "--phb-ws" && i+1 < len(os.Args) {
			return os.Args[i+1]
		}
		if strings.HasPrefix(arg, "--phb-ws=") {
			return strings.TrimPrefix(arg, "--phb-ws=")
		}
	}
	return ""
}
