// Command gateway runs the standalone Gateway relay process: it
// authenticates the desktop and its paired devices and relays
// application frames between them, per Plane B of the three-plane
// control fabric. It never talks to an LLM or spawns channel plugins —
// that is the Hub's job.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relayhub/internal/config"
	"relayhub/internal/gatewayauth"
	"relayhub/internal/gatewaysrv"
	"relayhub/internal/infra/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadGatewayConfig(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, logCloser, err := logger.New(config.LoggerConfig{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: "stderr"})
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	store, err := gatewayauth.NewStore(cfg.TrustDir)
	if err != nil {
		return fmt.Errorf("auth store: %w", err)
	}
	verifier := gatewayauth.NewVerifier(store)

	srv := gatewaysrv.NewServer(verifier, store, cfg.ListenAddr, cfg.HandshakeTTL, cfg.PairingTTL, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("gateway starting", "listen_addr", cfg.ListenAddr, "trust_dir", cfg.TrustDir)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	<-ctx.Done()
	log.Info("gateway shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error("gateway shutdown error", "error", err)
	}

	select {
	case err := <-errCh:
		if err != nil && ctx.Err() == nil {
			return err
		}
	default:
	}
	return nil
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
	if p := os.Getenv("RELAYHUB_GATEWAY_CONFIG"); p != "" {
		return p
	}
	return "gateway.yaml"
}
