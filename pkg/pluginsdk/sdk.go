// Package pluginsdk is the scaffolding a channel plugin author builds
// on: it wraps internal/pluginrpc's connection handling behind a small
// Plugin interface (Configure/Stop), so a plugin's own code only
// has to implement channel-specific behavior and call Receive/Event
// when something happens on the wire it's adapting.
//
// A channel plugin is a separate OS process; this package exists so the
// in-repo plugins (cmd/channel-*) share one connection harness instead
// of each reimplementing the register/reconnect dance. An external,
// out-of-tree plugin author in another language only needs to speak the
// same JSON-RPC envelope over the same local WebSocket — this SDK is a
// convenience, not a requirement of the protocol.
package pluginsdk

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"relayhub/internal/domain"
	"relayhub/internal/pluginrpc"
)

// Plugin is what a channel plugin author implements. Configure is
// called once per channel.configure RPC (initial settings and any
// later update); Stop is called on channel.stop and should release any
// external connection (a bot token session, a device socket, etc).
type Plugin interface {
	Configure(ctx context.Context, settings json.RawMessage) error
	Stop(ctx context.Context) error
}

// EventHandler is implemented by a Plugin that reacts to Hub-originated
// events, e.g. the devices plugin forwarding a pairing controller's
// verdict back onto the Gateway socket. Plugins that never receive an
// inbound event (most channels) don't need to implement it.
type EventHandler interface {
	HandleEvent(ctx context.Context, event string, data json.RawMessage) error
}

// Sender is the narrow surface a Plugin's own transport-handling code
// needs to push events back to the Hub.
type Sender interface {
	Receive(msg domain.UnifiedMessage) error
	Event(event string, data any) error
}

// Host runs a Plugin against the Hub's local RPC server: it owns the
// pluginrpc.Client, answers channel.configure/channel.stop/channel.status,
// and routes channel.send notifications to the plugin's OnSend callback.
type Host struct {
	channelID   string
	version     string
	description string
	client      *pluginrpc.Client
	plugin      Plugin
	onSend      func(ctx context.Context, msg domain.UnifiedMessage) error
	logger      *slog.Logger
}

// NewHost builds a plugin Host. url is the Hub's local RPC listener
// (e.g. "ws://127.0.0.1:PORT/rpc"); onSend handles a channel.send
// notification — deliver msg through whatever transport this channel
// wraps. version and description are reported once on channel.register
// and again on every channel.status probe.
func NewHost(url, channelID, version, description string, plugin Plugin, onSend func(ctx context.Context, msg domain.UnifiedMessage) error, logger *slog.Logger) *Host {
	h := &Host{channelID: channelID, version: version, description: description, plugin: plugin, onSend: onSend, logger: logger}
	h.client = pluginrpc.New(url, h.handleRequest, h.handleNotification, logger)
	return h
}

// Run connects to the Hub, registers this channel, and serves RPC
// calls until ctx is cancelled.
func (h *Host) Run(ctx context.Context) error {
	go h.registerWhenConnected(ctx)
	return h.client.Run(ctx)
}

// registerWhenConnected sends channel.register as a fire-and-forget
// notification the moment the client has a live connection — per §4.4,
// registration carries a ChannelInfo{name, version, description} and
// gets no response.
func (h *Host) registerWhenConnected(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if h.client.Connected() {
			info := domain.ChannelInfo{Name: h.channelID, Version: h.version, Description: h.description}
			if err := h.client.Notify(pluginrpc.MethodRegister, info); err != nil {
				h.logger.Error("pluginsdk: register failed", "channel_id", h.channelID, "error", err)
			}
			return
		}
	}
}

func (h *Host) handleRequest(ctx context.Context, method string, params json.RawMessage) (any, error) {
	switch method {
	case pluginrpc.MethodConfigure:
		if err := h.plugin.Configure(ctx, params); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	case pluginrpc.MethodStop:
		if err := h.plugin.Stop(ctx); err != nil {
			return nil, err
		}
		return map[string]string{"status": "ok"}, nil
	case pluginrpc.MethodStatus:
		return domain.ChannelInfo{Name: h.channelID, Version: h.version, Description: h.description, Status: domain.ChannelRunning}, nil
	default:
		return nil, fmt.Errorf("unsupported method %q", method)
	}
}

func (h *Host) handleNotification(method string, params json.RawMessage) {
	switch method {
	case pluginrpc.MethodConfigure:
		// The supervisor pushes stored settings right after registration
		// as a notification; later updates may arrive as requests.
		if err := h.plugin.Configure(context.Background(), params); err != nil {
			h.logger.Error("pluginsdk: configure failed", "error", err)
		}

	case pluginrpc.MethodSend:
		if h.onSend == nil {
			return
		}
		var msg domain.UnifiedMessage
		if err := json.Unmarshal(params, &msg); err != nil {
			h.logger.Error("pluginsdk: malformed channel.send payload", "error", err)
			return
		}
		if err := h.onSend(context.Background(), msg); err != nil {
			h.logger.Error("pluginsdk: onSend failed", "error", err)
		}

	case pluginrpc.MethodEvent:
		handler, ok := h.plugin.(EventHandler)
		if !ok {
			return
		}
		var payload struct {
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(params, &payload); err != nil {
			h.logger.Error("pluginsdk: malformed channel.event payload", "error", err)
			return
		}
		if err := handler.HandleEvent(context.Background(), payload.Event, payload.Data); err != nil {
			h.logger.Error("pluginsdk: HandleEvent failed", "event", payload.Event, "error", err)
		}
	}
}

// Receive delivers an inbound message to the Hub via channel.receive.
func (h *Host) Receive(msg domain.UnifiedMessage) error {
	return h.client.Notify(pluginrpc.MethodReceive, msg)
}

// Event reports a non-message status change via channel.event.
func (h *Host) Event(event string, data any) error {
	return h.client.Notify(pluginrpc.MethodEvent, map[string]any{"event": event, "data": data})
}
