// Package echo is a minimal channel plugin used to exercise Plane A end
// to end without a real third-party surface behind it: whatever text it
// is asked to send, it immediately hands back to the Hub as an inbound
// message from the same peer, so the agent worker sees a live
// round-trip.
package echo

import (
	"context"
	"encoding/json"
	"log/slog"

	"relayhub/internal/domain"
)

// ChannelID is this plugin's fixed channel name.
const ChannelID = "echo"

// Sender is the narrow surface the plugin needs to hand the Hub
// inbound messages (satisfied by pluginsdk.Host).
type Sender interface {
	Receive(msg domain.UnifiedMessage) error
}

// Config is the settings this plugin receives via channel.configure.
type Config struct {
	PeerID string `json:"peer_id"`
}

// Plugin is the echo channel.
type Plugin struct {
	sender Sender
	logger *slog.Logger

	peerID string
}

// New builds the echo plugin.
func New(sender Sender, logger *slog.Logger) *Plugin {
	return &Plugin{sender: sender, logger: logger, peerID: "echo-peer"}
}

// SetSender wires the plugin's Sender after construction, mirroring
// channelplugin/devices.Plugin.SetSender's cyclic-reference break: the
// pluginsdk.Host needs the Plugin to exist before it can be handed back
// as that Plugin's Sender.
func (p *Plugin) SetSender(sender Sender) { p.sender = sender }

// Configure applies settings; peer_id defaults to "echo-peer" if unset.
func (p *Plugin) Configure(ctx context.Context, raw json.RawMessage) error {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return err
	}
	if cfg.PeerID != "" {
		p.peerID = cfg.PeerID
	}
	return nil
}

// Stop is a no-op; the echo channel holds no external connection.
func (p *Plugin) Stop(ctx context.Context) error { return nil }

// Send is invoked on a channel.send notification for this channel: the
// outbound message is immediately replayed back to the Hub as an
// inbound message from the same configured peer.
func (p *Plugin) Send(ctx context.Context, msg domain.UnifiedMessage) error {
	reply := domain.NewUnifiedMessage(ChannelID, domain.DirectionInbound, msg.ContentType, msg.Body)
	reply.SenderID = p.peerID
	return p.sender.Receive(reply)
}
