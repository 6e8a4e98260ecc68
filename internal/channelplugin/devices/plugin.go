// Package devices is the mandatory channel plugin that holds the
// Hub-side of the Hub<->Gateway WebSocket: it performs the desktop_claim
// handshake, translates Gateway relay frames to and from UnifiedMessage,
// and runs the pairing-request/pairing-response bridge between the
// Gateway and the Hub's pairing controller. Its reconnect-with-backoff
// loop mirrors internal/pluginrpc's client, widened to the three-frame
// Gateway vocabulary instead of plain JSON-RPC.
package devices

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"nhooyr.io/websocket"

	jsoniter "github.com/json-iterator/go"

	"relayhub/internal/cryptoid"
	"relayhub/internal/domain"
	"relayhub/internal/identity"
)

// masterKeyPassphraseEnv names the environment variable this plugin
// reads to unseal its own identity key, the same convention cmd/hub
// uses for the desktop trust root.
const masterKeyPassphraseEnv = "RELAYHUB_MASTER_KEY_PASSPHRASE"

var fastJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// ChannelID is this plugin's fixed channel name.
const ChannelID = "devices"

const (
	baseBackoff = time.Second
	maxBackoff  = 60 * time.Second
	authTimeout = 15 * time.Second
)

// Config is the settings this plugin receives via channel.configure.
type Config struct {
	GatewayURL    string        `json:"gateway_url"`
	DeviceID      string        `json:"device_id"`
	PingInterval  time.Duration `json:"ping_interval"`
	MasterKeyPath string        `json:"master_key_path"`
}

// Sender is the narrow surface the plugin needs to hand the Hub inbound
// messages and events (satisfied by pluginsdk.Host).
type Sender interface {
	Receive(msg domain.UnifiedMessage) error
	Event(event string, data any) error
}

// Plugin is the devices channel: one Gateway WebSocket, reconnected
// with exponential backoff whenever it drops.
type Plugin struct {
	sender Sender
	logger *slog.Logger

	mu       sync.Mutex
	cfg      Config
	identity *identity.Store
	ws       *websocket.Conn
	cancel   context.CancelFunc
}

// New builds the devices plugin. It does not connect until Configure is
// called with a gateway_url.
func New(sender Sender, logger *slog.Logger) *Plugin {
	return &Plugin{sender: sender, logger: logger}
}

// SetSender wires the plugin's Sender after construction, for callers
// (cmd/channel-devices) that need a pluginsdk.Host built from the
// plugin instance before the Host itself can be handed back as that
// same instance's Sender.
func (p *Plugin) SetSender(sender Sender) {
	p.mu.Lock()
	p.sender = sender
	p.mu.Unlock()
}

// Configure loads the master key and (re)starts the gateway loop
// against the new settings.
func (p *Plugin) Configure(ctx context.Context, raw json.RawMessage) error {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return fmt.Errorf("decode devices config: %w", err)
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 30 * time.Second
	}

	store, err := identity.LoadOrCreate(cfg.MasterKeyPath, cfg.DeviceID, os.Getenv(masterKeyPassphraseEnv))
	if err != nil {
		return fmt.Errorf("load master key: %w", err)
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.cfg = cfg
	p.identity = store
	loopCtx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.gatewayLoop(loopCtx)
	return nil
}

// Stop tears down the gateway connection. Idempotent across restarts,
// as every channel plugin must be.
func (p *Plugin) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	ws := p.ws
	p.ws = nil
	p.mu.Unlock()

	if ws != nil {
		ws.Close(websocket.StatusNormalClosure, "shutting down")
	}
	return nil
}

func (p *Plugin) gatewayLoop(ctx context.Context) {
	backoff := baseBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		if err := p.runOnce(ctx); err != nil {
			p.logger.Warn("devices: gateway connection lost", "error", err)
		}
		p.sender.Event("gateway_disconnected", nil)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (p *Plugin) runOnce(parent context.Context) error {
	p.mu.Lock()
	cfg := p.cfg
	store := p.identity
	p.mu.Unlock()

	ws, _, err := websocket.Dial(parent, cfg.GatewayURL, nil)
	if err != nil {
		return fmt.Errorf("dial gateway: %w", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	if err := p.authenticate(parent, ws, store); err != nil {
		return fmt.Errorf("desktop_claim handshake: %w", err)
	}

	p.mu.Lock()
	p.ws = ws
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		if p.ws == ws {
			p.ws = nil
		}
		p.mu.Unlock()
	}()

	p.sender.Event("gateway_connected", nil)
	return p.readFrames(parent, ws)
}

func (p *Plugin) authenticate(parent context.Context, ws *websocket.Conn, store *identity.Store) error {
	ctx, cancel := context.WithTimeout(parent, authTimeout)
	defer cancel()

	_, data, err := ws.Read(ctx)
	if err != nil {
		return fmt.Errorf("read auth_challenge: %w", err)
	}
	var challenge frame
	if err := fastJSON.Unmarshal(data, &challenge); err != nil || challenge.Type != "auth_challenge" {
		return fmt.Errorf("expected auth_challenge, got %s", data)
	}

	sig := cryptoid.Sign(store.PrivateKey(), challenge.Nonce)
	resp := frame{
		Type:      "auth_response",
		AuthMode:  "desktop_claim",
		DeviceID:  store.DeviceID(),
		PublicKey: store.TrustRoot().PublicKey,
		Signature: sig,
	}
	out, err := fastJSON.Marshal(resp)
	if err != nil {
		return err
	}
	if err := ws.Write(ctx, websocket.MessageText, out); err != nil {
		return fmt.Errorf("write auth_response: %w", err)
	}

	_, data, err = ws.Read(ctx)
	if err != nil {
		return fmt.Errorf("read auth_ok: %w", err)
	}
	var ok frame
	if err := fastJSON.Unmarshal(data, &ok); err != nil {
		return err
	}
	if ok.Type != "auth_ok" {
		return fmt.Errorf("gateway rejected desktop_claim: %s", ok.Error)
	}
	return nil
}

func (p *Plugin) readFrames(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		var f frame
		if err := fastJSON.Unmarshal(data, &f); err != nil {
			p.logger.Warn("devices: malformed gateway frame", "error", err)
			continue
		}

		switch f.Type {
		case "pairing_request":
			p.sender.Event("pairing_request", map[string]any{
				"request_id":        f.RequestID,
				"pairing_code":      f.PairingCode,
				"device_public_key": f.DevicePublicKey,
			})
		case "error":
			p.logger.Warn("devices: gateway reported error", "error", f.Error)
		default:
			// Relay frames carry no type tag of their own on the wire
			// (§6) — anything that isn't pairing_request/error is the
			// Gateway forwarding application traffic.
			msg := domain.UnifiedMessage{}
			if err := json.Unmarshal(f.Payload, &msg); err != nil {
				p.logger.Warn("devices: malformed relay payload", "error", err)
				continue
			}
			msg.Channel = ChannelID
			msg.Direction = domain.DirectionInbound
			msg.SenderID = f.SenderDeviceID
			p.sender.Receive(msg)
		}
	}
}

// Send wraps msg as a relay frame and writes it on the active socket.
// If there is no active connection, the message is dropped and logged,
// matching the spec's best-effort delivery guarantee.
func (p *Plugin) Send(ctx context.Context, msg domain.UnifiedMessage) error {
	p.mu.Lock()
	ws := p.ws
	p.mu.Unlock()
	if ws == nil {
		p.logger.Warn("devices: dropped outbound message, no active gateway connection", "recipient", msg.RecipientID)
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal outbound payload: %w", err)
	}
	out := frame{Type: "relay", TargetDeviceID: msg.RecipientID, Payload: payload}
	data, err := fastJSON.Marshal(out)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}

// HandleEvent dispatches a Hub-originated channel.event notification.
// Satisfies pluginsdk.EventHandler.
func (p *Plugin) HandleEvent(ctx context.Context, event string, data json.RawMessage) error {
	if event != "pairing_response" {
		return nil
	}
	return p.OnPairingResponse(ctx, data)
}

// OnPairingResponse forwards the pairing controller's verdict to the
// Gateway on the active socket.
func (p *Plugin) OnPairingResponse(ctx context.Context, data json.RawMessage) error {
	var resp struct {
		RequestID   string          `json:"request_id"`
		Status      string          `json:"status"`
		DeviceID    string          `json:"device_id,omitempty"`
		Attestation json.RawMessage `json:"attestation,omitempty"`
		Reason      string          `json:"reason,omitempty"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("decode pairing_response event: %w", err)
	}

	p.mu.Lock()
	ws := p.ws
	p.mu.Unlock()
	if ws == nil {
		return fmt.Errorf("no active gateway connection to forward pairing_response on")
	}

	approved := resp.Status == "approved"
	payload, _ := json.Marshal(map[string]any{
		"device_id":   resp.DeviceID,
		"attestation": resp.Attestation,
		"reason":      resp.Reason,
	})
	out := frame{Type: "pairing_response", RequestID: resp.RequestID, Approved: approved, Payload: payload}
	out2, err := fastJSON.Marshal(out)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, out2)
}

// frame mirrors internal/gatewaysrv.Frame's wire shape. The devices
// plugin keeps its own copy rather than importing the Gateway's
// internal package, the way a real out-of-process integration would
// only ever see the wire format.
type frame struct {
	Type           string          `json:"type"`
	Nonce          []byte          `json:"nonce,omitempty"`
	AuthMode       string          `json:"auth_mode,omitempty"`
	DeviceID       string          `json:"device_id,omitempty"`
	PublicKey      []byte          `json:"public_key,omitempty"`
	Signature      []byte          `json:"signature,omitempty"`
	SenderDeviceID string          `json:"sender_device_id,omitempty"`
	TargetDeviceID string          `json:"target_device_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`
	RequestID       string          `json:"request_id,omitempty"`
	PairingCode     string          `json:"pairing_code,omitempty"`
	DevicePublicKey []byte          `json:"device_public_key,omitempty"`
	Approved        bool            `json:"approved,omitempty"`
	Error          string          `json:"error,omitempty"`
}
