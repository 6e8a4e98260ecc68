package gatewaysrv

import (
	"encoding/json"

	"relayhub/internal/domain"
)

// FrameType identifies a Gateway relay wire frame.
type FrameType string

const (
	FrameAuthChallenge   FrameType = "auth_challenge"
	FrameAuthResponse    FrameType = "auth_response"
	FrameAuthOK          FrameType = "auth_ok"
	FrameRelay           FrameType = "relay"
	FramePairingRequest  FrameType = "pairing_request"
	FramePairingPending  FrameType = "pairing_pending"
	FramePairingResponse FrameType = "pairing_response"
	FrameError           FrameType = "error"
)

// AuthMode mirrors gatewayauth.AuthMode on the wire.
type AuthMode string

const (
	AuthModeDesktopClaim AuthMode = "desktop_claim"
	AuthModeDesktop      AuthMode = "desktop"
	AuthModeDevice       AuthMode = "device"
)

// Frame is the single envelope type multiplexing the handshake state
// machine, the relay, and the pairing bridge over one WebSocket
// connection — the same one-struct-many-fields shape as the teacher's
// own gateway.Frame, generalized to this relay's wider vocabulary.
type Frame struct {
	Type FrameType `json:"type"`

	// Handshake (auth_challenge / auth_response / auth_ok).
	Nonce       []byte             `json:"nonce,omitempty"`
	AuthMode    AuthMode           `json:"auth_mode,omitempty"`
	DeviceID    string             `json:"device_id,omitempty"`
	PublicKey   []byte             `json:"public_key,omitempty"`
	Signature   []byte             `json:"signature,omitempty"`
	Attestation domain.Attestation `json:"attestation,omitempty"`

	// Relay (unicast/broadcast message forwarding).
	SenderDeviceID string          `json:"sender_device_id,omitempty"`
	TargetDeviceID string          `json:"target_device_id,omitempty"`
	Payload        json.RawMessage `json:"payload,omitempty"`

	// Pairing bridge.
	RequestID       string `json:"request_id,omitempty"`
	PairingCode     string `json:"pairing_code,omitempty"`
	DevicePublicKey []byte `json:"device_public_key,omitempty"`
	Approved        bool   `json:"approved,omitempty"`

	Error string `json:"error,omitempty"`
}
