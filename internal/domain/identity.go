package domain

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"time"
)

// PairingStatus is the state of a device's pairing session.
type PairingStatus string

const (
	PairingPending  PairingStatus = "pending"
	PairingApproved PairingStatus = "approved"
	PairingRejected PairingStatus = "rejected"
	PairingExpired  PairingStatus = "expired"
)

// DesktopTrustRoot is the Hub's own Ed25519 identity — the root that
// every Attestation this desktop issues is signed by.
type DesktopTrustRoot struct {
	DeviceID  string            `json:"device_id"`
	PublicKey ed25519.PublicKey `json:"public_key"`
	CreatedAt time.Time         `json:"created_at"`
}

// AttestationPayload is the canonical-JSON blob a desktop trust root
// signs to vouch for one device, per §3/§7 of the attestation scheme.
// It carries the device's own public key so a Gateway that has never
// talked to the desktop can still recover it from the blob and check
// the paired nonce_signature — that's the whole point of Plane C.
type AttestationPayload struct {
	DeviceID        string            `json:"device_id"`
	DevicePublicKey ed25519.PublicKey `json:"device_public_key"`
	IssuedAt        time.Time         `json:"issued_at"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// Attestation is the desktop's signed vouch for one device. Blob is the
// exact canonical-JSON bytes of an AttestationPayload, base64-encoded;
// DesktopSignature is the Ed25519 signature over those literal bytes.
// Keeping Blob as an opaque string (rather than a nested JSON object)
// means a verifier checks the signature against the bytes it actually
// received, never a re-marshalled approximation of them.
type Attestation struct {
	Blob             string `json:"blob"`
	DesktopSignature string `json:"desktop_signature"`
}

// PairingSession tracks one in-flight pairing flow between the desktop
// and a new device, keyed by a short human-entered code.
type PairingSession struct {
	RequestID string        `json:"request_id"`
	Code      string        `json:"code"`
	DeviceID  string        `json:"device_id,omitempty"`
	Status    PairingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	ExpiresAt time.Time     `json:"expires_at"`
}

// Expired reports whether the session's code is no longer usable.
func (p PairingSession) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

// ApprovedDevice is a device the desktop has paired with and will admit
// to the Gateway relay under auth_mode "device".
type ApprovedDevice struct {
	DeviceID    string            `json:"device_id"`
	PublicKey   ed25519.PublicKey `json:"public_key"`
	DisplayName string            `json:"display_name,omitempty"`
	ApprovedAt  time.Time         `json:"approved_at"`
	LastSeenAt  time.Time         `json:"last_seen_at,omitempty"`
}

// CanonicalJSON serializes v with sorted object keys and no insignificant
// whitespace, so the same logical payload always produces the same
// bytes on both the signing and verifying side of an Attestation.
func CanonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := encodeCanonical(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		buf.WriteByte('{')
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sortStrings(keys)
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(kb)
			buf.WriteByte(':')
			if err := encodeCanonical(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
