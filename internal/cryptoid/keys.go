// Package cryptoid holds the Ed25519 identity primitives shared by every
// plane that needs to prove or check who sent a message: trust-root key
// generation, attestation issuance, and attestation verification.
package cryptoid

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"relayhub/internal/domain"
)

// GenerateKeyPair creates a new Ed25519 identity key pair for a desktop
// trust root or a device.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key pair: %w", err)
	}
	return pub, priv, nil
}

// IssueAttestation signs an AttestationPayload binding deviceID to
// devicePublicKey with the desktop's own trust-root key, until ttl
// elapses. The signature covers the exact canonical-JSON bytes carried
// in the resulting Attestation's Blob, not a re-encoding of it.
func IssueAttestation(priv ed25519.PrivateKey, deviceID string, devicePublicKey ed25519.PublicKey, ttl time.Duration, now time.Time) (domain.Attestation, error) {
	payload := domain.AttestationPayload{
		DeviceID:        deviceID,
		DevicePublicKey: devicePublicKey,
		IssuedAt:        now,
		ExpiresAt:       now.Add(ttl),
	}
	blob, err := domain.CanonicalJSON(payload)
	if err != nil {
		return domain.Attestation{}, fmt.Errorf("canonicalize attestation payload: %w", err)
	}
	sig := ed25519.Sign(priv, blob)
	return domain.Attestation{
		Blob:             base64.StdEncoding.EncodeToString(blob),
		DesktopSignature: base64.StdEncoding.EncodeToString(sig),
	}, nil
}

// VerifyAttestation checks that att's blob was signed by desktopPub
// over its literal bytes and has not expired as of now, then returns
// the parsed payload so the caller can recover the device's own public
// key and id without trusting anything but the signature just checked.
func VerifyAttestation(att domain.Attestation, desktopPub ed25519.PublicKey, now time.Time) (domain.AttestationPayload, error) {
	blob, err := base64.StdEncoding.DecodeString(att.Blob)
	if err != nil {
		return domain.AttestationPayload{}, fmt.Errorf("decode attestation blob: %w", err)
	}
	sig, err := base64.StdEncoding.DecodeString(att.DesktopSignature)
	if err != nil {
		return domain.AttestationPayload{}, fmt.Errorf("decode desktop signature: %w", err)
	}
	if !ed25519.Verify(desktopPub, blob, sig) {
		return domain.AttestationPayload{}, domain.ErrSignatureInvalid
	}
	var payload domain.AttestationPayload
	if err := json.Unmarshal(blob, &payload); err != nil {
		return domain.AttestationPayload{}, fmt.Errorf("parse attestation blob: %w", err)
	}
	if now.After(payload.ExpiresAt) {
		return domain.AttestationPayload{}, domain.ErrAttestationExpired
	}
	return payload, nil
}

// Sign signs an arbitrary nonce, used by the Gateway handshake's
// challenge/response exchange (auth_response carries Sign(nonce)).
func Sign(priv ed25519.PrivateKey, nonce []byte) []byte {
	return ed25519.Sign(priv, nonce)
}

// VerifyNonce checks a handshake challenge-response signature.
func VerifyNonce(pub ed25519.PublicKey, nonce, sig []byte) bool {
	return ed25519.Verify(pub, nonce, sig)
}

// NewNonce returns a fresh random challenge for the Gateway handshake.
func NewNonce() ([]byte, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return nonce, nil
}
