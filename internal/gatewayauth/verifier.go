package gatewayauth

import (
	"time"

	"relayhub/internal/cryptoid"
	"relayhub/internal/domain"
)

// AuthMode identifies which half of the handshake a peer is claiming:
// the desktop bootstrapping its trust root for the first time, the
// desktop reconnecting with an already-claimed root, or an approved
// device.
type AuthMode string

const (
	AuthModeDesktopClaim AuthMode = "desktop_claim"
	AuthModeDesktop      AuthMode = "desktop"
	AuthModeDevice       AuthMode = "device"
)

// Verifier checks a Gateway handshake's auth_response against the auth
// store, the way the teacher's Authenticator checks a bearer token —
// except the credential here is a signature over the server's nonce,
// not a shared secret.
type Verifier struct {
	store *Store
}

// NewVerifier builds a Verifier over store.
func NewVerifier(store *Store) *Verifier {
	return &Verifier{store: store}
}

// VerifyDesktopClaim accepts a first-time desktop_claim: the caller
// asserts deviceID/pubKey is the desktop and proves possession of the
// matching private key by signing nonce. If a trust root is already
// claimed with a different public key, the claim is rejected; the same
// key under a different device ID is accepted.
func (v *Verifier) VerifyDesktopClaim(root domain.DesktopTrustRoot, nonce, sig []byte) error {
	if !cryptoid.VerifyNonce(root.PublicKey, nonce, sig) {
		return domain.ErrSignatureInvalid
	}
	return v.store.ClaimDesktop(root)
}

// VerifyDesktop checks a reconnecting desktop's auth_response against
// the already-claimed trust root.
func (v *Verifier) VerifyDesktop(nonce, sig []byte) error {
	root, ok := v.store.DesktopTrustRoot()
	if !ok {
		return domain.NewSubSystemError("gatewayauth", "VerifyDesktop", domain.ErrNotFound, "no desktop trust root claimed yet")
	}
	if !cryptoid.VerifyNonce(root.PublicKey, nonce, sig) {
		return domain.ErrSignatureInvalid
	}
	return nil
}

// VerifyDeviceAuth checks a device's auth_response purely off its
// Attestation: the attestation must verify against the Gateway's own
// desktop trust root, and the device must prove possession of the
// private key named in the attestation's device_public_key by signing
// nonce. The Gateway never looks the device up in a local registry to
// do this — the attestation alone is sufficient, per Plane C's design.
// It returns the device_id recovered from the attestation payload.
func (v *Verifier) VerifyDeviceAuth(nonce []byte, att domain.Attestation, sig []byte) (string, error) {
	root, ok := v.store.DesktopTrustRoot()
	if !ok {
		return "", domain.NewSubSystemError("gatewayauth", "VerifyDeviceAuth", domain.ErrNotFound, "no desktop trust root claimed yet")
	}
	payload, err := cryptoid.VerifyAttestation(att, root.PublicKey, time.Now().UTC())
	if err != nil {
		return "", err
	}
	if !cryptoid.VerifyNonce(payload.DevicePublicKey, nonce, sig) {
		return "", domain.ErrSignatureInvalid
	}
	return payload.DeviceID, nil
}

// TouchLastSeen records that deviceID successfully authenticated just
// now. Best-effort; callers ignore the returned error for anything but
// logging, since a failed touch must not fail the handshake.
func (v *Verifier) TouchLastSeen(deviceID string, now time.Time) error {
	dev, ok := v.store.Lookup(deviceID)
	if !ok {
		return domain.ErrDeviceUnknown
	}
	dev.LastSeenAt = now
	return v.store.ApproveDevice(dev)
}
