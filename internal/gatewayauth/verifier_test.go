package gatewayauth

import (
	"crypto/ed25519"
	"testing"
	"time"

	"relayhub/internal/cryptoid"
	"relayhub/internal/domain"
)

func TestVerifyDesktopClaimAndReconnect(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	v := NewVerifier(store)

	pub, priv, _ := cryptoid.GenerateKeyPair()
	root := domain.DesktopTrustRoot{DeviceID: "desktop-0", PublicKey: pub, CreatedAt: time.Now()}
	nonce, _ := cryptoid.NewNonce()
	sig := cryptoid.Sign(priv, nonce)

	if err := v.VerifyDesktopClaim(root, nonce, sig); err != nil {
		t.Fatalf("VerifyDesktopClaim: %v", err)
	}

	nonce2, _ := cryptoid.NewNonce()
	sig2 := cryptoid.Sign(priv, nonce2)
	if err := v.VerifyDesktop(nonce2, sig2); err != nil {
		t.Fatalf("VerifyDesktop: %v", err)
	}
}

func TestVerifyDesktopWithoutClaimFails(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	v := NewVerifier(store)
	nonce, _ := cryptoid.NewNonce()
	if err := v.VerifyDesktop(nonce, []byte("sig")); err == nil {
		t.Fatal("expected failure with no claimed trust root")
	}
}

func claimTestRoot(t *testing.T, v *Verifier) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, _ := cryptoid.GenerateKeyPair()
	root := domain.DesktopTrustRoot{DeviceID: "desktop-0", PublicKey: pub, CreatedAt: time.Now()}
	nonce, _ := cryptoid.NewNonce()
	sig := cryptoid.Sign(priv, nonce)
	if err := v.VerifyDesktopClaim(root, nonce, sig); err != nil {
		t.Fatalf("VerifyDesktopClaim: %v", err)
	}
	return pub, priv
}

func TestVerifyDeviceAuthBadSignature(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	v := NewVerifier(store)
	_, desktopPriv := claimTestRoot(t, v)

	devicePub, _, _ := cryptoid.GenerateKeyPair()
	att, err := cryptoid.IssueAttestation(desktopPriv, "device-1", devicePub, time.Hour, time.Now().UTC())
	if err != nil {
		t.Fatalf("IssueAttestation: %v", err)
	}

	nonce, _ := cryptoid.NewNonce()
	if _, err := v.VerifyDeviceAuth(nonce, att, []byte("not-a-signature")); err == nil {
		t.Fatal("expected signature verification failure")
	}
}

func TestVerifyDeviceAuthUntrustedAttestation(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	v := NewVerifier(store)
	claimTestRoot(t, v)

	_, otherPriv, _ := cryptoid.GenerateKeyPair()
	devicePub, devicePriv, _ := cryptoid.GenerateKeyPair()
	att, _ := cryptoid.IssueAttestation(otherPriv, "device-1", devicePub, time.Hour, time.Now().UTC())

	nonce, _ := cryptoid.NewNonce()
	sig := cryptoid.Sign(devicePriv, nonce)
	if _, err := v.VerifyDeviceAuth(nonce, att, sig); err == nil {
		t.Fatal("expected failure for attestation not signed by the claimed trust root")
	}
}

func TestVerifyDeviceAuthNoTrustRootClaimed(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	v := NewVerifier(store)

	devicePub, _, _ := cryptoid.GenerateKeyPair()
	_, desktopPriv, _ := cryptoid.GenerateKeyPair()
	att, _ := cryptoid.IssueAttestation(desktopPriv, "device-1", devicePub, time.Hour, time.Now().UTC())

	nonce, _ := cryptoid.NewNonce()
	if _, err := v.VerifyDeviceAuth(nonce, att, []byte("sig")); err == nil {
		t.Fatal("expected failure with no claimed trust root")
	}
}

func TestVerifyDeviceAuthSucceeds(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	v := NewVerifier(store)
	_, desktopPriv := claimTestRoot(t, v)

	devicePub, devicePriv, _ := cryptoid.GenerateKeyPair()
	att, err := cryptoid.IssueAttestation(desktopPriv, "device-1", devicePub, time.Hour, time.Now().UTC())
	if err != nil {
		t.Fatalf("IssueAttestation: %v", err)
	}

	nonce, _ := cryptoid.NewNonce()
	sig := cryptoid.Sign(devicePriv, nonce)
	deviceID, err := v.VerifyDeviceAuth(nonce, att, sig)
	if err != nil {
		t.Fatalf("VerifyDeviceAuth: %v", err)
	}
	if deviceID != "device-1" {
		t.Errorf("deviceID = %q, want device-1", deviceID)
	}
}
