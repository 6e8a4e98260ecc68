package cryptoid

import (
	"testing"
	"time"
)

func TestIssueAndVerifyAttestation(t *testing.T) {
	desktopPub, desktopPriv, err := GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	devicePub, _, _ := GenerateKeyPair()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	att, err := IssueAttestation(desktopPriv, "mobile-abc123", devicePub, time.Hour, now)
	if err != nil {
		t.Fatalf("IssueAttestation: %v", err)
	}
	payload, err := VerifyAttestation(att, desktopPub, now.Add(time.Minute))
	if err != nil {
		t.Fatalf("VerifyAttestation: %v", err)
	}
	if payload.DeviceID != "mobile-abc123" {
		t.Errorf("DeviceID = %q, want mobile-abc123", payload.DeviceID)
	}
	if string(payload.DevicePublicKey) != string(devicePub) {
		t.Error("DevicePublicKey did not round-trip through the attestation blob")
	}
}

func TestVerifyAttestationExpired(t *testing.T) {
	pub, priv, _ := GenerateKeyPair()
	devicePub, _, _ := GenerateKeyPair()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	att, _ := IssueAttestation(priv, "device-1", devicePub, time.Minute, now)

	if _, err := VerifyAttestation(att, pub, now.Add(time.Hour)); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestVerifyAttestationBadSignature(t *testing.T) {
	_, priv, _ := GenerateKeyPair()
	otherPub, _, _ := GenerateKeyPair()
	devicePub, _, _ := GenerateKeyPair()
	now := time.Now()
	att, _ := IssueAttestation(priv, "device-1", devicePub, time.Hour, now)

	if _, err := VerifyAttestation(att, otherPub, now); err == nil {
		t.Fatal("expected signature verification to fail with wrong key")
	}
}

func TestVerifyAttestationTamperedBlob(t *testing.T) {
	pub, priv, _ := GenerateKeyPair()
	devicePub, _, _ := GenerateKeyPair()
	now := time.Now()
	att, _ := IssueAttestation(priv, "device-1", devicePub, time.Hour, now)

	att.Blob = att.Blob[:len(att.Blob)-4] + "abcd"
	if _, err := VerifyAttestation(att, pub, now); err == nil {
		t.Fatal("expected tampered blob to fail verification")
	}
}

func TestNonceSignAndVerify(t *testing.T) {
	pub, priv, _ := GenerateKeyPair()
	nonce, err := NewNonce()
	if err != nil {
		t.Fatalf("NewNonce: %v", err)
	}
	sig := Sign(priv, nonce)
	if !VerifyNonce(pub, nonce, sig) {
		t.Error("expected signature to verify")
	}
	if VerifyNonce(pub, nonce, []byte("garbage")) {
		t.Error("expected garbage signature to fail")
	}
}
