package gatewayauth

import (
	"testing"
	"time"

	"relayhub/internal/domain"
)

func TestClaimDesktopPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	root := domain.DesktopTrustRoot{DeviceID: "desktop-0", PublicKey: []byte("pubkey-bytes-000000000000000000"), CreatedAt: time.Now()}
	if err := store.ClaimDesktop(root); err != nil {
		t.Fatalf("ClaimDesktop: %v", err)
	}

	reloaded, err := NewStore(dir)
	if err != nil {
		t.Fatalf("NewStore (reload): %v", err)
	}
	got, ok := reloaded.DesktopTrustRoot()
	if !ok {
		t.Fatal("expected trust root to be present after reload")
	}
	if got.DeviceID != "desktop-0" {
		t.Errorf("DeviceID = %q", got.DeviceID)
	}
}

func TestClaimDesktopRejectsDifferentKey(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	first := domain.DesktopTrustRoot{DeviceID: "desktop-0", PublicKey: []byte("a"), CreatedAt: time.Now()}
	if err := store.ClaimDesktop(first); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	second := domain.DesktopTrustRoot{DeviceID: "desktop-1", PublicKey: []byte("b"), CreatedAt: time.Now()}
	if err := store.ClaimDesktop(second); err == nil {
		t.Fatal("expected a second claim with a different key to fail")
	}
}

func TestClaimDesktopIdempotentSameKeyDifferentDeviceID(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	first := domain.DesktopTrustRoot{DeviceID: "desktop-0", PublicKey: []byte("same-key"), CreatedAt: time.Now()}
	if err := store.ClaimDesktop(first); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	// Same key, different claimed device id: still idempotent — the
	// credential that matters is the key, not the label attached to it.
	second := domain.DesktopTrustRoot{DeviceID: "desktop-0-reconnect", PublicKey: []byte("same-key"), CreatedAt: time.Now()}
	if err := store.ClaimDesktop(second); err != nil {
		t.Fatalf("re-claim with same key should succeed idempotently: %v", err)
	}
}

func TestApproveDeviceAndLookup(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	dev := domain.ApprovedDevice{DeviceID: "device-1", PublicKey: []byte("devkey"), ApprovedAt: time.Now()}
	if err := store.ApproveDevice(dev); err != nil {
		t.Fatalf("ApproveDevice: %v", err)
	}
	got, ok := store.Lookup("device-1")
	if !ok {
		t.Fatal("expected device to be found")
	}
	if got.DeviceID != "device-1" {
		t.Errorf("DeviceID = %q", got.DeviceID)
	}
}

func TestLookupUnknownDevice(t *testing.T) {
	dir := t.TempDir()
	store, _ := NewStore(dir)
	if _, ok := store.Lookup("nobody"); ok {
		t.Fatal("expected lookup miss for unknown device")
	}
}
