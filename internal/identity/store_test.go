package identity

import (
	"path/filepath"
	"testing"
)

func TestLoadOrCreateMintsOnFirstRun(t *testing.T) {
	dir := t.TempDir()
	store, err := LoadOrCreate(dir, "desktop-0", "hunter2")
	if err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	if store.DeviceID() != "desktop-0" {
		t.Errorf("DeviceID() = %q", store.DeviceID())
	}
	if len(store.TrustRoot().PublicKey) == 0 {
		t.Error("expected non-empty public key")
	}
	if len(store.PrivateKey()) == 0 {
		t.Error("expected non-empty private key")
	}
}

func TestLoadOrCreateReloadsExistingIdentity(t *testing.T) {
	dir := t.TempDir()
	first, err := LoadOrCreate(dir, "desktop-0", "hunter2")
	if err != nil {
		t.Fatalf("LoadOrCreate (create): %v", err)
	}

	second, err := LoadOrCreate(dir, "desktop-0", "hunter2")
	if err != nil {
		t.Fatalf("LoadOrCreate (reload): %v", err)
	}

	if string(first.PrivateKey()) != string(second.PrivateKey()) {
		t.Error("reloaded private key should match the minted one")
	}
	if string(first.TrustRoot().PublicKey) != string(second.TrustRoot().PublicKey) {
		t.Error("reloaded public key should match the minted one")
	}
}

func TestLoadOrCreateWrongPassphraseFails(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadOrCreate(dir, "desktop-0", "right-passphrase"); err != nil {
		t.Fatalf("LoadOrCreate (create): %v", err)
	}
	if _, err := LoadOrCreate(dir, "desktop-0", "wrong-passphrase"); err == nil {
		t.Fatal("expected decryption failure with the wrong passphrase")
	}
}

func TestTrustRootFilePersisted(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadOrCreate(dir, "desktop-0", ""); err != nil {
		t.Fatalf("LoadOrCreate: %v", err)
	}
	path := filepath.Join(dir, trustRootFile)
	matches, err := filepath.Glob(path)
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected trust root file at %s, found %d matches", path, len(matches))
	}
}
