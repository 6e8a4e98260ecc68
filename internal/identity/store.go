// Package identity is the Hub's own identity and config store: it
// loads (or mints, on first run) the desktop's Ed25519 trust root,
// keeping the private half sealed at rest the way the teacher's config
// layer seals provider API keys, and hands out the public
// domain.DesktopTrustRoot to every other plane that needs to attest or
// verify.
package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"relayhub/internal/domain"
)

const trustRootFile = "trust_root.json"

// persistedTrustRoot is the on-disk JSON shape of the desktop's
// identity file: public material in the clear, private key sealed.
type persistedTrustRoot struct {
	DeviceID        string    `json:"device_id"`
	PublicKey       string    `json:"public_key"`        // base64
	SealedPrivate   string    `json:"sealed_private_key"` // sealKey() output
	CreatedAt       time.Time `json:"created_at"`
}

// Store holds the desktop's own Ed25519 identity, loaded once at
// startup and kept in memory for the process lifetime.
type Store struct {
	dir        string
	deviceID   string
	publicKey  ed25519.PublicKey
	privateKey ed25519.PrivateKey
	createdAt  time.Time
}

// LoadOrCreate loads the trust root from dir, minting a new Ed25519
// key pair for deviceID on first run; on later runs the persisted
// device ID is used and deviceID is ignored. passphrase seals the private
// key at rest; an empty passphrase is accepted for local development
// but should never be used for a desktop that leaves a single-user
// machine.
func LoadOrCreate(dir, deviceID, passphrase string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}

	path := filepath.Join(dir, trustRootFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read trust root: %w", err)
		}
		return mintTrustRoot(dir, deviceID, passphrase)
	}

	var persisted persistedTrustRoot
	if err := json.Unmarshal(data, &persisted); err != nil {
		return nil, fmt.Errorf("parse trust root: %w", err)
	}
	pub, err := base64.StdEncoding.DecodeString(persisted.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	priv, err := unsealKey(persisted.SealedPrivate, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDecryption, err)
	}

	return &Store{
		dir:        dir,
		deviceID:   persisted.DeviceID,
		publicKey:  ed25519.PublicKey(pub),
		privateKey: ed25519.PrivateKey(priv),
		createdAt:  persisted.CreatedAt,
	}, nil
}

func mintTrustRoot(dir, deviceID, passphrase string) (*Store, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate trust root key: %w", err)
	}
	now := time.Now().UTC()
	store := &Store{dir: dir, deviceID: deviceID, publicKey: pub, privateKey: priv, createdAt: now}
	if err := store.persist(passphrase); err != nil {
		return nil, err
	}
	return store, nil
}

// persist atomically writes the trust root to disk: write a temp file
// in the same directory, then rename over the target, so a crash
// mid-write never leaves a truncated identity file.
func (s *Store) persist(passphrase string) error {
	sealed, err := sealKey(s.privateKey, passphrase)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrEncryption, err)
	}
	persisted := persistedTrustRoot{
		DeviceID:      s.deviceID,
		PublicKey:     base64.StdEncoding.EncodeToString(s.publicKey),
		SealedPrivate: sealed,
		CreatedAt:     s.createdAt,
	}
	data, err := json.MarshalIndent(persisted, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal trust root: %w", err)
	}

	path := filepath.Join(s.dir, trustRootFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write trust root: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("commit trust root: %w", err)
	}
	return nil
}

// TrustRoot returns the desktop's public trust root.
func (s *Store) TrustRoot() domain.DesktopTrustRoot {
	return domain.DesktopTrustRoot{DeviceID: s.deviceID, PublicKey: s.publicKey, CreatedAt: s.createdAt}
}

// PrivateKey returns the signing key used to issue attestations and
// answer Gateway handshake challenges. Never serialized or logged.
func (s *Store) PrivateKey() ed25519.PrivateKey { return s.privateKey }

// DeviceID returns the desktop's own device identifier.
func (s *Store) DeviceID() string { return s.deviceID }
