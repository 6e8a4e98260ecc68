// Package pairing is the Hub-side pairing controller: it mints short
// human-entered codes for a new device to present, resolves them against
// the operator's approve/reject decision, and on approval issues a
// signed Attestation and records the device via the configured
// DeviceApprover — in production this is the Hub's own audit ledger;
// the Gateway derives its own copy of the approved-device record
// independently off the wire, so pairing still succeeds even when the
// Hub and Gateway are on separate hosts. Its session-map shape follows
// the same mutex-guarded-map idiom as gatewayauth.Store.
package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"relayhub/internal/cryptoid"
	"relayhub/internal/domain"
)

// DeviceApprover is the subset of gatewayauth.Store the controller needs
// to finalize an approved device. Scoped to an interface so the Hub can
// drive a local store or a remote Gateway admin client interchangeably.
type DeviceApprover interface {
	ApproveDevice(domain.ApprovedDevice) error
}

// Controller tracks in-flight pairing sessions and resolves them.
type Controller struct {
	approver  DeviceApprover
	issuerKey ed25519.PrivateKey
	ttl       time.Duration
	attestTTL time.Duration

	mu       sync.Mutex
	sessions map[string]domain.PairingSession // code -> session
}

// New builds a pairing controller. issuerKey is the desktop's own
// trust-root private key, used to sign every Attestation this
// controller issues.
func New(approver DeviceApprover, issuerKey ed25519.PrivateKey, sessionTTL, attestationTTL time.Duration) *Controller {
	return &Controller{
		approver:  approver,
		issuerKey: issuerKey,
		ttl:       sessionTTL,
		attestTTL: attestationTTL,
		sessions:  make(map[string]domain.PairingSession),
	}
}

// StartSession mints a new 6-digit pairing code for the operator to
// display, valid for the controller's configured TTL. The request_id
// that will eventually reference this session belongs to whichever
// device presents the code later — it is not known yet. Only one
// session is active at a time: starting one discards any earlier one.
func (c *Controller) StartSession() (domain.PairingSession, error) {
	code, err := newCode()
	if err != nil {
		return domain.PairingSession{}, fmt.Errorf("generate pairing code: %w", err)
	}
	now := time.Now().UTC()
	session := domain.PairingSession{
		Code:      code,
		Status:    domain.PairingPending,
		CreatedAt: now,
		ExpiresAt: now.Add(c.ttl),
	}

	c.mu.Lock()
	c.sessions = map[string]domain.PairingSession{code: session}
	c.mu.Unlock()
	return session, nil
}

// Session looks up the pending session for code, if any and still live.
func (c *Controller) Session(code string) (domain.PairingSession, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	session, ok := c.sessions[code]
	if !ok {
		return domain.PairingSession{}, false
	}
	if session.Expired(time.Now().UTC()) {
		delete(c.sessions, code)
		return domain.PairingSession{}, false
	}
	return session, true
}

// Approve resolves code as accepted: it allocates a new device_id,
// issues an Attestation signed by the controller's trust root, records
// the device with the configured DeviceApprover, and returns both to
// the caller, who relays them to the device via the devices plugin.
func (c *Controller) Approve(code string, devicePublicKey ed25519.PublicKey, displayName string) (deviceID string, att domain.Attestation, err error) {
	c.mu.Lock()
	session, ok := c.sessions[code]
	if !ok || session.Expired(time.Now().UTC()) {
		c.mu.Unlock()
		return "", domain.Attestation{}, domain.NewSubSystemError("pairing", "Approve", domain.ErrPairingNotFound, "no active pairing session for this code")
	}
	delete(c.sessions, code)
	c.mu.Unlock()

	deviceID, err = newDeviceID()
	if err != nil {
		return "", domain.Attestation{}, fmt.Errorf("allocate device id: %w", err)
	}

	now := time.Now().UTC()
	att, err = cryptoid.IssueAttestation(c.issuerKey, deviceID, devicePublicKey, c.attestTTL, now)
	if err != nil {
		return "", domain.Attestation{}, fmt.Errorf("issue attestation: %w", err)
	}

	dev := domain.ApprovedDevice{
		DeviceID:    deviceID,
		PublicKey:   devicePublicKey,
		DisplayName: displayName,
		ApprovedAt:  now,
	}
	if err := c.approver.ApproveDevice(dev); err != nil {
		return "", domain.Attestation{}, fmt.Errorf("persist approved device: %w", err)
	}
	return deviceID, att, nil
}

// newDeviceID allocates a "mobile-<12 hex>" device identifier.
func newDeviceID() (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("mobile-%x", buf), nil
}

// Reject resolves code as declined; the session is discarded and no
// device record or attestation is produced.
func (c *Controller) Reject(code string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, code)
}

// Resolution is what HandlePairingRequest hands back to the caller to
// forward as a pairing_response event: either an approved device_id
// and Attestation, or a rejection reason.
type Resolution struct {
	Approved    bool
	DeviceID    string
	Attestation domain.Attestation
	Reason      string
}

// HandlePairingRequest runs the validation and approval steps of a
// pairing_request event end to end: malformed input or an absent or
// mismatched pairing code produce a rejection with reason; a match
// allocates a device and issues an attestation.
func (c *Controller) HandlePairingRequest(pairingCode string, devicePublicKey []byte) Resolution {
	if len(pairingCode) != 6 {
		return Resolution{Reason: "invalid_pairing_code"}
	}
	if len(devicePublicKey) != ed25519.PublicKeySize {
		return Resolution{Reason: "invalid_device_public_key"}
	}

	session, ok := c.Session(pairingCode)
	if !ok {
		return Resolution{Reason: "no_active_pairing_session"}
	}
	if session.Code != pairingCode {
		return Resolution{Reason: "pairing_code_invalid_or_expired"}
	}

	deviceID, att, err := c.Approve(pairingCode, ed25519.PublicKey(devicePublicKey), "")
	if err != nil {
		return Resolution{Reason: "pairing_code_invalid_or_expired"}
	}
	return Resolution{Approved: true, DeviceID: deviceID, Attestation: att}
}

func newCode() (string, error) {
	var n uint32
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	n = uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return fmt.Sprintf("%06d", n%1_000_000), nil
}
