package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"relayhub/internal/domain"
)

const devicesLogFile = "paired_devices.jsonl"

// DeviceLedger is the Hub's own append-only record of devices it has
// approved, kept alongside the trust root for local audit and the
// config store's "persisted state" duty. Enforcement of who may
// actually connect lives in the Gateway's own gatewayauth.Store, which
// derives the same ApprovedDevice record independently off the wire —
// this ledger never gates a connection, it is a paper trail.
type DeviceLedger struct {
	mu   sync.Mutex
	path string
}

// NewDeviceLedger opens (or creates) the JSONL ledger under dir.
func NewDeviceLedger(dir string) (*DeviceLedger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create identity dir: %w", err)
	}
	return &DeviceLedger{path: filepath.Join(dir, devicesLogFile)}, nil
}

// ApproveDevice appends dev to the ledger. Satisfies pairing.DeviceApprover.
func (l *DeviceLedger) ApproveDevice(dev domain.ApprovedDevice) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open device ledger: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(dev)
	if err != nil {
		return fmt.Errorf("marshal approved device: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append device ledger: %w", err)
	}
	return nil
}
