package identity

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"
	"time"

	"relayhub/internal/domain"
)

func TestDeviceLedgerAppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	ledger, err := NewDeviceLedger(dir)
	if err != nil {
		t.Fatalf("NewDeviceLedger: %v", err)
	}

	dev := domain.ApprovedDevice{DeviceID: "phone-1", ApprovedAt: time.Now().UTC()}
	if err := ledger.ApproveDevice(dev); err != nil {
		t.Fatalf("ApproveDevice: %v", err)
	}
	if err := ledger.ApproveDevice(dev); err != nil {
		t.Fatalf("ApproveDevice (second): %v", err)
	}

	f, err := os.Open(filepath.Join(dir, devicesLogFile))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	defer f.Close()

	var lines int
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines++
	}
	if lines != 2 {
		t.Fatalf("expected 2 ledger lines, got %d", lines)
	}
}
