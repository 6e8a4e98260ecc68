package gatewaysrv

import (
	"encoding/json"
	"time"

	"nhooyr.io/websocket"

	"relayhub/internal/domain"
)

// handlePairingRequest forwards a new device's pairing_request to the
// connected desktop and acknowledges the caller with pairing_pending.
// The request is tracked in pendingPairing until the desktop resolves
// it or pairingTTL elapses.
func (s *Server) handlePairingRequest(cc *clientConn, frame Frame) {
	if frame.PairingCode == "" || len(frame.DevicePublicKey) == 0 {
		cc.close(CloseMalformedPairing, "pairing_request requires pairing_code and device_public_key")
		return
	}

	if !s.pairingLimiter.Allow() {
		s.sendError(cc, "too many pairing requests, try again shortly")
		return
	}

	desktop, ok := s.desktopConn()
	if !ok {
		cc.close(CloseDesktopAbsent, "desktop not connected")
		return
	}

	requestID := newRequestID()
	pending := &pendingPairing{requestID: requestID, device: cc, devicePublicKey: frame.DevicePublicKey, createdAt: time.Now()}

	s.pairingMu.Lock()
	s.pendingPairing[requestID] = pending
	s.pairingMu.Unlock()

	s.enqueue(desktop, Frame{Type: FramePairingRequest, RequestID: requestID, PairingCode: frame.PairingCode, DevicePublicKey: frame.DevicePublicKey})
	s.enqueue(cc, Frame{Type: FramePairingPending, RequestID: requestID})

	go s.expirePairing(requestID)
}

// handlePairingResponse relays the desktop's verdict back to the
// waiting device and closes its connection, per the pairing bridge
// state machine: one request_id resolves exactly once.
func (s *Server) handlePairingResponse(desktopConn *clientConn, frame Frame) {
	if !desktopConn.isDesktop {
		s.sendError(desktopConn, "only the desktop may resolve pairing requests")
		return
	}

	s.pairingMu.Lock()
	pending, ok := s.pendingPairing[frame.RequestID]
	if ok {
		delete(s.pendingPairing, frame.RequestID)
	}
	s.pairingMu.Unlock()
	if !ok {
		s.sendError(desktopConn, "unknown or already-resolved pairing request")
		return
	}

	if frame.Approved && s.approver != nil {
		if err := s.approveDevice(frame.Payload, pending.devicePublicKey); err != nil {
			s.logger.Warn("gateway: failed to persist approved device", "error", err)
		}
	}

	s.enqueue(pending.device, Frame{Type: FramePairingResponse, RequestID: frame.RequestID, Approved: frame.Approved, Payload: frame.Payload})

	go func() {
		time.Sleep(50 * time.Millisecond) // let the write loop flush the response frame first
		pending.device.close(websocket.StatusNormalClosure, "pairing resolved")
	}()
}

// approveDevice extracts device_id from the desktop's pairing_response
// payload and registers the device's pairing-time public key, which
// the Gateway captured first-hand off the original pairing_request,
// rather than any key the desktop's response might carry.
func (s *Server) approveDevice(payload json.RawMessage, publicKey []byte) error {
	var resolved struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.Unmarshal(payload, &resolved); err != nil {
		return err
	}
	if resolved.DeviceID == "" || len(publicKey) == 0 {
		return domain.ErrRPCInvalidPayload
	}
	return s.approver.ApproveDevice(domain.ApprovedDevice{
		DeviceID:   resolved.DeviceID,
		PublicKey:  publicKey,
		ApprovedAt: time.Now().UTC(),
	})
}

func (s *Server) expirePairing(requestID string) {
	timer := time.NewTimer(s.pairingTTL)
	defer timer.Stop()
	<-timer.C

	s.pairingMu.Lock()
	pending, ok := s.pendingPairing[requestID]
	if ok {
		delete(s.pendingPairing, requestID)
	}
	s.pairingMu.Unlock()
	if !ok {
		return // already resolved
	}
	pending.device.close(ClosePairingTimeout, "pairing request timed out")
}
