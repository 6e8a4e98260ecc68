package gatewaysrv

import (
	"context"
	"fmt"
	"time"

	"nhooyr.io/websocket"

	"relayhub/internal/cryptoid"
	"relayhub/internal/domain"
)

// firstFrame carries the peer's reply to auth_challenge back to
// handleUpgrade, which decides whether it started a normal auth flow
// or an unauthenticated pairing request.
type firstFrame struct {
	frame            Frame
	isPairingRequest bool
}

// handshake sends auth_challenge and waits for the peer's first reply.
// An unpaired device skips straight to pairing_request instead of
// auth_response — it has no approved key yet to authenticate with — so
// this function returns the raw first frame alongside the connection, and
// the caller decides whether to run full auth or hand off to the
// pairing bridge.
func (s *Server) handshake(parent context.Context, ws *websocket.Conn) (*clientConn, firstFrame, error) {
	ctx, cancel := context.WithTimeout(parent, s.handshakeTTL)
	defer cancel()

	nonce, err := cryptoid.NewNonce()
	if err != nil {
		ws.Close(websocket.StatusInternalError, "nonce generation failed")
		return nil, firstFrame{}, fmt.Errorf("generate handshake nonce: %w", err)
	}

	challenge, err := EncodeFrame(Frame{Type: FrameAuthChallenge, Nonce: nonce})
	if err != nil {
		ws.Close(websocket.StatusInternalError, "encode challenge failed")
		return nil, firstFrame{}, err
	}
	if err := ws.Write(ctx, websocket.MessageText, challenge); err != nil {
		return nil, firstFrame{}, fmt.Errorf("send auth_challenge: %w", err)
	}

	_, data, err := ws.Read(ctx)
	if err != nil {
		ws.Close(CloseAuthFailed, "no reply to auth_challenge")
		return nil, firstFrame{}, fmt.Errorf("read first frame: %w", err)
	}
	resp, err := DecodeFrame(data)
	if err != nil {
		ws.Close(CloseAuthFailed, "malformed frame")
		return nil, firstFrame{}, domain.ErrRPCInvalidPayload
	}

	if resp.Type == FramePairingRequest {
		cc := &clientConn{ws: ws, sendCh: make(chan Frame, 4), done: make(chan struct{})}
		return cc, firstFrame{frame: resp, isPairingRequest: true}, nil
	}

	if resp.Type != FrameAuthResponse {
		ws.Close(CloseAuthFailed, "expected auth_response or pairing_request")
		return nil, firstFrame{}, domain.ErrRPCInvalidPayload
	}

	cc := &clientConn{ws: ws, sendCh: make(chan Frame, 64), done: make(chan struct{})}

	switch resp.AuthMode {
	case AuthModeDesktopClaim:
		root := domain.DesktopTrustRoot{DeviceID: resp.DeviceID, PublicKey: resp.PublicKey, CreatedAt: time.Now().UTC()}
		if err := s.verifier.VerifyDesktopClaim(root, nonce, resp.Signature); err != nil {
			ws.Close(CloseAuthFailed, "desktop_claim rejected")
			return nil, firstFrame{}, err
		}
		cc.deviceID, cc.isDesktop = resp.DeviceID, true

	case AuthModeDesktop:
		if err := s.verifier.VerifyDesktop(nonce, resp.Signature); err != nil {
			ws.Close(CloseAuthFailed, "desktop auth rejected")
			return nil, firstFrame{}, err
		}
		cc.deviceID, cc.isDesktop = resp.DeviceID, true

	case AuthModeDevice:
		deviceID, err := s.verifier.VerifyDeviceAuth(nonce, resp.Attestation, resp.Signature)
		if err != nil {
			ws.Close(CloseAuthFailed, "device auth rejected")
			return nil, firstFrame{}, err
		}
		s.verifier.TouchLastSeen(deviceID, time.Now().UTC())
		cc.deviceID = deviceID

	default:
		ws.Close(CloseAuthFailed, "unknown auth_mode")
		return nil, firstFrame{}, domain.ErrRPCInvalidPayload
	}

	ok, err := EncodeFrame(Frame{Type: FrameAuthOK, DeviceID: cc.deviceID})
	if err != nil {
		ws.Close(websocket.StatusInternalError, "encode auth_ok failed")
		return nil, firstFrame{}, err
	}
	if err := ws.Write(ctx, websocket.MessageText, ok); err != nil {
		return nil, firstFrame{}, fmt.Errorf("send auth_ok: %w", err)
	}

	s.registerClient(cc)
	return cc, firstFrame{frame: resp}, nil
}
