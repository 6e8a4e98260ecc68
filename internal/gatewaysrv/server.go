// Package gatewaysrv is the Gateway relay: the WebSocket server that
// sits between the desktop Hub and every paired device, brokering the
// handshake (Plane C), unicast/broadcast message relay, and the
// pairing bridge. Its connection-handling shape — clientConn with a
// buffered send channel, a read loop and a write loop per connection,
// graceful shutdown over an http.Server — is the teacher's own gateway
// server generalized from a single RPC/event multiplexer to a
// three-mode relay.
package gatewaysrv

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
	"nhooyr.io/websocket"

	"relayhub/internal/domain"
	"relayhub/internal/gatewayauth"
)

// clientConn tracks one authenticated WebSocket connection.
type clientConn struct {
	deviceID  string
	isDesktop bool
	ws        *websocket.Conn
	sendCh    chan Frame
	done      chan struct{}
	closeOnce sync.Once
}

func (cc *clientConn) close(code websocket.StatusCode, reason string) {
	cc.closeOnce.Do(func() { close(cc.done) })
	cc.ws.Close(code, reason)
}

type pendingPairing struct {
	requestID       string
	device          *clientConn
	devicePublicKey []byte
	createdAt       time.Time
}

// DeviceApprover persists a newly paired device's key so future
// connections can authenticate with auth_mode "device" instead of
// repeating the pairing flow. Satisfied by gatewayauth.Store.
type DeviceApprover interface {
	ApproveDevice(domain.ApprovedDevice) error
}

// Server is the Gateway relay server.
type Server struct {
	verifier     *gatewayauth.Verifier
	approver     DeviceApprover
	logger       *slog.Logger
	addr         string
	handshakeTTL time.Duration
	pairingTTL   time.Duration

	httpSrv   *http.Server
	boundAddr string

	clientsMu sync.RWMutex
	clients   map[string]*clientConn // deviceID -> conn
	desktopID string

	pairingMu      sync.Mutex
	pendingPairing map[string]*pendingPairing
	pairingLimiter *rate.Limiter
}

// NewServer builds a Gateway relay server. pairingTTL bounds how long a
// pairing_request waits for the desktop to resolve it; handshakeTTL
// bounds how long a freshly-accepted connection has to complete
// auth_response before the Gateway gives up on it.
func NewServer(verifier *gatewayauth.Verifier, approver DeviceApprover, addr string, handshakeTTL, pairingTTL time.Duration, logger *slog.Logger) *Server {
	return &Server{
		verifier:       verifier,
		approver:       approver,
		logger:         logger,
		addr:           addr,
		handshakeTTL:   handshakeTTL,
		pairingTTL:     pairingTTL,
		clients:        make(map[string]*clientConn),
		pendingPairing: make(map[string]*pendingPairing),
		// One new pairing_request per second sustained, bursts of 5 —
		// ambient resource discipline against a flood of bogus codes,
		// not the (out of scope) application rate limiting of relayed
		// traffic itself.
		pairingLimiter: rate.NewLimiter(rate.Limit(1), 5),
	}
}

// Start begins accepting WebSocket connections. Blocks until ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/relay", s.handleUpgrade)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: mux}

	s.logger.Info("gateway relay started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the relay, closing every connection.
func (s *Server) Stop(ctx context.Context) error {
	s.clientsMu.Lock()
	for id, cc := range s.clients {
		cc.close(websocket.StatusGoingAway, "server shutting down")
		delete(s.clients, id)
	}
	s.clientsMu.Unlock()

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid
// after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost", "localhost:*",
			"127.0.0.1", "127.0.0.1:*",
			"[::1]", "[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("gateway: websocket accept failed", "error", err)
		return
	}

	ctx := r.Context()
	cc, first, err := s.handshake(ctx, ws)
	if err != nil {
		s.logger.Warn("gateway: handshake failed", "error", err)
		return
	}

	if first.isPairingRequest {
		// An unpaired device has no approved key to authenticate with, so
		// it never completes auth_response. It is admitted straight into
		// the pairing bridge on an unregistered connection: never added
		// to s.clients, just held long enough to relay pairing_pending
		// and pairing_response before the Gateway closes it.
		s.logger.Info("gateway: pairing-initiator connected")
		go s.writeLoop(cc)
		s.handlePairingRequest(cc, first.frame)
		s.readLoop(ctx, cc)
		cc.close(websocket.StatusNormalClosure, "")
		s.logger.Info("gateway: pairing-initiator disconnected")
		return
	}

	s.logger.Info("gateway: peer authenticated", "device_id", cc.deviceID, "desktop", cc.isDesktop)

	go s.writeLoop(cc)
	s.readLoop(ctx, cc)

	s.clientsMu.Lock()
	if s.clients[cc.deviceID] == cc {
		delete(s.clients, cc.deviceID)
	}
	if s.desktopID == cc.deviceID {
		s.desktopID = ""
	}
	s.clientsMu.Unlock()
	cc.close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway: peer disconnected", "device_id", cc.deviceID)
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			data, err := EncodeFrame(frame)
			if err == nil {
				err = cc.ws.Write(ctx, websocket.MessageText, data)
			}
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		_, data, err := cc.ws.Read(ctx)
		if err != nil {
			return
		}
		frame, err := DecodeFrame(data)
		if err != nil {
			continue
		}
		s.handleFrame(cc, frame)
	}
}

// handleFrame dispatches one frame from an already-authenticated
// connection, or from a pairing initiator's connection, which has no
// device id and is refused relaying. Relay frames carry no type tag of their own on the wire
// (§6) — a peer's application traffic is just {target_device_id?,
// payload}. Only the handshake and pairing-bridge vocabulary are
// recognized as control frames; everything else, including a frame
// with no "type" field at all, is relayed per §4.3 on the presence of
// target_device_id alone.
func (s *Server) handleFrame(cc *clientConn, frame Frame) {
	switch frame.Type {
	case FramePairingRequest:
		s.handlePairingRequest(cc, frame)
	case FramePairingResponse:
		s.handlePairingResponse(cc, frame)
	case FrameAuthChallenge, FrameAuthResponse, FrameAuthOK, FramePairingPending, FrameError:
		s.sendError(cc, "unsupported frame type for this state")
	default:
		if cc.deviceID == "" {
			s.sendError(cc, "relay requires an authenticated connection")
			return
		}
		s.relayUnicastOrBroadcast(cc, frame)
	}
}

func (s *Server) relayUnicastOrBroadcast(cc *clientConn, frame Frame) {
	frame.SenderDeviceID = cc.deviceID

	if frame.TargetDeviceID == "" {
		s.clientsMu.RLock()
		defer s.clientsMu.RUnlock()
		for id, peer := range s.clients {
			if id == cc.deviceID {
				continue
			}
			s.enqueue(peer, frame)
		}
		return
	}

	s.clientsMu.RLock()
	target, ok := s.clients[frame.TargetDeviceID]
	s.clientsMu.RUnlock()
	if !ok {
		s.logger.Warn("gateway: dropped relay frame for unknown target", "target_device_id", frame.TargetDeviceID, "sender_device_id", cc.deviceID)
		return
	}
	s.enqueue(target, frame)
}

func (s *Server) enqueue(cc *clientConn, frame Frame) {
	select {
	case cc.sendCh <- frame:
	default:
		s.logger.Warn("gateway: dropped relay frame for slow peer", "device_id", cc.deviceID)
	}
}

func (s *Server) sendError(cc *clientConn, msg string) {
	s.enqueue(cc, Frame{Type: FrameError, Error: msg})
}

// registerClient admits an authenticated connection into the device
// registry and, for the desktop's own connection, records it as the
// current desktop peer so pairing_request frames have somewhere to go.
// At most one connection per device id is ever registered: a second
// connection for an id already present displaces the first, which is
// closed with CloseDisplaced (P3).
func (s *Server) registerClient(cc *clientConn) {
	s.clientsMu.Lock()
	prev, existed := s.clients[cc.deviceID]
	s.clients[cc.deviceID] = cc
	if cc.isDesktop {
		s.desktopID = cc.deviceID
	}
	s.clientsMu.Unlock()

	if existed && prev != cc {
		prev.close(CloseDisplaced, "replaced by new connection")
	}
}

func (s *Server) desktopConn() (*clientConn, bool) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	if s.desktopID == "" {
		return nil, false
	}
	cc, ok := s.clients[s.desktopID]
	return cc, ok
}

func newRequestID() string { return uuid.NewString() }
