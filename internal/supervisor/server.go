// Package supervisor is the Hub side of Plane A: it spawns and tracks
// channel plugin subprocesses, runs the local loopback WebSocket server
// those plugins register with, and carries JSON-RPC 2.0 envelopes to
// and from each one. Its connection shape is internal/gatewaysrv's
// clientConn/writeLoop/readLoop pattern narrowed to a single local
// peer per channel instead of a device registry, and its process
// lifecycle is the teacher's internal/usecase/process.Manager narrowed
// to one job: keep configured channel plugins running.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"relayhub/internal/domain"
	"relayhub/internal/pluginrpc"
)

// OnReceive is called whenever a channel plugin delivers an inbound
// message via channel.receive.
type OnReceive func(msg domain.UnifiedMessage)

// OnEvent is called for channel.event notifications (status changes,
// non-fatal errors surfaced by the plugin itself).
type OnEvent func(channelID, event string, data json.RawMessage)

type pluginConn struct {
	channelID string
	ws        *websocket.Conn
	sendCh    chan domain.RpcEnvelope
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	pending map[string]chan domain.RpcEnvelope
	nextID  int
}

func (pc *pluginConn) close() {
	pc.closeOnce.Do(func() { close(pc.done) })
	pc.ws.Close(websocket.StatusNormalClosure, "")
}

// Supervisor owns the channel plugin process pool and the local RPC
// server they register with.
type Supervisor struct {
	addr    string
	logger  *slog.Logger
	onRecv  OnReceive
	onEvent OnEvent

	procs *processes

	httpSrv   *http.Server
	boundAddr string

	mu      sync.RWMutex
	conns   map[string]*pluginConn      // channel_id -> conn
	configs map[string]domain.ChannelConfig // channel_id -> stored config, for the post-register push

	registerTTL time.Duration
}

// New builds a Supervisor. addr is the loopback address to bind the
// local RPC server to, e.g. "127.0.0.1:0".
func New(addr string, registerTTL time.Duration, onRecv OnReceive, onEvent OnEvent, logger *slog.Logger) *Supervisor {
	s := &Supervisor{
		addr:        addr,
		logger:      logger,
		onRecv:      onRecv,
		onEvent:     onEvent,
		conns:       make(map[string]*pluginConn),
		configs:     make(map[string]domain.ChannelConfig),
		registerTTL: registerTTL,
	}
	s.procs = newProcesses(s.handleCrash, func(msg string, args ...any) { logger.Warn(msg, args...) })
	return s
}

// Start binds the local RPC listener, spawns every enabled channel
// with its connect URL appended to the command line per §4.6
// (effective_command() ++ ["--phb-ws", ws_url]), and begins accepting
// plugin connections. Blocks until ctx is cancelled.
func (s *Supervisor) Start(ctx context.Context, channels []domain.ChannelConfig) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/rpc", s.handleUpgrade)

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("supervisor listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()
	s.httpSrv = &http.Server{Handler: mux}
	wsURL := fmt.Sprintf("ws://%s/rpc", s.boundAddr)

	s.mu.Lock()
	for _, c := range channels {
		s.configs[c.Name] = c
	}
	s.mu.Unlock()

	for _, c := range channels {
		if !c.Enabled {
			continue
		}
		if _, err := s.procs.spawn(c, "--phb-ws", wsURL); err != nil {
			s.logger.Error("supervisor: spawn failed", "channel_id", c.Name, "error", err)
		}
	}

	s.logger.Info("supervisor: local rpc server started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("supervisor serve: %w", err)
	}
	return nil
}

// Stop terminates every channel subprocess and shuts down the RPC server.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	for id, pc := range s.conns {
		pc.close()
		delete(s.conns, id)
	}
	s.mu.Unlock()

	s.procs.stopAll()

	if s.httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the address the local RPC server bound to.
func (s *Supervisor) BoundAddr() string { return s.boundAddr }

// Channels returns the live status of every tracked channel.
func (s *Supervisor) Channels() []domain.ChannelInfo { return s.procs.list() }

func (s *Supervisor) handleCrash(id string, config domain.ChannelConfig, err error) {
	s.logger.Error("supervisor: channel plugin crashed", "channel_id", id, "error", err)
}

func (s *Supervisor) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"127.0.0.1", "127.0.0.1:*", "localhost", "localhost:*"}})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.registerTTL)
	channelID, err := s.awaitRegister(ctx, ws)
	cancel()
	if err != nil {
		s.logger.Warn("supervisor: plugin registration failed", "error", err)
		ws.Close(websocket.StatusPolicyViolation, "registration required")
		return
	}

	pc := &pluginConn{channelID: channelID, ws: ws, sendCh: make(chan domain.RpcEnvelope, 64), done: make(chan struct{}), pending: make(map[string]chan domain.RpcEnvelope)}
	s.mu.Lock()
	s.conns[channelID] = pc
	s.mu.Unlock()

	s.logger.Info("supervisor: channel plugin registered", "channel_id", channelID)

	s.mu.RLock()
	stored, hasConfig := s.configs[channelID]
	s.mu.RUnlock()
	if hasConfig && len(stored.Config) > 0 {
		if env, err := domain.NewNotification(pluginrpc.MethodConfigure, stored.Config); err == nil {
			pc.sendCh <- env
		}
	}

	go s.writeLoop(pc)
	s.readLoop(r.Context(), pc)

	s.mu.Lock()
	if s.conns[channelID] == pc {
		delete(s.conns, channelID)
	}
	s.mu.Unlock()
	pc.close()
	s.logger.Info("supervisor: channel plugin disconnected", "channel_id", channelID)
}

// awaitRegister reads exactly one frame and requires it be a
// channel.register notification, returning the channel name it claims.
// Per §4.4/§4.6, registration is fire-and-forget — it gets no response.
func (s *Supervisor) awaitRegister(ctx context.Context, ws *websocket.Conn) (channelID string, err error) {
	_, data, err := ws.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("read register frame: %w", err)
	}
	var env domain.RpcEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", fmt.Errorf("decode register frame: %w", err)
	}
	if !env.IsNotification() || env.Method != pluginrpc.MethodRegister {
		return "", fmt.Errorf("expected %s notification, got method=%q", pluginrpc.MethodRegister, env.Method)
	}
	var info domain.ChannelInfo
	if err := json.Unmarshal(env.Params, &info); err != nil || info.Name == "" {
		return "", fmt.Errorf("missing name in register params")
	}
	return info.Name, nil
}

func (s *Supervisor) writeLoop(pc *pluginConn) {
	for {
		select {
		case <-pc.done:
			return
		case env := <-pc.sendCh:
			data, err := json.Marshal(env)
			if err == nil {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				err = pc.ws.Write(ctx, websocket.MessageText, data)
				cancel()
			}
			if err != nil {
				return
			}
		}
	}
}

func (s *Supervisor) readLoop(ctx context.Context, pc *pluginConn) {
	for {
		_, data, err := pc.ws.Read(ctx)
		if err != nil {
			return
		}
		var env domain.RpcEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			continue
		}
		s.dispatch(pc, env)
	}
}

func (s *Supervisor) dispatch(pc *pluginConn, env domain.RpcEnvelope) {
	switch {
	case env.IsResponse():
		pc.mu.Lock()
		ch, ok := pc.pending[string(env.ID)]
		if ok {
			delete(pc.pending, string(env.ID))
		}
		pc.mu.Unlock()
		if ok {
			ch <- env
		}

	case env.IsNotification() && env.Method == pluginrpc.MethodReceive:
		var msg domain.UnifiedMessage
		if err := json.Unmarshal(env.Params, &msg); err != nil {
			s.logger.Warn("supervisor: malformed channel.receive payload", "channel_id", pc.channelID, "error", err)
			return
		}
		if s.onRecv != nil {
			s.onRecv(msg)
		}

	case env.IsNotification() && env.Method == pluginrpc.MethodEvent:
		if s.onEvent != nil {
			var payload struct {
				Event string          `json:"event"`
				Data  json.RawMessage `json:"data"`
			}
			json.Unmarshal(env.Params, &payload)
			s.onEvent(pc.channelID, payload.Event, payload.Data)
		}
	}
}

// Send delivers msg to the channel plugin identified by channelID as
// a channel.send notification (fire-and-forget — delivery confirmation,
// if any, arrives later as a channel.event).
func (s *Supervisor) Send(channelID string, msg domain.UnifiedMessage) error {
	pc, ok := s.conn(channelID)
	if !ok {
		return domain.NewSubSystemError("supervisor", "Send", domain.ErrChannelNotRunning, channelID)
	}
	env, err := domain.NewNotification(pluginrpc.MethodSend, msg)
	if err != nil {
		return err
	}
	pc.sendCh <- env
	return nil
}

// SendEvent delivers a Hub-originated event (currently just
// pairing_response, once the pairing controller resolves a request) to
// the channel plugin as a channel.event notification — the same
// envelope shape a plugin uses to notify the Hub, carried the other
// way over the same connection.
func (s *Supervisor) SendEvent(channelID, event string, data any) error {
	pc, ok := s.conn(channelID)
	if !ok {
		return domain.NewSubSystemError("supervisor", "SendEvent", domain.ErrChannelNotRunning, channelID)
	}
	env, err := domain.NewNotification(pluginrpc.MethodEvent, map[string]any{"event": event, "data": data})
	if err != nil {
		return err
	}
	pc.sendCh <- env
	return nil
}

// Configure sends channel.configure and waits for the plugin's
// acknowledgement.
func (s *Supervisor) Configure(ctx context.Context, channelID string, settings map[string]any) error {
	_, err := s.call(ctx, channelID, pluginrpc.MethodConfigure, settings)
	return err
}

// Probe sends channel.status and waits up to 5s for the plugin's reply,
// per §4.6's probe_channel.
func (s *Supervisor) Probe(ctx context.Context, channelID string) (domain.ChannelInfo, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := s.call(probeCtx, channelID, pluginrpc.MethodStatus, nil)
	if err != nil {
		return domain.ChannelInfo{}, err
	}
	var info domain.ChannelInfo
	if err := json.Unmarshal(result, &info); err != nil {
		return domain.ChannelInfo{}, fmt.Errorf("decode channel.status result: %w", err)
	}
	return info, nil
}

// StopChannel sends channel.stop, waits for acknowledgement, then
// terminates the subprocess.
func (s *Supervisor) StopChannel(ctx context.Context, channelID string) error {
	if pc, ok := s.conn(channelID); ok {
		s.call(ctx, channelID, pluginrpc.MethodStop, nil)
		pc.close()
	}
	return s.procs.terminate(channelID)
}

func (s *Supervisor) call(ctx context.Context, channelID, method string, params any) (json.RawMessage, error) {
	pc, ok := s.conn(channelID)
	if !ok {
		return nil, domain.NewSubSystemError("supervisor", "call", domain.ErrChannelNotRunning, channelID)
	}

	pc.mu.Lock()
	pc.nextID++
	id := fmt.Sprintf("%d", pc.nextID)
	reply := make(chan domain.RpcEnvelope, 1)
	pc.pending[id] = reply
	pc.mu.Unlock()

	env, err := domain.NewRequest(id, method, params)
	if err != nil {
		return nil, err
	}
	pc.sendCh <- env

	select {
	case resp := <-reply:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %s", method, resp.Error.Message)
		}
		return resp.Result, nil
	case <-ctx.Done():
		pc.mu.Lock()
		delete(pc.pending, id)
		pc.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (s *Supervisor) conn(channelID string) (*pluginConn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pc, ok := s.conns[channelID]
	return pc, ok
}
