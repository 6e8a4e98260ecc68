// Package pluginrpc is the plugin side of Plane A: a long-lived
// WebSocket client that registers a channel plugin with the Hub's local
// supervisor, carries JSON-RPC 2.0 envelopes in both directions, and
// reconnects on a fixed delay if the supervisor goes away. Its
// connection lifecycle mirrors the send-channel/read-loop/write-loop
// shape of internal/gatewaysrv, generalized to the client side and to a
// single local peer instead of a device registry.
package pluginrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"relayhub/internal/domain"
)

// Plane A method names.
const (
	MethodRegister  = "channel.register"
	MethodReceive   = "channel.receive"
	MethodEvent     = "channel.event"
	MethodSend      = "channel.send"
	MethodConfigure = "channel.configure"
	MethodStop      = "channel.stop"
	MethodStatus    = "channel.status"
)

// ReconnectDelay is the fixed backoff between dropped connections. The
// supervisor is a local process on the same machine, so there is no
// need for exponential backoff — if it's gone, it's either about to
// come back (restart) or gone for good (shutdown), and 5s bounds how
// stale a plugin's queued outbound events can get.
const ReconnectDelay = 5 * time.Second

// RequestHandler answers a JSON-RPC request the Hub sent to this
// plugin (channel.configure, channel.stop, channel.status).
type RequestHandler func(ctx context.Context, method string, params json.RawMessage) (result any, err error)

// NotificationHandler reacts to a JSON-RPC notification the Hub sent
// (channel.send — deliver this outbound message through the channel).
type NotificationHandler func(method string, params json.RawMessage)

// Client is a single plugin's connection to the Hub's local RPC server.
type Client struct {
	url      string
	logger   *slog.Logger
	onReq    RequestHandler
	onNotify NotificationHandler

	mu       sync.Mutex
	ws       *websocket.Conn
	pending  map[string]chan domain.RpcEnvelope
	nextID   int
	sendCh   chan domain.RpcEnvelope
	connMu   sync.RWMutex
	connOK   bool
}

// New builds a plugin RPC client. url is the Hub's local RPC listener,
// e.g. "ws://127.0.0.1:PORT/rpc".
func New(url string, onReq RequestHandler, onNotify NotificationHandler, logger *slog.Logger) *Client {
	return &Client{
		url:      url,
		logger:   logger,
		onReq:    onReq,
		onNotify: onNotify,
		pending:  make(map[string]chan domain.RpcEnvelope),
		sendCh:   make(chan domain.RpcEnvelope, 64),
	}
}

// Run connects, serves, and reconnects on a fixed delay until ctx is
// cancelled.
func (c *Client) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := c.runOnce(ctx); err != nil {
			c.logger.Warn("pluginrpc: connection lost", "error", err)
		}
		c.setConnected(false)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(ReconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	ws, _, err := websocket.Dial(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("dial hub rpc: %w", err)
	}
	defer ws.Close(websocket.StatusNormalClosure, "")

	c.mu.Lock()
	c.ws = ws
	c.mu.Unlock()
	c.setConnected(true)

	connCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(connCtx, ws)
	return c.readLoop(connCtx, ws)
}

func (c *Client) writeLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case env := <-c.sendCh:
			data, err := json.Marshal(env)
			if err != nil {
				c.logger.Error("pluginrpc: encode envelope failed", "error", err)
				continue
			}
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = ws.Write(writeCtx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (c *Client) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		var env domain.RpcEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.logger.Warn("pluginrpc: malformed envelope", "error", err)
			continue
		}
		c.dispatch(ctx, env)
	}
}

func (c *Client) dispatch(ctx context.Context, env domain.RpcEnvelope) {
	switch {
	case env.IsResponse():
		c.mu.Lock()
		ch, ok := c.pending[string(env.ID)]
		if ok {
			delete(c.pending, string(env.ID))
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}

	case env.IsRequest():
		if c.onReq == nil {
			c.replyError(env.ID, domain.RPCMethodNotFound, "no request handler registered")
			return
		}
		result, err := c.onReq(ctx, env.Method, env.Params)
		if err != nil {
			c.replyError(env.ID, domain.RPCInternalError, err.Error())
			return
		}
		resp, err := domain.NewResponse(env.ID, result)
		if err != nil {
			c.replyError(env.ID, domain.RPCInternalError, "encode result failed")
			return
		}
		c.enqueue(resp)

	case env.IsNotification():
		if c.onNotify != nil {
			c.onNotify(env.Method, env.Params)
		}
	}
}

func (c *Client) replyError(id json.RawMessage, code int, msg string) {
	c.enqueue(domain.NewErrorResponse(id, code, msg))
}

func (c *Client) enqueue(env domain.RpcEnvelope) {
	select {
	case c.sendCh <- env:
	default:
		c.logger.Warn("pluginrpc: dropped outbound envelope, send buffer full")
	}
}

// Notify sends a fire-and-forget JSON-RPC notification (channel.receive,
// channel.event).
func (c *Client) Notify(method string, params any) error {
	env, err := domain.NewNotification(method, params)
	if err != nil {
		return fmt.Errorf("build notification: %w", err)
	}
	c.enqueue(env)
	return nil
}

// Call sends a JSON-RPC request and blocks until the matching response
// arrives, ctx is done, or the connection drops.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	c.nextID++
	id := fmt.Sprintf("%d", c.nextID)
	reply := make(chan domain.RpcEnvelope, 1)
	c.pending[id] = reply
	c.mu.Unlock()

	env, err := domain.NewRequest(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.enqueue(env)

	select {
	case resp := <-reply:
		if resp.Error != nil {
			return nil, fmt.Errorf("%s: %s (code %d)", method, resp.Error.Message, resp.Error.Code)
		}
		return resp.Result, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
		return nil, ctx.Err()
	}
}

func (c *Client) setConnected(ok bool) {
	c.connMu.Lock()
	c.connOK = ok
	c.connMu.Unlock()
}

// Connected reports whether the client currently has a live connection
// to the Hub's local RPC server.
func (c *Client) Connected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connOK
}
