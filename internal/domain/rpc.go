package domain

import "encoding/json"

// RpcEnvelope is the JSON-RPC 2.0 frame shared by both ends of Plane A:
// internal/pluginrpc on the plugin side and internal/supervisor on the
// Hub side decode and encode the exact same struct, the way the teacher's
// gateway.Frame is shared between its server and its clients.
type RpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RpcError       `json:"error,omitempty"`
}

// RpcError is the JSON-RPC 2.0 error object.
type RpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

const jsonrpcVersion = "2.0"

// IsNotification reports whether the envelope carries no ID — a
// fire-and-forget call that gets no response (channel.event uses this).
func (e RpcEnvelope) IsNotification() bool {
	return e.Method != "" && len(e.ID) == 0
}

// IsRequest reports whether the envelope is a method call awaiting a
// response.
func (e RpcEnvelope) IsRequest() bool {
	return e.Method != "" && len(e.ID) > 0
}

// IsResponse reports whether the envelope carries a result or error and
// no method — the reply half of a request.
func (e RpcEnvelope) IsResponse() bool {
	return e.Method == "" && len(e.ID) > 0
}

// NewRequest builds a JSON-RPC request envelope for the given id.
func NewRequest(id, method string, params any) (RpcEnvelope, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return RpcEnvelope{}, err
	}
	idRaw, err := json.Marshal(id)
	if err != nil {
		return RpcEnvelope{}, err
	}
	return RpcEnvelope{JSONRPC: jsonrpcVersion, ID: idRaw, Method: method, Params: raw}, nil
}

// NewNotification builds a JSON-RPC notification envelope (no ID).
func NewNotification(method string, params any) (RpcEnvelope, error) {
	raw, err := json.Marshal(params)
	if err != nil {
		return RpcEnvelope{}, err
	}
	return RpcEnvelope{JSONRPC: jsonrpcVersion, Method: method, Params: raw}, nil
}

// NewResponse builds a successful JSON-RPC response envelope.
func NewResponse(id json.RawMessage, result any) (RpcEnvelope, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return RpcEnvelope{}, err
	}
	return RpcEnvelope{JSONRPC: jsonrpcVersion, ID: id, Result: raw}, nil
}

// NewErrorResponse builds a JSON-RPC error response envelope.
func NewErrorResponse(id json.RawMessage, code int, message string) RpcEnvelope {
	return RpcEnvelope{JSONRPC: jsonrpcVersion, ID: id, Error: &RpcError{Code: code, Message: message}}
}

// Standard JSON-RPC 2.0 error codes used across Plane A.
const (
	RPCParseError     = -32700
	RPCInvalidRequest = -32600
	RPCMethodNotFound = -32601
	RPCInvalidParams  = -32602
	RPCInternalError  = -32603
)
