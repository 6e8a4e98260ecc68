package domain

import (
	"encoding/json"
	"testing"
)

func TestNewRequestIsRequest(t *testing.T) {
	env, err := NewRequest("1", "channel.register", map[string]string{"channel_id": "devices"})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if !env.IsRequest() {
		t.Error("expected IsRequest() true")
	}
	if env.IsNotification() || env.IsResponse() {
		t.Error("a request must not also be a notification or a response")
	}
	if env.Method != "channel.register" {
		t.Errorf("Method = %q", env.Method)
	}
}

func TestNewNotificationHasNoID(t *testing.T) {
	env, err := NewNotification("channel.event", map[string]string{"type": "typing"})
	if err != nil {
		t.Fatalf("NewNotification: %v", err)
	}
	if !env.IsNotification() {
		t.Error("expected IsNotification() true")
	}
	if len(env.ID) != 0 {
		t.Errorf("expected empty ID, got %s", env.ID)
	}
}

func TestNewResponseRoundTrip(t *testing.T) {
	idRaw, _ := json.Marshal("req-1")
	env, err := NewResponse(idRaw, map[string]bool{"ok": true})
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	if !env.IsResponse() {
		t.Error("expected IsResponse() true")
	}
	var result map[string]bool
	if err := json.Unmarshal(env.Result, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if !result["ok"] {
		t.Error("expected ok=true in result")
	}
}

func TestNewErrorResponse(t *testing.T) {
	idRaw, _ := json.Marshal("req-2")
	env := NewErrorResponse(idRaw, RPCMethodNotFound, "unknown method")
	if env.Error == nil {
		t.Fatal("expected non-nil Error")
	}
	if env.Error.Code != RPCMethodNotFound {
		t.Errorf("Code = %d, want %d", env.Error.Code, RPCMethodNotFound)
	}
}

func TestRpcEnvelopeJSONRoundTrip(t *testing.T) {
	env, _ := NewRequest("3", "channel.send", map[string]string{"body": "hi"})
	data, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got RpcEnvelope
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Method != env.Method || got.JSONRPC != jsonrpcVersion {
		t.Errorf("got %+v", got)
	}
}
