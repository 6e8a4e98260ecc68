package pluginrpc

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"relayhub/internal/domain"
)

// fakeHub accepts one plugin connection and echoes channel.register back
// with a canned result, letting tests exercise Call/Notify without the
// real supervisor.
func fakeHub(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		for {
			_, data, err := ws.Read(ctx)
			if err != nil {
				return
			}
			var env domain.RpcEnvelope
			if err := json.Unmarshal(data, &env); err != nil {
				continue
			}
			if env.IsRequest() && env.Method == MethodRegister {
				resp, _ := domain.NewResponse(env.ID, map[string]string{"status": "ok"})
				out, _ := json.Marshal(resp)
				ws.Write(ctx, websocket.MessageText, out)
			}
		}
	}))
}

func TestClientCallRoundTrip(t *testing.T) {
	srv := fakeHub(t)
	defer srv.Close()

	url := "ws" + srv.URL[len("http"):]
	client := New(url, nil, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !client.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !client.Connected() {
		t.Fatal("client never connected")
	}

	callCtx, callCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer callCancel()
	result, err := client.Call(callCtx, MethodRegister, map[string]string{"channel_id": "devices"})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	var decoded map[string]string
	if err := json.Unmarshal(result, &decoded); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if decoded["status"] != "ok" {
		t.Errorf("unexpected result: %+v", decoded)
	}
}

func TestClientNotifyDoesNotBlock(t *testing.T) {
	srv := fakeHub(t)
	defer srv.Close()
	url := "ws" + srv.URL[len("http"):]
	client := New(url, nil, nil, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for !client.Connected() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := client.Notify(MethodEvent, map[string]string{"state": "ready"}); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}
