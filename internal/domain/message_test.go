package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNewUnifiedMessageSetsIDAndTimestamp(t *testing.T) {
	msg := NewUnifiedMessage("devices", DirectionInbound, ContentTypeText, "hello")
	if msg.ID == "" {
		t.Error("expected non-empty ID")
	}
	if msg.Timestamp.IsZero() {
		t.Error("expected non-zero Timestamp")
	}
	if msg.Channel != "devices" || msg.ContentType != ContentTypeText || msg.Body != "hello" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestUnifiedMessageJSONRoundTrip(t *testing.T) {
	msg := UnifiedMessage{
		ID:          "msg-1",
		Channel:     "devices",
		Direction:   DirectionOutbound,
		SenderID:    "hub",
		RecipientID: "device-9",
		ContentType: ContentTypeText,
		Body:        "hi there",
		Metadata:    map[string]any{"thread_id": "t1"},
		Timestamp:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var got UnifiedMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if got.ID != msg.ID || got.Body != msg.Body || got.RecipientID != msg.RecipientID {
		t.Errorf("got %+v, want %+v", got, msg)
	}
}

func TestConversationKey(t *testing.T) {
	msg := UnifiedMessage{Channel: "devices", SenderID: "alice"}
	if got, want := msg.ConversationKey(), "devices:alice"; got != want {
		t.Errorf("ConversationKey() = %q, want %q", got, want)
	}
}

func TestDirectionConstants(t *testing.T) {
	if DirectionInbound != "inbound" || DirectionOutbound != "outbound" {
		t.Errorf("unexpected direction constants: %q %q", DirectionInbound, DirectionOutbound)
	}
}
