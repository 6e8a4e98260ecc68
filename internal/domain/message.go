package domain

import (
	"time"

	"github.com/google/uuid"
)

// Direction tells a router queue which way a message is flowing.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ContentType identifies the payload shape carried in a message Body.
type ContentType string

const (
	ContentTypeText     ContentType = "text"
	ContentTypeImage    ContentType = "image"
	ContentTypeAudio    ContentType = "audio"
	ContentTypeVideo    ContentType = "video"
	ContentTypeFile     ContentType = "file"
	ContentTypeLocation ContentType = "location"
	ContentTypeEvent    ContentType = "event"
)

// UnifiedMessage is the canonical envelope every channel plugin, the
// router, and the agent worker exchange. A plugin never sees another
// plugin's wire format — everything crossing Plane A is one of these.
type UnifiedMessage struct {
	ID          string            `json:"id"`
	Channel     string            `json:"channel"`
	Direction   Direction         `json:"direction"`
	SenderID    string            `json:"sender_id,omitempty"`
	RecipientID string            `json:"recipient_id,omitempty"`
	ContentType ContentType       `json:"content_type"`
	Body        string            `json:"body"`
	Metadata    map[string]any    `json:"metadata,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// NewUnifiedMessage fills in ID and Timestamp the way the rest of the
// domain expects them to already be set: opaque, minted once, never
// reparsed.
func NewUnifiedMessage(channel string, dir Direction, contentType ContentType, body string) UnifiedMessage {
	return UnifiedMessage{
		ID:          uuid.NewString(),
		Channel:     channel,
		Direction:   dir,
		ContentType: contentType,
		Body:        body,
		Timestamp:   time.Now().UTC(),
	}
}

// ConversationKey groups messages into the agent worker's per-peer
// conversation buckets.
func (m UnifiedMessage) ConversationKey() string {
	return m.Channel + ":" + m.SenderID
}
