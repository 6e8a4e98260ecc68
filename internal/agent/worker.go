package agent

import (
	"context"
	"log/slog"
	"sync"

	"relayhub/internal/domain"
)

// FallbackReply is returned to the user when the Driver errors out —
// the one thing the worker guarantees every inbound text message gets
// answered with something, even if the model backend is down.
const FallbackReply = "Sorry, I'm having trouble responding right now. Please try again shortly."

// historyLimit bounds how many turns of a conversation are kept in
// memory and handed to the Driver; older turns fall off the front.
const historyLimit = 20

// Queues is the narrow slice of router.Router the worker needs: pull
// the next inbound message, push a reply back out. Scoped to an
// interface so agent never imports router directly.
type Queues interface {
	NextInbound(ctx context.Context) (domain.UnifiedMessage, error)
	Outbound(msg domain.UnifiedMessage) error
}

// Worker drains the inbound queue and answers each text message with a
// Driver-produced reply on the matching conversation.
type Worker struct {
	queues       Queues
	driver       Driver
	systemPrompt string
	logger       *slog.Logger

	mu      sync.Mutex
	history map[string][]Turn // conversation key -> turns
}

// New builds an agent Worker. A non-empty systemPrompt is seeded as the
// first turn of every new conversation, the way win30221-genesis's
// handler.Handler seeds its history with config.SystemPrompt before the
// first user turn.
func New(queues Queues, driver Driver, systemPrompt string, logger *slog.Logger) *Worker {
	return &Worker{queues: queues, driver: driver, systemPrompt: systemPrompt, logger: logger, history: make(map[string][]Turn)}
}

// Run drains the inbound queue until ctx is cancelled or the queue is
// closed.
func (w *Worker) Run(ctx context.Context) {
	for {
		msg, err := w.queues.NextInbound(ctx)
		if err != nil {
			return
		}
		w.handle(ctx, msg)
	}
}

func (w *Worker) handle(ctx context.Context, msg domain.UnifiedMessage) {
	// Only free-text content drives a conversational reply; other
	// content types (images, events, locations) are routed elsewhere or
	// dropped at this layer.
	if msg.ContentType != domain.ContentTypeText {
		return
	}

	key := msg.ConversationKey()
	history := w.appendTurn(key, Turn{Role: "user", Text: msg.Body})

	reply, err := w.driver.Reply(ctx, history)
	if err != nil {
		w.logger.Error("agent: driver failed", "conversation", key, "error", err)
		reply = FallbackReply
	} else {
		w.appendTurn(key, Turn{Role: "assistant", Text: reply})
	}

	out := domain.NewUnifiedMessage(msg.Channel, domain.DirectionOutbound, domain.ContentTypeText, reply)
	out.RecipientID = msg.SenderID
	if err := w.queues.Outbound(out); err != nil {
		w.logger.Error("agent: failed to queue reply", "conversation", key, "error", err)
	}
}

func (w *Worker) appendTurn(key string, turn Turn) []Turn {
	w.mu.Lock()
	defer w.mu.Unlock()
	existing, seen := w.history[key]
	if !seen && w.systemPrompt != "" {
		existing = append(existing, Turn{Role: "system", Text: w.systemPrompt})
	}
	h := append(existing, turn)
	if len(h) > historyLimit {
		h = h[len(h)-historyLimit:]
	}
	w.history[key] = h

	out := make([]Turn, len(h))
	copy(out, h)
	return out
}
