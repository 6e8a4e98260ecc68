// Package agent is the conversational worker: it drains the router's
// inbound queue one message at a time, keeps a short per-conversation
// history, asks a Driver for a reply, and pushes the reply back onto
// the outbound queue for the supervisor to deliver.
package agent

import "context"

// Driver is the pluggable language-model backend. A Driver call is
// given the conversation's most recent turns, at most historyLimit of
// them (oldest first, ending with the new inbound message), and returns
// the assistant's reply text.
type Driver interface {
	Reply(ctx context.Context, history []Turn) (string, error)
}

// Turn is one message in a conversation's rolling history.
type Turn struct {
	Role string // "user" or "assistant"
	Text string
}

// NoopDriver echoes a fixed reply without calling out to any model,
// useful for running the Hub end to end without an Ollama instance.
type NoopDriver struct {
	Text string
}

func (d NoopDriver) Reply(ctx context.Context, history []Turn) (string, error) {
	if d.Text != "" {
		return d.Text, nil
	}
	return "noop driver: no language model configured", nil
}
