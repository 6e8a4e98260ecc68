package agent

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/ollama/ollama/api"
)

// OllamaDriver is the local-model Driver: a single-shot (non-streaming)
// chat completion against an Ollama server. Its client construction —
// a custom Transport with generous idle-conn and no response-header
// timeout, so a slow model load never gets killed mid-generation —
// follows win30221-genesis's pkg/llm/ollama.OllamaClient.
type OllamaDriver struct {
	client *api.Client
	model  string
}

// NewOllamaDriver builds a driver against the Ollama server at baseURL
// serving model.
func NewOllamaDriver(baseURL, model string) (*OllamaDriver, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama base url: %w", err)
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
		ResponseHeaderTimeout: 0,
	}
	httpClient := &http.Client{Transport: transport, Timeout: 0}

	return &OllamaDriver{client: api.NewClient(u, httpClient), model: model}, nil
}

// Reply asks Ollama for one chat completion over the given history.
func (d *OllamaDriver) Reply(ctx context.Context, history []Turn) (string, error) {
	messages := make([]api.Message, 0, len(history))
	for _, t := range history {
		messages = append(messages, api.Message{Role: t.Role, Content: t.Text})
	}

	stream := false
	req := &api.ChatRequest{Model: d.model, Messages: messages, Stream: &stream}

	var reply string
	err := d.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		reply += resp.Message.Content
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return reply, nil
}
