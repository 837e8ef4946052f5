// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pdiddy/sciqa/pkg/types"
)

const (
	defaultMaxTokens   = 4096
	defaultTemperature = 0.2
	defaultTimeout     = 120 * time.Second
	maxErrorBody       = 4096
)

// HTTPBackend calls an OpenAI-compatible chat-completions endpoint with
// streaming enabled and accumulates the streamed deltas into one reply.
type HTTPBackend struct {
	cfg         types.BackendConfig
	temperature float64
	client      *http.Client
}

// NewHTTPBackend returns a backend for cfg. A nil client uses
// http.DefaultClient; the per-call timeout comes from cfg.Timeout.
func NewHTTPBackend(cfg types.BackendConfig, client *http.Client) *HTTPBackend {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Model
	}
	if client == nil {
		client = http.DefaultClient
	}
	temperature := defaultTemperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}
	return &HTTPBackend{cfg: cfg, temperature: temperature, client: client}
}

// Name returns the configured backend name.
func (b *HTTPBackend) Name() string {
	return b.cfg.Name
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
	Stream      bool          `json:"stream"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Invoke sends one chat-completions request. Transport and status
// failures come back as *TransientError or *FatalError.
func (b *HTTPBackend) Invoke(ctx context.Context, p Payload) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, b.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(chatRequest{
		Model:       b.cfg.Model,
		Messages:    []chatMessage{{Role: "user", Content: packContent(p)}},
		MaxTokens:   b.cfg.MaxTokens,
		Temperature: b.temperature,
		Stream:      true,
	})
	if err != nil {
		return "", &FatalError{Backend: b.Name(), Err: fmt.Errorf("marshaling request: %w", err)}
	}

	url := strings.TrimSuffix(b.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", &FatalError{Backend: b.Name(), Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return "", classifyTransport(b.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", classifyStatus(b.Name(), resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var text string
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		text, err = readCompletion(resp.Body)
	} else {
		text, err = readStream(resp.Body)
	}
	if err != nil {
		return "", classifyTransport(b.Name(), err)
	}
	return text, nil
}

// packContent renders the message content: a plain string for text-only
// payloads, or image parts followed by the text part.
func packContent(p Payload) any {
	if !p.HasImages() {
		return p.Text
	}
	parts := make([]contentPart, 0, len(p.Images)+1)
	for _, u := range p.Images {
		parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: u, Detail: "auto"}})
	}
	return append(parts, contentPart{Type: "text", Text: p.Text})
}

// readStream accumulates the content deltas of a server-sent event stream.
func readStream(r io.Reader) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			break
		}
		var chunk chatChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("decoding stream chunk: %w", err)
		}
		for _, c := range chunk.Choices {
			sb.WriteString(c.Delta.Content)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// readCompletion handles servers that ignore the stream flag and return a
// single JSON completion.
func readCompletion(r io.Reader) (string, error) {
	var chunk chatChunk
	if err := json.NewDecoder(r).Decode(&chunk); err != nil {
		return "", fmt.Errorf("decoding completion: %w", err)
	}
	if len(chunk.Choices) == 0 {
		return "", fmt.Errorf("completion has no choices")
	}
	return chunk.Choices[0].Message.Content, nil
}
