// Package vision implements the escalation capability over an
// OpenAI-compatible chat completions endpoint that accepts inline images.
// The PDF bytes are sent as a base64 data URL together with a preview of
// the degraded local text so the model can anchor on whatever survived.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/lanewise/ingest/docpipe"
)

// Config configures the vision client.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

func (c *Config) defaults() {
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
	if c.Timeout <= 0 {
		c.Timeout = 120 * time.Second
	}
}

// Client talks to the vision model server.
type Client struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

// New creates a vision client. logger may be nil.
func New(cfg Config, logger *slog.Logger) *Client {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float32       `json:"temperature"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

const extractionPrompt = `Extract all content from this document. Render any
tables as markdown tables and keep the reading order. Return only the
extracted content.`

// Escalate implements docpipe.Vision.
func (c *Client) Escalate(ctx context.Context, data []byte, name, preview string) (*docpipe.VisionResult, error) {
	prompt := extractionPrompt
	if preview != "" {
		prompt = fmt.Sprintf("%s\n\nPartial text recovered locally (may be garbled):\n%s", extractionPrompt, preview)
	}

	req := chatRequest{
		Model:     c.cfg.Model,
		MaxTokens: c.cfg.MaxTokens,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
				}},
			},
		}},
	}

	reqJSON, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/v1/chat/completions", bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sending vision escalation request",
		"file", name, "payload_size", len(reqJSON))

	start := time.Now()
	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.Error("vision server error",
			"status", resp.StatusCode, "body", string(body), "latency", latency)
		return nil, fmt.Errorf("vision server returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chatResp); err != nil {
		return nil, fmt.Errorf("decode vision response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("vision response has no choices")
	}

	content := chatResp.Choices[0].Message.Content
	c.logger.Debug("vision escalation response",
		"file", name, "latency", latency, "content_len", len(content))

	return &docpipe.VisionResult{
		RawText:    content,
		Structured: content,
		ModelID:    chatResp.Model,
		Latency:    latency,
	}, nil
}
