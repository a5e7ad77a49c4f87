package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/tatianab/devil-deal/internal/config"
	"github.com/tatianab/devil-deal/internal/engine"
	"go.uber.org/zap"
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Temperature float64       `json:"temperature"`
	Messages    []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func messages(req engine.Request) []chatMessage {
	return []chatMessage{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.Prompt},
	}
}

// OpenAI speaks the chat completions protocol to any compatible endpoint.
type OpenAI struct {
	cfg    config.ProviderConfig
	http   *http.Client
	logger *zap.Logger
}

func NewOpenAI(cfg config.ProviderConfig, client *http.Client, logger *zap.Logger) *OpenAI {
	return &OpenAI{cfg: cfg, http: client, logger: logger}
}

func (c *OpenAI) Name() string { return config.ProviderOpenAI }

func (c *OpenAI) Close() error { return nil }

func (c *OpenAI) Generate(ctx context.Context, req engine.Request) (string, error) {
	if c.cfg.APIKey == "" {
		return "", engine.ErrNotConfigured
	}
	body, err := json.Marshal(chatRequest{Model: c.cfg.Model, Temperature: Temperature, Messages: messages(req)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(c.cfg.BaseURL, "chat/completions"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	c.logger.Debug("chat completions request", zap.String("stage", string(req.Stage)), zap.String("model", c.cfg.Model))
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	data, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError("openai", resp, data)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("API error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("no completion returned")
	}
	return out.Choices[0].Message.Content, nil
}
