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

type proxyRequest struct {
	Provider string        `json:"provider"`
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type proxyResponse struct {
	Content *string `json:"content"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Proxy posts to a local proxy that holds the real credential.
type Proxy struct {
	cfg    config.ProviderConfig
	http   *http.Client
	logger *zap.Logger
}

func NewProxy(cfg config.ProviderConfig, client *http.Client, logger *zap.Logger) *Proxy {
	return &Proxy{cfg: cfg, http: client, logger: logger}
}

func (p *Proxy) Name() string { return config.ProviderProxy }

func (p *Proxy) Close() error { return nil }

func (p *Proxy) Generate(ctx context.Context, req engine.Request) (string, error) {
	body, err := json.Marshal(proxyRequest{Provider: config.ProviderProxy, Model: p.cfg.Model, Messages: messages(req)})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(p.cfg.BaseURL, "generate"), bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	p.logger.Debug("proxy request", zap.String("stage", string(req.Stage)), zap.String("base_url", p.cfg.BaseURL))
	resp, err := p.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("proxy request failed: %w", err)
	}
	data, err := readBody(resp)
	if err != nil {
		return "", fmt.Errorf("failed to read proxy response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", statusError("proxy", resp, data)
	}

	var out proxyResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("proxy response is not JSON: %w", err)
	}
	if out.Content == nil {
		return "", errors.New("proxy response has no content field")
	}
	return *out.Content, nil
}
