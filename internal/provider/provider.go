// Package provider implements engine.Generator for each supported backend.
package provider

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tatianab/devil-deal/internal/config"
	"github.com/tatianab/devil-deal/internal/engine"
	"go.uber.org/zap"
)

// Temperature is used for every request.
const Temperature = 0.2

// Client is a Generator that holds resources.
type Client interface {
	engine.Generator
	Name() string
	Close() error
}

// New returns the client for cfg. An unconfigured provider yields Offline,
// which makes every stage fall back to static content.
func New(ctx context.Context, cfg config.ProviderConfig, logger *zap.Logger) (Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("provider", cfg.Name))
	if !cfg.Configured() {
		logger.Info("generator not configured, playing offline", zap.Stringer("settings", cfg))
		return Offline{}, nil
	}
	switch cfg.Name {
	case config.ProviderGemini:
		return NewGemini(ctx, cfg, logger)
	case config.ProviderOpenAI:
		return NewOpenAI(cfg, http.DefaultClient, logger), nil
	case config.ProviderProxy:
		return NewProxy(cfg, http.DefaultClient, logger), nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Name)
	}
}

// Offline always reports that no generator is configured.
type Offline struct{}

func (Offline) Generate(context.Context, engine.Request) (string, error) {
	return "", engine.ErrNotConfigured
}

func (Offline) Name() string { return config.ProviderOffline }

func (Offline) Close() error { return nil }

// joinURL appends path to base with exactly one slash between them.
func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// statusError turns a non-2xx response into an error. 429 wraps
// engine.ErrRateLimited.
func statusError(who string, resp *http.Response, body []byte) error {
	snippet := strings.TrimSpace(string(body))
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return fmt.Errorf("%s HTTP %d: %w: %s", who, resp.StatusCode, engine.ErrRateLimited, snippet)
	}
	return fmt.Errorf("%s HTTP %d: %s", who, resp.StatusCode, snippet)
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(io.LimitReader(resp.Body, 8<<20))
}
