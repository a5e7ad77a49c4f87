package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/tatianab/devil-deal/internal/config"
	"github.com/tatianab/devil-deal/internal/engine"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

// Gemini calls the Gemini API through the generative-ai-go client.
type Gemini struct {
	client *genai.Client
	model  string
	logger *zap.Logger
}

func NewGemini(ctx context.Context, cfg config.ProviderConfig, logger *zap.Logger) (*Gemini, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &Gemini{client: client, model: cfg.Model, logger: logger}, nil
}

func (g *Gemini) Name() string { return config.ProviderGemini }

func (g *Gemini) Close() error {
	return g.client.Close()
}

func (g *Gemini) Generate(ctx context.Context, req engine.Request) (string, error) {
	model := g.client.GenerativeModel(g.model)
	model.SetTemperature(Temperature)
	model.ResponseMIMEType = "application/json"
	if req.System != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.System)}}
	}

	g.logger.Debug("gemini request", zap.String("stage", string(req.Stage)), zap.Int("prompt_len", len(req.Prompt)))
	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return "", geminiError(err)
	}
	return responseText(resp)
}

func geminiError(err error) error {
	if engine.IsRateLimited(err) && !errors.Is(err, engine.ErrRateLimited) {
		return fmt.Errorf("gemini: %w: %w", engine.ErrRateLimited, err)
	}
	return fmt.Errorf("gemini: %w", err)
}

// responseText joins the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", errors.New("no content returned from Gemini")
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			b.WriteString(string(text))
		}
	}
	if b.Len() == 0 {
		return "", errors.New("no text returned from Gemini")
	}
	return b.String(), nil
}
