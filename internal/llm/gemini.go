package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Gemini completes prompts with the Gemini API.
type Gemini struct {
	cli       *genai.Client
	model     string
	maxTokens int32
}

// NewGemini returns a Gemini API backend.
func NewGemini(ctx context.Context, apiKey, model string, maxTokens int, baseURL string) (*Gemini, error) {
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	cli, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &Gemini{cli: cli, model: model, maxTokens: int32(maxTokens)}, nil
}

func (g *Gemini) Complete(ctx context.Context, system, user string) (string, error) {
	conf := &genai.GenerateContentConfig{MaxOutputTokens: g.maxTokens}
	if system != "" {
		conf.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	resp, err := g.cli.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{{Role: genai.RoleUser, Parts: []*genai.Part{{Text: user}}}},
		conf,
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		retryable := true
		var apiErr *genai.APIError
		if errors.As(err, &apiErr) {
			retryable = retryableStatus(apiErr.Code)
		}
		return "", transportErr("gemini", retryable, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", transportErr("gemini", false, fmt.Errorf("response had no candidates"))
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			sb.WriteString(part.Text)
		}
	}
	if sb.Len() == 0 {
		return "", transportErr("gemini", false, fmt.Errorf("response had no text"))
	}
	return sb.String(), nil
}
