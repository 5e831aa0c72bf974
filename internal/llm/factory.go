package llm

import (
	"context"
	"fmt"

	"github.com/XAVware/ONYX/internal/config"
	"github.com/XAVware/ONYX/internal/secrets"
	"github.com/rs/zerolog"
)

// New builds the backend selected by cfg and wraps it with logging, rate
// limiting, and retries. role labels log lines ("engineer", "analyst").
func New(ctx context.Context, cfg config.LLMConfig, store secrets.Store, log zerolog.Logger, role string) (Completer, error) {
	backend, err := newBackend(ctx, cfg, store)
	if err != nil {
		return nil, err
	}
	return Wrap(backend,
		WithLogging(log, role),
		Retry(cfg.MaxRetries+1, cfg.RetryBaseDelay),
		RateLimit(cfg.RequestsPerMinute),
	), nil
}

func newBackend(ctx context.Context, cfg config.LLMConfig, store secrets.Store) (Completer, error) {
	if cfg.Provider == "claude-cli" {
		return NewClaudeCLI(cfg.ClaudePath, cfg.Model), nil
	}

	key, err := secrets.APIKey(store, cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("no API key for %s: set %v or run `onyx keys set %s`: %w",
			cfg.Provider, secrets.EnvVars(cfg.Provider), cfg.Provider, err)
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropic(key, cfg.Model, cfg.MaxTokens, cfg.BaseURL), nil
	case "openai":
		return NewOpenAI(key, cfg.Model, cfg.MaxTokens, cfg.BaseURL), nil
	case "gemini":
		return NewGemini(ctx, key, cfg.Model, cfg.MaxTokens, cfg.BaseURL)
	}
	return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
}
