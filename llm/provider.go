package llm

import (
	"context"
	"fmt"

	"github.com/lavraseats/lavraseats/config"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
)

// NewModel returns the generative model selected by cfg.Provider.
func NewModel(ctx context.Context, cfg config.LLM) (llms.Model, error) {
	switch cfg.Provider {
	case "googleai":
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("googleai: %w", err)
		}
		return model, nil
	case "ollama":
		model, err := ollama.New(
			ollama.WithServerURL(cfg.Address()),
			ollama.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		return model, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewEmbedder returns a client for cfg.EmbeddingModel on the same provider.
func NewEmbedder(ctx context.Context, cfg config.LLM) (Embedder, error) {
	switch cfg.Provider {
	case "googleai":
		embedder, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultEmbeddingModel(cfg.EmbeddingModel),
		)
		if err != nil {
			return nil, fmt.Errorf("googleai: %w", err)
		}
		return embedder, nil
	case "ollama":
		embedder, err := ollama.New(
			ollama.WithServerURL(cfg.Address()),
			ollama.WithModel(cfg.EmbeddingModel),
		)
		if err != nil {
			return nil, fmt.Errorf("ollama: %w", err)
		}
		return embedder, nil
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.Provider)
	}
}

// NewFromConfig wires the generative model into a Client carrying the
// configured generation defaults, timeout, retries and rate limit.
func NewFromConfig(ctx context.Context, cfg config.LLM) (*Client, error) {
	model, err := NewModel(ctx, cfg)
	if err != nil {
		return nil, err
	}

	return NewClient(model, cfg.Model,
		WithDefaults(DefaultsFromConfig(cfg)),
		WithTimeout(cfg.Timeout),
		WithMaxAttempts(cfg.MaxAttempts),
		WithRateLimit(cfg.RequestsPerSecond, cfg.Burst),
	), nil
}

func DefaultsFromConfig(cfg config.LLM) GenerationConfig {
	return GenerationConfig{
		Temperature:     Float(cfg.Temperature),
		TopP:            Float(cfg.TopP),
		TopK:            cfg.TopK,
		MaxOutputTokens: cfg.MaxOutputTokens,
	}
}
