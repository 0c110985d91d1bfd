package capability

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
)

// NewOpenAI builds a Client backed by any OpenAI-compatible endpoint.
func NewOpenAI(ctx context.Context, cfg Config) (Client, error) {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 600
	}
	temperature := float32(cfg.Temperature)

	modelConfig := &openai.ChatModelConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   &maxTokens,
		Temperature: &temperature,
	}

	m, err := openai.NewChatModel(ctx, modelConfig)
	if err != nil {
		return nil, fmt.Errorf("creating openai chat model: %w", err)
	}

	return newChainClient(ctx, m)
}
