package capability

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ollama"
)

// NewOllama builds a Client backed by a local Ollama server, for
// deployments that keep patient utterances off external APIs.
func NewOllama(ctx context.Context, cfg Config) (Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}

	m, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
		BaseURL: baseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating ollama chat model: %w", err)
	}

	return newChainClient(ctx, m)
}
