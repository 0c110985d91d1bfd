// Package capability adapts the external language-model service behind a
// small interface: free-form generation and closed-set classification.
// Providers (OpenAI-compatible, Ollama) are built as an Eino
// template -> chat model chain; a scripted client covers tests and
// offline development.
package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// ErrUnavailable wraps any transport or model failure. Callers recover
// from it locally; it must never surface to the end user as a hard error.
var ErrUnavailable = errors.New("capability unavailable")

// Client is the opaque language capability consumed by the supervisor and
// the responder steps.
type Client interface {
	// Generate returns free-form text for the prompt.
	Generate(ctx context.Context, prompt string) (string, error)
	// Classify asks the model to emit exactly one of the allowed labels.
	// The raw reply is returned as-is; callers must still validate it.
	Classify(ctx context.Context, prompt string, allowed []string) (string, error)
}

const systemPrompt = `You are part of a care-companion assistant for a patient with memory impairment. Follow the task instructions exactly and answer only in the requested format.`

// chainClient wraps a compiled Eino chain around any chat model.
type chainClient struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

func newChainClient(ctx context.Context, m model.BaseChatModel) (*chainClient, error) {
	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage("{input}"),
	)

	chain, err := compose.NewChain[map[string]any, *schema.Message]().
		AppendChatTemplate(template).
		AppendChatModel(m).
		Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compiling capability chain: %w", err)
	}

	return &chainClient{chain: chain}, nil
}

func (c *chainClient) Generate(ctx context.Context, input string) (string, error) {
	out, err := c.chain.Invoke(ctx, map[string]any{
		"system": systemPrompt,
		"input":  input,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return strings.TrimSpace(out.Content), nil
}

func (c *chainClient) Classify(ctx context.Context, input string, allowed []string) (string, error) {
	full := fmt.Sprintf("%s\n\nRespond with exactly one word, one of: %s", input, strings.Join(allowed, ", "))
	return c.Generate(ctx, full)
}

// Config selects and parameterises the capability provider.
type Config struct {
	Provider    string // openai, ollama, mock
	Model       string
	BaseURL     string
	APIKey      string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// New builds a Client for the configured provider.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Provider {
	case "openai", "":
		return NewOpenAI(ctx, cfg)
	case "ollama":
		return NewOllama(ctx, cfg)
	case "mock":
		return NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown capability provider %q", cfg.Provider)
	}
}
