package llm

import (
	"context"
	"fmt"
	"time"
)

// ProviderOptions selects and configures a backend.
type ProviderOptions struct {
	Provider        string
	APIKey          string
	RequestInterval time.Duration
	TokensPerMinute int
}

// NewClient builds the backend named by opts.Provider and wraps it so cache
// hints are safe to send and calls respect the configured throttle.
func NewClient(ctx context.Context, opts ProviderOptions) (Client, error) {
	var (
		base Client
		err  error
	)
	switch opts.Provider {
	case "anthropic", "":
		base, err = NewAnthropicClient(opts.APIKey)
	case "openai":
		base, err = NewOpenAIClient(opts.APIKey)
	case "gemini":
		base, err = NewGeminiClient(ctx, opts.APIKey)
	default:
		return nil, fmt.Errorf("unsupported provider %q", opts.Provider)
	}
	if err != nil {
		return nil, err
	}

	client := NewCachingAwareClient(base)
	return NewRateLimitedClient(client, opts.RequestInterval, opts.TokensPerMinute), nil
}
