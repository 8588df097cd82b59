package llm

import (
	"context"
	"fmt"

	"github.com/abhisek/coursepilot/internal/logger"
	"github.com/abhisek/coursepilot/internal/store"
)

// build constructs the bare backend named by cfg.Provider. Every backend
// except anthropic also implements ChatProvider.
func build(ctx context.Context, cfg Config) (Provider, error) {
	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case "gemini":
		p, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "openai":
		p, err = NewOpenAIProvider(cfg.OpenAI)
	case "openrouter":
		p, err = NewOpenRouterProvider(cfg.OpenRouter)
	case "anthropic":
		p, err = NewAnthropicProvider(cfg.Anthropic)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init %s: %w", cfg.Provider, err)
	}
	return p, nil
}

// NewProvider returns the single-shot provider for cfg, decorated so that
// calls are retried on transient failure and every attempt is recorded:
//
//	caller -> retry -> logging -> backend
func NewProvider(ctx context.Context, cfg Config, events store.EventRepo, log *logger.Logger) (Provider, error) {
	if cfg.Provider == "mock" {
		return NewMockProvider(), nil
	}
	base, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return WithRetry(WithLogging(base, cfg.Provider, events, log), cfg.Retry, RetryLogger(log)), nil
}

// NewChatProvider returns the provider for conversational sessions. It is
// left undecorated; the chat orchestrator owns retries for sends.
func NewChatProvider(ctx context.Context, cfg Config) (ChatProvider, error) {
	if cfg.Provider == "mock" {
		return NewMockChatProvider(), nil
	}
	if _, known := lookupProvider(cfg.Provider); known && !cfg.SupportsChat() {
		return nil, fmt.Errorf("%s chat sessions: %w", cfg.Provider, ErrUnsupported)
	}
	base, err := build(ctx, cfg)
	if err != nil {
		return nil, err
	}
	cp, ok := base.(ChatProvider)
	if !ok {
		return nil, fmt.Errorf("%s chat sessions: %w", cfg.Provider, ErrUnsupported)
	}
	return cp, nil
}
