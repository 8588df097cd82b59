package llm

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all LLM provider configuration.
type Config struct {
	// Provider selects the backend: gemini, openai, anthropic, openrouter
	// or mock.
	Provider string

	Anthropic  AnthropicConfig
	OpenAI     OpenAIConfig
	Gemini     GeminiConfig
	OpenRouter OpenRouterConfig
	Retry      RetryConfig

	// Timeout bounds one generation request including retries. Course and
	// exam generation routinely runs past a minute.
	Timeout time.Duration
}

type AnthropicConfig struct {
	APIKey string
	Model  string
}

type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // OpenAI-compatible gateways
}

type GeminiConfig struct {
	APIKey  string
	Model   string
	BaseURL string // proxies and tests
}

type OpenRouterConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// providerSpec describes one backend: where its key comes from, where its
// settings live in Config and what it can do.
type providerSpec struct {
	name string
	// envKeys are the conventional API key variables, most specific first.
	envKeys []string
	chat    bool
	fields  func(*Config) (apiKey, model *string)
}

// providers is ordered by discovery priority. Gemini comes first because
// it is the only backend that serves every feature, video included.
var providers = []providerSpec{
	{
		name:    "gemini",
		envKeys: []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"},
		chat:    true,
		fields:  func(c *Config) (*string, *string) { return &c.Gemini.APIKey, &c.Gemini.Model },
	},
	{
		name:    "openai",
		envKeys: []string{"OPENAI_API_KEY"},
		chat:    true,
		fields:  func(c *Config) (*string, *string) { return &c.OpenAI.APIKey, &c.OpenAI.Model },
	},
	{
		name:    "anthropic",
		envKeys: []string{"ANTHROPIC_API_KEY"},
		fields:  func(c *Config) (*string, *string) { return &c.Anthropic.APIKey, &c.Anthropic.Model },
	},
	{
		name:    "openrouter",
		envKeys: []string{"OPENROUTER_API_KEY"},
		chat:    true,
		fields:  func(c *Config) (*string, *string) { return &c.OpenRouter.APIKey, &c.OpenRouter.Model },
	},
}

func lookupProvider(name string) (providerSpec, bool) {
	for _, p := range providers {
		if p.name == name {
			return p, true
		}
	}
	return providerSpec{}, false
}

// DefaultConfig returns the defaults: Gemini Flash with three attempts per
// request.
func DefaultConfig() Config {
	return Config{
		Provider:   "gemini",
		Anthropic:  AnthropicConfig{Model: "claude-haiku"},
		OpenAI:     OpenAIConfig{Model: "gpt-4o-mini"},
		Gemini:     GeminiConfig{Model: "gemini-flash"},
		OpenRouter: OpenRouterConfig{Model: defaultOpenRouterModel},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2,
		},
		Timeout: 120 * time.Second,
	}
}

// DiscoverConfig returns a default Config for the first provider whose
// conventional API key variable is set, or false when none is.
func DiscoverConfig() (Config, bool) {
	for _, p := range providers {
		for _, env := range p.envKeys {
			k := os.Getenv(env)
			if k == "" {
				continue
			}
			cfg := DefaultConfig()
			cfg.Provider = p.name
			key, _ := p.fields(&cfg)
			*key = k
			return cfg, true
		}
	}
	return Config{}, false
}

// Validate checks that the selected provider has its API key.
func (c Config) Validate() error {
	if c.Provider == "mock" {
		return nil
	}
	p, ok := lookupProvider(c.Provider)
	if !ok {
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if key, _ := p.fields(&c); *key == "" {
		return fmt.Errorf("COURSEPILOT_LLM_%s_API_KEY (or %s) is required for the %s provider",
			strings.ToUpper(p.name), p.envKeys[0], p.name)
	}
	return nil
}

// SupportsChat reports whether the provider can hold chat sessions with
// function calling.
func (c Config) SupportsChat() bool {
	if c.Provider == "mock" {
		return true
	}
	p, ok := lookupProvider(c.Provider)
	return ok && p.chat
}

// SetModel overrides the model of the selected provider.
func (c *Config) SetModel(model string) {
	if p, ok := lookupProvider(c.Provider); ok {
		_, m := p.fields(c)
		*m = model
	}
}
