package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// anthropicModels maps friendly names to Anthropic model IDs.
var anthropicModels = map[string]string{
	"claude-sonnet": "claude-sonnet-4-5",
	"claude-haiku":  "claude-haiku-4-5",
	"claude-opus":   "claude-opus-4-5",
}

// Course and exam payloads are long; the Messages API requires an explicit
// ceiling, so requests without one get room for a full exam.
const defaultAnthropicMaxTokens = 8192

// AnthropicProvider implements Provider with the Messages API. It serves the
// single-shot generators and grading only. Chat sessions and video
// transcription need Gemini or an OpenAI-compatible provider.
type AnthropicProvider struct {
	client *anthropic.Client
	model  string
}

// NewAnthropicProvider creates a new Anthropic provider.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	client := anthropic.NewClient(option.WithAPIKey(cfg.APIKey))
	return &AnthropicProvider{
		client: &client,
		model:  resolveModel(cfg.Model, anthropicModels),
	}, nil
}

func (p *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Media) > 0 {
		return nil, fmt.Errorf("anthropic: media input: %w", ErrUnsupported)
	}
	msgs := buildAnthropicMessages(req.Messages)
	if len(msgs) == 0 {
		return nil, &ErrInvalidResponse{Err: errors.New("anthropic: request has no user content")}
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(p.model),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if req.Schema != nil {
		params.OutputConfig = anthropic.OutputConfigParam{
			Format: anthropic.JSONOutputFormatParam{Schema: req.Schema.Definition},
		}
	}

	msg, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	text := anthropicText(msg)
	stop := mapAnthropicStopReason(msg.StopReason)
	switch {
	case stop == "error":
		return nil, &ErrInvalidResponse{Content: text, Err: fmt.Errorf("anthropic: model stopped with %q", msg.StopReason)}
	case stop == "max_tokens" && req.Schema != nil:
		return nil, &ErrMaxTokensExceeded{Content: text}
	case strings.TrimSpace(text) == "":
		return nil, &ErrInvalidResponse{Err: errors.New("anthropic: no text content in response")}
	}
	if err := ValidateJSON(req.Schema, text); err != nil {
		return nil, err
	}

	return &Response{
		Text: text,
		Usage: Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Model:      string(msg.Model),
		StopReason: stop,
	}, nil
}

func (p *AnthropicProvider) ModelID() string {
	return p.model
}

// buildAnthropicMessages drops empty turns and merges consecutive turns of
// the same role, since the Messages API requires strict alternation starting
// with the user.
func buildAnthropicMessages(msgs []Message) []anthropic.MessageParam {
	var (
		out   []anthropic.MessageParam
		roles []Role
		texts []string
	)
	for _, m := range msgs {
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		role := RoleUser
		if m.Role == RoleAssistant {
			role = RoleAssistant
		}
		if len(roles) == 0 && role == RoleAssistant {
			continue
		}
		if n := len(roles); n > 0 && roles[n-1] == role {
			texts[n-1] += "\n\n" + m.Content
			continue
		}
		roles = append(roles, role)
		texts = append(texts, m.Content)
	}

	for i, role := range roles {
		block := anthropic.NewTextBlock(texts[i])
		if role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(block))
		} else {
			out = append(out, anthropic.NewUserMessage(block))
		}
	}
	return out
}

// anthropicText joins every text block of the reply.
func anthropicText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

func mapAnthropicStopReason(reason anthropic.StopReason) string {
	switch reason {
	case "max_tokens":
		return "max_tokens"
	case "refusal":
		return "error"
	default:
		return "end"
	}
}

func mapAnthropicError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return &ErrProviderUnavailable{Err: err}
	}
	switch code := apiErr.StatusCode; {
	case code == http.StatusTooManyRequests:
		rl := &ErrRateLimit{Err: err}
		if apiErr.Response != nil {
			rl.RetryAfter = parseRetryAfter(apiErr.Response.Header.Get("Retry-After"))
		}
		return rl
	case code >= 500:
		return &ErrProviderUnavailable{Err: err}
	default:
		return &ErrUpstream{StatusCode: code, Err: err}
	}
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// resolveModel maps a friendly model name to a provider model ID. Unknown
// names are passed through as direct model IDs.
func resolveModel(name string, models map[string]string) string {
	if id, ok := models[name]; ok {
		return id
	}
	return name
}
