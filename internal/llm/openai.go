package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// openaiModels maps friendly names to OpenAI model IDs.
var openaiModels = map[string]string{
	"gpt-4o":      "gpt-4o",
	"gpt-4o-mini": "gpt-4o-mini",
}

// OpenAIProvider implements Provider and ChatProvider using the OpenAI SDK.
// It also supports OpenRouter and other OpenAI-compatible APIs via BaseURL.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	return newOpenAICompatible(cfg.APIKey, cfg.BaseURL, resolveModel(cfg.Model, openaiModels), nil), nil
}

// newOpenAICompatible builds a provider for any OpenAI-compatible endpoint.
// hc may be nil to use the SDK's default client.
func newOpenAICompatible(apiKey, baseURL, model string, hc *http.Client) *OpenAIProvider {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if hc != nil {
		config.HTTPClient = hc
	}
	return &OpenAIProvider{
		client: openai.NewClientWithConfig(config),
		model:  model,
	}
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if len(req.Media) > 0 {
		return nil, fmt.Errorf("media input: %w", ErrUnsupported)
	}
	format, err := openAIResponseFormat(req.Schema)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               p.model,
		Messages:            buildOpenAIMessages(req.System, req.Messages),
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         float32(req.Temperature),
		ResponseFormat:      format,
	})
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ErrInvalidResponse{Err: errors.New("completion has no choices")}
	}

	choice := resp.Choices[0]
	out := &Response{
		Text:       choice.Message.Content,
		Usage:      mapOpenAIUsage(resp.Usage),
		Model:      resp.Model,
		StopReason: mapOpenAIStopReason(choice.FinishReason),
	}
	switch {
	case out.StopReason == "error":
		return nil, &ErrInvalidResponse{Content: out.Text, Err: fmt.Errorf("completion stopped: %s", choice.FinishReason)}
	case req.Schema == nil:
		return out, nil
	case out.StopReason == "max_tokens":
		return nil, &ErrMaxTokensExceeded{Content: out.Text}
	}
	if err := ValidateJSON(req.Schema, out.Text); err != nil {
		return nil, err
	}
	return out, nil
}

// openAIResponseFormat requests strict JSON schema output, or nil for
// free text.
func openAIResponseFormat(schema *Schema) (*openai.ChatCompletionResponseFormat, error) {
	if schema == nil {
		return nil, nil
	}
	def, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal schema %s: %w", schema.Name, err)
	}
	return &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:        schema.Name,
			Description: schema.Description,
			Schema:      json.RawMessage(def),
			Strict:      true,
		},
	}, nil
}

func (p *OpenAIProvider) ModelID() string {
	return p.model
}

// StartChat opens a chat session. The chat completions API is stateless,
// so the session keeps the transcript itself and resends it every turn.
func (p *OpenAIProvider) StartChat(_ context.Context, cfg ChatConfig) (ChatSession, error) {
	s := &openaiChat{
		client:      p.client,
		model:       p.model,
		temperature: float32(cfg.Temperature),
		maxTokens:   cfg.MaxTokens,
	}
	if cfg.System != "" {
		s.history = append(s.history, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: cfg.System,
		})
	}
	for _, t := range cfg.Tools {
		fn := &openai.FunctionDefinition{
			Name:        t.Name,
			Description: t.Description,
		}
		if t.Parameters != nil {
			fn.Parameters = t.Parameters.Definition
		}
		s.tools = append(s.tools, openai.Tool{Type: openai.ToolTypeFunction, Function: fn})
	}
	return s, nil
}

type openaiChat struct {
	client      *openai.Client
	model       string
	temperature float32
	maxTokens   int
	tools       []openai.Tool
	history     []openai.ChatCompletionMessage
}

func (c *openaiChat) request(text string) openai.ChatCompletionRequest {
	msgs := append(c.history, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})
	return openai.ChatCompletionRequest{
		Model:               c.model,
		Messages:            msgs,
		MaxCompletionTokens: c.maxTokens,
		Temperature:         c.temperature,
		Tools:               c.tools,
	}
}

func (c *openaiChat) Send(ctx context.Context, text string) (*ChatReply, error) {
	req := c.request(text)
	resp, err := c.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, mapOpenAIError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("no choices in OpenAI response")}
	}

	msg := resp.Choices[0].Message
	reply := &ChatReply{
		Kind:  KindText,
		Text:  msg.Content,
		Usage: mapOpenAIUsage(resp.Usage),
	}

	history := append(req.Messages, msg)
	for _, tc := range msg.ToolCalls {
		if tc.Type != openai.ToolTypeFunction {
			continue
		}
		args := map[string]any{}
		if strings.TrimSpace(tc.Function.Arguments) != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &ErrInvalidResponse{
					Content: tc.Function.Arguments,
					Err:     fmt.Errorf("decode arguments for %s: %w", tc.Function.Name, err),
				}
			}
		}
		reply.FunctionCalls = append(reply.FunctionCalls, FunctionCall{Name: tc.Function.Name, Args: args})

		// The API rejects a transcript where a tool call has no answer.
		// Calls are executed outside the conversation, so acknowledge them.
		history = append(history, openai.ChatCompletionMessage{
			Role:       openai.ChatMessageRoleTool,
			ToolCallID: tc.ID,
			Content:    `{"status":"delivered"}`,
		})
	}
	if len(reply.FunctionCalls) > 0 {
		reply.Kind = KindFunctionCall
	}

	c.history = history
	return reply, nil
}

func (c *openaiChat) SendStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		req := c.request(text)
		req.Stream = true
		req.Tools = nil

		stream, err := c.client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			yield("", mapOpenAIError(err))
			return
		}
		defer stream.Close()

		var full strings.Builder
		for {
			chunk, err := stream.Recv()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				yield("", mapOpenAIError(err))
				return
			}
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			delta := chunk.Choices[0].Delta.Content
			full.WriteString(delta)
			if !yield(delta, nil) {
				return
			}
		}

		c.history = append(req.Messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleAssistant,
			Content: full.String(),
		})
	}
}

func buildOpenAIMessages(system string, msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: system})
	}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func mapOpenAIUsage(u openai.Usage) Usage {
	return Usage{InputTokens: u.PromptTokens, OutputTokens: u.CompletionTokens, TotalTokens: u.TotalTokens}
}

func mapOpenAIStopReason(reason openai.FinishReason) string {
	switch reason {
	case openai.FinishReasonLength:
		return "max_tokens"
	case openai.FinishReasonContentFilter:
		return "error"
	}
	return "end"
}

// mapOpenAIError sorts SDK failures into the package error types. Context
// errors pass through untouched.
func mapOpenAIError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	status := 0
	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatusCode
	case errors.As(err, &reqErr):
		status = reqErr.HTTPStatusCode
	}
	switch {
	case status == http.StatusTooManyRequests:
		return &ErrRateLimit{Err: err}
	case status >= 400 && status < 500:
		return &ErrUpstream{StatusCode: status, Err: err}
	}
	return &ErrProviderUnavailable{Err: err}
}
