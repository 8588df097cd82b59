package llm

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"maps"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

// geminiModels maps friendly names to Gemini model IDs.
var geminiModels = map[string]string{
	"gemini-flash": "gemini-2.5-flash",
	"gemini-pro":   "gemini-2.5-pro",
}

// GeminiProvider implements Provider and ChatProvider using the Google
// Gemini SDK. It is the only provider that accepts media parts.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider connects to the Gemini API. BaseURL is only set for
// tests and proxies.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}
	return &GeminiProvider{client: client, model: resolveModel(cfg.Model, geminiModels)}, nil
}

func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	config := geminiConfig(req.System, req.Temperature, req.MaxTokens)
	if req.Schema != nil {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = buildGeminiSchema(req.Schema.Definition)
	}

	result, err := p.client.Models.GenerateContent(ctx, p.model, buildGeminiContents(req.Messages, req.Media), config)
	if err != nil {
		return nil, mapGeminiError(err)
	}
	if fb := result.PromptFeedback; fb != nil && fb.BlockReason != "" {
		return nil, &ErrInvalidResponse{Err: fmt.Errorf("prompt blocked: %s", fb.BlockReason)}
	}

	out := &Response{
		Text:       result.Text(),
		Model:      p.model,
		StopReason: mapGeminiStopReason(result),
		Usage:      mapGeminiUsage(result),
	}
	switch {
	case out.StopReason == "error":
		return nil, &ErrInvalidResponse{Content: out.Text, Err: fmt.Errorf("generation stopped: %s", result.Candidates[0].FinishReason)}
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

func (p *GeminiProvider) ModelID() string {
	return p.model
}

// StartChat opens a Gemini chat session. The SDK keeps the turn history,
// so callers only send the new user text each turn.
func (p *GeminiProvider) StartChat(ctx context.Context, cfg ChatConfig) (ChatSession, error) {
	config := geminiConfig(cfg.System, cfg.Temperature, cfg.MaxTokens)
	if len(cfg.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			d := &genai.FunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
			}
			if t.Parameters != nil {
				d.Parameters = buildGeminiSchema(t.Parameters.Definition)
			}
			decls = append(decls, d)
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	chat, err := p.client.Chats.Create(ctx, p.model, config, nil)
	if err != nil {
		return nil, mapGeminiError(err)
	}
	return &geminiChat{chat: chat}, nil
}

type geminiChat struct {
	chat *genai.Chat
}

func (c *geminiChat) Send(ctx context.Context, text string) (*ChatReply, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return nil, mapGeminiError(err)
	}
	return geminiReply(resp), nil
}

func (c *geminiChat) SendStream(ctx context.Context, text string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for resp, err := range c.chat.SendMessageStream(ctx, genai.Part{Text: text}) {
			if err != nil {
				yield("", mapGeminiError(err))
				return
			}
			chunk := resp.Text()
			if chunk == "" {
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// geminiReply normalizes a Gemini response into a ChatReply. The SDK does
// not report function calls uniformly: the helper accessor and the raw
// candidate parts can disagree, so both are consulted and merged.
func geminiReply(resp *genai.GenerateContentResponse) *ChatReply {
	reply := &ChatReply{Kind: KindText, Usage: mapGeminiUsage(resp)}

	seen := make(map[*genai.FunctionCall]bool)
	add := func(fc *genai.FunctionCall) {
		if fc == nil || seen[fc] {
			return
		}
		seen[fc] = true
		reply.FunctionCalls = append(reply.FunctionCalls, FunctionCall{
			Name: fc.Name,
			Args: cloneArgs(fc.Args),
		})
	}

	for _, fc := range resp.FunctionCalls() {
		add(fc)
	}

	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil {
				add(part.FunctionCall)
				continue
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
		// Only the first candidate is considered a reply.
		break
	}

	reply.Text = text.String()
	if len(reply.FunctionCalls) > 0 {
		reply.Kind = KindFunctionCall
	}
	return reply
}

func cloneArgs(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return maps.Clone(in)
}

func geminiConfig(system string, temperature float64, maxTokens int) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if maxTokens > 0 {
		config.MaxOutputTokens = int32(maxTokens)
	}
	if temperature > 0 {
		temp := float32(temperature)
		config.Temperature = &temp
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	return config
}

func buildGeminiContents(msgs []Message, media []MediaPart) []*genai.Content {
	out := make([]*genai.Content, len(msgs))
	lastUser := -1
	for i, m := range msgs {
		role := genai.RoleUser
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		} else {
			lastUser = i
		}
		out[i] = &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		}
	}

	if len(media) == 0 {
		return out
	}
	if lastUser < 0 {
		out = append(out, &genai.Content{Role: genai.RoleUser})
		lastUser = len(out) - 1
	}
	// Media goes ahead of the instruction text, which is how Gemini
	// recommends ordering video prompts.
	parts := make([]*genai.Part, 0, len(media)+len(out[lastUser].Parts))
	for _, m := range media {
		parts = append(parts, genai.NewPartFromURI(m.URI, m.MIMEType))
	}
	out[lastUser].Parts = append(parts, out[lastUser].Parts...)
	return out
}

// buildGeminiSchema translates the JSON Schema subset used by the schemas
// package into Gemini's OpenAPI flavoured schema. A type list such as
// ["string","null"] becomes a nullable string.
func buildGeminiSchema(def map[string]any) *genai.Schema {
	s := &genai.Schema{}
	switch t := def["type"].(type) {
	case string:
		s.Type = geminiTypes[t]
	case []any:
		for _, v := range t {
			name, _ := v.(string)
			if name == "null" {
				s.Nullable = ptr(true)
			} else if s.Type == "" {
				s.Type = geminiTypes[name]
			}
		}
	}
	if s.Type == "" {
		s.Type = genai.TypeString
	}
	s.Description, _ = def["description"].(string)
	s.Format, _ = def["format"].(string)

	if props, ok := def["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, v := range props {
			if sub, ok := v.(map[string]any); ok {
				s.Properties[name] = buildGeminiSchema(sub)
			}
		}
	}
	if items, ok := def["items"].(map[string]any); ok {
		s.Items = buildGeminiSchema(items)
	}
	s.Required = stringList(def["required"])
	s.Enum = stringList(def["enum"])

	s.MinItems = int64Field(def, "minItems")
	s.MaxItems = int64Field(def, "maxItems")
	s.Minimum = float64Field(def, "minimum")
	s.Maximum = float64Field(def, "maximum")
	return s
}

var geminiTypes = map[string]genai.Type{
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
	"object":  genai.TypeObject,
}

func stringList(v any) []string {
	list, _ := v.([]any)
	var out []string
	for _, e := range list {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// number reads a JSON Schema numeric keyword, which may have been built as
// an int in Go or decoded as a float64.
func number(def map[string]any, key string) (float64, bool) {
	switch n := def[key].(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func int64Field(def map[string]any, key string) *int64 {
	if n, ok := number(def, key); ok {
		return ptr(int64(n))
	}
	return nil
}

func float64Field(def map[string]any, key string) *float64 {
	if n, ok := number(def, key); ok {
		return ptr(n)
	}
	return nil
}

func ptr[T any](v T) *T { return &v }

func mapGeminiUsage(result *genai.GenerateContentResponse) Usage {
	if result == nil || result.UsageMetadata == nil {
		return Usage{}
	}
	u := result.UsageMetadata
	return Usage{
		InputTokens:  int(u.PromptTokenCount),
		OutputTokens: int(u.CandidatesTokenCount),
		TotalTokens:  int(u.TotalTokenCount),
	}
}

func mapGeminiStopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) == 0 || result.Candidates[0] == nil {
		return "end"
	}
	switch result.Candidates[0].FinishReason {
	case genai.FinishReasonMaxTokens:
		return "max_tokens"
	case genai.FinishReasonSafety, genai.FinishReasonRecitation, genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent, genai.FinishReasonSPII:
		return "error"
	}
	return "end"
}

// mapGeminiError sorts SDK failures into the package error types. The SDK
// has returned APIError both by value and by pointer across releases.
func mapGeminiError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	code := 0
	var byRef *genai.APIError
	var byVal genai.APIError
	switch {
	case errors.As(err, &byRef):
		code = byRef.Code
	case errors.As(err, &byVal):
		code = byVal.Code
	}
	switch {
	case code == http.StatusTooManyRequests:
		return &ErrRateLimit{Err: err}
	case code >= 400 && code < 500:
		return &ErrUpstream{StatusCode: code, Err: err}
	}
	return &ErrProviderUnavailable{Err: err}
}
