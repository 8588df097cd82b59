// Package structured turns a prompt plus a JSON Schema into a parsed JSON
// object. It embeds the schema in the prompt, calls the model once, strips
// markdown fencing and decodes the result. Repairing missing fields is left
// to the callers.
package structured

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/logger"
)

// ErrEmptyRequest is returned when a call is missing its system
// instruction or prompt.
var ErrEmptyRequest = errors.New("structured generation: system instruction and prompt are required")

// Call is a single structured generation request.
type Call struct {
	System      string
	Prompt      string
	Schema      *llm.Schema
	Temperature float64
	MaxTokens   int

	// Purpose tags the model call for event logging. Optional; a purpose
	// already on the context is kept when empty.
	Purpose string
}

// Result is what the model produced. Parsed is set iff Schema was given.
type Result struct {
	RawText string
	Parsed  map[string]any
	Model   string
}

// Generator is the interface consumed by the domain generators and the
// grading service.
type Generator interface {
	Generate(ctx context.Context, call Call) (*Result, error)
}

// Service implements Generator on top of an llm.Provider.
type Service struct {
	provider llm.Provider
	log      *logger.Logger
}

// New creates a Service. A nil log discards diagnostics.
func New(provider llm.Provider, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{provider: provider, log: log}
}

// Generate runs one structured call.
func (s *Service) Generate(ctx context.Context, call Call) (*Result, error) {
	if strings.TrimSpace(call.System) == "" || strings.TrimSpace(call.Prompt) == "" {
		return nil, ErrEmptyRequest
	}
	ctx = llm.WithPurpose(ctx, call.Purpose)

	prompt, err := RenderPrompt(call.Prompt, call.Schema)
	if err != nil {
		return nil, err
	}

	// The schema travels in the prompt only. Provider-side response schemas
	// reject parts of JSON Schema we rely on (enums on nested objects,
	// open-ended maps), and repair is cheaper than a hard provider error.
	resp, err := s.provider.Generate(ctx, llm.Request{
		System:      call.System,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompt}},
		MaxTokens:   call.MaxTokens,
		Temperature: call.Temperature,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{RawText: resp.Text, Model: resp.Model}
	if call.Schema == nil {
		return res, nil
	}

	parsed, err := ParseObject(resp.Text)
	if err != nil {
		return nil, err
	}
	res.Parsed = parsed

	if verr := llm.ValidateValue(call.Schema, parsed); verr != nil {
		s.log.Warn("structured output does not match schema",
			"schema", call.Schema.Name, "purpose", llm.PurposeFrom(ctx), "error", verr)
	}
	return res, nil
}

// RenderPrompt appends the JSON response directive for schema to prompt.
// A nil schema returns the prompt unchanged.
func RenderPrompt(prompt string, schema *llm.Schema) (string, error) {
	if schema == nil {
		return prompt, nil
	}
	def, err := json.MarshalIndent(schema.Definition, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal schema %q: %w", schema.Name, err)
	}

	var b strings.Builder
	b.WriteString(prompt)
	b.WriteString("\n\nRespond with JSON matching this schema:\n")
	b.Write(def)
	b.WriteString("\n\nReturn ONLY the JSON object, with no markdown or commentary.")
	return b.String(), nil
}

// StripFences removes a leading ```json (or bare ```) fence and a trailing
// ``` fence from text.
func StripFences(text string) string {
	s := strings.TrimSpace(text)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		// Drop the info string, e.g. "json".
		if i := strings.IndexByte(s, '\n'); i >= 0 {
			s = s[i+1:]
		} else {
			s = strings.TrimPrefix(strings.TrimSpace(s), "json")
		}
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// ParseObject strips fences and decodes a JSON object. Anything else is an
// *llm.ErrInvalidResponse carrying the raw text.
func ParseObject(raw string) (map[string]any, error) {
	cleaned := StripFences(raw)

	var v any
	dec := json.NewDecoder(strings.NewReader(cleaned))
	if err := dec.Decode(&v); err != nil {
		return nil, &llm.ErrInvalidResponse{Content: raw, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if dec.More() {
		return nil, &llm.ErrInvalidResponse{Content: raw, Err: errors.New("trailing data after JSON value")}
	}

	obj, ok := v.(map[string]any)
	if !ok {
		return nil, &llm.ErrInvalidResponse{Content: raw, Err: fmt.Errorf("expected a JSON object, got %T", v)}
	}
	return obj, nil
}
