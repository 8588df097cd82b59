package structured

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/abhisek/coursepilot/internal/llm"
	"github.com/abhisek/coursepilot/internal/schemas"
)

func TestGenerate_EmbedsSchemaAndParses(t *testing.T) {
	mock := llm.NewMockProvider(llm.MockResponse{
		Text: "```json\n{\"points_earned\": 2, \"feedback\": \"good\", \"correct_answer\": \"x\"}\n```",
	})
	svc := New(mock, nil)

	res, err := svc.Generate(context.Background(), Call{
		System:      "You grade answers.",
		Prompt:      "Grade this.",
		Schema:      schemas.Grading,
		Temperature: 0.3,
		Purpose:     llm.PurposeGrading,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Parsed["feedback"] != "good" {
		t.Fatalf("unexpected parsed result: %+v", res.Parsed)
	}
	if res.Model != "mock" || !strings.Contains(res.RawText, "points_earned") {
		t.Fatalf("unexpected result metadata: %+v", res)
	}

	if len(mock.Calls) != 1 {
		t.Fatalf("expected 1 call, got %d", len(mock.Calls))
	}
	req := mock.Calls[0]
	prompt := req.Messages[0].Content
	if !strings.HasPrefix(prompt, "Grade this.") {
		t.Errorf("prompt should start with the caller prompt: %q", prompt)
	}
	if !strings.Contains(prompt, "Respond with JSON matching this schema:") ||
		!strings.Contains(prompt, `"points_earned"`) ||
		!strings.Contains(prompt, "Return ONLY the JSON object") {
		t.Errorf("schema directive missing from prompt: %q", prompt)
	}
	if req.System != "You grade answers." || req.Temperature != 0.3 {
		t.Errorf("unexpected request: %+v", req)
	}
	if req.Schema != nil {
		t.Errorf("schema should only travel in the prompt")
	}
}

func TestGenerate_InvalidJSON(t *testing.T) {
	raw := strings.Repeat("not json ", 200)
	svc := New(llm.NewMockProvider(llm.MockResponse{Text: raw}), nil)

	_, err := svc.Generate(context.Background(), Call{System: "s", Prompt: "p", Schema: schemas.Quiz})
	var invalid *llm.ErrInvalidResponse
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if invalid.Content != raw {
		t.Errorf("raw content not preserved")
	}
	if len(err.Error()) > 700 {
		t.Errorf("error message should truncate the raw text, got %d chars", len(err.Error()))
	}
}

func TestGenerate_RejectsNonObject(t *testing.T) {
	svc := New(llm.NewMockProvider(llm.MockResponse{Text: `[1, 2, 3]`}), nil)

	_, err := svc.Generate(context.Background(), Call{System: "s", Prompt: "p", Schema: schemas.Quiz})
	var invalid *llm.ErrInvalidResponse
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidResponse for an array, got %v", err)
	}
}

func TestGenerate_SchemaMismatchIsNotFatal(t *testing.T) {
	svc := New(llm.NewMockProvider(llm.MockResponse{Text: `{"title": "Loops"}`}), nil)

	res, err := svc.Generate(context.Background(), Call{System: "s", Prompt: "p", Schema: schemas.Quiz})
	if err != nil {
		t.Fatalf("schema violations should only be logged, got %v", err)
	}
	if res.Parsed["title"] != "Loops" {
		t.Fatalf("unexpected parsed: %+v", res.Parsed)
	}
}

func TestGenerate_NoSchemaReturnsRawText(t *testing.T) {
	svc := New(llm.NewMockProvider(llm.MockResponse{Text: "plain words"}), nil)

	res, err := svc.Generate(context.Background(), Call{System: "s", Prompt: "p"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Parsed != nil || res.RawText != "plain words" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestGenerate_EmptyRequest(t *testing.T) {
	mock := llm.NewMockProvider()
	svc := New(mock, nil)

	for _, c := range []Call{
		{System: "", Prompt: "p"},
		{System: "s", Prompt: "   "},
	} {
		if _, err := svc.Generate(context.Background(), c); !errors.Is(err, ErrEmptyRequest) {
			t.Errorf("expected ErrEmptyRequest for %+v, got %v", c, err)
		}
	}
	if mock.CallCount() != 0 {
		t.Errorf("provider should not be called for empty requests")
	}
}

func TestGenerate_UpstreamErrorPropagates(t *testing.T) {
	upstream := &llm.ErrUpstream{StatusCode: 403, Err: errors.New("quota")}
	svc := New(llm.NewMockProvider(llm.MockResponse{Err: upstream}), nil)

	_, err := svc.Generate(context.Background(), Call{System: "s", Prompt: "p", Schema: schemas.Quiz})
	if !errors.Is(err, upstream) {
		t.Fatalf("expected upstream error unchanged, got %v", err)
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```json\n{\"a\":1}\n```", `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{"  ```JSON\n{\"a\":1}```  ", `{"a":1}`},
		{"```json {\"a\":1} ```", `{"a":1}`},
	}
	for _, tt := range tests {
		if got := StripFences(tt.in); got != tt.want {
			t.Errorf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRenderPrompt_NilSchema(t *testing.T) {
	got, err := RenderPrompt("hello", nil)
	if err != nil || got != "hello" {
		t.Fatalf("RenderPrompt(nil) = %q, %v", got, err)
	}
}
