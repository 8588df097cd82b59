// Package schemas is the registry of JSON-Schema definitions for every
// structured shape the pipeline asks a model to produce, including the
// argument shapes of the conversational builder's functions.
package schemas

import (
	"sort"

	"github.com/abhisek/coursepilot/internal/llm"
)

// Question types accepted in generated assessments.
const (
	TypeMultipleChoice = "multiple_choice"
	TypeTrueFalse      = "true_false"
	TypeFillBlank      = "fill_blank"
	TypeShortAnswer    = "short_answer"
	TypeEssay          = "essay"
)

// QuestionTypes lists the question types in prompt order.
var QuestionTypes = []string{
	TypeMultipleChoice,
	TypeTrueFalse,
	TypeFillBlank,
	TypeShortAnswer,
	TypeEssay,
}

// Difficulty levels for course detail.
var DifficultyLevels = []string{"beginner", "intermediate", "advanced"}

// LessonTypes are the delivery formats a lesson can take.
var LessonTypes = []string{"live_class", "video", "reading", "workshop", "assessment"}

var registry = map[string]*llm.Schema{}

func register(s *llm.Schema) *llm.Schema {
	if _, dup := registry[s.Name]; dup {
		panic("schemas: duplicate schema " + s.Name)
	}
	registry[s.Name] = s
	return s
}

// Lookup returns the schema registered under name.
func Lookup(name string) (*llm.Schema, bool) {
	s, ok := registry[name]
	return s, ok
}

// All returns every registered schema sorted by name.
func All() []*llm.Schema {
	out := make([]*llm.Schema, 0, len(registry))
	for _, s := range registry {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "description": desc}
}

func stringList(desc string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": desc,
	}
}

func enum(desc string, values []string) map[string]any {
	vals := make([]any, len(values))
	for i, v := range values {
		vals[i] = v
	}
	return map[string]any{"type": "string", "enum": vals, "description": desc}
}

func required(names ...string) []any {
	out := make([]any, len(names))
	for i, n := range names {
		out[i] = n
	}
	return out
}
