package llm

import (
	"errors"
	"testing"
)

func lessonSchema() *Schema {
	return &Schema{
		Name:        "test-lesson",
		Description: "A test lesson",
		Definition: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"title":    map[string]any{"type": "string"},
				"duration": map[string]any{"type": "integer", "minimum": 0},
				"type":     map[string]any{"type": "string", "enum": []any{"live_class", "video", "reading"}},
				"objectives": map[string]any{
					"type":  "array",
					"items": map[string]any{"type": "string"},
				},
			},
			"required": []any{"title", "duration"},
		},
	}
}

func TestValidateJSON(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantErr  bool
		mismatch bool // failure comes from the schema, not the JSON parser
	}{
		{"valid", `{"title":"Loops","duration":45,"type":"live_class"}`, false, false},
		{"optional omitted", `{"title":"Arrays","duration":30}`, false, false},
		{"missing required", `{"title":"Loops"}`, true, true},
		{"wrong type", `{"title":"Loops","duration":"forty"}`, true, true},
		{"negative duration", `{"title":"Loops","duration":-5}`, true, true},
		{"enum violation", `{"title":"Loops","duration":45,"type":"podcast"}`, true, true},
		{"array item type", `{"title":"Loops","duration":45,"objectives":[1,2]}`, true, true},
		{"malformed", `{"title": "Loops",`, true, false},
		{"empty", ``, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateJSON(lessonSchema(), tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateJSON error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				return
			}
			var inv *ErrInvalidResponse
			if !errors.As(err, &inv) {
				t.Fatalf("expected ErrInvalidResponse, got %T", err)
			}
			if inv.Content != tt.raw {
				t.Fatalf("raw output not preserved: %q", inv.Content)
			}
			var sm *SchemaMismatchError
			if errors.As(err, &sm) != tt.mismatch {
				t.Fatalf("schema mismatch = %v, want %v (%v)", !tt.mismatch, tt.mismatch, err)
			}
		})
	}
}

func TestValidateJSON_NilSchemaAcceptsAnything(t *testing.T) {
	if err := ValidateJSON(nil, "not json at all"); err != nil {
		t.Fatalf("expected no error with nil schema, got: %v", err)
	}
}

func TestValidateValue_GoTypes(t *testing.T) {
	v := map[string]any{"title": "Loops", "duration": 45, "objectives": []string{"iterate"}}
	if err := ValidateValue(lessonSchema(), v); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	err := ValidateValue(lessonSchema(), map[string]any{"duration": 45})
	var sm *SchemaMismatchError
	if !errors.As(err, &sm) || sm.Schema != "test-lesson" {
		t.Fatalf("expected SchemaMismatchError for test-lesson, got %v", err)
	}
}

func TestValidateValue_SameNameDifferentDefinition(t *testing.T) {
	loose := lessonSchema()
	strict := lessonSchema()
	strict.Definition["required"] = []any{"title", "duration", "type"}

	v := map[string]any{"title": "Loops", "duration": 45}
	if err := ValidateValue(loose, v); err != nil {
		t.Fatalf("loose schema: %v", err)
	}
	if err := ValidateValue(strict, v); err == nil {
		t.Fatal("strict schema served from the loose schema's cache entry")
	}
}
