package llm

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// compiled holds compiled schemas keyed by name and definition digest, so a
// schema rebuilt with different constraints under the same name is not
// served stale.
var compiled sync.Map // string -> *jsonschema.Schema

// SchemaMismatchError reports a JSON value that does not satisfy a schema.
type SchemaMismatchError struct {
	Schema string
	Err    error
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("does not match schema %q: %v", e.Schema, e.Err)
}

func (e *SchemaMismatchError) Unwrap() error { return e.Err }

// ValidateJSON checks raw model output against schema. A nil schema accepts
// anything. Failures are *ErrInvalidResponse carrying the raw text.
func ValidateJSON(schema *Schema, raw string) error {
	if schema == nil {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return &ErrInvalidResponse{Content: raw, Err: fmt.Errorf("invalid JSON: %w", err)}
	}
	if err := ValidateValue(schema, v); err != nil {
		return &ErrInvalidResponse{Content: raw, Err: err}
	}
	return nil
}

// ValidateValue checks an already decoded value against schema. Go values
// built in code (typed slices, ints) are accepted as well as decoded JSON.
func ValidateValue(schema *Schema, v any) error {
	if schema == nil {
		return nil
	}
	sch, err := compile(schema)
	if err != nil {
		return fmt.Errorf("compile schema %q: %w", schema.Name, err)
	}
	doc, err := roundTrip(v)
	if err != nil {
		return err
	}
	if err := sch.Validate(doc); err != nil {
		return &SchemaMismatchError{Schema: schema.Name, Err: err}
	}
	return nil
}

func compile(schema *Schema) (*jsonschema.Schema, error) {
	def, err := json.Marshal(schema.Definition)
	if err != nil {
		return nil, fmt.Errorf("marshal definition: %w", err)
	}
	sum := sha256.Sum256(def)
	key := schema.Name + "@" + hex.EncodeToString(sum[:8])
	if s, ok := compiled.Load(key); ok {
		return s.(*jsonschema.Schema), nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(def))
	if err != nil {
		return nil, fmt.Errorf("parse definition: %w", err)
	}
	url := "schema://" + key + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, err
	}
	s, err := c.Compile(url)
	if err != nil {
		return nil, err
	}
	compiled.Store(key, s)
	return s, nil
}

// roundTrip normalizes v to the shapes encoding/json produces.
func roundTrip(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal value: %w", err)
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}
