package contentgen

import (
	"fmt"
	"strings"
)

// ErrMissingField is returned when a required input is empty or
// whitespace-only.
type ErrMissingField struct {
	Field string
}

func (e *ErrMissingField) Error() string {
	return fmt.Sprintf("missing required field: %s", e.Field)
}

// ErrOutOfRange is returned when a numeric input exceeds what a single
// generation can produce.
type ErrOutOfRange struct {
	Field string
	Max   int
}

func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("%s must be at most %d", e.Field, e.Max)
}

// ErrEmptyGeneration is returned when the model left a guarded output field
// empty.
type ErrEmptyGeneration struct {
	Kind  string
	Field string
}

func (e *ErrEmptyGeneration) Error() string {
	return fmt.Sprintf("generated %s has empty %s", e.Kind, e.Field)
}

// requireFields checks name/value pairs in order and reports the first empty
// one.
func requireFields(pairs ...string) error {
	for i := 0; i+1 < len(pairs); i += 2 {
		if strings.TrimSpace(pairs[i+1]) == "" {
			return &ErrMissingField{Field: pairs[i]}
		}
	}
	return nil
}
