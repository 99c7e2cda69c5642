package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema is a compiled JSON Schema used to validate parsed responses.
type Schema struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document. A bad schema is a
// configuration error.
func CompileSchema(doc string) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", strings.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("%w: add schema: %v", ErrConfig, err)
	}
	schema, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, fmt.Errorf("%w: compile schema: %v", ErrConfig, err)
	}
	return &Schema{schema: schema}, nil
}

// Validate checks a parsed object against the schema.
func (s *Schema) Validate(obj map[string]any) error {
	// Round-trip so numbers and nested values have the shapes the
	// validator expects from encoding/json.
	b, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
	}
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("%w: json does not match schema: %v", ErrInvalidJSON, err)
	}
	return nil
}
