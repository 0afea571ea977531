package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Schema is a compiled JSON Schema used to check extracted payloads.
type Schema struct {
	name   string
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON Schema document.
func CompileSchema(name, doc string) (*Schema, error) {
	var schemaDoc any
	if err := json.Unmarshal([]byte(doc), &schemaDoc); err != nil {
		return nil, fmt.Errorf("invalid JSON schema %q: %w", name, err)
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", schemaDoc); err != nil {
		return nil, fmt.Errorf("invalid JSON schema %q: %w", name, err)
	}
	compiled, err := compiler.Compile(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("compile JSON schema %q: %w", name, err)
	}
	return &Schema{name: name, schema: compiled}, nil
}

// MustCompileSchema is CompileSchema for package level schemas.
func MustCompileSchema(name, doc string) *Schema {
	s, err := CompileSchema(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

func (s *Schema) Validate(v any) error {
	if err := s.schema.Validate(v); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	return nil
}

// Result is the outcome of normalizing one response. Recovered is set when
// Value came from the fallback; Err then says why.
type Result[T any] struct {
	Value     T
	Recovered bool
	Err       error
}

// Normalize extracts a JSON object from raw, validates it against schema
// (when non-nil) and decodes it into T. Any failure yields fallback(raw).
func Normalize[T any](raw string, schema *Schema, fallback func(raw string) T) Result[T] {
	degrade := func(err error) Result[T] {
		return Result[T]{Value: fallback(raw), Recovered: true, Err: err}
	}

	obj, err := Extract(raw)
	if err != nil {
		return degrade(err)
	}
	if schema != nil {
		if err := schema.Validate(obj); err != nil {
			return degrade(err)
		}
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return degrade(err)
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return degrade(fmt.Errorf("decode payload: %w", err))
	}
	return Result[T]{Value: v}
}
