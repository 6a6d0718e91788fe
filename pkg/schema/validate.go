// Package schema compiles and validates JSON-Schema documents and
// composes the effective input schema of tool pipelines.
package schema

import (
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/taskweave/taskweave/pkg/domain/errors"
)

const schemaModule = "schema"

// Compile turns a decoded JSON-Schema document into a validator.
func Compile(doc map[string]interface{}) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("schema.json", normalize(doc)); err != nil {
		return nil, errors.Wrap(err, errors.KindComposition, schemaModule, "invalid schema document")
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, errors.Wrap(err, errors.KindComposition, schemaModule, "schema compilation failed")
	}
	return compiled, nil
}

// Validate checks a decoded-JSON value against a compiled schema.
func Validate(compiled *jsonschema.Schema, value map[string]interface{}) error {
	return compiled.Validate(normalize(value))
}

// normalize rewrites Go-native values into the shapes the validator
// expects from decoded JSON. Contracts and test fixtures are written as
// Go literals, so ints show up where json.Unmarshal would produce
// float64.
func normalize(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case []string:
		out := make([]interface{}, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
