package trace

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/kaptinlin/jsonschema"
)

//go:embed schemas/*.schema.json
var schemaFS embed.FS

var (
	rawEventSchema   = mustCompileSchema("schemas/raw_event.schema.json")
	traceEventSchema = mustCompileSchema("schemas/observation_event.schema.json")
)

func mustCompileSchema(name string) *jsonschema.Schema {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		panic(fmt.Sprintf("read embedded schema %s: %v", name, err))
	}
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true
	schema, err := compiler.Compile(data)
	if err != nil {
		panic(fmt.Sprintf("compile embedded schema %s: %v", name, err))
	}
	return schema
}

// SchemaDocument returns the embedded JSON Schema for raw or full trace lines.
func SchemaDocument(expectRaw bool) []byte {
	name := "schemas/observation_event.schema.json"
	if expectRaw {
		name = "schemas/raw_event.schema.json"
	}
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil
	}
	return data
}

// checkShape asserts the exact key set and the JSON types of every field.
// Integer literals are checked again during field parsing because the schema
// integer type also admits values such as 1.0.
func checkShape(obj map[string]any, expectRaw bool) error {
	encoded, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("encode for shape check: %w", err)
	}
	schema := traceEventSchema
	if expectRaw {
		schema = rawEventSchema
	}
	result := schema.ValidateJSON(encoded)
	if result.IsValid() {
		return nil
	}
	return fmt.Errorf("schema validation failed: %v", result.Errors)
}
