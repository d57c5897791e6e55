package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

//go:generate sh -c "cd .. && go run ./tools/schema-generator/"

// GenerateSchema generates the JSON Schema for live.yml. Extensions are left
// out; the logging section is composed in by the schema generator.
func GenerateSchema() ([]byte, error) {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
	}

	schema := r.Reflect(&Config{})
	schema.Title = "live configuration"
	schema.Description = "Schema for live.yml properties."
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return json.MarshalIndent(schema, "", "  ")
}
