// Command schema-generator writes schema/live.embedded.schema.json: the
// reflected live.yml schema with the logging and tui sections composed in.
package main

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"

	"github.com/projectify/live/config"
	"github.com/projectify/live/logging"
	"github.com/projectify/live/tui/theme"
)

func section(v interface{}, description string) map[string]interface{} {
	r := &jsonschema.Reflector{
		AllowAdditionalProperties: false,
		ExpandedStruct:            true,
		FieldNameTag:              "yaml",
		DoNotReference:            true,
	}
	s := r.Reflect(v)
	s.Required = nil
	s.Version = ""
	s.Description = description

	data, err := json.Marshal(s)
	if err != nil {
		log.Fatalf("Error marshaling %s schema: %v", description, err)
	}
	var out map[string]interface{}
	if err := json.Unmarshal(data, &out); err != nil {
		log.Fatalf("Error decoding %s schema: %v", description, err)
	}
	return out
}

func main() {
	base, err := config.GenerateSchema()
	if err != nil {
		log.Fatalf("Error generating schema: %v", err)
	}
	var schema map[string]interface{}
	if err := json.Unmarshal(base, &schema); err != nil {
		log.Fatalf("Error decoding base schema: %v", err)
	}
	// Configs should not require any fields.
	delete(schema, "required")

	props, _ := schema["properties"].(map[string]interface{})
	if props == nil {
		props = map[string]interface{}{}
		schema["properties"] = props
	}
	props["logging"] = section(&logging.Config{}, "Logging settings")
	props["tui"] = section(&theme.Config{}, "Terminal UI settings")

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		log.Fatalf("Error marshaling schema: %v", err)
	}
	outputPath := filepath.Join("schema", "live.embedded.schema.json")
	if err := os.WriteFile(outputPath, append(data, '\n'), 0644); err != nil {
		log.Fatalf("Error writing schema file: %v", err)
	}
	log.Printf("Successfully generated schema at %s", outputPath)
}
