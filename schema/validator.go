// Package schema validates live.yml and websocket requests against the JSON
// Schemas embedded in the binary.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/projectify/live/errors"
)

//go:embed live.embedded.schema.json
var embeddedSchemaData []byte

//go:embed message.schema.json
var messageSchemaData []byte

// ConfigSchema returns the embedded live.yml schema.
func ConfigSchema() []byte {
	return embeddedSchemaData
}

// Violation is one failed keyword at one location of a document.
type Violation struct {
	Location string
	Message  string
}

// ValidationError lists every leaf violation found in a document.
type ValidationError struct {
	Violations []Violation
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString("schema validation failed:")
	for _, v := range e.Violations {
		b.WriteString("\n- ")
		b.WriteString(v.Location)
		b.WriteString(": ")
		b.WriteString(v.Message)
	}
	return b.String()
}

// Validator checks documents against one compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator compiles the live.yml schema.
func NewValidator() (*Validator, error) {
	return compile("live.json", embeddedSchemaData)
}

// NewMessageValidator compiles the schema of client subscription requests.
func NewMessageValidator() (*Validator, error) {
	return compile("message.json", messageSchemaData)
}

func compile(name string, data []byte) (*Validator, error) {
	c := jsonschema.NewCompiler()
	if err := c.AddResource(name, bytes.NewReader(data)); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "embedded schema is unreadable").WithDetail("schema", name)
	}
	s, err := c.Compile(name)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "embedded schema does not compile").WithDetail("schema", name)
	}
	return &Validator{schema: s}, nil
}

// Validate checks any value by way of its JSON encoding.
func (v *Validator) Validate(value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInvalidInput, "value cannot be encoded as JSON")
	}
	return v.ValidateJSON(data)
}

// ValidateJSON checks a raw JSON document. Numbers are kept as json.Number
// so integer keywords see the exact value.
func (v *Validator) ValidateJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return errors.Wrap(err, errors.ErrCodeProtocolDecode, "document is not valid JSON")
	}
	if dec.More() {
		return errors.New(errors.ErrCodeProtocolDecode, "trailing data after JSON document")
	}
	err := v.schema.Validate(doc)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}
	return &ValidationError{Violations: leaves(verr, nil)}
}

func leaves(err *jsonschema.ValidationError, out []Violation) []Violation {
	if len(err.Causes) == 0 {
		loc := err.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return append(out, Violation{Location: loc, Message: err.Message})
	}
	for _, c := range err.Causes {
		out = leaves(c, out)
	}
	return out
}
