package config

import (
	"sync"

	"github.com/projectify/live/errors"
	"github.com/projectify/live/schema"
)

// The schema is compiled once per process; every Load reuses it.
var compiledSchema = sync.OnceValues(schema.NewValidator)

// ValidateSchema checks a configuration value, typically a *Config with its
// extensions, against the embedded live.yml schema.
func ValidateSchema(value interface{}) error {
	v, err := compiledSchema()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to compile the configuration schema")
	}
	if err := v.Validate(value); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfigValidation, "schema validation failed")
	}
	return nil
}
