package config

import (
	_ "embed"
	stderrors "errors"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/autoprocess/errors"
)

//go:embed schema.json
var schemaJSON []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

// Schema returns the JSON Schema every configuration file must satisfy.
func Schema() []byte {
	return schemaJSON
}

func compiledSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(schemaJSON))
	})
	return schema, schemaErr
}

// validateSchema checks a decoded document. Every violation becomes a ConfigError
// naming the offending field; they are joined into one error.
func validateSchema(raw map[string]any) error {
	s, err := compiledSchema()
	if err != nil {
		return errors.WrapFatal(err, "config", "validateSchema", "compile embedded schema")
	}

	result, err := s.Validate(gojsonschema.NewGoLoader(raw))
	if err != nil {
		return errors.NewConfigError("", "schema validation: "+err.Error())
	}
	if result.Valid() {
		return nil
	}

	errs := make([]error, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, errors.NewConfigError(desc.Field(), desc.Description()))
	}
	return stderrors.Join(errs...)
}
