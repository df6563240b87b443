package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/c360/fr-service/errors"
)

//go:embed schema.json
var schemaJSON []byte

var schemaLoader = gojsonschema.NewBytesLoader(schemaJSON)

// Schema returns the JSON schema configuration documents are checked against.
func Schema() []byte {
	return append([]byte(nil), schemaJSON...)
}

// ValidateSchema checks cfg against the embedded JSON schema.
func ValidateSchema(cfg *Config) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(cfg))
	if err != nil {
		return errors.WrapFatal(err, "Config", "ValidateSchema", "run schema validation")
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return errors.WrapInvalid(fmt.Errorf("%w: %s", errors.ErrInvalidConfig, strings.Join(msgs, "; ")),
		"Config", "ValidateSchema", "validate document")
}
