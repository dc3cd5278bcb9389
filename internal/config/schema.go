package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// schemaURL identifies the embedded schema inside the compiler.
const schemaURL = "https://github.com/oshokin/cul-updater/config.schema.json"

//go:embed schema.json
var schemaJSON []byte

//nolint:gochecknoglobals // Compiled once on first use.
var compiledSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
	if err != nil {
		return nil, fmt.Errorf("decode settings schema: %w", err)
	}

	compiler := jsonschema.NewCompiler()
	if err = compiler.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("add settings schema: %w", err)
	}

	return compiler.Compile(schemaURL)
})

// validateSchema checks a raw YAML document against the embedded schema.
// The document goes through JSON so the validator sees JSON types only.
func validateSchema(contents []byte) error {
	var raw any
	if err := yaml.Unmarshal(contents, &raw); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}

	if raw == nil {
		raw = map[string]any{}
	}

	asJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("convert settings to json: %w", err)
	}

	instance, err := jsonschema.UnmarshalJSON(bytes.NewReader(asJSON))
	if err != nil {
		return fmt.Errorf("decode settings json: %w", err)
	}

	schema, err := compiledSchema()
	if err != nil {
		return err
	}

	if err = schema.Validate(instance); err != nil {
		return fmt.Errorf("settings do not match schema: %w", err)
	}

	return nil
}
