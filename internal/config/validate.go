package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "wastewise://config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft7
		if err := c.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Validate checks a YAML overlay document against the config schema.
// An empty document is valid.
func Validate(data []byte) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse yaml: %w", err)
	}
	if doc == nil {
		return nil
	}

	// The validator expects encoding/json value shapes.
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("convert to json: %w", err)
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return fmt.Errorf("convert to json: %w", err)
	}

	s, err := compiledSchema()
	if err != nil {
		return err
	}
	return s.Validate(v)
}

// ValidateFile checks that the embedded defaults still satisfy the schema,
// then validates the overlay at path if any.
func ValidateFile(path string) error {
	if err := Validate(defaultsYAML); err != nil {
		return fmt.Errorf("embedded defaults: %w", err)
	}
	if path == "" {
		return nil
	}
	_, err := Load(path)
	return err
}
