package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

// configSchema describes the shape of a config file. Semantic rules that
// span fields live in Validate.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "definitions": {
    "duration": {
      "oneOf": [
        {"type": "string", "pattern": "^\\s*([0-9]+(\\.[0-9]+)?|([0-9]+(\\.[0-9]+)?(ns|us|µs|ms|s|m|h))+)\\s*$"},
        {"type": "number", "minimum": 0}
      ]
    }
  },
  "properties": {
    "address": {"type": "string", "minLength": 1},
    "root": {"type": "string", "pattern": "^/"},
    "prefix": {"type": "string", "pattern": "^[^/]+$"},
    "mode": {"enum": ["ephemeral", "ephemeral-sequential", "persistent-sequential", "persistent"]},
    "sessions": {"enum": ["shared", "per-worker"]},
    "workers": {"type": "integer", "minimum": 0},
    "duration": {"$ref": "#/definitions/duration"},
    "batch": {"type": "integer", "minimum": 1},
    "rate": {"type": "number", "minimum": 0},
    "sessionTimeout": {"$ref": "#/definitions/duration"},
    "connectTimeout": {"$ref": "#/definitions/duration"},
    "cleanup": {"type": "boolean"},
    "settle": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "strategy": {"enum": ["fixed", "poll"]},
        "delay": {"$ref": "#/definitions/duration"},
        "interval": {"$ref": "#/definitions/duration"},
        "timeout": {"$ref": "#/definitions/duration"}
      }
    }
  }
}`

var schema = jsonschema.MustCompileString("config.schema.json", configSchema)

// Load reads a YAML (or JSON) config file. Values in the file override
// Default(); the result is not yet validated semantically.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and schema-checks config file contents.
func Parse(data []byte) (*Config, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("config file is empty")
	}

	if err := validateSchema(data); err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return cfg, nil
}

// validateSchema checks raw file contents against configSchema. YAML is
// round-tripped through JSON so the validator sees JSON types.
func validateSchema(data []byte) error {
	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	asJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	var doc interface{}
	if err := json.Unmarshal(asJSON, &doc); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}

	err = schema.Validate(doc)
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err
	}
	errs := &ValidationErrors{}
	collectSchemaErrors(verr, errs)
	if !errs.HasErrors() {
		errs.Add("", verr.Error())
	}
	return errs
}

// collectSchemaErrors flattens the leaf causes of a schema failure.
func collectSchemaErrors(err *jsonschema.ValidationError, errs *ValidationErrors) {
	if len(err.Causes) == 0 {
		field := err.InstanceLocation
		if len(field) > 0 && field[0] == '/' {
			field = field[1:]
		}
		errs.Add(field, err.Message)
		return
	}
	for _, cause := range err.Causes {
		collectSchemaErrors(cause, errs)
	}
}
