package planner

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// planSchema gates the raw plan document before it is interpreted. It
// mirrors the structure handed to the model as a response schema.
const planSchema = `{
  "type": "object",
  "properties": {
    "steps": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "id": {"type": "string", "minLength": 1},
          "type": {"type": "string"},
          "name": {"type": "string", "minLength": 1},
          "description": {"type": "string"},
          "parameters": {
            "type": "object",
            "properties": {
              "value": {"type": "string"},
              "source_step": {"type": "string"},
              "source_path": {"type": "string"},
              "filter": {"type": "string"}
            }
          },
          "extract": {
            "type": "object",
            "properties": {
              "fields": {
                "type": "object",
                "additionalProperties": {"type": "string"}
              },
              "filter": {"type": "string"}
            },
            "required": ["fields"]
          },
          "depends_on": {
            "type": "array",
            "items": {"type": "string"}
          }
        },
        "required": ["id", "type", "name", "parameters", "depends_on"]
      }
    },
    "fallback": {
      "type": "object",
      "properties": {
        "enabled": {"type": "boolean"},
        "strategy": {"type": "string"},
        "steps": {"type": "array"}
      }
    },
    "dependencies": {
      "type": "object",
      "additionalProperties": {
        "type": "array",
        "items": {"type": "string"}
      }
    }
  },
  "required": ["steps", "dependencies"]
}`

var planSchemaLoader = gojsonschema.NewStringLoader(planSchema)

// validateDocument checks the raw JSON document against the plan schema.
func validateDocument(raw string) error {
	result, err := gojsonschema.Validate(planSchemaLoader, gojsonschema.NewStringLoader(raw))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		errs := result.Errors()
		if len(errs) > 0 {
			return fmt.Errorf("plan document invalid: %s", errs[0].String())
		}
		return fmt.Errorf("plan document invalid")
	}
	return nil
}
