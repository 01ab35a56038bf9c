package service

import (
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// flagConfigSchema checks the shape of an incoming flag configuration before
// it is decoded. Cross-field invariants (percentage sums, date ordering,
// variation references) are the model's job; this only rejects documents that
// are structurally not a flag.
const flagConfigSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["variations"],
  "properties": {
    "variations": {
      "type": "object",
      "minProperties": 1
    },
    "defaultRule": {"$ref": "#/definitions/rule"},
    "targeting": {
      "type": "array",
      "items": {"$ref": "#/definitions/rule"}
    },
    "scheduledRollout": {
      "type": "array",
      "items": {
        "type": "object",
        "properties": {
          "date": {"type": "string", "format": "date-time"},
          "defaultRule": {"$ref": "#/definitions/rule"},
          "targeting": {
            "type": "array",
            "items": {"$ref": "#/definitions/rule"}
          }
        }
      }
    },
    "experimentation": {
      "type": "object",
      "properties": {
        "start": {"type": "string", "format": "date-time"},
        "end": {"type": "string", "format": "date-time"}
      }
    },
    "trackEvents": {"type": "boolean"},
    "disable": {"type": "boolean"},
    "version": {"type": "string"},
    "metadata": {"type": "object"},
    "bucketingKey": {"type": "string"}
  },
  "definitions": {
    "rule": {
      "type": "object",
      "properties": {
        "name": {"type": "string"},
        "query": {"type": "string"},
        "variation": {"type": "string"},
        "percentage": {
          "type": "object",
          "additionalProperties": {"type": "number"}
        },
        "progressiveRollout": {
          "type": "object",
          "properties": {
            "initial": {"$ref": "#/definitions/progressiveStep"},
            "end": {"$ref": "#/definitions/progressiveStep"}
          }
        },
        "disable": {"type": "boolean"}
      }
    },
    "progressiveStep": {
      "type": "object",
      "properties": {
        "variation": {"type": "string"},
        "percentage": {"type": "number"},
        "date": {"type": "string", "format": "date-time"}
      }
    }
  }
}`

func compileFlagSchema() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(flagConfigSchema))
}

// checkFlagShape validates raw JSON against the flag schema and flattens the
// schema errors into one message.
func checkFlagShape(schema *gojsonschema.Schema, raw []byte) error {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("invalid flag document: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		msgs = append(msgs, desc.String())
	}
	return fmt.Errorf("invalid flag document: %s", strings.Join(msgs, "; "))
}
