package constitution

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const schemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "required": [
    "max_daily_loss",
    "max_leverage",
    "cooldown_minutes",
    "block_revenge_trading",
    "block_late_night",
    "ai_coach_enabled"
  ],
  "properties": {
    "max_daily_loss": {
      "anyOf": [
        {"type": "number", "exclusiveMinimum": 0},
        {"type": "string", "pattern": "^[0-9]+(\\.[0-9]+)?$"}
      ]
    },
    "max_leverage": {"type": "number", "exclusiveMinimum": 0},
    "cooldown_minutes": {"type": "integer", "minimum": 0},
    "block_revenge_trading": {"type": "boolean"},
    "block_late_night": {"type": "boolean"},
    "ai_coach_enabled": {"type": "boolean"}
  }
}`

var schema = jsonschema.MustCompileString("constitution.schema.json", schemaJSON)

// DecodeJSON parses a complete constitution document. Missing or unknown
// keys and out-of-range values are rejected before anything is decoded.
func DecodeJSON(data []byte) (UserConstitution, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var doc any
	if err := dec.Decode(&doc); err != nil {
		return UserConstitution{}, fmt.Errorf("%w: %v", ErrInvalidConstitution, err)
	}
	if err := schema.Validate(doc); err != nil {
		return UserConstitution{}, fmt.Errorf("%w: %v", ErrInvalidConstitution, err)
	}

	var c UserConstitution
	if err := json.Unmarshal(data, &c); err != nil {
		return UserConstitution{}, fmt.Errorf("%w: %v", ErrInvalidConstitution, err)
	}
	if err := c.Validate(); err != nil {
		return UserConstitution{}, err
	}
	return c, nil
}
