package ai

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const labelSchemaName = "classification"

const labelSchemaJSON = `{
  "type": "object",
  "properties": {
    "response": {"type": "string", "description": "The single category label for the question."}
  },
  "required": ["response"],
  "additionalProperties": false
}`

var labelSchema = jsonschema.MustCompileString("classification.schema.json", labelSchemaJSON)

// LabelSchema returns the JSON schema sent to providers for structured output.
func LabelSchema() json.RawMessage {
	return json.RawMessage(labelSchemaJSON)
}

// ParseLabel validates the oracle payload and extracts the label.
func ParseLabel(content string) (string, error) {
	content = stripCodeFence(strings.TrimSpace(content))

	var payload interface{}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return "", &ErrInvalidResponse{Content: content, Err: fmt.Errorf("parse json: %w", err)}
	}
	if err := labelSchema.Validate(payload); err != nil {
		return "", &ErrInvalidResponse{Content: content, Err: err}
	}

	label, _ := payload.(map[string]interface{})["response"].(string)
	return label, nil
}

func stripCodeFence(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func labelSchemaDefinition() map[string]any {
	var def map[string]any
	if err := json.Unmarshal([]byte(labelSchemaJSON), &def); err != nil {
		panic(fmt.Sprintf("label schema: %v", err))
	}
	return def
}
