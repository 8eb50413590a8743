// Package schema validates emitted stats reports against the stable stats
// JSON schema, so a malformed report is caught before anything downstream
// consumes it.
package schema

import (
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// StatsSchema is the JSON schema for a session's stats report.
const StatsSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": [
    "total_tests", "passed_tests", "failed_tests", "skipped_tests",
    "start_time", "end_time", "duration", "test_details"
  ],
  "properties": {
    "total_tests": {"type": "integer", "minimum": 0},
    "passed_tests": {"type": "integer", "minimum": 0},
    "failed_tests": {"type": "integer", "minimum": 0},
    "skipped_tests": {"type": "integer", "minimum": 0},
    "start_time": {"type": "number"},
    "end_time": {"type": "number"},
    "duration": {"type": "number"},
    "test_details": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "status", "duration", "error", "details"],
        "properties": {
          "name": {"type": "string"},
          "status": {"enum": ["PASS", "FAIL", "SKIP"]},
          "duration": {"type": "number"},
          "error": {"type": ["string", "null"]},
          "details": {"type": "object"}
        }
      }
    }
  }
}`

// Validate checks a stats report document against the schema.
func Validate(document []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(StatsSchema)
	documentLoader := gojsonschema.NewBytesLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if result.Valid() {
		return nil
	}

	var errors []string
	for _, desc := range result.Errors() {
		errors = append(errors, desc.String())
	}
	return fmt.Errorf("schema validation failed: %s", strings.Join(errors, "; "))
}

// ValidateFile checks the stats report at path against the schema.
func ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading stats report: %w", err)
	}
	return Validate(data)
}
