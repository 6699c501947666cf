package services

import (
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// draftSchema is the JSON schema every draft-save payload must satisfy before
// it is bound into a SaveDraftRequest. Stage ids are nullable: null (or a
// session-local placeholder) marks a stage created since the last save.
const draftSchema = `{
	"type": "object",
	"required": ["version", "stages"],
	"properties": {
		"name": {"type": "string"},
		"version": {"type": "integer", "minimum": 1},
		"stages": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["name", "order"],
				"properties": {
					"id": {"type": ["string", "null"]},
					"name": {"type": "string", "minLength": 1},
					"order": {"type": "integer", "minimum": 0},
					"is_terminal": {"type": "boolean"},
					"requires_attachments": {"type": "boolean"},
					"requires_approval": {"type": "boolean"}
				}
			}
		},
		"transitions": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["from_stage", "to_stage", "allowed_role"],
				"properties": {
					"id": {"type": ["string", "null"]},
					"from_stage": {"type": "string", "minLength": 1},
					"to_stage": {"type": "string", "minLength": 1},
					"allowed_role": {"type": "string", "minLength": 1}
				}
			}
		}
	}
}`

// ValidateDraftPayload validates a raw draft-save body against the draft
// schema. Callers run this before binding so malformed payloads fail as
// validation errors, never as storage errors.
func ValidateDraftPayload(payload []byte) error {
	schemaLoader := gojsonschema.NewStringLoader(draftSchema)
	dataLoader := gojsonschema.NewBytesLoader(payload)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return NewValidationError("ValidateDraftPayload", err.Error(), ErrInvalidRequest)
	}

	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			descriptions = append(descriptions, desc.String())
		}

		return NewValidationError("ValidateDraftPayload", strings.Join(descriptions, "; "), ErrInvalidRequest)
	}

	return nil
}
