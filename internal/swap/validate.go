package swap

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/xeipuuv/gojsonschema"
)

// transactionSchema mirrors the shape counterparties exchange. Every
// collection may be null; unknown fields are rejected at every level.
const transactionSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "definitions": {
    "publicKey": {
      "type": "object",
      "additionalProperties": false,
      "required": ["algorithm", "key"],
      "properties": {
        "algorithm": {"type": "string"},
        "key": {"type": "string"}
      }
    },
    "unlockConditions": {
      "type": "object",
      "additionalProperties": false,
      "required": ["timelock", "publickeys", "signaturesrequired"],
      "properties": {
        "timelock": {"type": "integer", "minimum": 0},
        "publickeys": {"type": "array", "items": {"$ref": "#/definitions/publicKey"}},
        "signaturesrequired": {"type": "integer", "minimum": 0}
      }
    },
    "siacoinInput": {
      "type": "object",
      "additionalProperties": false,
      "required": ["parentid", "unlockconditions"],
      "properties": {
        "parentid": {"type": "string"},
        "unlockconditions": {"$ref": "#/definitions/unlockConditions"}
      }
    },
    "siafundInput": {
      "type": "object",
      "additionalProperties": false,
      "required": ["parentid", "unlockconditions", "claimunlockhash"],
      "properties": {
        "parentid": {"type": "string"},
        "unlockconditions": {"$ref": "#/definitions/unlockConditions"},
        "claimunlockhash": {"type": "string"}
      }
    },
    "siacoinOutput": {
      "type": "object",
      "additionalProperties": false,
      "required": ["value", "unlockhash"],
      "properties": {
        "value": {"type": "string"},
        "unlockhash": {"type": "string"}
      }
    },
    "siafundOutput": {
      "type": "object",
      "additionalProperties": false,
      "required": ["value", "unlockhash", "claimstart"],
      "properties": {
        "value": {"type": "string"},
        "unlockhash": {"type": "string"},
        "claimstart": {"type": "string"}
      }
    },
    "signature": {
      "type": "object",
      "additionalProperties": false,
      "required": ["parentid", "publickeyindex", "timelock", "coveredfields", "signature"],
      "properties": {
        "parentid": {"type": "string"},
        "publickeyindex": {"type": "integer", "minimum": 0},
        "timelock": {"type": "integer", "minimum": 0},
        "coveredfields": {"type": "object"},
        "signature": {"type": "string"}
      }
    }
  },
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "siacoinInputs": {"type": ["array", "null"], "items": {"$ref": "#/definitions/siacoinInput"}},
    "siafundInputs": {"type": ["array", "null"], "items": {"$ref": "#/definitions/siafundInput"}},
    "siacoinOutputs": {"type": ["array", "null"], "items": {"$ref": "#/definitions/siacoinOutput"}},
    "siafundOutputs": {"type": ["array", "null"], "items": {"$ref": "#/definitions/siafundOutput"}},
    "signatures": {"type": ["array", "null"], "items": {"$ref": "#/definitions/signature"}}
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *gojsonschema.Schema
	schemaErr      error
)

func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(transactionSchema))
	})
	return compiledSchema, schemaErr
}

// ValidationError reports why a transaction file was rejected. Kind is one
// of ErrEmptyFile, ErrMalformedFile or ErrSchemaViolation.
type ValidationError struct {
	Kind   error
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	switch {
	case e.Path != "":
		return fmt.Sprintf("%v: %s: %s", e.Kind, e.Path, e.Reason)
	case e.Reason != "":
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	default:
		return e.Kind.Error()
	}
}

func (e *ValidationError) Unwrap() error {
	return e.Kind
}

// Validate checks an untrusted transaction file and returns the typed
// transaction. Nothing downstream may act on raw bytes that failed here.
func Validate(raw []byte) (*Transaction, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, &ValidationError{Kind: ErrEmptyFile}
	}
	if !utf8.Valid(raw) {
		return nil, &ValidationError{Kind: ErrMalformedFile, Reason: "not valid UTF-8 text"}
	}
	if !json.Valid(raw) {
		return nil, &ValidationError{Kind: ErrMalformedFile, Reason: "not valid JSON"}
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("failed to compile transaction schema: %w", err)
	}
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return nil, &ValidationError{Kind: ErrMalformedFile, Reason: err.Error()}
	}
	if !result.Valid() {
		return nil, schemaViolation(result.Errors())
	}

	var txn Transaction
	if err := json.Unmarshal(raw, &txn); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, &ValidationError{Kind: ErrSchemaViolation, Path: typeErr.Field, Reason: "value out of range"}
		}
		return nil, &ValidationError{Kind: ErrMalformedFile, Reason: err.Error()}
	}
	return &txn, nil
}

// schemaViolation picks the first failing path in lexical order so the
// reported error is stable across runs.
func schemaViolation(errs []gojsonschema.ResultError) error {
	violations := make([]*ValidationError, 0, len(errs))
	for _, re := range errs {
		violations = append(violations, &ValidationError{
			Kind:   ErrSchemaViolation,
			Path:   resultPath(re),
			Reason: re.Description(),
		})
	}
	sort.SliceStable(violations, func(i, j int) bool {
		return violations[i].Path < violations[j].Path
	})
	return violations[0]
}

// resultPath turns a gojsonschema context into a dotted path. Errors about
// a named property (missing or unexpected) point at the property itself.
func resultPath(re gojsonschema.ResultError) string {
	field := re.Field()
	if field == gojsonschema.STRING_ROOT_SCHEMA_PROPERTY {
		field = ""
	}
	switch re.Type() {
	case "required", "additional_property_not_allowed":
		if prop, ok := re.Details()["property"].(string); ok && prop != "" {
			if field == "" {
				return prop
			}
			return field + "." + prop
		}
	}
	if field == "" {
		return "(root)"
	}
	return strings.TrimPrefix(field, gojsonschema.STRING_ROOT_SCHEMA_PROPERTY+".")
}
