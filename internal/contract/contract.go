// Package contract validates response documents against the published JSON schema.
package contract

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/joseph-ayodele/statement-parser/internal/common"
)

const schemaURL = "statement-parser://response.schema.json"

//go:embed response.schema.json
var schemaJSON string

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

// Schema returns the raw response schema.
func Schema() []byte {
	return []byte(schemaJSON)
}

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiled, compileErr = jsonschema.CompileString(schemaURL, schemaJSON)
	})
	return compiled, compileErr
}

// ValidateJSON checks an encoded response document.
func ValidateJSON(raw []byte) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("compile response schema: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return common.NewAppError(common.CodeInvalidInput, "response is not valid JSON", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	if err := s.Validate(doc); err != nil {
		return common.NewAppError(common.CodeInvalidInput, "response does not match schema", fmt.Errorf("%w: %v", common.ErrInvalidInput, err))
	}
	return nil
}

// Validate encodes v and checks it against the schema.
func Validate(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	return ValidateJSON(raw)
}
