// Package metadataschema implements the optional per-tenant custom
// metadata gate (§4.1 step 4, supplement): when a tenant configures
// TenantConfig.MetadataSchema, every manifest entry's metadata object must
// validate against it or the file is rejected with METADATA_SCHEMA_VIOLATION.
package metadataschema

import (
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validator compiles a tenant's custom metadata schema once and reuses it
// across every file in a batch.
type Validator struct {
	resolved *jsonschema.Resolved
}

// Compile parses schemaDoc (a tenant's raw JSON-Schema document) and
// resolves it for repeated validation. A nil/empty schemaDoc means the
// tenant has not opted into metadata validation; Compile returns (nil, nil).
func Compile(schemaDoc map[string]any) (*Validator, error) {
	if len(schemaDoc) == 0 {
		return nil, nil
	}

	raw, err := json.Marshal(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata schema: %w", err)
	}

	var schema jsonschema.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil, fmt.Errorf("parse metadata schema: %w", err)
	}

	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve metadata schema: %w", err)
	}
	return &Validator{resolved: resolved}, nil
}

// Validate checks metadata against the compiled schema. A nil Validator
// (no tenant schema configured) always succeeds.
func (v *Validator) Validate(metadata map[string]any) error {
	if v == nil {
		return nil
	}
	return v.resolved.Validate(metadata)
}
