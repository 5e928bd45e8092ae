package ir

import "fmt"

// StateSchemaVersion is the current schema version for persisted state
// records. Older records are migrated forward on load.
const StateSchemaVersion = 1

// StateRecord holds the last-known realized attributes of one resource.
// It is owned by the state store and mutated only after a provider action
// succeeds. Attributes are always fully concrete: a record containing an
// unresolved reference is corrupt.
type StateRecord struct {
	SchemaVersion  int            `json:"schemaVersion"`
	Type           string         `json:"type"`
	Name           string         `json:"name"`
	Provider       string         `json:"provider"`
	ID             string         `json:"id"` // provider-assigned identifier
	Attributes     map[string]any `json:"attributes"`
	AttributesHash string         `json:"attributesHash"` // hash of declared attributes at last apply
	Dependencies   []string       `json:"dependencies,omitempty"`
}

// Addr returns the record's identity as a "type.name" address.
func (r *StateRecord) Addr() string {
	return fmt.Sprintf("%s.%s", r.Type, r.Name)
}
