package state

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stratus-io/stratus/internal/ir"
)

// Store persists the last-known realized attributes of every resource.
// Put is atomic with respect to a single record: a crash mid-write must not
// corrupt that record, and other records are unaffected. Implementations
// must be safe for concurrent use; the engine writes a record immediately
// after each successful provider action.
type Store interface {
	// Get returns the record for an address, or (nil, nil) when absent.
	// A record that fails validation surfaces a *CorruptRecordError.
	Get(ctx context.Context, addr string) (*ir.StateRecord, error)

	// Put writes one record atomically.
	Put(ctx context.Context, rec *ir.StateRecord) error

	// Delete removes the record for an address. Deleting an absent
	// record is not an error.
	Delete(ctx context.Context, addr string) error

	// List returns every readable record plus a separate list of corrupt
	// ones, so a damaged record poisons only its own subtree.
	List(ctx context.Context) ([]*ir.StateRecord, []*CorruptRecordError, error)

	// Lock and Unlock guard the whole store for the duration of a run.
	Lock() error
	Unlock() error
}

// CorruptRecordError reports a persisted record that failed validation on
// load. The resource's real status is unknown: it must never be assumed
// created or destroyed.
type CorruptRecordError struct {
	Addr string // best-effort identity, may be empty if undecodable
	Path string // file or object the record came from
	Err  error
}

func (e *CorruptRecordError) Error() string {
	return fmt.Sprintf("state record %s (%s) is corrupt: %v", e.Addr, e.Path, e.Err)
}

func (e *CorruptRecordError) Unwrap() error {
	return e.Err
}

// encodeRecord serializes a record after validating it.
func encodeRecord(rec *ir.StateRecord) ([]byte, error) {
	if err := validateRecord(rec); err != nil {
		return nil, err
	}
	return json.MarshalIndent(rec, "", "  ")
}

// decodeRecord parses, migrates and validates a persisted record.
func decodeRecord(data []byte, path string) (*ir.StateRecord, error) {
	var rec ir.StateRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, &CorruptRecordError{Path: path, Err: err}
	}
	if err := migrateRecord(&rec); err != nil {
		return nil, &CorruptRecordError{Addr: rec.Addr(), Path: path, Err: err}
	}
	if err := validateRecord(&rec); err != nil {
		return nil, &CorruptRecordError{Addr: rec.Addr(), Path: path, Err: err}
	}
	return &rec, nil
}

// migrateRecord brings older schema versions forward. Version 0 records
// predate versioning and carry the same shape as version 1.
func migrateRecord(rec *ir.StateRecord) error {
	switch {
	case rec.SchemaVersion == 0:
		rec.SchemaVersion = ir.StateSchemaVersion
	case rec.SchemaVersion > ir.StateSchemaVersion:
		return fmt.Errorf("record schema version %d is newer than supported version %d",
			rec.SchemaVersion, ir.StateSchemaVersion)
	}
	return nil
}

func validateRecord(rec *ir.StateRecord) error {
	if rec.Type == "" || rec.Name == "" {
		return fmt.Errorf("record is missing its identity")
	}
	if rec.AttributesHash == "" {
		return fmt.Errorf("record %s is missing its attributes hash", rec.Addr())
	}
	if path, found := findReference(rec.Attributes, ""); found {
		return fmt.Errorf("record %s holds an unresolved reference at %q", rec.Addr(), path)
	}
	return nil
}

// findReference walks realized attributes looking for a leftover ref://
// value. Persisted records must be fully concrete.
func findReference(v any, path string) (string, bool) {
	switch val := v.(type) {
	case string:
		if strings.HasPrefix(val, "ref://") {
			return path, true
		}
	case map[string]any:
		for k, item := range val {
			p := k
			if path != "" {
				p = path + "." + k
			}
			if found, ok := findReference(item, p); ok {
				return found, true
			}
		}
	case []any:
		for i, item := range val {
			if found, ok := findReference(item, fmt.Sprintf("%s[%d]", path, i)); ok {
				return found, true
			}
		}
	}
	return "", false
}
