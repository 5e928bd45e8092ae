package state

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/stratus-io/stratus/internal/ir"
)

// DirStore keeps one JSON record per resource in a directory. Writes go
// through a temp file plus rename so a crash mid-write never corrupts the
// record being replaced, and records for other resources are untouched.
type DirStore struct {
	dir string
}

func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

func (s *DirStore) Get(ctx context.Context, addr string) (*ir.StateRecord, error) {
	path := s.recordPath(addr)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read state record %s: %w", path, err)
	}

	data, err := DecryptRecord(raw)
	if err != nil {
		return nil, &CorruptRecordError{Addr: addr, Path: path, Err: err}
	}
	return decodeRecord(data, path)
}

func (s *DirStore) Put(ctx context.Context, rec *ir.StateRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}

	encrypted, err := EncryptRecord(data)
	if err != nil {
		return fmt.Errorf("failed to encrypt state record: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	path := s.recordPath(rec.Addr())
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, encrypted, 0600); err != nil {
		return fmt.Errorf("failed to write state record %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to commit state record %s: %w", path, err)
	}
	return nil
}

func (s *DirStore) Delete(ctx context.Context, addr string) error {
	if err := os.Remove(s.recordPath(addr)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete state record %s: %w", addr, err)
	}
	return nil
}

func (s *DirStore) List(ctx context.Context) ([]*ir.StateRecord, []*CorruptRecordError, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read state directory %s: %w", s.dir, err)
	}

	var records []*ir.StateRecord
	var corrupt []*CorruptRecordError
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read state record %s: %w", path, err)
		}
		// Best-effort identity from the filename, for containment when the
		// record body is undecodable.
		addr := strings.TrimSuffix(entry.Name(), ".json")

		data, err := DecryptRecord(raw)
		if err != nil {
			corrupt = append(corrupt, &CorruptRecordError{Addr: addr, Path: path, Err: err})
			continue
		}
		rec, err := decodeRecord(data, path)
		if err != nil {
			cerr := err.(*CorruptRecordError)
			if cerr.Addr == "" {
				cerr.Addr = addr
			}
			corrupt = append(corrupt, cerr)
			continue
		}
		records = append(records, rec)
	}
	return records, corrupt, nil
}

// recordPath maps an address to its record file. Path separators in type
// names are flattened so every record stays inside the store directory.
func (s *DirStore) recordPath(addr string) string {
	safe := strings.ReplaceAll(addr, string(os.PathSeparator), "_")
	return filepath.Join(s.dir, safe+".json")
}
