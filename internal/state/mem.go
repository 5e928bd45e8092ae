package state

import (
	"context"
	"errors"
	"sync"

	"github.com/stratus-io/stratus/internal/ir"
)

// MemStore is an in-memory store used for tests and dry runs. It shares the
// validation rules of the persistent stores so engine tests exercise the
// same contract.
type MemStore struct {
	mu      sync.RWMutex
	records map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{records: make(map[string][]byte)}
}

func (s *MemStore) Get(ctx context.Context, addr string) (*ir.StateRecord, error) {
	s.mu.RLock()
	data, ok := s.records[addr]
	s.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	rec, err := decodeRecord(data, "mem:"+addr)
	if err != nil {
		var cerr *CorruptRecordError
		if errors.As(err, &cerr) && cerr.Addr == "" {
			cerr.Addr = addr
		}
		return nil, err
	}
	return rec, nil
}

func (s *MemStore) Put(ctx context.Context, rec *ir.StateRecord) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.records[rec.Addr()] = data
	s.mu.Unlock()
	return nil
}

func (s *MemStore) Delete(ctx context.Context, addr string) error {
	s.mu.Lock()
	delete(s.records, addr)
	s.mu.Unlock()
	return nil
}

func (s *MemStore) List(ctx context.Context) ([]*ir.StateRecord, []*CorruptRecordError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []*ir.StateRecord
	var corrupt []*CorruptRecordError
	for addr, data := range s.records {
		rec, err := decodeRecord(data, "mem:"+addr)
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

// Corrupt overwrites a record with undecodable bytes, for tests that need a
// damaged store.
func (s *MemStore) Corrupt(addr string) {
	s.mu.Lock()
	s.records[addr] = []byte("{not json")
	s.mu.Unlock()
}

func (s *MemStore) Lock() error   { return nil }
func (s *MemStore) Unlock() error { return nil }
