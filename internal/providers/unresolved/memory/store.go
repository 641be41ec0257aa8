package memory

import (
	"context"
	"sync"

	"github.com/crmarques/catalogsync/resource"
	"github.com/crmarques/catalogsync/unresolved"
)

var _ unresolved.Store = (*Store)(nil)

// Store keeps deferred drafts in process memory.
type Store struct {
	mu      sync.Mutex
	records map[resource.Kind]map[string]unresolved.Record
}

func NewStore() *Store {
	return &Store{records: map[resource.Kind]map[string]unresolved.Record{}}
}

func (s *Store) Save(_ context.Context, record unresolved.Record) (unresolved.Record, error) {
	if err := record.Validate(); err != nil {
		return unresolved.Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owners, ok := s.records[record.Kind]
	if !ok {
		owners = map[string]unresolved.Record{}
		s.records[record.Kind] = owners
	}
	var pending *unresolved.Record
	if existing, found := owners[record.OwnerKey]; found {
		pending = &existing
	}
	merged := unresolved.Merge(pending, record)
	owners[record.OwnerKey] = merged
	return merged, nil
}

func (s *Store) Fetch(_ context.Context, kind resource.Kind, ownerKeys []string) (map[string]unresolved.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := make(map[string]unresolved.Record, len(ownerKeys))
	for _, owner := range ownerKeys {
		if record, ok := s.records[kind][owner]; ok {
			found[owner] = record
		}
	}
	return found, nil
}

func (s *Store) Delete(_ context.Context, kind resource.Kind, ownerKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records[kind], ownerKey)
	return nil
}

func (s *Store) WaitingOn(ctx context.Context, kind resource.Kind, keys resource.KeySet) ([]unresolved.Record, error) {
	records, err := s.List(ctx, kind)
	if err != nil {
		return nil, err
	}
	waiting := records[:0]
	for _, record := range records {
		if record.WaitsOn(keys) {
			waiting = append(waiting, record)
		}
	}
	return waiting, nil
}

func (s *Store) List(_ context.Context, kind resource.Kind) ([]unresolved.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records := make([]unresolved.Record, 0, len(s.records[kind]))
	for _, record := range s.records[kind] {
		records = append(records, record)
	}
	unresolved.SortRecords(records)
	return records, nil
}
