package record

import (
	"fastpreload/internal/graph"
)

// Store maps entity types to the records loaded so far in one pass.
// Sequences only grow, so a position handed out by Append stays valid for
// the rest of the pass. Store is not safe for concurrent use.
type Store struct {
	records map[graph.EntityType][]*Record
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{records: make(map[graph.EntityType][]*Record)}
}

// Ensure registers an entity type with an empty sequence.
func (s *Store) Ensure(entity graph.EntityType) {
	if _, ok := s.records[entity]; !ok {
		s.records[entity] = nil
	}
}

// Append adds a record under its entity type and returns its position.
func (s *Store) Append(r *Record) int {
	seq := s.records[r.Entity]
	pos := len(seq)
	s.records[r.Entity] = append(seq, r)
	return pos
}

// AppendAll adds records in order.
func (s *Store) AppendAll(records ...*Record) {
	for _, r := range records {
		s.Append(r)
	}
}

// Records returns the sequence for an entity type. Callers must not modify
// the returned slice.
func (s *Store) Records(entity graph.EntityType) []*Record {
	return s.records[entity]
}

// At returns the record at a position, or nil when out of range.
func (s *Store) At(entity graph.EntityType, pos int) *Record {
	seq := s.records[entity]
	if pos < 0 || pos >= len(seq) {
		return nil
	}
	return seq[pos]
}

// Len returns how many records of an entity type are loaded.
func (s *Store) Len(entity graph.EntityType) int {
	return len(s.records[entity])
}
