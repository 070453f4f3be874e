// Package record holds loaded rows, their association slots, and the
// pass-scoped append-only store the preloader writes into.
package record

import (
	"fastpreload/internal/graph"
)

// Record is one loaded row of an entity type.
type Record struct {
	Entity graph.EntityType
	Fields map[string]any

	assocs map[string]*Slot
	order  []string
}

// New creates a record. The fields map is owned by the record afterwards.
func New(entity graph.EntityType, fields map[string]any) *Record {
	if fields == nil {
		fields = make(map[string]any)
	}
	return &Record{Entity: entity, Fields: fields}
}

// Get returns a field value. A present field holding nil reports ok=true.
func (r *Record) Get(field string) (any, bool) {
	v, ok := r.Fields[field]
	return v, ok
}

// Association returns the slot for a relationship name, creating an
// unknown slot on first access.
func (r *Record) Association(name string) *Slot {
	if r.assocs == nil {
		r.assocs = make(map[string]*Slot)
	}
	slot, ok := r.assocs[name]
	if !ok {
		slot = &Slot{}
		r.assocs[name] = slot
		r.order = append(r.order, name)
	}
	return slot
}

// HasAssociation reports whether a slot exists without creating one.
func (r *Record) HasAssociation(name string) bool {
	_, ok := r.assocs[name]
	return ok
}

// AssociationNames lists slot names in first-access order.
func (r *Record) AssociationNames() []string {
	return append([]string(nil), r.order...)
}
