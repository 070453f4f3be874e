package record

// SlotState is the lifecycle of an association slot.
type SlotState int

const (
	// SlotUnknown means the association has not been loaded yet.
	SlotUnknown SlotState = iota
	// SlotLoaded means the slot contents are authoritative, even when empty.
	SlotLoaded
)

func (s SlotState) String() string {
	if s == SlotLoaded {
		return "loaded"
	}
	return "unknown"
}

// Slot is the association container on an owner record. A slot is used
// either as a collection (Append) or as a single value (SetIfEmpty).
type Slot struct {
	state   SlotState
	target  *Record
	records []*Record
}

// Append adds a record to a collection slot. Duplicates are kept.
func (s *Slot) Append(r *Record) {
	s.records = append(s.records, r)
}

// SetIfEmpty stores r as the single target unless one is already set.
// It reports whether r was stored.
func (s *Slot) SetIfEmpty(r *Record) bool {
	if s.target != nil {
		return false
	}
	s.target = r
	return true
}

// MarkLoaded flips the slot to loaded. Calling it again is a no-op.
func (s *Slot) MarkLoaded() {
	s.state = SlotLoaded
}

// Loaded reports whether the slot has been marked loaded.
func (s *Slot) Loaded() bool {
	return s.state == SlotLoaded
}

// State returns the slot state.
func (s *Slot) State() SlotState {
	return s.state
}

// Target returns the single-value target, or nil.
func (s *Slot) Target() *Record {
	return s.target
}

// Records returns the collection contents.
func (s *Slot) Records() []*Record {
	return s.records
}
