package preloader

import (
	"context"
	"errors"
	"fmt"

	"fastpreload/internal/batch"
	"fastpreload/internal/graph"
)

var (
	// ErrFetch wraps every failure reported by a Fetcher.
	ErrFetch = errors.New("fetch failed")
	// ErrAlreadyLoaded is returned when an association is loaded twice.
	ErrAlreadyLoaded = errors.New("association already loaded")

	errNoRows        = errors.New("fetcher returned no result stream")
	errUnroutableRow = errors.New("row does not belong to any request group")
)

// Row is one fetched target record. Tag is the disambiguator and Group the
// ordinal in the request of the group that produced it.
type Row struct {
	Tag    string
	Group  int
	Fields map[string]any
}

// Rows is a single-pass stream of fetched rows.
type Rows interface {
	Next() bool
	Row() Row
	Err() error
	Close() error
}

// Fetcher executes a combined request in one round trip.
type Fetcher interface {
	Fetch(ctx context.Context, req *batch.Request) (Rows, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req *batch.Request) (Rows, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, req *batch.Request) (Rows, error) {
	return f(ctx, req)
}

// FetchError reports a failed fetch for one vertex. It matches ErrFetch.
type FetchError struct {
	Entity graph.EntityType
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s for %s: %v", ErrFetch, e.Entity, e.Err)
}

func (e *FetchError) Unwrap() []error {
	return []error{ErrFetch, e.Err}
}

// SliceRows serves rows from memory.
type SliceRows struct {
	rows []Row
	pos  int
	err  error
}

// NewSliceRows returns a Rows over the given rows. err is reported by Err
// after the rows are exhausted.
func NewSliceRows(rows []Row, err error) *SliceRows {
	return &SliceRows{rows: rows, err: err}
}

func (r *SliceRows) Next() bool {
	if r.pos >= len(r.rows) {
		return false
	}
	r.pos++
	return true
}

func (r *SliceRows) Row() Row {
	if r.pos == 0 || r.pos > len(r.rows) {
		return Row{}
	}
	return r.rows[r.pos-1]
}

func (r *SliceRows) Err() error {
	if r.pos >= len(r.rows) {
		return r.err
	}
	return nil
}

func (r *SliceRows) Close() error {
	return nil
}
