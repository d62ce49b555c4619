package store

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/goliatone/go-record-services/errs"
)

// Fields maps attribute names to scalar values.
type Fields map[string]any

// Clone returns a shallow copy of f.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Collection addresses a logical collection. Name is the index or table,
// RecordType names the schema of the records stored in it.
type Collection struct {
	Name       string
	RecordType string
}

func (c Collection) String() string {
	if c.RecordType == "" {
		return c.Name
	}
	return c.Name + "/" + c.RecordType
}

// Document is a record as returned by an adapter.
type Document struct {
	ID      string
	Version int64
	Fields  Fields
}

// Direction orders ListPage results.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Predicate is a single field equality.
type Predicate struct {
	Field string
	Value any
}

// OrderBy sorts a page by one field.
type OrderBy struct {
	Field     string
	Direction Direction
}

// Filter is either match all (no predicates) or a conjunction of equality
// predicates, with an optional ordering.
type Filter struct {
	Predicates []Predicate
	Order      *OrderBy
}

// MatchAll returns a filter matching every record.
func MatchAll() Filter { return Filter{} }

// Where returns a filter with a single equality predicate.
func Where(field string, value any) Filter {
	return Filter{Predicates: []Predicate{{Field: field, Value: value}}}
}

// And appends another predicate.
func (f Filter) And(field string, value any) Filter {
	f.Predicates = append(append([]Predicate(nil), f.Predicates...), Predicate{Field: field, Value: value})
	return f
}

// SortBy sets the ordering.
func (f Filter) SortBy(field string, dir Direction) Filter {
	f.Order = &OrderBy{Field: field, Direction: dir}
	return f
}

// IsMatchAll reports whether f has no predicates.
func (f Filter) IsMatchAll() bool { return len(f.Predicates) == 0 }

// Adapter is the uniform CRUD contract implemented by every backing store.
// Implementations translate backend failures into errs kinds and own the
// acquisition and release of their connections around each call.
type Adapter interface {
	// Insert creates a record, provisioning the collection on first use.
	// An empty id asks the adapter to generate one. It returns the record id.
	Insert(ctx context.Context, fields Fields, id string, c Collection) (string, error)
	GetOne(ctx context.Context, id string, c Collection) (Document, error)
	// Update merges fields into the record and returns its new version.
	Update(ctx context.Context, fields Fields, id string, c Collection) (int64, error)
	Delete(ctx context.Context, id string, c Collection) (string, error)
	ListPage(ctx context.Context, filter Filter, pageSize, pageNumber int, c Collection) ([]Document, int64, error)
	Close() error
}

// DeleteResult is the result string reported by Delete.
const DeleteResult = "deleted"

// Offset returns the zero-based offset of a 1-based page. Pages and sizes
// below one, and pages whose offset does not fit an int, are rejected with
// MalformedQuery.
func Offset(pageSize, pageNumber int) (int, error) {
	if pageSize < 1 {
		return 0, errs.MalformedQuery("invalid page size", fmt.Sprintf("page size must be at least 1, got %d", pageSize))
	}
	if pageNumber < 1 {
		return 0, errs.MalformedQuery("invalid page number", fmt.Sprintf("page number must be at least 1, got %d", pageNumber))
	}
	if pageNumber-1 > math.MaxInt/pageSize {
		return 0, errs.MalformedQuery("invalid page number", fmt.Sprintf("page %d of size %d is out of range", pageNumber, pageSize))
	}
	return (pageNumber - 1) * pageSize, nil
}
