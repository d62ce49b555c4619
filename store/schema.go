package store

import "sort"

// Schema declares the fixed field set of a record type.
//
// Name is the table for relational stores and the record type for document
// stores. Key is the primary key column, empty when the store owns ids
// natively. Fields maps each attribute to a store type hint. Model, when set,
// is the bun model used to provision the table.
type Schema struct {
	Name   string
	Key    string
	Fields map[string]string
	Model  any
}

// Has reports whether field belongs to the schema.
func (s Schema) Has(field string) bool {
	if field == s.Key && s.Key != "" {
		return true
	}
	_, ok := s.Fields[field]
	return ok
}

// Unknown returns the names in fields the schema does not declare, sorted.
func (s Schema) Unknown(fields Fields) []string {
	var out []string
	for name := range fields {
		if !s.Has(name) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}
