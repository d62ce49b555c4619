package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/store"
)

// Timestamp field names shared by every record type.
const (
	CreatedAtField = "created_at"
	UpdatedAtField = "updated_at"
)

// Codec converts a record type to and from the field map a store adapter
// persists.
type Codec[T any] interface {
	// Encode returns the persisted fields of record, leaving out the id,
	// the timestamps and any unset optional field.
	Encode(record T) store.Fields
	// Decode builds a record from a stored document.
	Decode(doc store.Document) (T, error)
	// Sanitize normalizes field values before they are written.
	Sanitize(fields store.Fields) store.Fields
	// Timestamp renders t the way the backing store expects it.
	Timestamp(t time.Time) any
}

// Patch is a partial update. Only the fields it returns are written.
type Patch interface {
	Fields() store.Fields
}

// RawPatch is an untyped patch, as decoded from a request body.
type RawPatch store.Fields

// Fields returns the patch as is.
func (p RawPatch) Fields() store.Fields { return store.Fields(p) }

// Repository is a typed facade over a store adapter for one record type.
type Repository[T any] struct {
	adapter    store.Adapter
	codec      Codec[T]
	collection store.Collection
	now        func() time.Time
}

// New binds codec and adapter to the default collection.
func New[T any](adapter store.Adapter, codec Codec[T], collection store.Collection) *Repository[T] {
	return &Repository[T]{
		adapter:    adapter,
		codec:      codec,
		collection: collection,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// In returns a copy of the repository bound to collection.
func (r *Repository[T]) In(collection store.Collection) *Repository[T] {
	cp := *r
	cp.collection = collection
	return &cp
}

// WithClock returns a copy of the repository that stamps records with now.
func (r *Repository[T]) WithClock(now func() time.Time) *Repository[T] {
	cp := *r
	cp.now = now
	return &cp
}

// Collection returns the collection the repository is bound to.
func (r *Repository[T]) Collection() store.Collection { return r.collection }

// Insert persists record under id, or under a store assigned id when id is
// empty, stamping created_at. It returns the record id.
func (r *Repository[T]) Insert(ctx context.Context, record T, id string) (string, error) {
	fields := r.codec.Sanitize(r.codec.Encode(record))
	delete(fields, UpdatedAtField)
	fields[CreatedAtField] = r.codec.Timestamp(r.now())

	newID, err := r.adapter.Insert(ctx, fields, id, r.collection)
	if err != nil {
		return "", fmt.Errorf("insert into %s: %w", r.collection, err)
	}
	return newID, nil
}

// FindByID loads one record.
func (r *Repository[T]) FindByID(ctx context.Context, id string) (T, error) {
	var zero T
	doc, err := r.adapter.GetOne(ctx, id, r.collection)
	if err != nil {
		return zero, fmt.Errorf("find %s in %s: %w", id, r.collection, err)
	}
	rec, err := r.codec.Decode(doc)
	if err != nil {
		return zero, errs.Wrap(errs.KindInternal, err, "record could not be decoded", fmt.Sprintf("document %s in %s", id, r.collection))
	}
	return rec, nil
}

// Update merges patch into the stored record and refreshes updated_at. It
// returns the version reported by the adapter.
func (r *Repository[T]) Update(ctx context.Context, id string, patch Patch) (int64, error) {
	fields := patch.Fields().Clone()
	if _, ok := fields[CreatedAtField]; ok {
		return 0, errs.InvalidField("invalid field", CreatedAtField+" cannot be changed")
	}
	fields = r.codec.Sanitize(fields)
	fields[UpdatedAtField] = r.codec.Timestamp(r.now())

	version, err := r.adapter.Update(ctx, fields, id, r.collection)
	if err != nil {
		return 0, fmt.Errorf("update %s in %s: %w", id, r.collection, err)
	}
	return version, nil
}

// Delete removes one record.
func (r *Repository[T]) Delete(ctx context.Context, id string) (string, error) {
	res, err := r.adapter.Delete(ctx, id, r.collection)
	if err != nil {
		return "", fmt.Errorf("delete %s from %s: %w", id, r.collection, err)
	}
	return res, nil
}

// FindAll returns one page of records matching filter and the total number
// of matches.
func (r *Repository[T]) FindAll(ctx context.Context, filter store.Filter, pageSize, pageNumber int) ([]T, int64, error) {
	docs, total, err := r.adapter.ListPage(ctx, filter, pageSize, pageNumber, r.collection)
	if err != nil {
		return nil, 0, fmt.Errorf("list %s: %w", r.collection, err)
	}

	records := make([]T, 0, len(docs))
	for _, doc := range docs {
		rec, err := r.codec.Decode(doc)
		if err != nil {
			return nil, 0, errs.Wrap(errs.KindInternal, err, "record could not be decoded", fmt.Sprintf("document %s in %s", doc.ID, r.collection))
		}
		records = append(records, rec)
	}
	return records, total, nil
}
