package docstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/pkg/testsupport"
	"github.com/goliatone/go-record-services/store"
)

var noteSchema = store.Schema{
	Name: "note",
	Fields: map[string]string{
		"owner":      "long",
		"body":       "text",
		"created_at": "date",
		"updated_at": "date",
	},
}

var notes = store.Collection{Name: "notes", RecordType: "note"}

func newTestStore(t *testing.T) (*Store, *testsupport.FakeElasticsearch) {
	t.Helper()

	fake := testsupport.NewFakeElasticsearch(t)
	cfg := DefaultConfig()
	cfg.Addresses = []string{fake.URL()}
	cfg.Timeout = 2 * time.Second

	s, err := Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), noteSchema)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, fake
}

func note(owner int, body string) store.Fields {
	return store.Fields{
		"owner":      owner,
		"body":       body,
		"created_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

func TestStore_InsertProvisionsIndexOnce(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	id, err := s.Insert(ctx, note(1, "first"), "n-1", notes)
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if id != "n-1" {
		t.Errorf("id = %q, want n-1", id)
	}
	if !fake.HasIndex("notes") {
		t.Fatal("expected index to be created lazily")
	}
	if got := fake.Calls("create"); got != 2 {
		t.Errorf("expected exactly one retry after provisioning, got %d create calls", got)
	}

	if _, err := s.Insert(ctx, note(1, "second"), "n-2", notes); err != nil {
		t.Fatalf("second Insert() failed: %v", err)
	}
	if got := fake.Calls("create_index"); got != 1 {
		t.Errorf("expected one index creation, got %d", got)
	}
}

func TestStore_InsertGeneratesID(t *testing.T) {
	s, _ := newTestStore(t)

	id, err := s.Insert(context.Background(), note(1, "x"), "", notes)
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("expected a uuid id, got %q", id)
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, note(7, "hello"), "rt", notes); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	doc, err := s.GetOne(ctx, "rt", notes)
	if err != nil {
		t.Fatalf("GetOne() failed: %v", err)
	}
	if doc.ID != "rt" || doc.Version != 1 {
		t.Errorf("unexpected identity %q v%d", doc.ID, doc.Version)
	}
	if fmt.Sprint(doc.Fields["owner"]) != "7" || doc.Fields["body"] != "hello" {
		t.Errorf("unexpected fields %v", doc.Fields)
	}
	if _, ok := doc.Fields["updated_at"]; ok {
		t.Error("updated_at should be unset after insert")
	}
}

func TestStore_InsertDuplicate(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, note(1, "original"), "dup", notes); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	_, err := s.Insert(ctx, note(2, "overwrite"), "dup", notes)
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}

	src, _ := fake.Source("notes", "dup")
	if src["body"] != "original" {
		t.Errorf("first document was overwritten: %v", src)
	}
}

func TestStore_Update(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, note(1, "v1"), "up", notes); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	_, err := s.Update(ctx, store.Fields{"body": "v2", "colour": "red"}, "up", notes)
	if !errors.Is(err, errs.ErrInvalidField) {
		t.Fatalf("expected InvalidField, got %v", err)
	}
	if src, _ := fake.Source("notes", "up"); src["body"] != "v1" {
		t.Errorf("document changed despite rejected update: %v", src)
	}

	version, err := s.Update(ctx, store.Fields{"body": "v2"}, "up", notes)
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}

	if _, err := s.Update(ctx, store.Fields{"body": "v3"}, "missing", notes); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestStore_DeleteTwice(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Insert(ctx, note(1, "bye"), "del", notes); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if res, err := s.Delete(ctx, "del", notes); err != nil || res != store.DeleteResult {
		t.Fatalf("Delete() = %q, %v", res, err)
	}
	if _, err := s.Delete(ctx, "del", notes); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound on second delete, got %v", err)
	}
}

func TestStore_MissingIndex(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetOne(ctx, "x", notes); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("GetOne: expected NotFound, got %v", err)
	}
	if _, err := s.Update(ctx, store.Fields{"body": "x"}, "x", notes); !errors.Is(err, errs.ErrNotFound) {
		t.Errorf("Update: expected NotFound, got %v", err)
	}
	docs, total, err := s.ListPage(ctx, store.MatchAll(), 10, 1, notes)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if len(docs) != 0 || total != 0 {
		t.Errorf("expected empty page, got %d/%d", len(docs), total)
	}
}

func TestStore_ListPage(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		owner := 1
		if i%5 == 0 {
			owner = 2
		}
		if _, err := s.Insert(ctx, note(owner, fmt.Sprintf("n%02d", i)), fmt.Sprintf("id-%02d", i), notes); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	tests := []struct {
		name      string
		filter    store.Filter
		page      int
		wantLen   int
		wantTotal int64
	}{
		{name: "first page", filter: store.MatchAll(), page: 1, wantLen: 10, wantTotal: 25},
		{name: "third page", filter: store.MatchAll(), page: 3, wantLen: 5, wantTotal: 25},
		{name: "fourth page", filter: store.MatchAll(), page: 4, wantLen: 0, wantTotal: 25},
		{name: "term filter", filter: store.Where("owner", 2), page: 1, wantLen: 5, wantTotal: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, total, err := s.ListPage(ctx, tt.filter, 10, tt.page, notes)
			if err != nil {
				t.Fatalf("ListPage() failed: %v", err)
			}
			if len(docs) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(docs), tt.wantLen)
			}
			if total != tt.wantTotal {
				t.Errorf("total = %d, want %d", total, tt.wantTotal)
			}
		})
	}

	t.Run("sorted descending", func(t *testing.T) {
		docs, _, err := s.ListPage(ctx, store.MatchAll().SortBy("body", store.Desc), 2, 1, notes)
		if err != nil {
			t.Fatalf("ListPage() failed: %v", err)
		}
		if len(docs) != 2 || docs[0].ID != "id-24" {
			t.Errorf("unexpected order %+v", docs)
		}
	})

	t.Run("complex term value is rejected", func(t *testing.T) {
		_, _, err := s.ListPage(ctx, store.Where("owner", map[string]int{"gt": 1}), 10, 1, notes)
		if !errors.Is(err, errs.ErrMalformedQuery) {
			t.Fatalf("expected MalformedQuery, got %v", err)
		}
	})

	t.Run("page zero is rejected", func(t *testing.T) {
		_, _, err := s.ListPage(ctx, store.MatchAll(), 10, 0, notes)
		if !errors.Is(err, errs.ErrMalformedQuery) {
			t.Fatalf("expected MalformedQuery, got %v", err)
		}
	})

	t.Run("overflowing page is rejected", func(t *testing.T) {
		_, _, err := s.ListPage(ctx, store.MatchAll(), 10, math.MaxInt/5, notes)
		if !errors.Is(err, errs.ErrMalformedQuery) {
			t.Fatalf("expected MalformedQuery, got %v", err)
		}
	})
}

func TestStore_BackendFailures(t *testing.T) {
	s, fake := newTestStore(t)
	fake.FailWith(http.StatusServiceUnavailable)

	_, err := s.GetOne(context.Background(), "x", notes)
	if !errors.Is(err, errs.ErrServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}

func TestStore_UnreachableNode(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addresses = []string{"http://127.0.0.1:1"}
	cfg.Timeout = time.Second

	s, err := Open(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), noteSchema)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}

	_, err = s.GetOne(context.Background(), "x", notes)
	if !errors.Is(err, errs.ErrServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}

func TestStore_UnknownRecordType(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Insert(context.Background(), note(1, "x"), "", store.Collection{Name: "notes", RecordType: "memo"})
	if !errors.Is(err, errs.ErrMalformedQuery) {
		t.Fatalf("expected MalformedQuery, got %v", err)
	}
}
