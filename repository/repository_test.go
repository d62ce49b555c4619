package repository

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/internal/docstore"
	"github.com/goliatone/go-record-services/internal/sqlstore"
	"github.com/goliatone/go-record-services/pkg/testsupport"
	"github.com/goliatone/go-record-services/store"
	"github.com/shopspring/decimal"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func fixedClock() func() time.Time {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func newUsers(t *testing.T) *Users {
	t.Helper()

	cfg := sqlstore.DefaultConfig()
	cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := sqlstore.Open(context.Background(), cfg, discard, UserSchema)
	if err != nil {
		t.Fatalf("sqlstore.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewUsers(s).WithClock(fixedClock())
}

func newOrders(t *testing.T) *Orders {
	t.Helper()

	fake := testsupport.NewFakeElasticsearch(t)
	cfg := docstore.DefaultConfig()
	cfg.Addresses = []string{fake.URL()}
	s, err := docstore.Open(cfg, discard, OrderSchema)
	if err != nil {
		t.Fatalf("docstore.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return NewOrders(s).WithClock(fixedClock())
}

func strPtr(s string) *string { return &s }

func TestUsers_InsertSanitizesAndRoundTrips(t *testing.T) {
	users := newUsers(t)
	ctx := context.Background()

	id, err := users.Insert(ctx, User{
		Name:        "Ana",
		CPF:         "123.456.789-01",
		Email:       strPtr("ana@example.com"),
		PhoneNumber: "(11) 9876-5432",
	}, "")
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	got, err := users.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}
	if got.CPF != "12345678901" {
		t.Errorf("cpf = %q, want digits only", got.CPF)
	}
	if got.PhoneNumber != "1198765432" {
		t.Errorf("phone_number = %q, want digits only", got.PhoneNumber)
	}
	if got.Email == nil || *got.Email != "ana@example.com" {
		t.Errorf("email = %v", got.Email)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at should be stamped")
	}
	if got.UpdatedAt != nil {
		t.Errorf("updated_at should be unset, got %v", got.UpdatedAt)
	}
	if fmt.Sprint(got.ID) != id {
		t.Errorf("id = %d, want %s", got.ID, id)
	}
}

func TestUsers_DuplicateCPF(t *testing.T) {
	users := newUsers(t)
	ctx := context.Background()

	u := User{Name: "Ana", CPF: "12345678901", PhoneNumber: "1198765432"}
	if _, err := users.Insert(ctx, u, ""); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	u.CPF = "123.456.789-01"
	if _, err := users.Insert(ctx, u, ""); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}
}

func TestUsers_Update(t *testing.T) {
	users := newUsers(t)
	ctx := context.Background()

	id, err := users.Insert(ctx, User{Name: "Ana", CPF: "12345678901", PhoneNumber: "1198765432"}, "")
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	t.Run("patch is sanitized and stamped", func(t *testing.T) {
		if _, err := users.Update(ctx, id, UserPatch{PhoneNumber: strPtr("11-1111-2222")}); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		got, err := users.FindByID(ctx, id)
		if err != nil {
			t.Fatalf("FindByID() failed: %v", err)
		}
		if got.PhoneNumber != "1111112222" {
			t.Errorf("phone_number = %q", got.PhoneNumber)
		}
		if got.UpdatedAt == nil {
			t.Error("updated_at should be stamped")
		}
		if got.Name != "Ana" {
			t.Errorf("untouched field changed: %q", got.Name)
		}
	})

	t.Run("unknown field", func(t *testing.T) {
		_, err := users.Update(ctx, id, RawPatch{"nickname": "an"})
		if !errors.Is(err, errs.ErrInvalidField) {
			t.Fatalf("expected InvalidField, got %v", err)
		}
	})

	t.Run("created_at is immutable", func(t *testing.T) {
		_, err := users.Update(ctx, id, RawPatch{CreatedAtField: time.Now()})
		if !errors.Is(err, errs.ErrInvalidField) {
			t.Fatalf("expected InvalidField, got %v", err)
		}
	})

	t.Run("missing record", func(t *testing.T) {
		_, err := users.Update(ctx, "999", UserPatch{Name: strPtr("x")})
		if !errors.Is(err, errs.ErrNotFound) {
			t.Fatalf("expected NotFound, got %v", err)
		}
	})
}

func TestUsers_DeleteTwice(t *testing.T) {
	users := newUsers(t)
	ctx := context.Background()

	id, err := users.Insert(ctx, User{Name: "Ana", CPF: "12345678901", PhoneNumber: "1198765432"}, "")
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if res, err := users.Delete(ctx, id); err != nil || res != store.DeleteResult {
		t.Fatalf("Delete() = %q, %v", res, err)
	}
	if _, err := users.Delete(ctx, id); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
	if _, err := users.FindByID(ctx, id); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestUsers_FindAllPages(t *testing.T) {
	users := newUsers(t)
	ctx := context.Background()

	for i := 0; i < 25; i++ {
		u := User{Name: fmt.Sprintf("user-%02d", i), CPF: fmt.Sprintf("%011d", i), PhoneNumber: "1198765432"}
		if _, err := users.Insert(ctx, u, ""); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	for page, want := range map[int]int{1: 10, 2: 10, 3: 5, 4: 0} {
		got, total, err := users.FindAll(ctx, store.MatchAll(), 10, page)
		if err != nil {
			t.Fatalf("FindAll(page %d) failed: %v", page, err)
		}
		if len(got) != want || total != 25 {
			t.Errorf("page %d: got %d/%d, want %d/25", page, len(got), total, want)
		}
	}
}

func TestOrders_RoundTrip(t *testing.T) {
	orders := newOrders(t)
	ctx := context.Background()

	o := Order{
		UserID:          3,
		ItemDescription: "keyboard",
		ItemQuantity:    2,
		ItemPrice:       decimal.RequireFromString("49.90"),
	}
	o.TotalValue = o.Subtotal()
	id, err := orders.Insert(ctx, o, "")
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}

	got, err := orders.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}
	if got.ID != id || got.UserID != 3 || got.ItemQuantity != 2 {
		t.Errorf("unexpected order %+v", got)
	}
	if !got.TotalValue.Equal(decimal.RequireFromString("99.8")) {
		t.Errorf("total_value = %s, want 99.8", got.TotalValue)
	}
	if got.Version != 1 {
		t.Errorf("version = %d, want 1", got.Version)
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt != nil {
		t.Errorf("unexpected timestamps %v %v", got.CreatedAt, got.UpdatedAt)
	}
}

func TestOrders_ExplicitZeroTotalIsKept(t *testing.T) {
	orders := newOrders(t)
	ctx := context.Background()

	id, err := orders.Insert(ctx, Order{
		UserID:          3,
		ItemDescription: "voucher",
		ItemQuantity:    2,
		ItemPrice:       decimal.RequireFromString("49.90"),
		TotalValue:      decimal.Zero,
	}, "")
	if err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	got, err := orders.FindByID(ctx, id)
	if err != nil {
		t.Fatalf("FindByID() failed: %v", err)
	}
	if !got.TotalValue.IsZero() {
		t.Errorf("total_value = %s, want 0", got.TotalValue)
	}
}

func TestOrder_Subtotal(t *testing.T) {
	o := Order{ItemQuantity: 3, ItemPrice: decimal.RequireFromString("0.10")}
	if got := o.Subtotal(); !got.Equal(decimal.RequireFromString("0.3")) {
		t.Errorf("Subtotal() = %s, want 0.3", got)
	}
}

func TestOrders_UpdateAndFilter(t *testing.T) {
	orders := newOrders(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		o := Order{UserID: int64(i%2 + 1), ItemDescription: "pen", ItemQuantity: 1, ItemPrice: decimal.NewFromInt(2)}
		if _, err := orders.Insert(ctx, o, fmt.Sprintf("o-%d", i)); err != nil {
			t.Fatalf("Insert(%d) failed: %v", i, err)
		}
	}

	qty := 5
	version, err := orders.Update(ctx, "o-0", OrderPatch{ItemQuantity: &qty})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}

	if _, err := orders.Update(ctx, "o-0", RawPatch{"discount": 1}); !errors.Is(err, errs.ErrInvalidField) {
		t.Fatalf("expected InvalidField, got %v", err)
	}

	got, total, err := orders.FindAll(ctx, store.Where("user_id", 2), 10, 1)
	if err != nil {
		t.Fatalf("FindAll() failed: %v", err)
	}
	if total != 3 || len(got) != 3 {
		t.Fatalf("got %d/%d, want 3/3", len(got), total)
	}
	for _, o := range got {
		if o.UserID != 2 {
			t.Errorf("filter leaked order %+v", o)
		}
	}
}

func TestOrders_InCollection(t *testing.T) {
	orders := newOrders(t)
	ctx := context.Background()

	archive := orders.In(store.Collection{Name: "orders-archive", RecordType: OrderRecordType})
	if _, err := archive.Insert(ctx, Order{UserID: 1, ItemQuantity: 1}, "a-1"); err != nil {
		t.Fatalf("Insert() failed: %v", err)
	}
	if _, err := orders.FindByID(ctx, "a-1"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound in default index, got %v", err)
	}
	if _, err := archive.FindByID(ctx, "a-1"); err != nil {
		t.Fatalf("FindByID() in archive failed: %v", err)
	}
}
