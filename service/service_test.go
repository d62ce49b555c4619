package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"

	"github.com/goliatone/go-record-services/aggregate"
	"github.com/goliatone/go-record-services/cache"
	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/internal/docstore"
	"github.com/goliatone/go-record-services/internal/sqlstore"
	"github.com/goliatone/go-record-services/lookup"
	"github.com/goliatone/go-record-services/pkg/testsupport"
	"github.com/goliatone/go-record-services/repository"
	"github.com/goliatone/go-record-services/repositorycache"
	"github.com/shopspring/decimal"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func newOrderService(t *testing.T) (*Orders, *testsupport.FakeUserService) {
	t.Helper()

	fake := testsupport.NewFakeElasticsearch(t)
	cfg := docstore.DefaultConfig()
	cfg.Addresses = []string{fake.URL()}
	s, err := docstore.Open(cfg, discard, repository.OrderSchema)
	if err != nil {
		t.Fatalf("docstore.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	userSvc := testsupport.NewFakeUserService(t)
	lcfg := lookup.DefaultConfig()
	lcfg.BaseURL = userSvc.URL()
	client, err := lookup.NewHTTPClient(lcfg, discard)
	if err != nil {
		t.Fatalf("lookup.NewHTTPClient() failed: %v", err)
	}

	c, err := cache.New(cache.DefaultConfig())
	if err != nil {
		t.Fatalf("cache.New() failed: %v", err)
	}

	orders := repository.NewOrders(s)
	pipeline := aggregate.New(orders, client, c, aggregate.DefaultConfig(), discard)
	return NewOrders(orders, client, pipeline, discard), userSvc
}

func order(userID int64) repository.Order {
	o := repository.Order{
		UserID:          userID,
		ItemDescription: "keyboard",
		ItemQuantity:    2,
		ItemPrice:       decimal.RequireFromString("49.90"),
	}
	o.TotalValue = o.Subtotal()
	return o
}

func TestOrders_CreateRequiresKnownUser(t *testing.T) {
	svc, users := newOrderService(t)
	ctx := context.Background()
	c := repository.OrderCollection()

	if _, err := svc.Create(ctx, c, "o-1", order(1)); !errors.Is(err, errs.ErrUserNotFound) {
		t.Fatalf("expected UserNotFound, got %v", err)
	}

	testsupport.SeedUsers(t, users, "ana")
	id, err := svc.Create(ctx, c, "o-1", order(1))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if id != "o-1" {
		t.Errorf("id = %q", id)
	}

	got, err := svc.Get(ctx, c, id)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !got.TotalValue.Equal(decimal.RequireFromString("99.8")) {
		t.Errorf("total = %s", got.TotalValue)
	}
}

func TestOrders_UpdateValidatesChangedUser(t *testing.T) {
	svc, users := newOrderService(t)
	ctx := context.Background()
	c := repository.OrderCollection()

	testsupport.SeedUsers(t, users, "ana")
	if _, err := svc.Create(ctx, c, "o-1", order(1)); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}

	missing := int64(2)
	if _, err := svc.Update(ctx, c, "o-1", repository.OrderPatch{UserID: &missing}); !errors.Is(err, errs.ErrUserNotFound) {
		t.Fatalf("expected UserNotFound, got %v", err)
	}
	if _, err := svc.Update(ctx, c, "o-1", repository.RawPatch{"user_id": float64(2)}); !errors.Is(err, errs.ErrUserNotFound) {
		t.Fatalf("expected UserNotFound for a raw patch, got %v", err)
	}

	desc := "mechanical keyboard"
	version, err := svc.Update(ctx, c, "o-1", repository.OrderPatch{ItemDescription: &desc})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if version != 2 {
		t.Errorf("version = %d, want 2", version)
	}
	if users.Calls("2") != 2 {
		t.Errorf("expected both patches to look up user 2, got %d", users.Calls("2"))
	}
}

func TestOrders_LookupOutageIsServiceUnavailable(t *testing.T) {
	svc, users := newOrderService(t)
	users.FailWith(502)

	_, err := svc.Create(context.Background(), repository.OrderCollection(), "", order(1))
	if !errors.Is(err, errs.ErrServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}

func TestOrders_DeleteAndList(t *testing.T) {
	svc, users := newOrderService(t)
	ctx := context.Background()
	c := repository.OrderCollection()

	testsupport.SeedUsers(t, users, "ana")
	for i := 0; i < 3; i++ {
		if _, err := svc.Create(ctx, c, fmt.Sprintf("o-%d", i), order(1)); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
	}
	if _, err := svc.Delete(ctx, c, "o-0"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := svc.Delete(ctx, c, "o-0"); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound on second delete, got %v", err)
	}

	page, err := svc.List(ctx, aggregate.Query{
		Collection: c,
		PageSize:   10,
		PageNumber: 1,
		URL:        "http://api/v1/order/orders/order",
	})
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if len(page.Result.Orders) != 2 {
		t.Errorf("expected 2 orders, got %d", len(page.Result.Orders))
	}
	if page.Result.User == nil || page.Result.User.Name != "Ana" {
		t.Errorf("unexpected user %+v", page.Result.User)
	}
}

func newUserService(t *testing.T) *Users {
	t.Helper()

	cfg := sqlstore.DefaultConfig()
	cfg.DSN = fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := sqlstore.Open(context.Background(), cfg, discard, repository.UserSchema)
	if err != nil {
		t.Fatalf("sqlstore.Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ccfg := cache.DefaultConfig()
	ccfg.EarlyRefresh = nil
	ccfg.MissingRecordStorage = false
	c, err := cache.New(ccfg)
	if err != nil {
		t.Fatalf("cache.New() failed: %v", err)
	}
	return NewUsers(repositorycache.New[repository.User](repository.NewUsers(s), c), discard)
}

func user(name, cpf string) repository.User {
	return repository.User{Name: name, CPF: cpf, PhoneNumber: "1198765432"}
}

func TestUsers_CreateReturnsStoredRecord(t *testing.T) {
	svc := newUserService(t)

	u, err := svc.Create(context.Background(), user("Ana", "123.456.789-01"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if u.ID == 0 {
		t.Error("expected an assigned id")
	}
	if u.CPF != "12345678901" {
		t.Errorf("cpf = %q", u.CPF)
	}
	if u.CreatedAt.IsZero() {
		t.Error("expected created_at to be set")
	}
}

func TestUsers_DuplicateCPFNamesTheValue(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, user("Ana", "12345678901")); err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	_, err := svc.Create(ctx, user("Bia", "12345678901"))
	if !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("expected AlreadyExists, got %v", err)
	}

	found := false
	for _, d := range errs.ToPayload(err).ErrorDetails {
		if strings.Contains(d.Message, "12345678901") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a detail naming the repeated cpf, got %+v", errs.ToPayload(err).ErrorDetails)
	}
}

func TestUsers_UpdateIsVisibleThroughCache(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	u, err := svc.Create(ctx, user("Ana", "12345678901"))
	if err != nil {
		t.Fatalf("Create() failed: %v", err)
	}
	if _, err := svc.Get(ctx, u.ID); err != nil {
		t.Fatalf("Get() failed: %v", err)
	}

	name := "Ana Maria"
	if err := svc.Update(ctx, u.ID, repository.UserPatch{Name: &name}); err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	got, err := svc.Get(ctx, u.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.Name != name {
		t.Errorf("name = %q, want %q", got.Name, name)
	}
	if got.UpdatedAt == nil {
		t.Error("expected updated_at to be set")
	}
}

func TestUsers_DeleteAndList(t *testing.T) {
	svc := newUserService(t)
	ctx := context.Background()

	var ids []int64
	for i := 0; i < 3; i++ {
		u, err := svc.Create(ctx, user("user-"+strconv.Itoa(i), fmt.Sprintf("1234567890%d", i)))
		if err != nil {
			t.Fatalf("Create(%d) failed: %v", i, err)
		}
		ids = append(ids, u.ID)
	}

	if _, err := svc.Delete(ctx, ids[0]); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, err := svc.Get(ctx, ids[0]); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("expected NotFound after delete, got %v", err)
	}

	list, total, err := svc.List(ctx, 10, 1)
	if err != nil {
		t.Fatalf("List() failed: %v", err)
	}
	if total != 2 || len(list) != 2 {
		t.Fatalf("expected 2 users, got %d of %d", len(list), total)
	}
	if list[0].ID != ids[1] || list[1].ID != ids[2] {
		t.Errorf("expected id order %v, got %d,%d", ids[1:], list[0].ID, list[1].ID)
	}
}
