package lookup

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/pkg/testsupport"
)

const anaPayload = `{"id_user":1,"name":"Ana","cpf":"12345678901","email":"ana@example.com","phone_number":"1198765432","created_at":"2024-03-01T12:00:00Z","updated_at":null}`

func newClient(t *testing.T, base string, timeout time.Duration) *HTTPClient {
	t.Helper()

	cfg := DefaultConfig()
	cfg.BaseURL = base
	cfg.Timeout = timeout
	c, err := NewHTTPClient(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("NewHTTPClient() failed: %v", err)
	}
	return c
}

func TestHTTPClient_FetchUser(t *testing.T) {
	fake := testsupport.NewFakeUserService(t)
	fake.Put("1", anaPayload)
	c := newClient(t, fake.URL(), time.Second)

	u, err := c.FetchUser(context.Background(), 1)
	if err != nil {
		t.Fatalf("FetchUser() failed: %v", err)
	}
	if u.ID != 1 || u.Name != "Ana" || u.CPF != "12345678901" {
		t.Errorf("unexpected user %+v", u)
	}
	if u.Email == nil || *u.Email != "ana@example.com" {
		t.Errorf("email = %v", u.Email)
	}
	if u.UpdatedAt != nil {
		t.Errorf("updated_at = %v, want nil", u.UpdatedAt)
	}
	if fake.Calls("1") != 1 {
		t.Errorf("expected one call, got %d", fake.Calls("1"))
	}
}

func TestHTTPClient_ErrorSplit(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*testsupport.FakeUserService)
		want  error
	}{
		{
			name:  "unknown user",
			setup: func(*testsupport.FakeUserService) {},
			want:  errs.ErrUserNotFound,
		},
		{
			name:  "client error",
			setup: func(f *testsupport.FakeUserService) { f.FailWith(http.StatusBadRequest) },
			want:  errs.ErrUserNotFound,
		},
		{
			name:  "server error",
			setup: func(f *testsupport.FakeUserService) { f.FailWith(http.StatusInternalServerError) },
			want:  errs.ErrServiceUnavailable,
		},
		{
			name:  "bad gateway",
			setup: func(f *testsupport.FakeUserService) { f.FailWith(http.StatusBadGateway) },
			want:  errs.ErrServiceUnavailable,
		},
		{
			name:  "undecodable body",
			setup: func(f *testsupport.FakeUserService) { f.RespondRaw("<html>oops</html>") },
			want:  errs.ErrServiceUnavailable,
		},
		{
			name:  "missing result",
			setup: func(f *testsupport.FakeUserService) { f.RespondRaw(`{"status":"ok"}`) },
			want:  errs.ErrServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := testsupport.NewFakeUserService(t)
			tt.setup(fake)
			c := newClient(t, fake.URL(), time.Second)

			_, err := c.FetchUser(context.Background(), 42)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if fake.Calls("42") != 1 {
				t.Errorf("expected a single attempt, got %d", fake.Calls("42"))
			}
		})
	}
}

func TestHTTPClient_Timeout(t *testing.T) {
	fake := testsupport.NewFakeUserService(t)
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	fake.Intercept(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	c := newClient(t, fake.URL(), 50*time.Millisecond)

	_, err := c.FetchUser(context.Background(), 7)
	if !errors.Is(err, errs.ErrServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}

func TestHTTPClient_Unreachable(t *testing.T) {
	c := newClient(t, "http://127.0.0.1:1/v1", time.Second)

	_, err := c.FetchUser(context.Background(), 1)
	if !errors.Is(err, errs.ErrServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}

	cfg := DefaultConfig()
	cfg.BaseURL = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for an empty base url")
	}

	cfg = DefaultConfig()
	cfg.Timeout = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected an error for a zero timeout")
	}
}
