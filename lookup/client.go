// Package lookup resolves users owned by the user service for the order side.
package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/goliatone/go-record-services/errs"
)

// User is the user payload as served by the user service.
type User struct {
	ID          int64   `json:"id_user" msgpack:"id_user"`
	Name        string  `json:"name" msgpack:"name"`
	CPF         string  `json:"cpf" msgpack:"cpf"`
	Email       *string `json:"email" msgpack:"email"`
	PhoneNumber string  `json:"phone_number" msgpack:"phone_number"`
	CreatedAt   string  `json:"created_at" msgpack:"created_at"`
	UpdatedAt   *string `json:"updated_at" msgpack:"updated_at"`
}

// Users fetches a user by id.
//
// A user the service does not know (404 or any other 4xx) is reported as
// errs.UserNotFound. Every other failure, including timeouts and bodies that
// cannot be decoded, is errs.ServiceUnavailable. Nothing is retried.
type Users interface {
	FetchUser(ctx context.Context, id int64) (User, error)
}

// Config configures the HTTP client.
type Config struct {
	BaseURL string
	Timeout time.Duration
	// Transport overrides the default round tripper, mostly for tests.
	Transport http.RoundTripper
}

// DefaultConfig points at the user service of the compose setup.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://user_api:7000/v1",
		Timeout: 3 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.BaseURL, validation.Required, is.RequestURL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
	)
}

// HTTPClient talks to the user service over HTTP.
type HTTPClient struct {
	base    string
	timeout time.Duration
	http    *http.Client
	logger  *slog.Logger
}

var _ Users = (*HTTPClient)(nil)

// NewHTTPClient validates cfg and builds a client.
func NewHTTPClient(cfg Config, logger *slog.Logger) (*HTTPClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("lookup config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	transport := cfg.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &HTTPClient{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    &http.Client{Transport: transport},
		logger:  logger,
	}, nil
}

type envelope struct {
	Result *User `json:"result"`
}

// FetchUser issues GET {base}/user/{id}.
func (c *HTTPClient) FetchUser(ctx context.Context, id int64) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.base + "/user/" + url.PathEscape(strconv.FormatInt(id, 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return User{}, errs.Wrap(errs.KindInternal, err, "user request could not be built")
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("user service unreachable", "user_id", id, "error", err)
		return User{}, unavailable(id, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("user service call", "user_id", id, "status", resp.StatusCode, "took", time.Since(start))

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		_, _ = io.Copy(io.Discard, resp.Body)
		return User{}, errs.UserNotFound("user not found", fmt.Sprintf("user %d does not exist", id))
	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		return User{}, unavailable(id, fmt.Errorf("unexpected status %d", resp.StatusCode))
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return User{}, unavailable(id, fmt.Errorf("decode user: %w", err))
	}
	if env.Result == nil {
		return User{}, unavailable(id, errors.New("response carries no result"))
	}
	return *env.Result, nil
}

func unavailable(id int64, cause error) error {
	return errs.Wrap(errs.KindServiceUnavailable, cause, "user service unavailable",
		fmt.Sprintf("user %d could not be fetched", id))
}
