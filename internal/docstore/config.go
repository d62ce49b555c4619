package docstore

import (
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config holds the settings for the Elasticsearch adapter.
type Config struct {
	Addresses []string
	Username  string
	Password  string

	// Timeout bounds every adapter call.
	Timeout time.Duration

	// Refresh makes writes visible to search before they return, so a
	// ListPage right after a write observes it.
	Refresh bool

	// Shards and Replicas apply to lazily created indices.
	Shards   int
	Replicas int

	// Transport overrides the HTTP transport, mostly for tests.
	Transport http.RoundTripper
}

// DefaultConfig returns a Config pointing at a local node.
func DefaultConfig() Config {
	return Config{
		Addresses: []string{"http://elasticsearch:9200"},
		Timeout:   5 * time.Second,
		Refresh:   true,
		Shards:    1,
		Replicas:  0,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Addresses, validation.Required, validation.Each(validation.Required)),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.Shards, validation.Min(0)),
		validation.Field(&c.Replicas, validation.Min(0)),
	)
}
