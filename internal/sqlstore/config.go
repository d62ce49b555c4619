package sqlstore

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
	DriverPGX      = "pgx"
)

// Config holds the settings for the relational adapter.
type Config struct {
	// Driver is one of sqlite3, postgres (lib/pq) or pgx.
	Driver string
	DSN    string

	// Timeout bounds every adapter call, connection acquisition included.
	Timeout time.Duration

	// MaxOpenConns caps the pool. sqlite always runs with one connection.
	MaxOpenConns int

	// Echo logs every statement through the adapter logger.
	Echo bool

	// Reset drops and recreates every registered table on Open.
	Reset bool
}

// DefaultConfig returns a Config for a local sqlite database file.
func DefaultConfig() Config {
	return Config{
		Driver:       DriverSQLite,
		DSN:          "file:sql_app.db?cache=shared",
		Timeout:      5 * time.Second,
		MaxOpenConns: 10,
	}
}

// Validate checks the configuration values.
func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Driver, validation.Required, validation.In(DriverSQLite, DriverPostgres, DriverPGX)),
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Millisecond)),
		validation.Field(&c.MaxOpenConns, validation.Min(0)),
	)
}

func (c Config) isSQLite() bool { return c.Driver == DriverSQLite }
