package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/goliatone/go-record-services/internal/sqlstore"
)

func lookupMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(lookupMap(nil))
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.Environment != Local {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.SQL.Driver != sqlstore.DriverSQLite || !cfg.SQL.Echo {
		t.Errorf("unexpected sql config %+v", cfg.SQL)
	}
	if cfg.UserAPI.BaseURL != "http://user_api:7000/v1" {
		t.Errorf("UserAPI.BaseURL = %q", cfg.UserAPI.BaseURL)
	}
	if len(cfg.Elasticsearch.Addresses) != 1 || cfg.Elasticsearch.Addresses[0] != "http://elasticsearch:9200" {
		t.Errorf("Elasticsearch.Addresses = %v", cfg.Elasticsearch.Addresses)
	}
	if cfg.HTTP.Addr != ":8000" || cfg.EnrichConcurrency != 8 {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadFrom_Prod(t *testing.T) {
	cfg, err := LoadFrom(lookupMap(map[string]string{
		"ENVIRONMENT":  "prod",
		"DATABASE_URL": "postgres://u:p@db:5432/users",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.Environment != Prod {
		t.Errorf("Environment = %q", cfg.Environment)
	}
	if cfg.SQL.Driver != sqlstore.DriverPostgres || cfg.SQL.DSN != "postgres://u:p@db:5432/users" {
		t.Errorf("unexpected sql config %+v", cfg.SQL)
	}
	if cfg.SQL.Echo {
		t.Error("expected statement logging off in PROD")
	}
}

func TestLoadFrom_Overrides(t *testing.T) {
	cfg, err := LoadFrom(lookupMap(map[string]string{
		"HTTP_ADDR":               ":9000",
		"ELASTICSEARCH_ADDRESSES": "http://es1:9200, http://es2:9200,",
		"DATABASE_DRIVER":         "pgx",
		"SQLITE_DSN":              "postgres://localhost/users",
		"RESET_DB":                "true",
		"SQL_ECHO":                "false",
		"USER_API_TIMEOUT":        "500ms",
		"CACHE_TTL":               "1m",
		"ENRICH_CONCURRENCY":      "2",
		"LOG_LEVEL":               "debug",
	}))
	if err != nil {
		t.Fatalf("LoadFrom() failed: %v", err)
	}
	if cfg.HTTP.Addr != ":9000" {
		t.Errorf("HTTP.Addr = %q", cfg.HTTP.Addr)
	}
	if got := strings.Join(cfg.Elasticsearch.Addresses, " "); got != "http://es1:9200 http://es2:9200" {
		t.Errorf("Elasticsearch.Addresses = %q", got)
	}
	if cfg.SQL.Driver != sqlstore.DriverPGX || !cfg.SQL.Reset || cfg.SQL.Echo {
		t.Errorf("unexpected sql config %+v", cfg.SQL)
	}
	if cfg.UserAPI.Timeout != 500*time.Millisecond || cfg.Cache.TTL != time.Minute {
		t.Errorf("unexpected timeouts %v %v", cfg.UserAPI.Timeout, cfg.Cache.TTL)
	}
	if cfg.EnrichConcurrency != 2 || cfg.LogLevel != slog.LevelDebug {
		t.Errorf("unexpected config %+v", cfg)
	}
}

func TestLoadFrom_Errors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "malformed integer", env: map[string]string{"CACHE_CAPACITY": "lots"}, want: "CACHE_CAPACITY"},
		{name: "malformed duration", env: map[string]string{"USER_API_TIMEOUT": "3"}, want: "USER_API_TIMEOUT"},
		{name: "malformed boolean", env: map[string]string{"RESET_DB": "maybe"}, want: "RESET_DB"},
		{name: "unknown environment", env: map[string]string{"ENVIRONMENT": "STAGING"}, want: "Environment"},
		{name: "unknown driver", env: map[string]string{"DATABASE_DRIVER": "mysql"}, want: "SQL"},
		{name: "zero concurrency", env: map[string]string{"ENRICH_CONCURRENCY": "0"}, want: "EnrichConcurrency"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFrom(lookupMap(tt.env))
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
