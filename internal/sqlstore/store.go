package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"reflect"
	"strconv"

	"github.com/goliatone/go-record-services/errs"
	"github.com/goliatone/go-record-services/store"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

// Store implements store.Adapter over a relational database through bun.
// Every call acquires one connection from the pool and releases it before
// returning.
type Store struct {
	db      *bun.DB
	cfg     Config
	schemas map[string]store.Schema
	logger  *slog.Logger
}

var _ store.Adapter = (*Store)(nil)

// Open connects to the database described by cfg and registers the table
// schemas the store serves. Tables are created lazily on first insert, or
// eagerly when cfg.Reset is set.
func Open(ctx context.Context, cfg Config, logger *slog.Logger, schemas ...store.Schema) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("sqlstore: invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	sqldb, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", cfg.Driver, err)
	}

	var dialect schema.Dialect
	if cfg.isSQLite() {
		// sqlite serializes writers; a single connection also keeps
		// in-memory databases alive across calls.
		sqldb.SetMaxOpenConns(1)
		dialect = sqlitedialect.New()
	} else {
		if cfg.MaxOpenConns > 0 {
			sqldb.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		dialect = pgdialect.New()
	}

	db := bun.NewDB(sqldb, dialect)
	if cfg.Echo {
		db.AddQueryHook(&logHook{logger: logger})
	}

	s := &Store{
		db:      db,
		cfg:     cfg,
		schemas: make(map[string]store.Schema, len(schemas)),
		logger:  logger,
	}
	for _, sc := range schemas {
		s.schemas[sc.Name] = sc
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, translate("ping", cfg.Driver, err)
	}

	if cfg.Reset {
		if err := s.Reset(ctx); err != nil {
			db.Close()
			return nil, err
		}
	}

	logger.Info("sqlstore: connected", "driver", cfg.Driver, "tables", len(s.schemas))
	return s, nil
}

// DB exposes the bun handle for migrations and tests.
func (s *Store) DB() *bun.DB { return s.db }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// Reset drops and recreates every registered table.
func (s *Store) Reset(ctx context.Context) error {
	for _, sc := range s.schemas {
		err := s.withConn(ctx, "reset", sc.Name, func(ctx context.Context, conn bun.Conn) error {
			if _, err := conn.NewDropTable().Model(sc.Model).IfExists().Exec(ctx); err != nil {
				return err
			}
			return createTable(ctx, conn, sc)
		})
		if err != nil {
			return err
		}
		s.logger.Warn("sqlstore: table reset", "table", sc.Name)
	}
	return nil
}

// withConn runs fn on a connection acquired under the configured timeout and
// always returns the connection to the pool.
func (s *Store) withConn(ctx context.Context, op, table string, fn func(context.Context, bun.Conn) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return translate(op, table, err)
	}
	defer conn.Close()

	return translate(op, table, fn(ctx, conn))
}

func (s *Store) schema(c store.Collection) (store.Schema, error) {
	sc, ok := s.schemas[c.Name]
	if !ok {
		return store.Schema{}, errs.MalformedQuery("unknown collection", fmt.Sprintf("table %q is not registered", c.Name))
	}
	return sc, nil
}

func createTable(ctx context.Context, conn bun.Conn, sc store.Schema) error {
	if sc.Model == nil {
		return fmt.Errorf("table %s has no model to provision from", sc.Name)
	}
	_, err := conn.NewCreateTable().Model(sc.Model).IfNotExists().Exec(ctx)
	return err
}

// Insert creates a row. A missing table is created and the insert retried
// once. An empty id lets the database assign the primary key.
func (s *Store) Insert(ctx context.Context, fields store.Fields, id string, c store.Collection) (string, error) {
	sc, err := s.schema(c)
	if err != nil {
		return "", err
	}
	if unknown := sc.Unknown(fields); len(unknown) > 0 {
		return "", invalidFields(sc.Name, unknown)
	}

	values := map[string]interface{}(fields.Clone())
	if id != "" {
		values[sc.Key] = id
	}

	var newID int64
	err = s.withConn(ctx, "insert", sc.Name, func(ctx context.Context, conn bun.Conn) error {
		insert := func() error {
			return conn.NewInsert().
				Model(&values).
				TableExpr("?", bun.Ident(sc.Name)).
				Returning("?", bun.Ident(sc.Key)).
				Scan(ctx, &newID)
		}

		err := insert()
		if classify(err) != failureMissingTable {
			return err
		}
		s.logger.InfoContext(ctx, "sqlstore: provisioning table", "table", sc.Name)
		if err := createTable(ctx, conn, sc); err != nil {
			return err
		}
		return insert()
	})
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(newID, 10), nil
}

// GetOne returns the row with the given primary key.
func (s *Store) GetOne(ctx context.Context, id string, c store.Collection) (store.Document, error) {
	sc, err := s.schema(c)
	if err != nil {
		return store.Document{}, err
	}

	var rows []map[string]interface{}
	err = s.withConn(ctx, "get", sc.Name, func(ctx context.Context, conn bun.Conn) error {
		err := conn.NewSelect().
			TableExpr("?", bun.Ident(sc.Name)).
			Where("? = ?", bun.Ident(sc.Key), id).
			Limit(1).
			Scan(ctx, &rows)
		if classify(err) == failureMissingTable {
			return nil
		}
		return err
	})
	if err != nil {
		return store.Document{}, err
	}
	if len(rows) == 0 {
		return store.Document{}, notFound(sc.Name, id)
	}
	return toDocument(sc, rows[0]), nil
}

// Update applies fields to the row with the given primary key. The whole
// update is rejected when any field is not a column of the table. Relational
// rows carry no version, so a successful update reports 1.
func (s *Store) Update(ctx context.Context, fields store.Fields, id string, c store.Collection) (int64, error) {
	sc, err := s.schema(c)
	if err != nil {
		return 0, err
	}

	err = s.withConn(ctx, "update", sc.Name, func(ctx context.Context, conn bun.Conn) error {
		matched, err := conn.NewSelect().
			TableExpr("?", bun.Ident(sc.Name)).
			Where("? = ?", bun.Ident(sc.Key), id).
			Count(ctx)
		if classify(err) == failureMissingTable {
			return notFound(sc.Name, id)
		}
		if err != nil {
			return err
		}
		if matched == 0 {
			return notFound(sc.Name, id)
		}

		unknown := sc.Unknown(fields)
		if _, ok := fields[sc.Key]; ok {
			unknown = append(unknown, sc.Key)
		}
		if len(unknown) > 0 {
			return invalidFields(sc.Name, unknown)
		}
		if len(fields) == 0 {
			return nil
		}

		values := map[string]interface{}(fields.Clone())
		res, err := conn.NewUpdate().
			Model(&values).
			TableExpr("?", bun.Ident(sc.Name)).
			Where("? = ?", bun.Ident(sc.Key), id).
			Exec(ctx)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return notFound(sc.Name, id)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return 1, nil
}

// Delete removes the row with the given primary key.
func (s *Store) Delete(ctx context.Context, id string, c store.Collection) (string, error) {
	sc, err := s.schema(c)
	if err != nil {
		return "", err
	}

	err = s.withConn(ctx, "delete", sc.Name, func(ctx context.Context, conn bun.Conn) error {
		res, err := conn.NewDelete().
			TableExpr("?", bun.Ident(sc.Name)).
			Where("? = ?", bun.Ident(sc.Key), id).
			Exec(ctx)
		if classify(err) == failureMissingTable {
			return notFound(sc.Name, id)
		}
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return notFound(sc.Name, id)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return store.DeleteResult, nil
}

// ListPage returns one page of rows matching filter and the exact number of
// matching rows, counted separately with the same predicates.
func (s *Store) ListPage(ctx context.Context, filter store.Filter, pageSize, pageNumber int, c store.Collection) ([]store.Document, int64, error) {
	sc, err := s.schema(c)
	if err != nil {
		return nil, 0, err
	}
	offset, err := store.Offset(pageSize, pageNumber)
	if err != nil {
		return nil, 0, err
	}
	if err := checkFilter(sc, filter); err != nil {
		return nil, 0, err
	}

	var (
		rows  []map[string]interface{}
		total int
	)
	err = s.withConn(ctx, "list", sc.Name, func(ctx context.Context, conn bun.Conn) error {
		count := conn.NewSelect().TableExpr("?", bun.Ident(sc.Name))
		applyPredicates(count, filter)
		n, err := count.Count(ctx)
		if classify(err) == failureMissingTable {
			return nil
		}
		if err != nil {
			return err
		}
		total = n

		page := conn.NewSelect().TableExpr("?", bun.Ident(sc.Name))
		applyPredicates(page, filter)
		if filter.Order != nil {
			page.OrderExpr("? "+direction(filter.Order.Direction), bun.Ident(filter.Order.Field))
		} else {
			page.OrderExpr("? ASC", bun.Ident(sc.Key))
		}
		return page.Limit(pageSize).Offset(offset).Scan(ctx, &rows)
	})
	if err != nil {
		return nil, 0, err
	}

	docs := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, toDocument(sc, row))
	}
	return docs, int64(total), nil
}

func applyPredicates(q *bun.SelectQuery, filter store.Filter) {
	for _, p := range filter.Predicates {
		q.Where("? = ?", bun.Ident(p.Field), p.Value)
	}
}

func direction(d store.Direction) string {
	if d == store.Desc {
		return "DESC"
	}
	return "ASC"
}

func checkFilter(sc store.Schema, filter store.Filter) error {
	for _, p := range filter.Predicates {
		if !sc.Has(p.Field) {
			return errs.MalformedQuery("malformed query", fmt.Sprintf("%s has no column %q", sc.Name, p.Field))
		}
		if !isScalar(p.Value) {
			return errs.MalformedQuery("malformed query", fmt.Sprintf("predicate on %q must compare a scalar value", p.Field))
		}
	}
	if filter.Order != nil {
		if !sc.Has(filter.Order.Field) {
			return errs.MalformedQuery("malformed query", fmt.Sprintf("%s has no column %q to order by", sc.Name, filter.Order.Field))
		}
		if d := filter.Order.Direction; d != "" && d != store.Asc && d != store.Desc {
			return errs.MalformedQuery("malformed query", fmt.Sprintf("unknown order direction %q", d))
		}
	}
	return nil
}

func isScalar(v any) bool {
	if v == nil {
		return false
	}
	switch reflect.TypeOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Func, reflect.Chan:
		_, isStringer := v.(fmt.Stringer)
		return isStringer
	}
	return true
}

func toDocument(sc store.Schema, row map[string]interface{}) store.Document {
	doc := store.Document{Fields: make(store.Fields, len(row))}
	for col, v := range row {
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		if col == sc.Key {
			doc.ID = fmt.Sprint(v)
			continue
		}
		doc.Fields[col] = v
	}
	return doc
}

func notFound(table, id string) error {
	return errs.NotFound("record not found", fmt.Sprintf("no row in %s with id %s", table, id))
}

func invalidFields(table string, names []string) error {
	e := errs.InvalidField("invalid field")
	for _, n := range names {
		e.WithDetail(fmt.Sprintf("%s has no attribute %q", table, n))
	}
	return e
}
