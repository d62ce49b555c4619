package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/goliatone/go-record-services/errs"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

type failure uint8

const (
	failureOther failure = iota
	failureMissingTable
	failureUnique
	failureUnknownColumn
	failureBadValue
	failureUnavailable
)

// PostgreSQL SQLSTATE codes.
const (
	pgUniqueViolation  = "23505"
	pgUndefinedTable   = "42P01"
	pgUndefinedColumn  = "42703"
	pgInvalidText      = "22P02"
	pgConnectionPrefix = "08"
	pgShutdownPrefix   = "57P"
)

// classify inspects a driver error from any of the supported drivers.
func classify(err error) failure {
	if err == nil {
		return failureOther
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return failureUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return failureUnavailable
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return classifySQLite(sqliteErr)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPGCode(string(pqErr.Code))
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPGCode(pgErr.Code)
	}

	return failureOther
}

func classifySQLite(err sqlite3.Error) failure {
	switch err.Code {
	case sqlite3.ErrConstraint:
		if err.ExtendedCode == sqlite3.ErrConstraintUnique || err.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
			return failureUnique
		}
	case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrCantOpen:
		return failureUnavailable
	case sqlite3.ErrError:
		msg := err.Error()
		switch {
		case strings.Contains(msg, "no such table"):
			return failureMissingTable
		case strings.Contains(msg, "no such column"), strings.Contains(msg, "has no column named"):
			return failureUnknownColumn
		}
	}
	return failureOther
}

func classifyPGCode(code string) failure {
	switch {
	case code == pgUniqueViolation:
		return failureUnique
	case code == pgUndefinedTable:
		return failureMissingTable
	case code == pgUndefinedColumn:
		return failureUnknownColumn
	case code == pgInvalidText:
		return failureBadValue
	case strings.HasPrefix(code, pgConnectionPrefix), strings.HasPrefix(code, pgShutdownPrefix):
		return failureUnavailable
	}
	return failureOther
}

// translate maps err into the errs taxonomy. Errors that already belong to
// the taxonomy pass through.
func translate(op, table string, err error) error {
	if err == nil {
		return nil
	}
	var known *errs.Error
	if errors.As(err, &known) {
		return err
	}

	switch classify(err) {
	case failureUnique:
		return errs.Wrap(errs.KindAlreadyExists, err, "record already exists",
			fmt.Sprintf("%s on %s violates a unique constraint", op, table))
	case failureMissingTable:
		return errs.Wrap(errs.KindNotFound, err, "collection not found",
			fmt.Sprintf("table %s does not exist", table))
	case failureUnknownColumn:
		return errs.Wrap(errs.KindMalformedQuery, err, "malformed query",
			fmt.Sprintf("%s on %s references an unknown column", op, table))
	case failureBadValue:
		return errs.Wrap(errs.KindMalformedQuery, err, "malformed query",
			fmt.Sprintf("%s on %s received a value of the wrong type", op, table))
	case failureUnavailable:
		return errs.Wrap(errs.KindServiceUnavailable, err, "relational store unavailable",
			fmt.Sprintf("%s on %s could not reach the database", op, table))
	}
	return errs.Wrap(errs.KindInternal, err, "relational store failure", fmt.Sprintf("%s on %s failed", op, table))
}
