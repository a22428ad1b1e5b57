// Package database converges a PostgreSQL instance towards the desired
// application state: role, database, grants, schema and seed rows. Every
// operation tolerates being run against an instance that already satisfies
// it.
package database

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/lib/pq"
)

// ErrPartialFailure reports that one or more statements failed while the
// rest of the sequence was still applied.
var ErrPartialFailure = errors.New("some statements failed")

// DBExecutor represents a database connection that can execute queries
type DBExecutor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// isAlreadyExists reports whether err means the object was created by an
// earlier run. Duplicate objects are success for an idempotent provisioner.
func isAlreadyExists(err error) bool {
	if err == nil {
		return false
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "42P04", // duplicate_database
			"42P06", // duplicate_schema
			"42P07", // duplicate_table
			"42710", // duplicate_object
			"42712": // duplicate_alias
			return true
		}
	}

	return strings.Contains(err.Error(), "already exists")
}
