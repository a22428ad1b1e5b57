package database

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/appforge/provision/internal/database/schema"
)

// IsProvisioned reports whether every application table already exists in
// the public schema of the connected database.
func IsProvisioned(ctx context.Context, db DBExecutor) (bool, error) {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	query, args, err := psql.Select("COUNT(*)").
		From("information_schema.tables").
		Where(sq.Eq{"table_schema": "public", "table_name": schema.TableNames}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build introspection query: %w", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}

	return count == len(schema.TableNames), nil
}
