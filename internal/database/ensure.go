package database

import (
	"context"
	"fmt"

	"github.com/lib/pq"

	"github.com/appforge/provision/config"
	"github.com/appforge/provision/pkg/logger"
)

// EnsureDatabaseAndRole creates the application role and database if absent.
// The connection must be an admin connection to the maintenance database.
// An existing role gets its password updated so the emitted connection info
// always works.
func EnsureDatabaseAndRole(ctx context.Context, db DBExecutor, cfg *config.DatabaseConfig, log logger.Logger) error {
	if err := ensureRole(ctx, db, cfg, log); err != nil {
		return err
	}
	return ensureDatabase(ctx, db, cfg, log)
}

func ensureRole(ctx context.Context, db DBExecutor, cfg *config.DatabaseConfig, log logger.Logger) error {
	var exists bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_roles WHERE rolname = $1)", cfg.User).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if role exists: %w", err)
	}

	role := pq.QuoteIdentifier(cfg.User)
	password := pq.QuoteLiteral(cfg.Password)

	if exists {
		log.WithField("role", cfg.User).Info("Role already exists, updating password")
		_, err = db.ExecContext(ctx, fmt.Sprintf("ALTER ROLE %s WITH LOGIN PASSWORD %s", role, password))
		if err != nil {
			return fmt.Errorf("failed to update role password: %w", err)
		}
		return nil
	}

	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE ROLE %s WITH LOGIN PASSWORD %s", role, password))
	if err != nil {
		if isAlreadyExists(err) {
			log.WithField("role", cfg.User).Info("Role was created concurrently, continuing")
			return nil
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	log.WithField("role", cfg.User).Info("Created role")
	return nil
}

func ensureDatabase(ctx context.Context, db DBExecutor, cfg *config.DatabaseConfig, log logger.Logger) error {
	var exists bool
	err := db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM pg_database WHERE datname = $1)", cfg.DBName).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check if database exists: %w", err)
	}

	if exists {
		log.WithField("database", cfg.DBName).Info("Database already exists")
		return nil
	}

	name := pq.QuoteIdentifier(cfg.DBName)
	owner := pq.QuoteIdentifier(cfg.User)

	_, err = db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s OWNER %s", name, owner))
	if err != nil {
		if isAlreadyExists(err) {
			log.WithField("database", cfg.DBName).Info("Database was created concurrently, continuing")
			return nil
		}
		return fmt.Errorf("failed to create database: %w", err)
	}

	log.WithField("database", cfg.DBName).Info("Created database")
	return nil
}

// GrantPrivileges grants the application role the fixed privilege set on the
// public schema, its current objects, and (via default privileges) objects
// created in the future. The connection must target the application
// database. Individual statement failures are logged and the remaining
// statements still run; the result is ErrPartialFailure rather than an
// abort.
func GrantPrivileges(ctx context.Context, db DBExecutor, cfg *config.DatabaseConfig, log logger.Logger) error {
	role := pq.QuoteIdentifier(cfg.User)

	statements := []string{
		fmt.Sprintf("GRANT ALL ON SCHEMA public TO %s", role),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL TABLES IN SCHEMA public TO %s", role),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL SEQUENCES IN SCHEMA public TO %s", role),
		fmt.Sprintf("GRANT ALL PRIVILEGES ON ALL FUNCTIONS IN SCHEMA public TO %s", role),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES TO %s", role),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES TO %s", role),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON FUNCTIONS TO %s", role),
		fmt.Sprintf("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT USAGE ON TYPES TO %s", role),
	}

	failed := 0
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			failed++
			log.WithField("statement", stmt).WithField("error", err.Error()).Warn("Grant statement failed")
		}
	}

	if failed > 0 {
		return fmt.Errorf("grants: %d of %d statements failed: %w", failed, len(statements), ErrPartialFailure)
	}

	log.WithField("role", cfg.User).Info("Granted privileges")
	return nil
}
