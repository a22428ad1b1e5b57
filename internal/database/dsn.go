package database

import (
	"database/sql"
	"fmt"

	"github.com/appforge/provision/config"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// AppDSN returns the DSN for the application role connecting to the
// application database.
func AppDSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.SSLMode,
	)
}

// AdminDSN returns the DSN for the admin user connecting to the maintenance
// database, used before the application database exists. Local instances
// initialized by the provisioner use trust auth, so no password is set.
func AdminDSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		cfg.AdminUser,
		cfg.Host,
		cfg.Port,
		cfg.MaintenanceDB,
		cfg.SSLMode,
	)
}

// AdminAppDSN returns the DSN for the admin user connecting to the
// application database, used for grants and schema statements that must run
// inside the target database.
func AdminAppDSN(cfg *config.DatabaseConfig) string {
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s",
		cfg.AdminUser,
		cfg.Host,
		cfg.Port,
		cfg.DBName,
		cfg.SSLMode,
	)
}

// Open connects to the given DSN and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
