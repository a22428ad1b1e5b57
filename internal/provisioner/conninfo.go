package provisioner

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/appforge/provision/config"
	"github.com/appforge/provision/internal/database"
	"github.com/appforge/provision/pkg/logger"
)

// PersistConnectionInfo writes the connection info text file and the env
// file. When the application role could not be converged the files fall back
// to the admin user so the instance stays reachable for debugging.
func PersistConnectionInfo(cfg *config.Config, roleReady bool, log logger.Logger) error {
	db := &cfg.Database

	user := db.User
	password := db.Password
	url := database.AppDSN(db)
	if !roleReady {
		user = db.AdminUser
		password = ""
		url = database.AdminAppDSN(db)
	}

	if err := writeConnectionFile(cfg.Output.ConnectionInfoFile, db, user, password, url); err != nil {
		return err
	}

	if err := writeEnvFile(cfg.Output.EnvFile, db, user, password, url); err != nil {
		return err
	}

	log.WithField("connection_file", cfg.Output.ConnectionInfoFile).
		WithField("env_file", cfg.Output.EnvFile).
		Info("Connection info written")
	return nil
}

func writeConnectionFile(path string, db *config.DatabaseConfig, user, password, url string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	psql := fmt.Sprintf("psql -h %s -p %d -U %s -d %s", db.Host, db.Port, user, db.DBName)
	if password != "" {
		psql = fmt.Sprintf("PGPASSWORD=%s %s", password, psql)
	}

	content := fmt.Sprintf(`Appforge database connection info

Host:     %s
Port:     %d
Database: %s
User:     %s

Connect:  %s
URL:      %s
`, db.Host, db.Port, db.DBName, user, psql, url)

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return fmt.Errorf("failed to write connection info file: %w", err)
	}
	return nil
}

func writeEnvFile(path string, db *config.DatabaseConfig, user, password, url string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	env := map[string]string{
		"DATABASE_URL": url,
		"DB_HOST":      db.Host,
		"DB_PORT":      strconv.Itoa(db.Port),
		"DB_USER":      user,
		"DB_PASSWORD":  password,
		"DB_NAME":      db.DBName,
	}

	if err := godotenv.Write(env, path); err != nil {
		return fmt.Errorf("failed to write env file: %w", err)
	}
	return nil
}
