package config

import (
	"fmt"
	"os"
	"os/user"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const VERSION = "1.2"

type Config struct {
	Database    DatabaseConfig
	Engine      EngineConfig
	Output      OutputConfig
	Environment string
	LogLevel    string
	Version     string
}

// DatabaseConfig describes both the application role/database the provisioner
// converges towards and the administrative connection it uses to get there.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string

	// AdminUser is the superuser created by initdb. MaintenanceDB is the
	// database the admin connection targets before the application database
	// exists.
	AdminUser     string
	MaintenanceDB string
}

// EngineConfig controls local server discovery, initialization and readiness
// polling.
type EngineConfig struct {
	BinDir        string
	DataDir       string
	ServerLogFile string
	ReadyAttempts int
	ReadyInterval time.Duration
}

// OutputConfig names the files the provisioner writes for downstream
// consumers.
type OutputConfig struct {
	ConnectionInfoFile string
	EnvFile            string
}

// LoadOptions contains options for loading configuration
type LoadOptions struct {
	EnvFile string // Optional environment file to load (e.g., ".env", ".env.test")
}

// Load loads the configuration with default options
func Load() (*Config, error) {
	// Try to load .env file but don't require it
	return LoadWithOptions(LoadOptions{EnvFile: ".env"})
}

// LoadWithOptions loads the configuration with the specified options
func LoadWithOptions(opts LoadOptions) (*Config, error) {
	v := viper.New()

	// Set default values
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "appforge")
	v.SetDefault("DB_PASSWORD", "appforge")
	v.SetDefault("DB_NAME", "appforge")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_ADMIN_USER", defaultAdminUser())
	v.SetDefault("DB_MAINTENANCE_DB", "postgres")

	v.SetDefault("PG_BIN_DIR", "")
	v.SetDefault("PG_DATA_DIR", ".appforge/pgdata")
	v.SetDefault("PG_SERVER_LOG_FILE", ".appforge/postgres.log")
	v.SetDefault("PG_READY_ATTEMPTS", 30)
	v.SetDefault("PG_READY_INTERVAL_MS", 1000)

	v.SetDefault("OUTPUT_CONNECTION_FILE", ".appforge/connection-info.txt")
	v.SetDefault("OUTPUT_ENV_FILE", ".appforge/database.env")

	v.SetDefault("ENVIRONMENT", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("VERSION", VERSION)

	// Load environment file if specified
	if opts.EnvFile != "" {
		v.SetConfigName(opts.EnvFile)
		v.SetConfigType("env")

		currentPath, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("error getting current directory: %w", err)
		}

		v.AddConfigPath(currentPath)

		if err := v.ReadInConfig(); err != nil {
			// It's okay if config file doesn't exist
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	// Read environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if v.GetInt("PG_READY_ATTEMPTS") < 1 {
		return nil, fmt.Errorf("PG_READY_ATTEMPTS must be at least 1")
	}

	config := &Config{
		Database: DatabaseConfig{
			Host:          v.GetString("DB_HOST"),
			Port:          v.GetInt("DB_PORT"),
			User:          v.GetString("DB_USER"),
			Password:      v.GetString("DB_PASSWORD"),
			DBName:        v.GetString("DB_NAME"),
			SSLMode:       v.GetString("DB_SSLMODE"),
			AdminUser:     v.GetString("DB_ADMIN_USER"),
			MaintenanceDB: v.GetString("DB_MAINTENANCE_DB"),
		},
		Engine: EngineConfig{
			BinDir:        v.GetString("PG_BIN_DIR"),
			DataDir:       v.GetString("PG_DATA_DIR"),
			ServerLogFile: v.GetString("PG_SERVER_LOG_FILE"),
			ReadyAttempts: v.GetInt("PG_READY_ATTEMPTS"),
			ReadyInterval: time.Duration(v.GetInt("PG_READY_INTERVAL_MS")) * time.Millisecond,
		},
		Output: OutputConfig{
			ConnectionInfoFile: v.GetString("OUTPUT_CONNECTION_FILE"),
			EnvFile:            v.GetString("OUTPUT_ENV_FILE"),
		},
		Environment: v.GetString("ENVIRONMENT"),
		LogLevel:    v.GetString("LOG_LEVEL"),
		Version:     v.GetString("VERSION"),
	}

	return config, nil
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// defaultAdminUser returns the OS user that owns a freshly initialized data
// directory. initdb makes the invoking user the superuser, so that is the
// right admin identity for a local instance.
func defaultAdminUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "postgres"
}
