package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge/provision/config"
	"github.com/appforge/provision/pkg/logger"
)

func testDatabaseConfig() *config.DatabaseConfig {
	return &config.DatabaseConfig{
		Host:          "localhost",
		Port:          5432,
		User:          "appforge",
		Password:      "secret",
		DBName:        "appforge",
		SSLMode:       "disable",
		AdminUser:     "admin",
		MaintenanceDB: "postgres",
	}
}

func TestEnsureDatabaseAndRole_FreshInstance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM pg_roles").
		WithArgs("appforge").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE ROLE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM pg_database").
		WithArgs("appforge").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE DATABASE").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = EnsureDatabaseAndRole(context.Background(), db, testDatabaseConfig(), logger.NewTestLogger(t))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDatabaseAndRole_RoleExists_UpdatesPassword(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM pg_roles").
		WithArgs("appforge").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("ALTER ROLE").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM pg_database").
		WithArgs("appforge").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	err = EnsureDatabaseAndRole(context.Background(), db, testDatabaseConfig(), logger.NewTestLogger(t))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDatabaseAndRole_ConcurrentCreateIsSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM pg_roles").
		WithArgs("appforge").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE ROLE").
		WillReturnError(errors.New(`pq: role "appforge" already exists`))
	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM pg_database").
		WithArgs("appforge").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("CREATE DATABASE").
		WillReturnError(errors.New(`pq: database "appforge" already exists`))

	err = EnsureDatabaseAndRole(context.Background(), db, testDatabaseConfig(), logger.NewTestLogger(t))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureDatabaseAndRole_RoleCheckError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT EXISTS\\(SELECT 1 FROM pg_roles").
		WillReturnError(assert.AnError)

	err = EnsureDatabaseAndRole(context.Background(), db, testDatabaseConfig(), logger.NewTestLogger(t))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to check if role exists")
}

func TestGrantPrivileges_AllSucceed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("GRANT ALL ON SCHEMA public").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("GRANT ALL PRIVILEGES ON ALL TABLES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("GRANT ALL PRIVILEGES ON ALL SEQUENCES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("GRANT ALL PRIVILEGES ON ALL FUNCTIONS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON FUNCTIONS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT USAGE ON TYPES").WillReturnResult(sqlmock.NewResult(0, 0))

	err = GrantPrivileges(context.Background(), db, testDatabaseConfig(), logger.NewTestLogger(t))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGrantPrivileges_FailureContinuesRemainingStatements(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectExec("GRANT ALL ON SCHEMA public").WillReturnError(assert.AnError)
	mock.ExpectExec("GRANT ALL PRIVILEGES ON ALL TABLES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("GRANT ALL PRIVILEGES ON ALL SEQUENCES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("GRANT ALL PRIVILEGES ON ALL FUNCTIONS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON TABLES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON SEQUENCES").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT ALL ON FUNCTIONS").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("ALTER DEFAULT PRIVILEGES IN SCHEMA public GRANT USAGE ON TYPES").WillReturnResult(sqlmock.NewResult(0, 0))

	err = GrantPrivileges(context.Background(), db, testDatabaseConfig(), logger.NewTestLogger(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPartialFailure)
	assert.Contains(t, err.Error(), "1 of 8")
}
