package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appforge/provision/config"
	"github.com/appforge/provision/internal/mocks"
	"github.com/appforge/provision/pkg/logger"
)

var errNotReady = errors.New("exit status 2")

func newTestServer(t *testing.T, runner CommandRunner) (*Server, *config.EngineConfig) {
	t.Helper()
	root := t.TempDir()

	eng := &Engine{
		BinDir:    "/pg/bin",
		InitDB:    "/pg/bin/initdb",
		PgCtl:     "/pg/bin/pg_ctl",
		Postgres:  "/pg/bin/postgres",
		Psql:      "/pg/bin/psql",
		PgIsReady: "/pg/bin/pg_isready",
	}
	cfg := &config.EngineConfig{
		DataDir:       filepath.Join(root, "pgdata"),
		ServerLogFile: filepath.Join(root, "postgres.log"),
		ReadyAttempts: 3,
		ReadyInterval: time.Millisecond,
	}
	db := &config.DatabaseConfig{
		Host:      "localhost",
		Port:      5432,
		AdminUser: "admin",
	}

	return NewServer(eng, cfg, db, runner, logger.NewTestLogger(t)), cfg
}

func TestEnsureRunning_AlreadyRunning(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockCommandRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
		Return([]byte("accepting connections"), nil)

	srv, _ := newTestServer(t, runner)
	assert.NoError(t, srv.EnsureRunning(context.Background()))
}

func TestEnsureRunning_InitializesStartsAndPolls(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockCommandRunner(ctrl)
	gomock.InOrder(
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
			Return(nil, errNotReady),
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/initdb", gomock.Any()).
			Return([]byte("ok"), nil),
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_ctl", gomock.Any()).
			Return([]byte("server starting"), nil),
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
			Return(nil, errNotReady),
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
			Return([]byte("accepting connections"), nil),
	)

	srv, _ := newTestServer(t, runner)
	assert.NoError(t, srv.EnsureRunning(context.Background()))
}

func TestEnsureRunning_SkipsInitdbWhenClusterExists(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockCommandRunner(ctrl)
	srv, cfg := newTestServer(t, runner)

	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "PG_VERSION"), []byte("16\n"), 0o644))

	gomock.InOrder(
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
			Return(nil, errNotReady),
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_ctl", gomock.Any()).
			Return([]byte("server starting"), nil),
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
			Return([]byte("accepting connections"), nil),
	)

	assert.NoError(t, srv.EnsureRunning(context.Background()))
}

func TestEnsureRunning_TimesOutAfterBoundedAttempts(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockCommandRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
		Return(nil, errNotReady).
		Times(4)
	runner.EXPECT().
		Run(gomock.Any(), "/pg/bin/initdb", gomock.Any()).
		Return([]byte("ok"), nil)
	runner.EXPECT().
		Run(gomock.Any(), "/pg/bin/pg_ctl", gomock.Any()).
		Return([]byte("server starting"), nil)

	srv, _ := newTestServer(t, runner)
	err := srv.EnsureRunning(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStartTimeout)
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestEnsureRunning_PollingStopsOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockCommandRunner(ctrl)
	runner.EXPECT().
		Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
		Return(nil, errNotReady).
		Times(2)
	runner.EXPECT().
		Run(gomock.Any(), "/pg/bin/initdb", gomock.Any()).
		Return([]byte("ok"), nil)
	runner.EXPECT().
		Run(gomock.Any(), "/pg/bin/pg_ctl", gomock.Any()).
		Return([]byte("server starting"), nil)

	srv, cfg := newTestServer(t, runner)
	cfg.ReadyInterval = time.Hour

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := srv.EnsureRunning(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, err.Error(), "interrupted")
}

func TestEnsureRunning_InitdbFailureIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockCommandRunner(ctrl)
	gomock.InOrder(
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
			Return(nil, errNotReady),
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/initdb", gomock.Any()).
			Return([]byte("could not create directory"), errors.New("exit status 1")),
	)

	srv, _ := newTestServer(t, runner)
	err := srv.EnsureRunning(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "initdb failed")
	assert.Contains(t, err.Error(), "could not create directory")
}

func TestEnsureRunning_StartFailureIsFatal(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	runner := mocks.NewMockCommandRunner(ctrl)
	srv, cfg := newTestServer(t, runner)

	require.NoError(t, os.MkdirAll(cfg.DataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "PG_VERSION"), []byte("16\n"), 0o644))

	gomock.InOrder(
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_isready", gomock.Any()).
			Return(nil, errNotReady),
		runner.EXPECT().
			Run(gomock.Any(), "/pg/bin/pg_ctl", gomock.Any()).
			Return([]byte("could not bind port"), errors.New("exit status 1")),
	)

	err := srv.EnsureRunning(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pg_ctl start failed")
}
