package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/appforge/provision/config"
	"github.com/appforge/provision/pkg/logger"
)

// ErrStartTimeout means the server did not accept connections within the
// configured number of readiness attempts.
var ErrStartTimeout = errors.New("server did not become ready")

// Server manages a locally installed PostgreSQL server process.
type Server struct {
	engine *Engine
	cfg    *config.EngineConfig
	db     *config.DatabaseConfig
	runner CommandRunner
	log    logger.Logger
}

// NewServer creates a Server around a located engine.
func NewServer(eng *Engine, cfg *config.EngineConfig, db *config.DatabaseConfig, runner CommandRunner, log logger.Logger) *Server {
	return &Server{
		engine: eng,
		cfg:    cfg,
		db:     db,
		runner: runner,
		log:    log,
	}
}

// IsReady probes the configured host and port with pg_isready.
func (s *Server) IsReady(ctx context.Context) bool {
	_, err := s.runner.Run(ctx, s.engine.PgIsReady,
		"-h", s.db.Host,
		"-p", strconv.Itoa(s.db.Port),
	)
	return err == nil
}

// EnsureRunning converges the server towards "accepting connections". A
// server already answering the readiness probe is left untouched. Otherwise
// the data directory is initialized if needed, the server is started, and
// readiness is polled a bounded number of times.
func (s *Server) EnsureRunning(ctx context.Context) error {
	if s.IsReady(ctx) {
		s.log.WithField("port", s.db.Port).Info("PostgreSQL server already running")
		return nil
	}

	if err := s.initDataDir(ctx); err != nil {
		return err
	}

	if err := s.start(ctx); err != nil {
		return err
	}

	return s.waitReady(ctx)
}

// initDataDir runs initdb unless the data directory already holds a cluster.
// The admin role is created as the cluster superuser with trust auth, which
// is what lets the provisioner connect before any password exists.
func (s *Server) initDataDir(ctx context.Context) error {
	if _, err := os.Stat(filepath.Join(s.cfg.DataDir, "PG_VERSION")); err == nil {
		s.log.WithField("data_dir", s.cfg.DataDir).Info("Data directory already initialized")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.cfg.DataDir), 0o755); err != nil {
		return fmt.Errorf("failed to create data directory parent: %w", err)
	}

	s.log.WithField("data_dir", s.cfg.DataDir).Info("Initializing data directory")
	output, err := s.runner.Run(ctx, s.engine.InitDB,
		"-D", s.cfg.DataDir,
		"--username", s.db.AdminUser,
		"--auth", "trust",
		"--encoding", "UTF8",
	)
	if err != nil {
		return fmt.Errorf("initdb failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return nil
}

func (s *Server) start(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.cfg.ServerLogFile), 0o755); err != nil {
		return fmt.Errorf("failed to create server log directory: %w", err)
	}

	s.log.WithField("port", s.db.Port).Info("Starting PostgreSQL server")
	output, err := s.runner.Run(ctx, s.engine.PgCtl,
		"-D", s.cfg.DataDir,
		"-l", s.cfg.ServerLogFile,
		"-o", fmt.Sprintf("-p %d", s.db.Port),
		"start",
	)
	if err != nil {
		return fmt.Errorf("pg_ctl start failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	return nil
}

// waitReady polls the readiness probe a fixed number of times with a fixed
// sleep in between.
func (s *Server) waitReady(ctx context.Context) error {
	for attempt := 1; attempt <= s.cfg.ReadyAttempts; attempt++ {
		if s.IsReady(ctx) {
			s.log.WithField("attempt", attempt).Info("PostgreSQL server is ready")
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("readiness polling interrupted: %w", ctx.Err())
		case <-time.After(s.cfg.ReadyInterval):
		}
	}

	return fmt.Errorf("%w after %d attempts, see %s", ErrStartTimeout, s.cfg.ReadyAttempts, s.cfg.ServerLogFile)
}
