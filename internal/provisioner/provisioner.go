// Package provisioner orchestrates a full provisioning run: engine
// discovery, server startup, role/database convergence, schema, seed data
// and connection info emission.
package provisioner

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/appforge/provision/config"
	"github.com/appforge/provision/internal/database"
	"github.com/appforge/provision/internal/engine"
	"github.com/appforge/provision/pkg/logger"
)

// StepStatus is the outcome of a single provisioning step.
type StepStatus string

const (
	StepOK      StepStatus = "ok"
	StepFailed  StepStatus = "failed"
	StepSkipped StepStatus = "skipped"
)

// StepResult records what happened to one step of the run.
type StepResult struct {
	Name   string
	Status StepStatus
	Err    error
}

// Report is the per-step outcome of a provisioning run. Steps after a fatal
// failure are absent; steps that could not run for a non-fatal reason are
// recorded as skipped.
type Report struct {
	Steps []StepResult
}

func (r *Report) add(name string, err error) {
	status := StepOK
	if err != nil {
		status = StepFailed
	}
	r.Steps = append(r.Steps, StepResult{Name: name, Status: status, Err: err})
}

func (r *Report) skip(name string) {
	r.Steps = append(r.Steps, StepResult{Name: name, Status: StepSkipped})
}

// FailedSteps returns the steps that failed.
func (r *Report) FailedSteps() []StepResult {
	var failed []StepResult
	for _, step := range r.Steps {
		if step.Status == StepFailed {
			failed = append(failed, step)
		}
	}
	return failed
}

// Succeeded reports whether every step completed.
func (r *Report) Succeeded() bool {
	for _, step := range r.Steps {
		if step.Status != StepOK {
			return false
		}
	}
	return true
}

// Provisioner runs the provisioning sequence described by its configuration.
type Provisioner struct {
	cfg    *config.Config
	log    logger.Logger
	runner engine.CommandRunner

	// open is swappable so tests can hand back sqlmock connections.
	open func(dsn string) (*sql.DB, error)
}

// New creates a Provisioner with the default process runner and connector.
func New(cfg *config.Config, log logger.Logger) *Provisioner {
	return &Provisioner{
		cfg:    cfg,
		log:    log,
		runner: engine.NewCommandRunner(),
		open:   database.Open,
	}
}

// Run executes the provisioning sequence. Engine discovery and server
// startup failures are fatal and returned as an error. Later steps follow
// the log-and-continue rule: their failures land in the report, and the
// connection info is still written so the environment stays inspectable.
func (p *Provisioner) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	eng, err := engine.LocateEngine(&p.cfg.Engine, p.runner, p.log)
	report.add("locate engine", err)
	if err != nil {
		return report, fmt.Errorf("failed to locate engine: %w", err)
	}

	srv := engine.NewServer(eng, &p.cfg.Engine, &p.cfg.Database, p.runner, p.log)
	err = srv.EnsureRunning(ctx)
	report.add("ensure server running", err)
	if err != nil {
		return report, fmt.Errorf("failed to start server: %w", err)
	}

	roleReady := p.ensureDatabaseAndRole(ctx, report)
	p.applyDatabaseState(ctx, report)

	err = PersistConnectionInfo(p.cfg, roleReady, p.log)
	report.add("persist connection info", err)
	if err != nil {
		p.log.WithField("error", err.Error()).Warn("Failed to write connection info")
	}

	p.logSummary(report)
	return report, nil
}

func (p *Provisioner) ensureDatabaseAndRole(ctx context.Context, report *Report) bool {
	db, err := p.open(database.AdminDSN(&p.cfg.Database))
	if err != nil {
		report.add("ensure role and database", fmt.Errorf("admin connection failed: %w", err))
		p.log.WithField("error", err.Error()).Warn("Could not connect as admin")
		return false
	}
	defer db.Close()

	err = database.EnsureDatabaseAndRole(ctx, db, &p.cfg.Database, p.log)
	report.add("ensure role and database", err)
	if err != nil {
		p.log.WithField("error", err.Error()).Warn("Role and database convergence failed")
		return false
	}
	return true
}

// applyDatabaseState runs grants, schema and seed inside the application
// database over a single admin connection.
func (p *Provisioner) applyDatabaseState(ctx context.Context, report *Report) {
	db, err := p.open(database.AdminAppDSN(&p.cfg.Database))
	if err != nil {
		p.log.WithField("error", err.Error()).Warn("Could not connect to application database")
		report.add("connect to application database", err)
		report.skip("grant privileges")
		report.skip("apply schema")
		report.skip("seed data")
		return
	}
	defer db.Close()

	if provisioned, err := database.IsProvisioned(ctx, db); err != nil {
		p.log.WithField("error", err.Error()).Warn("Could not inspect existing schema")
	} else if provisioned {
		p.log.WithField("database", p.cfg.Database.DBName).Info("Database already provisioned")
	}

	err = database.GrantPrivileges(ctx, db, &p.cfg.Database, p.log)
	report.add("grant privileges", err)

	err = database.ApplySchema(ctx, db, p.log)
	report.add("apply schema", err)

	err = database.SeedData(ctx, db, p.log)
	report.add("seed data", err)
}

func (p *Provisioner) logSummary(report *Report) {
	failed := report.FailedSteps()
	if len(failed) == 0 {
		p.log.WithField("steps", len(report.Steps)).Info("Provisioning complete")
		return
	}

	log := p.log.WithField("failed", len(failed)).WithField("steps", len(report.Steps))
	for _, step := range failed {
		log = log.WithField(step.Name, step.Err.Error())
	}
	log.Warn("Provisioning finished with failures")
}
