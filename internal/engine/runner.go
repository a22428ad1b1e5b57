package engine

import (
	"context"
	"os/exec"
)

//go:generate mockgen -destination ../mocks/mock_runner.go -package mocks github.com/appforge/provision/internal/engine CommandRunner

// CommandRunner abstracts process execution so engine discovery and server
// lifecycle logic can be tested without a PostgreSQL installation.
type CommandRunner interface {
	// Run executes the named program and returns its combined output.
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
	// LookPath searches for the executable in the directories of PATH.
	LookPath(file string) (string, error)
}

type execRunner struct{}

// NewCommandRunner returns a CommandRunner backed by os/exec.
func NewCommandRunner() CommandRunner {
	return execRunner{}
}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (execRunner) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}
