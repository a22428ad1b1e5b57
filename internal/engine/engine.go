// Package engine locates a local PostgreSQL installation and manages the
// lifecycle of the server process it runs.
package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/appforge/provision/config"
	"github.com/appforge/provision/pkg/logger"
)

// ErrEngineNotFound means no usable PostgreSQL installation was discovered.
var ErrEngineNotFound = errors.New("postgresql installation not found")

// requiredBinaries are the tools a usable installation must provide.
var requiredBinaries = []string{"initdb", "pg_ctl", "postgres", "psql", "pg_isready"}

// defaultSearchPatterns are well-known install prefixes checked when the
// binaries are not on PATH. The newest versioned directory wins.
var defaultSearchPatterns = []string{
	"/opt/homebrew/opt/postgresql@*/bin",
	"/opt/homebrew/opt/postgresql/bin",
	"/usr/local/opt/postgresql@*/bin",
	"/usr/local/opt/postgresql/bin",
	"/usr/lib/postgresql/*/bin",
	"/usr/pgsql-*/bin",
	"/usr/local/pgsql/bin",
}

// Engine holds the resolved paths of the PostgreSQL tools.
type Engine struct {
	BinDir    string
	InitDB    string
	PgCtl     string
	Postgres  string
	Psql      string
	PgIsReady string
}

// LocateEngine discovers the PostgreSQL binaries. An explicit bin dir in the
// configuration wins; otherwise PATH is consulted, then the well-known
// install prefixes. Every required binary must be present in the chosen
// directory.
func LocateEngine(cfg *config.EngineConfig, runner CommandRunner, log logger.Logger) (*Engine, error) {
	return locate(cfg, runner, defaultSearchPatterns, log)
}

func locate(cfg *config.EngineConfig, runner CommandRunner, patterns []string, log logger.Logger) (*Engine, error) {
	if cfg.BinDir != "" {
		eng, err := engineAt(cfg.BinDir)
		if err != nil {
			return nil, fmt.Errorf("configured bin dir %s is not usable: %w", cfg.BinDir, err)
		}
		log.WithField("bin_dir", eng.BinDir).Info("Using configured PostgreSQL installation")
		return eng, nil
	}

	if path, err := runner.LookPath("initdb"); err == nil {
		if eng, err := engineAt(filepath.Dir(path)); err == nil {
			log.WithField("bin_dir", eng.BinDir).Info("Found PostgreSQL on PATH")
			return eng, nil
		}
	}

	var candidates []string
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			continue
		}
		candidates = append(candidates, matches...)
	}

	// Newest version last, so walk the list backwards. Versions compare
	// numerically: postgresql@15 beats postgresql@9.
	sort.Slice(candidates, func(i, j int) bool {
		if c := compareVersions(installVersion(candidates[i]), installVersion(candidates[j])); c != 0 {
			return c < 0
		}
		return candidates[i] < candidates[j]
	})
	for i := len(candidates) - 1; i >= 0; i-- {
		eng, err := engineAt(candidates[i])
		if err != nil {
			continue
		}
		log.WithField("bin_dir", eng.BinDir).Info("Found PostgreSQL installation")
		return eng, nil
	}

	return nil, ErrEngineNotFound
}

var versionSegment = regexp.MustCompile(`\d+(?:\.\d+)*`)

// installVersion extracts the version from an install path, e.g.
// postgresql@15 or pgsql-9.6. Unversioned paths yield nil, which sorts
// lowest.
func installVersion(dir string) []int {
	matches := versionSegment.FindAllString(dir, -1)
	if len(matches) == 0 {
		return nil
	}

	parts := strings.Split(matches[len(matches)-1], ".")
	version := make([]int, len(parts))
	for i, part := range parts {
		n, _ := strconv.Atoi(part)
		version[i] = n
	}
	return version
}

func compareVersions(a, b []int) int {
	for i := 0; i < len(a) || i < len(b); i++ {
		var av, bv int
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		if av != bv {
			if av < bv {
				return -1
			}
			return 1
		}
	}
	return 0
}

// engineAt resolves the required binaries inside dir, failing on the first
// one that is missing.
func engineAt(dir string) (*Engine, error) {
	paths := make(map[string]string, len(requiredBinaries))
	for _, name := range requiredBinaries {
		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			return nil, fmt.Errorf("missing binary %s: %w", name, ErrEngineNotFound)
		}
		paths[name] = path
	}

	return &Engine{
		BinDir:    dir,
		InitDB:    paths["initdb"],
		PgCtl:     paths["pg_ctl"],
		Postgres:  paths["postgres"],
		Psql:      paths["psql"],
		PgIsReady: paths["pg_isready"],
	}, nil
}
