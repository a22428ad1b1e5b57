package database

import (
	"context"
	"fmt"

	"github.com/appforge/provision/internal/database/schema"
	"github.com/appforge/provision/pkg/logger"
)

// ApplySchema executes the ordered schema statements. Each statement runs
// independently: a pre-existing object is success, and any other failure is
// logged without aborting the rest of the sequence.
func ApplySchema(ctx context.Context, db DBExecutor, log logger.Logger) error {
	statements := make([]string, 0, len(schema.TableDefinitions)+len(schema.IndexDefinitions))
	statements = append(statements, schema.TableDefinitions...)
	statements = append(statements, schema.IndexDefinitions...)

	failed := 0
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			if isAlreadyExists(err) {
				log.Debug("Schema object already exists, continuing")
				continue
			}
			failed++
			log.WithField("error", err.Error()).Warn("Schema statement failed")
		}
	}

	if failed > 0 {
		return fmt.Errorf("schema: %d of %d statements failed: %w", failed, len(statements), ErrPartialFailure)
	}

	log.WithField("tables", len(schema.TableDefinitions)).
		WithField("indexes", len(schema.IndexDefinitions)).
		Info("Schema applied")
	return nil
}
