package database

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/appforge/provision/pkg/logger"
)

// TemplateSeed is a starter template row inserted on first provisioning.
type TemplateSeed struct {
	Name        string
	Description string
	Category    string
	Content     string
}

// DefaultTemplates are the starter templates every fresh database receives.
// Names are unique, which is what makes repeated seeding a no-op.
var DefaultTemplates = []TemplateSeed{
	{
		Name:        "blank",
		Description: "Empty project with no preset structure",
		Category:    "general",
		Content:     `{"pages": []}`,
	},
	{
		Name:        "landing-page",
		Description: "Single page site with hero, features and contact sections",
		Category:    "marketing",
		Content:     `{"pages": [{"name": "home", "sections": ["hero", "features", "contact"]}]}`,
	},
	{
		Name:        "dashboard",
		Description: "Authenticated dashboard shell with sidebar navigation",
		Category:    "app",
		Content:     `{"pages": [{"name": "dashboard", "sections": ["sidebar", "stats", "activity"]}]}`,
	},
	{
		Name:        "blog",
		Description: "Blog with post list and detail pages",
		Category:    "content",
		Content:     `{"pages": [{"name": "index", "sections": ["posts"]}, {"name": "post", "sections": ["article"]}]}`,
	},
	{
		Name:        "ecommerce",
		Description: "Storefront with product grid, cart and checkout",
		Category:    "commerce",
		Content:     `{"pages": [{"name": "shop", "sections": ["products"]}, {"name": "checkout", "sections": ["cart", "payment"]}]}`,
	},
}

// SeedData inserts the default template rows. Conflicts on the template name
// are ignored, so running the seed twice leaves a single row per template.
func SeedData(ctx context.Context, db DBExecutor, log logger.Logger) error {
	psql := sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
	now := time.Now().UTC()

	inserted := 0
	for _, tpl := range DefaultTemplates {
		query, args, err := psql.Insert("templates").
			Columns("id", "name", "description", "category", "content", "created_at", "updated_at").
			Values(uuid.New().String(), tpl.Name, tpl.Description, tpl.Category, tpl.Content, now, now).
			Suffix("ON CONFLICT (name) DO NOTHING").
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build seed query for template %s: %w", tpl.Name, err)
		}

		result, err := db.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to seed template %s: %w", tpl.Name, err)
		}

		if rows, err := result.RowsAffected(); err == nil && rows > 0 {
			inserted++
		}
	}

	log.WithField("templates", len(DefaultTemplates)).
		WithField("inserted", inserted).
		Info("Seed data applied")
	return nil
}
