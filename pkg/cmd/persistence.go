package cmd

import (
	"context"
	"log/slog"
	"strings"

	"github.com/rathbookie/stageflow/pkg/persistence"
	"github.com/rathbookie/stageflow/pkg/persistence/file"
	"github.com/rathbookie/stageflow/pkg/persistence/postgresql"
)

// NewPersistence selects the storage backend from the database URL scheme.
// "postgres://" gets the SQL backend with migrations; anything else falls
// back to the file store, which suits local development.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) persistence.Persistence {
	switch parseProvider(databaseURL) {
	case "postgres", "postgresql":
		p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
		if err != nil {
			panic(err)
		}

		return p
	default:
		return file.NewPersistence(databaseURL)
	}
}

func parseProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}
