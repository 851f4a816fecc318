package config

import (
	"context"
	"log/slog"

	"github.com/secmon-lab/tollgate/pkg/domain/interfaces"
	"github.com/secmon-lab/tollgate/pkg/repository"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Firestore selects where browser tokens are kept. Without a project ID the
// tokens live in memory and are lost on restart.
type Firestore struct {
	projectID  string
	databaseID string
}

func (c *Firestore) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "firestore-project-id",
			Usage:       "Firestore project ID for the token store (in-memory store when empty)",
			Destination: &c.projectID,
			Category:    "Firestore",
			Sources:     cli.EnvVars("TOLLGATE_FIRESTORE_PROJECT_ID"),
		},
		&cli.StringFlag{
			Name:        "firestore-database-id",
			Usage:       "Firestore database ID",
			Destination: &c.databaseID,
			Category:    "Firestore",
			Sources:     cli.EnvVars("TOLLGATE_FIRESTORE_DATABASE_ID"),
			Value:       "(default)",
		},
	}
}

func (c Firestore) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project_id", c.projectID),
		slog.String("database_id", c.databaseID),
	)
}

// Configure returns the token repository and a function releasing it.
func (c *Firestore) Configure(ctx context.Context) (interfaces.Repository, func(), error) {
	if !c.IsConfigured() {
		logging.From(ctx).Warn("Firestore is not configured, tokens are kept in memory")
		return repository.NewMemory(), func() {}, nil
	}

	db, err := repository.NewFirestore(ctx, c.projectID, c.databaseID)
	if err != nil {
		return nil, nil, err
	}
	closer := func() {
		if err := db.Close(); err != nil {
			logging.From(ctx).Error("failed to close firestore", logging.ErrAttr(err))
		}
	}
	return db, closer, nil
}

// IsConfigured returns true if Firestore is configured
func (c *Firestore) IsConfigured() bool {
	return c.projectID != ""
}
