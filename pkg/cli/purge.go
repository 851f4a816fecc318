package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/cli/config"
	"github.com/secmon-lab/tollgate/pkg/usecase"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdPurge() *cli.Command {
	var (
		firestoreCfg config.Firestore
		sentryCfg    config.Sentry
	)

	return &cli.Command{
		Name:  "purge",
		Usage: "Remove expired browser tokens from Firestore once",
		Flags: joinFlags(firestoreCfg.Flags(), sentryCfg.Flags()),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if !firestoreCfg.IsConfigured() {
				return goerr.New("purge requires Firestore. Please set --firestore-project-id")
			}

			flush, err := sentryCfg.Configure()
			defer flush()
			if err != nil {
				return err
			}

			repo, closeRepo, err := firestoreCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			// Purging only touches the token store.
			uc := usecase.NewSessionUseCase(nil, repo)
			n, err := uc.PurgeExpiredTokens(ctx)
			if err != nil {
				return err
			}

			logging.From(ctx).Info("purged expired tokens", "count", n, "firestore", firestoreCfg)
			return nil
		},
	}
}
