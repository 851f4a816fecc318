package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/adapter/identity"
	"github.com/secmon-lab/tollgate/pkg/domain/interfaces"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// Identity configures the identity provider client.
type Identity struct {
	apiKey    string
	projectID string
	endpoint  string
	tokenURL  string
	devMode   bool
}

func (x *Identity) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "identity-api-key",
			Usage:       "Web API key of the identity service project",
			Category:    "Identity",
			Sources:     cli.EnvVars("TOLLGATE_IDENTITY_API_KEY"),
			Destination: &x.apiKey,
		},
		&cli.StringFlag{
			Name:        "identity-project-id",
			Usage:       "Project ID the ID tokens are issued for",
			Category:    "Identity",
			Sources:     cli.EnvVars("TOLLGATE_IDENTITY_PROJECT_ID"),
			Destination: &x.projectID,
		},
		&cli.StringFlag{
			Name:        "identity-endpoint",
			Usage:       "Override the Identity Toolkit endpoint (e.g. an emulator)",
			Category:    "Identity",
			Sources:     cli.EnvVars("TOLLGATE_IDENTITY_ENDPOINT"),
			Destination: &x.endpoint,
		},
		&cli.StringFlag{
			Name:        "identity-token-url",
			Usage:       "Override the secure token endpoint used for credential refresh",
			Category:    "Identity",
			Sources:     cli.EnvVars("TOLLGATE_IDENTITY_TOKEN_URL"),
			Destination: &x.tokenURL,
		},
		&cli.BoolFlag{
			Name:        "dev-identity",
			Usage:       "Use the in-process identity provider (development only)",
			Category:    "Identity",
			Sources:     cli.EnvVars("TOLLGATE_DEV_IDENTITY"),
			Destination: &x.devMode,
		},
	}
}

func (x Identity) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("api_key.len", len(x.apiKey)),
		slog.String("project_id", x.projectID),
		slog.String("endpoint", x.endpoint),
		slog.String("token_url", x.tokenURL),
		slog.Bool("dev_mode", x.devMode),
	)
}

func (x *Identity) Configure(ctx context.Context) (interfaces.IdentityClient, error) {
	if x.devMode {
		logging.From(ctx).Warn("⚠️  Using the in-process identity provider",
			"flag", "--dev-identity",
			"recommendation", "This should only be used in development environments")
		return identity.NewMemory(), nil
	}

	if x.apiKey == "" || x.projectID == "" {
		return nil, goerr.New("identity provider is not configured. Please set --identity-api-key and --identity-project-id, or --dev-identity")
	}

	var opts []identity.ToolkitOption
	if x.endpoint != "" {
		opts = append(opts, identity.WithToolkitEndpoint(x.endpoint))
	}
	if x.tokenURL != "" {
		opts = append(opts, identity.WithSecureTokenURL(x.tokenURL))
	}

	client, err := identity.NewToolkit(ctx, x.apiKey, x.projectID, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create identity client")
	}
	return client, nil
}
