package config_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tollgate/pkg/adapter/identity"
	"github.com/secmon-lab/tollgate/pkg/cli/config"
	"github.com/secmon-lab/tollgate/pkg/repository"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// parse runs flags through a throwaway command.
func parse(t *testing.T, flags []cli.Flag, args ...string) {
	t.Helper()
	cmd := &cli.Command{
		Name:  "test",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return nil
		},
	}
	gt.NoError(t, cmd.Run(context.Background(), append([]string{"test"}, args...)))
}

func TestFirestore(t *testing.T) {
	t.Run("memory store when not configured", func(t *testing.T) {
		var cfg config.Firestore
		parse(t, cfg.Flags())
		gt.False(t, cfg.IsConfigured())

		repo, closer, err := cfg.Configure(context.Background())
		gt.NoError(t, err)
		defer closer()
		_, ok := repo.(*repository.Memory)
		gt.True(t, ok)
	})
}

func TestIdentity(t *testing.T) {
	t.Run("dev mode uses the in-process provider", func(t *testing.T) {
		var cfg config.Identity
		parse(t, cfg.Flags(), "--dev-identity")

		client, err := cfg.Configure(context.Background())
		gt.NoError(t, err)
		_, ok := client.(*identity.Memory)
		gt.True(t, ok)
	})

	t.Run("api key and project are required", func(t *testing.T) {
		var cfg config.Identity
		parse(t, cfg.Flags(), "--identity-api-key", "key")

		_, err := cfg.Configure(context.Background())
		gt.Error(t, err)
	})
}

func TestWeb(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		var cfg config.Web
		parse(t, cfg.Flags())
		gt.NoError(t, cfg.Validate())
		gt.A(t, cfg.SessionOptions()).Length(2)
		gt.A(t, cfg.ServerOptions()).Length(2)
	})

	t.Run("base URL", func(t *testing.T) {
		var cfg config.Web
		parse(t, cfg.Flags(), "--base-url", "https://auth.example.com/", "--resolve-timeout", "500ms")
		gt.NoError(t, cfg.Validate())
	})

	t.Run("relative base URL is rejected", func(t *testing.T) {
		var cfg config.Web
		parse(t, cfg.Flags(), "--base-url", "auth.example.com")
		gt.Error(t, cfg.Validate())
	})
}

func TestLogger(t *testing.T) {
	t.Run("invalid level", func(t *testing.T) {
		var cfg config.Logger
		parse(t, cfg.Flags(), "--log-level", "verbose")

		closer, err := cfg.Configure()
		gt.Error(t, err)
		closer()
	})

	t.Run("invalid format", func(t *testing.T) {
		var cfg config.Logger
		parse(t, cfg.Flags(), "--log-format", "xml")

		closer, err := cfg.Configure()
		gt.Error(t, err)
		closer()
	})

	t.Run("file output", func(t *testing.T) {
		prev := logging.Default()
		defer logging.SetDefault(prev)

		path := filepath.Join(t.TempDir(), "tollgate.log")
		var cfg config.Logger
		parse(t, cfg.Flags(), "--log-output", path, "--log-format", "json", "--log-level", "DEBUG")

		closer, err := cfg.Configure()
		gt.NoError(t, err)
		logging.Default().Debug("hello", "secret_token", "p@ssw0rd")
		closer()

		data, err := os.ReadFile(path)
		gt.NoError(t, err)
		gt.S(t, string(data)).Contains("hello")
		gt.S(t, string(data)).NotContains("p@ssw0rd")
	})
}

func TestSentry(t *testing.T) {
	var cfg config.Sentry
	parse(t, cfg.Flags())

	flush, err := cfg.Configure()
	gt.NoError(t, err)
	flush()
}
