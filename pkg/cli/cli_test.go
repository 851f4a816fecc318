package cli_test

import (
	"context"
	"os"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tollgate/pkg/cli"
)

func TestListenURL(t *testing.T) {
	testCases := []struct {
		addr string
		want string
	}{
		{"127.0.0.1:8080", "http://127.0.0.1:8080"},
		{":8080", "http://localhost:8080"},
		{"0.0.0.0:8080", "http://localhost:8080"},
		{"[::]:8080", "http://localhost:8080"},
		{"[::1]:8080", "http://[::1]:8080"},
		{"example.com", "http://example.com"},
	}

	for _, tc := range testCases {
		t.Run(tc.addr, func(t *testing.T) {
			gt.Equal(t, cli.ListenURL(tc.addr), tc.want)
		})
	}
}

// unsetEnv removes keys for the duration of t.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		gt.NoError(t, os.Unsetenv(key))
	}
}

func TestServeCommand_RequiresIdentity(t *testing.T) {
	unsetEnv(t, "TOLLGATE_IDENTITY_API_KEY", "TOLLGATE_IDENTITY_PROJECT_ID", "TOLLGATE_DEV_IDENTITY", "TOLLGATE_BASE_URL")

	err := cli.Run(context.Background(), []string{
		"tollgate", "serve",
		"--addr", "127.0.0.1:0",
	})
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("identity provider is not configured")
}

func TestServeCommand_RejectsRelativeBaseURL(t *testing.T) {
	unsetEnv(t, "TOLLGATE_BASE_URL")
	err := cli.Run(context.Background(), []string{
		"tollgate", "serve",
		"--dev-identity",
		"--base-url", "/auth",
	})
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("base URL must be an absolute")
}

func TestPurgeCommand_RequiresFirestore(t *testing.T) {
	unsetEnv(t, "TOLLGATE_FIRESTORE_PROJECT_ID")

	err := cli.Run(context.Background(), []string{"tollgate", "purge"})
	gt.Error(t, err)
	gt.S(t, err.Error()).Contains("purge requires Firestore")
}
