package repository_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tollgate/pkg/repository"
	"github.com/secmon-lab/tollgate/pkg/utils/test"
)

func newFirestoreClient(t *testing.T) *repository.Firestore {
	vars := test.NewEnvVars(t, "TEST_FIRESTORE_PROJECT_ID", "TEST_FIRESTORE_DATABASE_ID")
	client, err := repository.NewFirestore(t.Context(),
		vars.Get("TEST_FIRESTORE_PROJECT_ID"),
		vars.Get("TEST_FIRESTORE_DATABASE_ID"),
	)
	gt.NoError(t, err).Required()
	t.Cleanup(func() { _ = client.Close() })
	return client
}
