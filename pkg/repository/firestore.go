package repository

import (
	"context"
	"errors"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/interfaces"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/utils/clock"
	"github.com/secmon-lab/tollgate/pkg/utils/errutil"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Firestore struct {
	db *firestore.Client
	eb *goerr.Builder
}

var _ interfaces.Repository = &Firestore{}

const collectionTokens = "tokens"

func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	db, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	return &Firestore{
		db: db,
		eb: goerr.NewBuilder(
			goerr.TV(errutil.RepositoryKey, "firestore"),
			goerr.TV(errutil.CollectionKey, collectionTokens),
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID),
		),
	}, nil
}

func (r *Firestore) Close() error {
	return r.db.Close()
}

func (r *Firestore) PutToken(ctx context.Context, token *auth.Token) error {
	if err := token.Validate(); err != nil {
		return r.eb.Wrap(err, "invalid token", goerr.T(errs.TagValidation))
	}

	doc := r.db.Collection(collectionTokens).Doc(token.ID.String())
	if _, err := doc.Set(ctx, token); err != nil {
		return r.eb.Wrap(err, "failed to put token",
			goerr.TV(errutil.TokenIDKey, token.ID.String()),
			goerr.T(errs.TagDatabase))
	}
	return nil
}

func (r *Firestore) GetToken(ctx context.Context, tokenID auth.TokenID) (*auth.Token, error) {
	doc, err := r.db.Collection(collectionTokens).Doc(tokenID.String()).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, r.eb.Wrap(errs.ErrSessionNotFound, "token not found",
				goerr.TV(errutil.TokenIDKey, tokenID.String()),
				goerr.T(errs.TagNotFound))
		}
		return nil, r.eb.Wrap(err, "failed to get token",
			goerr.TV(errutil.TokenIDKey, tokenID.String()),
			goerr.T(errs.TagDatabase))
	}

	var token auth.Token
	if err := doc.DataTo(&token); err != nil {
		return nil, r.eb.Wrap(err, "failed to convert data to token",
			goerr.TV(errutil.TokenIDKey, tokenID.String()),
			goerr.T(errs.TagDatabase))
	}

	// The ID is the document ID and is not stored in the document itself.
	token.ID = tokenID
	return &token, nil
}

func (r *Firestore) DeleteToken(ctx context.Context, tokenID auth.TokenID) error {
	doc := r.db.Collection(collectionTokens).Doc(tokenID.String())
	if _, err := doc.Delete(ctx); err != nil {
		return r.eb.Wrap(err, "failed to delete token",
			goerr.TV(errutil.TokenIDKey, tokenID.String()),
			goerr.T(errs.TagDatabase))
	}
	return nil
}

func (r *Firestore) DeleteExpiredTokens(ctx context.Context) (int, error) {
	iter := r.db.Collection(collectionTokens).
		Where("expires_at", "<", clock.Now(ctx)).
		Documents(ctx)
	defer iter.Stop()

	var deleted int
	bw := r.db.BulkWriter(ctx)
	for {
		doc, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			bw.End()
			return deleted, r.eb.Wrap(err, "failed to iterate expired tokens", goerr.T(errs.TagDatabase))
		}

		if _, err := bw.Delete(doc.Ref); err != nil {
			bw.End()
			return deleted, r.eb.Wrap(err, "failed to enqueue token deletion",
				goerr.V("doc_id", doc.Ref.ID),
				goerr.T(errs.TagDatabase))
		}
		deleted++
	}
	bw.End()

	return deleted, nil
}
