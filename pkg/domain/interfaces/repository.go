package interfaces

import (
	"context"

	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
)

// Repository persists browser tokens so that sessions survive a restart.
type Repository interface {
	PutToken(ctx context.Context, token *auth.Token) error
	GetToken(ctx context.Context, tokenID auth.TokenID) (*auth.Token, error)
	DeleteToken(ctx context.Context, tokenID auth.TokenID) error
	DeleteExpiredTokens(ctx context.Context) (int, error)
}
