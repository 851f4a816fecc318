package http

import (
	"context"

	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/form"
	"github.com/secmon-lab/tollgate/pkg/usecase"
)

// SessionUseCase is what the HTTP layer needs from the session facade.
type SessionUseCase interface {
	SignUp(ctx context.Context, input form.SignUp) (*usecase.SignUpResult, error)
	SignIn(ctx context.Context, email, password string) (*auth.Token, error)
	ProviderSignInURL(ctx context.Context, kind auth.ProviderKind, callbackURL string) (*auth.ProviderChallenge, error)
	CompleteProviderSignIn(ctx context.Context, challenge *auth.ProviderChallenge, redirectedURL string) (*usecase.ProviderSignInResult, error)
	SignOut(ctx context.Context, tokenID auth.TokenID, secret auth.TokenSecret) error
	RequestPasswordReset(ctx context.Context, email string) error
	SendVerificationEmail(ctx context.Context, tokenID auth.TokenID) error
	UpdateProfile(ctx context.Context, tokenID auth.TokenID, displayName, photoURL string) error
	PatchProfile(ctx context.Context, tokenID auth.TokenID, displayName, photoURL string) error
	Resolve(ctx context.Context, tokenID auth.TokenID, secret auth.TokenSecret) (auth.State, error)
}

var _ SessionUseCase = &usecase.SessionUseCase{}
