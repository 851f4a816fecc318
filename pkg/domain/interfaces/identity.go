package interfaces

import (
	"context"

	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
)

// IdentityClient is the boundary to the hosted identity service. All
// credential checks, token issuance and email dispatch happen behind it.
// Errors carry errs.TagProvider and the provider's own message.
type IdentityClient interface {
	CreateAccount(ctx context.Context, email, password string) (*auth.Credential, error)
	SignIn(ctx context.Context, email, password string) (*auth.Credential, error)

	// ProviderSignIn starts an interactive sign-in; the visitor must be sent
	// to the returned AuthURL. CompleteProviderSignIn finishes it with the
	// URL the provider redirected back to.
	ProviderSignIn(ctx context.Context, kind auth.ProviderKind, callbackURL string) (*auth.ProviderChallenge, error)
	CompleteProviderSignIn(ctx context.Context, challenge *auth.ProviderChallenge, redirectedURL string) (*auth.Credential, error)

	SignOut(ctx context.Context, cred *auth.Credential) error
	SendPasswordReset(ctx context.Context, email string) error
	SendVerificationEmail(ctx context.Context, cred *auth.Credential) error
	UpdateProfile(ctx context.Context, cred *auth.Credential, displayName, photoURL string) error

	// Lookup returns the provider's current view of the signed-in account.
	// A nil session without error means the provider no longer recognizes
	// the credential.
	Lookup(ctx context.Context, cred *auth.Credential) (*auth.Session, error)

	// Refresh exchanges the refresh token for a new ID token.
	Refresh(ctx context.Context, cred *auth.Credential) (*auth.Credential, error)
}
