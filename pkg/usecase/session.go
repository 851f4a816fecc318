package usecase

import (
	"context"
	"crypto/subtle"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/interfaces"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/utils/async"
	"github.com/secmon-lab/tollgate/pkg/utils/errutil"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
)

const (
	defaultResolveTimeout    = 2 * time.Second
	backgroundRefreshTimeout = 30 * time.Second
)

// SessionUseCase is the only way the rest of the application touches the
// identity provider. Every state change of a visitor goes through the
// session register, and subscribers of that visitor are notified.
type SessionUseCase struct {
	identity interfaces.IdentityClient
	repo     interfaces.Repository
	register *sessionRegister

	resolveTimeout  time.Duration
	refreshInterval time.Duration
}

type SessionOption func(*SessionUseCase)

// WithResolveTimeout sets how long Resolve waits for the provider to
// confirm a token that this process has not seen yet.
func WithResolveTimeout(d time.Duration) SessionOption {
	return func(uc *SessionUseCase) {
		uc.resolveTimeout = d
	}
}

// WithRefreshInterval sets how long a provider report is trusted.
func WithRefreshInterval(d time.Duration) SessionOption {
	return func(uc *SessionUseCase) {
		uc.refreshInterval = d
	}
}

func NewSessionUseCase(identity interfaces.IdentityClient, repo interfaces.Repository, opts ...SessionOption) *SessionUseCase {
	uc := &SessionUseCase{
		identity:        identity,
		repo:            repo,
		register:        newSessionRegister(),
		resolveTimeout:  defaultResolveTimeout,
		refreshInterval: defaultRefreshInterval,
	}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

// CreateAccount registers a new email/password account and signs the
// visitor in with it.
func (uc *SessionUseCase) CreateAccount(ctx context.Context, email, password string) (*auth.Token, error) {
	cred, err := uc.identity.CreateAccount(ctx, email, password)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create account")
	}
	return uc.startSession(ctx, cred)
}

func (uc *SessionUseCase) SignIn(ctx context.Context, email, password string) (*auth.Token, error) {
	cred, err := uc.identity.SignIn(ctx, email, password)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to sign in")
	}
	return uc.startSession(ctx, cred)
}

// ProviderSignInURL starts an interactive sign-in with a social provider.
// The visitor must be sent to the challenge's AuthURL.
func (uc *SessionUseCase) ProviderSignInURL(ctx context.Context, kind auth.ProviderKind, callbackURL string) (*auth.ProviderChallenge, error) {
	challenge, err := uc.identity.ProviderSignIn(ctx, kind, callbackURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to start provider sign-in", goerr.TV(errutil.ProviderKey, kind.String()))
	}
	return challenge, nil
}

// ProviderSignInResult is the outcome of a completed provider sign-in.
type ProviderSignInResult struct {
	Token *auth.Token
	// VerificationSent is set when a verification mail went out as a
	// follow-up of the sign-in.
	VerificationSent bool
}

// CompleteProviderSignIn finishes the sign-in started by ProviderSignInURL
// with the URL the provider redirected the visitor to. A visitor that has
// not verified the email address yet is sent a verification mail, which is
// best-effort.
func (uc *SessionUseCase) CompleteProviderSignIn(ctx context.Context, challenge *auth.ProviderChallenge, redirectedURL string) (*ProviderSignInResult, error) {
	cred, err := uc.identity.CompleteProviderSignIn(ctx, challenge, redirectedURL)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to complete provider sign-in", goerr.TV(errutil.ProviderKey, challenge.Kind.String()))
	}

	token, err := uc.startSession(ctx, cred)
	if err != nil {
		return nil, err
	}

	result := &ProviderSignInResult{Token: token}
	if token.Session.Email != "" && !token.Session.EmailVerified {
		if err := uc.identity.SendVerificationEmail(ctx, &token.Credential); err != nil {
			logging.From(ctx).Warn("failed to send verification email after provider sign-in",
				"token_id", token.ID,
				"provider", challenge.Kind,
				logging.ErrAttr(err))
		} else {
			result.VerificationSent = true
		}
	}

	return result, nil
}

// startSession asks the provider for the session of a fresh credential and
// publishes it under a new browser token.
func (uc *SessionUseCase) startSession(ctx context.Context, cred *auth.Credential) (*auth.Token, error) {
	session, err := uc.identity.Lookup(ctx, cred)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up new session", goerr.TV(errutil.UIDKey, cred.UID))
	}
	if session == nil {
		return nil, goerr.New("identity provider does not recognize the new credential",
			goerr.TV(errutil.UIDKey, cred.UID),
			goerr.T(errs.TagProvider))
	}

	token := auth.NewToken(ctx, *cred, session)
	if err := uc.repo.PutToken(ctx, token); err != nil {
		return nil, goerr.Wrap(err, "failed to store token", goerr.TV(errutil.TokenIDKey, token.ID.String()))
	}

	uc.register.load(token)
	uc.register.publish(ctx, token.ID, nil, session)

	logging.From(ctx).Info("session started", "token_id", token.ID, "session", session)
	return token, nil
}

// SignOut ends the session on the provider and forgets the token. The
// secret must match the token, as in Resolve; a token that is already gone
// or held with a wrong secret is left alone and is not an error.
func (uc *SessionUseCase) SignOut(ctx context.Context, tokenID auth.TokenID, secret auth.TokenSecret) error {
	token, err := uc.lookupToken(ctx, tokenID)
	if err != nil {
		if goerr.HasTag(err, errs.TagNotFound) {
			return nil
		}
		return err
	}
	if subtle.ConstantTimeCompare([]byte(token.Secret), []byte(secret)) != 1 {
		logging.From(ctx).Warn("sign out with a wrong token secret", "token_id", tokenID)
		return nil
	}

	if err := uc.identity.SignOut(ctx, &token.Credential); err != nil {
		return goerr.Wrap(err, "failed to sign out", goerr.TV(errutil.TokenIDKey, tokenID.String()))
	}

	if err := uc.forget(ctx, tokenID); err != nil {
		return err
	}
	logging.From(ctx).Info("session ended", "token_id", tokenID)
	return nil
}

func (uc *SessionUseCase) RequestPasswordReset(ctx context.Context, email string) error {
	if err := uc.identity.SendPasswordReset(ctx, email); err != nil {
		return goerr.Wrap(err, "failed to request password reset")
	}
	return nil
}

func (uc *SessionUseCase) SendVerificationEmail(ctx context.Context, tokenID auth.TokenID) error {
	token, err := uc.activeToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if err := uc.identity.SendVerificationEmail(ctx, &token.Credential); err != nil {
		return goerr.Wrap(err, "failed to send verification email", goerr.TV(errutil.TokenIDKey, tokenID.String()))
	}
	return nil
}

// UpdateProfile changes the provider-side record only. The local session
// copy is left alone; use PatchProfile or Refresh to bring it up to date.
func (uc *SessionUseCase) UpdateProfile(ctx context.Context, tokenID auth.TokenID, displayName, photoURL string) error {
	token, err := uc.activeToken(ctx, tokenID)
	if err != nil {
		return err
	}
	if err := uc.identity.UpdateProfile(ctx, &token.Credential, displayName, photoURL); err != nil {
		return goerr.Wrap(err, "failed to update profile", goerr.TV(errutil.TokenIDKey, tokenID.String()))
	}
	return nil
}

// PatchProfile replaces the local session with a copy carrying the new
// profile fields, without asking the provider.
func (uc *SessionUseCase) PatchProfile(ctx context.Context, tokenID auth.TokenID, displayName, photoURL string) error {
	token, state, found := uc.register.get(tokenID)
	if !found || state.Session == nil {
		return goerr.New("no signed-in session to patch",
			goerr.TV(errutil.TokenIDKey, tokenID.String()),
			goerr.T(errs.TagUnauthorized))
	}

	session := state.Session.WithProfile(displayName, photoURL)
	next := *token
	next.Session = session
	return uc.writeBack(ctx, &next, session)
}

// Resolve returns the state of the visitor holding the given cookies. A
// token this process has not confirmed with the provider yet (e.g. after a
// restart) is confirmed in the background; Resolve waits for that up to the
// resolve timeout and returns an unresolved state if it takes longer.
func (uc *SessionUseCase) Resolve(ctx context.Context, tokenID auth.TokenID, secret auth.TokenSecret) (auth.State, error) {
	if tokenID == "" || secret == "" {
		return auth.SignedOutState(), nil
	}

	token, _, found := uc.register.get(tokenID)
	if !found {
		stored, err := uc.repo.GetToken(ctx, tokenID)
		if err != nil {
			if goerr.HasTag(err, errs.TagNotFound) {
				return auth.SignedOutState(), nil
			}
			return auth.State{}, goerr.Wrap(err, "failed to get token", goerr.TV(errutil.TokenIDKey, tokenID.String()))
		}
		token = stored
	}

	// Constant-time comparison to prevent timing attacks
	if subtle.ConstantTimeCompare([]byte(token.Secret), []byte(secret)) != 1 {
		logging.From(ctx).Debug("token secret mismatch", "token_id", tokenID)
		return auth.SignedOutState(), nil
	}

	if token.IsExpired(ctx) {
		if err := uc.forget(ctx, tokenID); err != nil {
			return auth.State{}, err
		}
		return auth.SignedOutState(), nil
	}

	if !found && !uc.register.load(token) {
		return auth.SignedOutState(), nil
	}

	if uc.register.beginRefresh(ctx, tokenID, uc.refreshInterval) {
		async.Dispatch(ctx, func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, backgroundRefreshTimeout)
			defer cancel()

			if err := uc.Refresh(ctx, tokenID); err != nil {
				uc.register.endRefresh(tokenID)
				return err
			}
			return nil
		})
	}

	_, state, exists := uc.register.get(tokenID)
	if !exists {
		return auth.SignedOutState(), nil
	}
	if state.Resolved {
		return state, nil
	}

	resolved := uc.register.resolvedCh(tokenID)
	if resolved == nil {
		return auth.SignedOutState(), nil
	}

	timer := time.NewTimer(uc.resolveTimeout)
	defer timer.Stop()
	select {
	case <-resolved:
	case <-timer.C:
	case <-ctx.Done():
	}

	_, state, exists = uc.register.get(tokenID)
	if !exists {
		return auth.SignedOutState(), nil
	}
	return state, nil
}

// Refresh asks the provider for its current view of the session and
// publishes it. A credential the provider no longer accepts signs the
// visitor out.
func (uc *SessionUseCase) Refresh(ctx context.Context, tokenID auth.TokenID) error {
	token, err := uc.activeToken(ctx, tokenID)
	if err != nil {
		if goerr.HasTag(err, errs.TagUnauthorized) || goerr.HasTag(err, errs.TagNotFound) {
			return nil
		}
		return err
	}

	session, err := uc.identity.Lookup(ctx, &token.Credential)
	if err != nil {
		return goerr.Wrap(err, "failed to look up session", goerr.TV(errutil.TokenIDKey, tokenID.String()))
	}
	if session == nil {
		logging.From(ctx).Info("identity provider reported sign out", "token_id", tokenID)
		return uc.forget(ctx, tokenID)
	}

	next := *token
	next.Session = session
	if err := uc.writeBack(ctx, &next, session); err != nil {
		if goerr.HasTag(err, errs.TagUnauthorized) {
			return nil
		}
		return err
	}
	return nil
}

// writeBack stores an updated token and publishes it, or only swaps the
// registered token when session is nil. If the token was forgotten while the
// provider was being asked, the stored copy is deleted again so that a
// signed-out token never comes back from storage.
func (uc *SessionUseCase) writeBack(ctx context.Context, next *auth.Token, session *auth.Session) error {
	if err := uc.repo.PutToken(ctx, next); err != nil {
		return goerr.Wrap(err, "failed to store token", goerr.TV(errutil.TokenIDKey, next.ID.String()))
	}

	var kept bool
	if session != nil {
		kept = uc.register.publish(ctx, next.ID, next, session)
	} else {
		kept = uc.register.updateToken(next)
	}
	if kept {
		return nil
	}

	logging.From(ctx).Info("token was signed out during update", "token_id", next.ID)
	if err := uc.repo.DeleteToken(ctx, next.ID); err != nil {
		return goerr.Wrap(err, "failed to delete token", goerr.TV(errutil.TokenIDKey, next.ID.String()))
	}
	return goerr.New("session has ended",
		goerr.TV(errutil.TokenIDKey, next.ID.String()),
		goerr.T(errs.TagUnauthorized))
}

// Subscribe calls fn with every state published for tokenID until the
// returned function is called.
func (uc *SessionUseCase) Subscribe(tokenID auth.TokenID, fn func(auth.State)) func() {
	return uc.register.subscribe(tokenID, fn)
}

// PurgeExpiredTokens removes browser tokens past their expiry from storage.
func (uc *SessionUseCase) PurgeExpiredTokens(ctx context.Context) (int, error) {
	n, err := uc.repo.DeleteExpiredTokens(ctx)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to delete expired tokens")
	}
	return n, nil
}

// lookupToken finds a token in the register, falling back to storage.
func (uc *SessionUseCase) lookupToken(ctx context.Context, tokenID auth.TokenID) (*auth.Token, error) {
	if token, _, found := uc.register.get(tokenID); found {
		return token, nil
	}

	token, err := uc.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get token", goerr.TV(errutil.TokenIDKey, tokenID.String()))
	}
	if !uc.register.load(token) {
		return nil, goerr.New("token was signed out",
			goerr.TV(errutil.TokenIDKey, tokenID.String()),
			goerr.T(errs.TagNotFound))
	}
	return token, nil
}

// activeToken returns the token with a usable ID token, refreshing the
// credential when it is about to expire.
func (uc *SessionUseCase) activeToken(ctx context.Context, tokenID auth.TokenID) (*auth.Token, error) {
	token, err := uc.lookupToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if !token.Credential.IsExpired(ctx) {
		return token, nil
	}

	cred, err := uc.identity.Refresh(ctx, &token.Credential)
	if err != nil {
		if errs.IsRejected(err) {
			logging.From(ctx).Info("identity provider rejected refresh token", "token_id", tokenID, logging.ErrAttr(err))
			if err := uc.forget(ctx, tokenID); err != nil {
				return nil, err
			}
			return nil, goerr.Wrap(err, "credential is no longer valid",
				goerr.TV(errutil.TokenIDKey, tokenID.String()),
				goerr.T(errs.TagUnauthorized))
		}
		return nil, goerr.Wrap(err, "failed to refresh credential", goerr.TV(errutil.TokenIDKey, tokenID.String()))
	}

	next := *token
	next.Credential = *cred
	if err := uc.writeBack(ctx, &next, nil); err != nil {
		return nil, err
	}
	return &next, nil
}

// forget publishes the signed-out state and deletes the token. The register
// entry goes first: a write-back that loses the race sees the entry gone and
// undoes its own write.
func (uc *SessionUseCase) forget(ctx context.Context, tokenID auth.TokenID) error {
	uc.register.remove(tokenID)
	if err := uc.repo.DeleteToken(ctx, tokenID); err != nil {
		return goerr.Wrap(err, "failed to delete token", goerr.TV(errutil.TokenIDKey, tokenID.String()))
	}
	return nil
}
