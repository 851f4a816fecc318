package usecase

import (
	"context"
	"time"

	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
)

// Export private types and functions for testing

type TestSessionRegister = sessionRegister

const DefaultRefreshInterval = defaultRefreshInterval

func NewTestSessionRegister() *TestSessionRegister {
	return newSessionRegister()
}

func (r *sessionRegister) TestLoad(token *auth.Token) bool {
	return r.load(token)
}

func (r *sessionRegister) TestUpdateToken(token *auth.Token) bool {
	return r.updateToken(token)
}

func (r *sessionRegister) TestGet(tokenID auth.TokenID) (*auth.Token, auth.State, bool) {
	return r.get(tokenID)
}

func (r *sessionRegister) TestPublish(ctx context.Context, tokenID auth.TokenID, session *auth.Session) bool {
	return r.publish(ctx, tokenID, nil, session)
}

func (r *sessionRegister) TestRemove(tokenID auth.TokenID) {
	r.remove(tokenID)
}

func (r *sessionRegister) TestResolvedCh(tokenID auth.TokenID) <-chan struct{} {
	return r.resolvedCh(tokenID)
}

func (r *sessionRegister) TestBeginRefresh(ctx context.Context, tokenID auth.TokenID, interval time.Duration) bool {
	return r.beginRefresh(ctx, tokenID, interval)
}

func (r *sessionRegister) TestSubscribe(tokenID auth.TokenID, fn func(auth.State)) func() {
	return r.subscribe(tokenID, fn)
}
