package repository

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/interfaces"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/utils/errutil"
)

// Memory keeps tokens in process. Sessions are lost on restart.
type Memory struct {
	mu     sync.RWMutex
	tokens map[auth.TokenID]*auth.Token

	// Call counter for tracking method invocations
	callCounts map[string]int
	callMu     sync.RWMutex

	eb *goerr.Builder
}

var _ interfaces.Repository = &Memory{}

func NewMemory() *Memory {
	return &Memory{
		tokens:     make(map[auth.TokenID]*auth.Token),
		callCounts: make(map[string]int),
		eb:         goerr.NewBuilder(goerr.TV(errutil.RepositoryKey, "memory")),
	}
}

func (r *Memory) incrementCallCount(methodName string) {
	r.callMu.Lock()
	defer r.callMu.Unlock()
	r.callCounts[methodName]++
}

// GetCallCount returns the number of times a method has been called
func (r *Memory) GetCallCount(methodName string) int {
	r.callMu.RLock()
	defer r.callMu.RUnlock()
	return r.callCounts[methodName]
}

func (r *Memory) PutToken(ctx context.Context, token *auth.Token) error {
	r.incrementCallCount("PutToken")
	if err := token.Validate(); err != nil {
		return r.eb.Wrap(err, "invalid token", goerr.T(errs.TagValidation))
	}

	copied := *token
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token.ID] = &copied
	return nil
}

func (r *Memory) GetToken(ctx context.Context, tokenID auth.TokenID) (*auth.Token, error) {
	r.incrementCallCount("GetToken")
	r.mu.RLock()
	defer r.mu.RUnlock()

	token, ok := r.tokens[tokenID]
	if !ok {
		return nil, r.eb.Wrap(errs.ErrSessionNotFound, "token not found",
			goerr.TV(errutil.TokenIDKey, tokenID.String()),
			goerr.T(errs.TagNotFound))
	}
	copied := *token
	return &copied, nil
}

func (r *Memory) DeleteToken(ctx context.Context, tokenID auth.TokenID) error {
	r.incrementCallCount("DeleteToken")
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, tokenID)
	return nil
}

func (r *Memory) DeleteExpiredTokens(ctx context.Context) (int, error) {
	r.incrementCallCount("DeleteExpiredTokens")
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	for id, token := range r.tokens {
		if token.IsExpired(ctx) {
			delete(r.tokens, id)
			n++
		}
	}
	return n, nil
}
