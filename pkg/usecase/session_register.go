package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/utils/clock"
)

// defaultRefreshInterval defines how long a provider report is trusted
// before it is asked again (10 minutes)
const defaultRefreshInterval = 10 * time.Minute

// forgottenTTL is how long a removed token is refused by load. It covers a
// storage read that started before the token was deleted.
const forgottenTTL = time.Minute

// registeredToken is a browser token known to this process together with
// the last state published for it
type registeredToken struct {
	token      *auth.Token
	state      auth.State
	checkedAt  time.Time
	resolved   chan struct{}
	refreshing bool
}

// sessionRegister holds the visitor states. publish and remove are the only
// writers of state; subscribers are called outside of the lock.
type sessionRegister struct {
	mu          sync.RWMutex
	entries     map[auth.TokenID]*registeredToken
	subscribers map[auth.TokenID]map[int]func(auth.State)
	nextSubID   int

	// forgotten holds recently removed tokens and when they were removed
	forgotten map[auth.TokenID]time.Time
}

func newSessionRegister() *sessionRegister {
	return &sessionRegister{
		entries:     make(map[auth.TokenID]*registeredToken),
		subscribers: make(map[auth.TokenID]map[int]func(auth.State)),
		forgotten:   make(map[auth.TokenID]time.Time),
	}
}

// get returns a snapshot of the token and its state
func (r *sessionRegister) get(tokenID auth.TokenID) (*auth.Token, auth.State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[tokenID]
	if !exists {
		return nil, auth.State{}, false
	}
	return entry.token, entry.state, true
}

// load registers a token that has not been confirmed by the provider yet.
// An already registered token is kept as is. It returns false for a token
// removed a moment ago, which must not be brought back.
func (r *sessionRegister) load(token *auth.Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[token.ID]; exists {
		return true
	}
	if removedAt, ok := r.forgotten[token.ID]; ok && time.Since(removedAt) < forgottenTTL {
		return false
	}
	r.entries[token.ID] = &registeredToken{
		token:    token,
		resolved: make(chan struct{}),
	}
	return true
}

// resolvedCh is closed on the first publish for tokenID
func (r *sessionRegister) resolvedCh(tokenID auth.TokenID) <-chan struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.entries[tokenID]
	if !exists {
		return nil
	}
	return entry.resolved
}

// publish replaces the session of a registered token and notifies its
// subscribers. token, when not nil, replaces the stored token as well.
func (r *sessionRegister) publish(ctx context.Context, tokenID auth.TokenID, token *auth.Token, session *auth.Session) bool {
	r.mu.Lock()
	entry, exists := r.entries[tokenID]
	if !exists {
		r.mu.Unlock()
		return false
	}

	if token != nil {
		entry.token = token
	}
	entry.state = auth.State{Session: session, Resolved: true}
	if session != nil {
		entry.state.ExpiresAt = entry.token.ExpiresAt
	}
	entry.checkedAt = clock.Now(ctx)
	entry.refreshing = false
	select {
	case <-entry.resolved:
	default:
		close(entry.resolved)
	}

	state := entry.state
	fns := r.subscribersLocked(tokenID)
	r.mu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
	return true
}

// remove forgets a token and tells its subscribers the visitor is signed out
func (r *sessionRegister) remove(tokenID auth.TokenID) {
	r.mu.Lock()
	entry, exists := r.entries[tokenID]
	if exists {
		select {
		case <-entry.resolved:
		default:
			close(entry.resolved)
		}
		delete(r.entries, tokenID)
	}
	r.forgetLocked(tokenID)
	fns := r.subscribersLocked(tokenID)
	r.mu.Unlock()

	for _, fn := range fns {
		fn(auth.SignedOutState())
	}
}

// beginRefresh reports whether the caller should ask the provider again,
// marking the token as being refreshed so concurrent requests skip it.
func (r *sessionRegister) beginRefresh(ctx context.Context, tokenID auth.TokenID, interval time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[tokenID]
	if !exists || entry.refreshing {
		return false
	}
	if entry.state.Resolved && clock.Since(ctx, entry.checkedAt) < interval {
		return false
	}
	entry.refreshing = true
	return true
}

// endRefresh clears the refreshing mark after a failed refresh
func (r *sessionRegister) endRefresh(tokenID auth.TokenID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.entries[tokenID]; exists {
		entry.refreshing = false
	}
}

// forgetLocked records tokenID as removed and drops old records
func (r *sessionRegister) forgetLocked(tokenID auth.TokenID) {
	now := time.Now()
	for id, removedAt := range r.forgotten {
		if now.Sub(removedAt) >= forgottenTTL {
			delete(r.forgotten, id)
		}
	}
	r.forgotten[tokenID] = now
}

func (r *sessionRegister) subscribe(tokenID auth.TokenID, fn func(auth.State)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.nextSubID
	r.nextSubID++
	if r.subscribers[tokenID] == nil {
		r.subscribers[tokenID] = make(map[int]func(auth.State))
	}
	r.subscribers[tokenID][id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			delete(r.subscribers[tokenID], id)
			if len(r.subscribers[tokenID]) == 0 {
				delete(r.subscribers, tokenID)
			}
		})
	}
}

func (r *sessionRegister) subscribersLocked(tokenID auth.TokenID) []func(auth.State) {
	subs := r.subscribers[tokenID]
	fns := make([]func(auth.State), 0, len(subs))
	for _, fn := range subs {
		fns = append(fns, fn)
	}
	return fns
}

// updateToken swaps the stored token without publishing, e.g. after the
// credential was refreshed. It returns false when the token is not
// registered any more.
func (r *sessionRegister) updateToken(token *auth.Token) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, exists := r.entries[token.ID]
	if !exists {
		return false
	}
	entry.token = token
	return true
}
