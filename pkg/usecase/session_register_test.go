package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/usecase"
	"github.com/secmon-lab/tollgate/pkg/utils/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegisterToken(ctx context.Context) *auth.Token {
	return auth.NewToken(ctx, auth.Credential{
		UID:       "uid-1",
		IDToken:   "id-token",
		ExpiresAt: clock.Now(ctx).Add(time.Hour),
	}, nil)
}

func TestSessionRegister_LoadAndPublish(t *testing.T) {
	ctx := t.Context()
	reg := usecase.NewTestSessionRegister()
	token := newRegisterToken(ctx)

	// Unknown tokens cannot be published
	assert.False(t, reg.TestPublish(ctx, token.ID, &auth.Session{UID: "uid-1"}))

	reg.TestLoad(token)
	_, state, found := reg.TestGet(token.ID)
	require.True(t, found)
	assert.False(t, state.Resolved)
	assert.Nil(t, state.Session)

	resolved := reg.TestResolvedCh(token.ID)
	select {
	case <-resolved:
		t.Fatal("resolved before the first publish")
	default:
	}

	session := &auth.Session{UID: "uid-1", Email: "alice@example.com"}
	assert.True(t, reg.TestPublish(ctx, token.ID, session))

	select {
	case <-resolved:
	default:
		t.Fatal("not resolved after publish")
	}

	_, state, found = reg.TestGet(token.ID)
	require.True(t, found)
	assert.True(t, state.SignedIn())
	assert.Equal(t, session, state.Session)

	// Publishing again must not panic on the closed channel
	assert.True(t, reg.TestPublish(ctx, token.ID, session.WithProfile("Alice", "")))
	_, state, _ = reg.TestGet(token.ID)
	assert.Equal(t, "Alice", state.Session.DisplayName)
}

func TestSessionRegister_LoadKeepsExisting(t *testing.T) {
	ctx := t.Context()
	reg := usecase.NewTestSessionRegister()
	token := newRegisterToken(ctx)

	reg.TestLoad(token)
	reg.TestPublish(ctx, token.ID, &auth.Session{UID: "uid-1"})
	reg.TestLoad(token)

	_, state, _ := reg.TestGet(token.ID)
	assert.True(t, state.Resolved)
}

func TestSessionRegister_Subscribe(t *testing.T) {
	ctx := t.Context()
	reg := usecase.NewTestSessionRegister()
	token := newRegisterToken(ctx)
	reg.TestLoad(token)

	var mu sync.Mutex
	var received []auth.State
	unsubscribe := reg.TestSubscribe(token.ID, func(state auth.State) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, state)
	})

	other := newRegisterToken(ctx)
	reg.TestLoad(other)
	reg.TestPublish(ctx, other.ID, &auth.Session{UID: "uid-2"})

	reg.TestPublish(ctx, token.ID, &auth.Session{UID: "uid-1"})
	reg.TestRemove(token.ID)

	mu.Lock()
	require.Len(t, received, 2)
	assert.Equal(t, "uid-1", received[0].Session.UID)
	assert.Equal(t, auth.SignedOutState(), received[1])
	mu.Unlock()

	unsubscribe()
	unsubscribe()

	reg.TestLoad(token)
	reg.TestPublish(ctx, token.ID, &auth.Session{UID: "uid-1"})

	mu.Lock()
	assert.Len(t, received, 2)
	mu.Unlock()
}

func TestSessionRegister_Remove(t *testing.T) {
	ctx := t.Context()
	reg := usecase.NewTestSessionRegister()
	token := newRegisterToken(ctx)
	reg.TestLoad(token)
	resolved := reg.TestResolvedCh(token.ID)

	reg.TestRemove(token.ID)

	_, _, found := reg.TestGet(token.ID)
	assert.False(t, found)

	// Waiters are released when the token goes away
	select {
	case <-resolved:
	default:
		t.Fatal("waiters were not released")
	}

	// Removing twice is harmless
	reg.TestRemove(token.ID)
}

func TestSessionRegister_RemovedTokenStaysRemoved(t *testing.T) {
	ctx := t.Context()
	reg := usecase.NewTestSessionRegister()
	token := newRegisterToken(ctx)
	require.True(t, reg.TestLoad(token))
	reg.TestPublish(ctx, token.ID, &auth.Session{UID: "uid-1"})

	reg.TestRemove(token.ID)

	// A copy read from storage before the removal must not come back
	assert.False(t, reg.TestLoad(token))
	assert.False(t, reg.TestUpdateToken(token))
	assert.False(t, reg.TestPublish(ctx, token.ID, &auth.Session{UID: "uid-1"}))

	_, _, found := reg.TestGet(token.ID)
	assert.False(t, found)

	// Other tokens are not affected
	other := newRegisterToken(ctx)
	assert.True(t, reg.TestLoad(other))
	assert.True(t, reg.TestUpdateToken(other))
}

func TestSessionRegister_BeginRefresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := clock.With(t.Context(), func() time.Time { return now })
	reg := usecase.NewTestSessionRegister()
	token := newRegisterToken(ctx)

	assert.False(t, reg.TestBeginRefresh(ctx, token.ID, usecase.DefaultRefreshInterval), "unknown token")

	reg.TestLoad(token)
	assert.True(t, reg.TestBeginRefresh(ctx, token.ID, usecase.DefaultRefreshInterval), "unresolved token")
	assert.False(t, reg.TestBeginRefresh(ctx, token.ID, usecase.DefaultRefreshInterval), "already refreshing")

	reg.TestPublish(ctx, token.ID, &auth.Session{UID: "uid-1"})
	assert.False(t, reg.TestBeginRefresh(ctx, token.ID, usecase.DefaultRefreshInterval), "fresh report")

	later := clock.With(t.Context(), func() time.Time { return now.Add(usecase.DefaultRefreshInterval + time.Second) })
	assert.True(t, reg.TestBeginRefresh(later, token.ID, usecase.DefaultRefreshInterval), "stale report")
}
