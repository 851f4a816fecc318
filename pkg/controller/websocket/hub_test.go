package websocket_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	websocket_ctrl "github.com/secmon-lab/tollgate/pkg/controller/websocket"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	websocket_model "github.com/secmon-lab/tollgate/pkg/domain/model/websocket"
)

// fakeSource records subscriptions and lets tests publish state changes.
type fakeSource struct {
	mu           sync.Mutex
	subs         map[auth.TokenID]func(auth.State)
	unsubscribed []auth.TokenID
}

func newFakeSource() *fakeSource {
	return &fakeSource{subs: make(map[auth.TokenID]func(auth.State))}
}

func (f *fakeSource) Subscribe(tokenID auth.TokenID, fn func(auth.State)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs[tokenID] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, tokenID)
		f.unsubscribed = append(f.unsubscribed, tokenID)
	}
}

func (f *fakeSource) publish(tokenID auth.TokenID, state auth.State) {
	f.mu.Lock()
	fn := f.subs[tokenID]
	f.mu.Unlock()
	if fn != nil {
		fn(state)
	}
}

func (f *fakeSource) subscribed(tokenID auth.TokenID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.subs[tokenID]
	return ok
}

func (f *fakeSource) unsubscribedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.unsubscribed)
}

func setupTestHub(t *testing.T) (*websocket_ctrl.Hub, *fakeSource) {
	ctx, cancel := context.WithCancel(context.Background())
	source := newFakeSource()
	hub := websocket_ctrl.NewHub(ctx, source)
	go hub.Run()

	t.Cleanup(func() {
		_ = hub.Close()
		cancel()
	})
	return hub, source
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func receive(t *testing.T, client *websocket_ctrl.Client) (*websocket_model.SessionResponse, bool) {
	t.Helper()
	select {
	case data, ok := <-client.Outbox():
		if !ok {
			return nil, false
		}
		var resp websocket_model.SessionResponse
		gt.NoError(t, json.Unmarshal(data, &resp))
		return &resp, true
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil, false
	}
}

func TestHub_RegistrationSubscribes(t *testing.T) {
	hub, source := setupTestHub(t)
	tokenID := auth.TokenID("token-1")

	first := hub.NewClient(nil, tokenID)
	second := hub.NewClient(nil, tokenID)
	hub.Register(first)
	hub.Register(second)

	waitFor(t, func() bool { return hub.GetClientCount(tokenID) == 2 })
	gt.True(t, source.subscribed(tokenID))
	gt.Equal(t, hub.GetTotalClientCount(), 2)

	hub.Unregister(first)
	waitFor(t, func() bool { return hub.GetClientCount(tokenID) == 1 })
	gt.True(t, source.subscribed(tokenID))

	hub.Unregister(second)
	waitFor(t, func() bool { return hub.GetClientCount(tokenID) == 0 })
	gt.False(t, source.subscribed(tokenID))
	gt.Equal(t, source.unsubscribedCount(), 1)
}

func TestHub_PushesStateChanges(t *testing.T) {
	hub, source := setupTestHub(t)
	tokenID := auth.TokenID("token-1")
	other := auth.TokenID("token-2")

	client := hub.NewClient(nil, tokenID)
	bystander := hub.NewClient(nil, other)
	hub.Register(client)
	hub.Register(bystander)
	waitFor(t, func() bool { return hub.GetTotalClientCount() == 2 })

	source.publish(tokenID, auth.State{
		Session:  &auth.Session{UID: "uid-1", DisplayName: "Alice"},
		Resolved: true,
	})

	resp, ok := receive(t, client)
	gt.True(t, ok)
	gt.Equal(t, resp.Type, websocket_model.TypeSession)
	gt.True(t, resp.Resolved)
	gt.Equal(t, resp.Session.DisplayName, "Alice")

	select {
	case <-bystander.Outbox():
		t.Fatal("message delivered to another token")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHub_SignOutClosesClients(t *testing.T) {
	hub, source := setupTestHub(t)
	tokenID := auth.TokenID("token-1")

	client := hub.NewClient(nil, tokenID)
	hub.Register(client)
	waitFor(t, func() bool { return hub.GetClientCount(tokenID) == 1 })

	source.publish(tokenID, auth.SignedOutState())

	resp, ok := receive(t, client)
	gt.True(t, ok)
	gt.True(t, resp.SignedOut())

	_, ok = receive(t, client)
	gt.False(t, ok)

	waitFor(t, func() bool { return hub.GetClientCount(tokenID) == 0 })
	gt.False(t, source.subscribed(tokenID))
}

func TestHub_MaxClientsPerToken(t *testing.T) {
	hub, _ := setupTestHub(t)
	tokenID := auth.TokenID("token-1")

	for range 10 {
		hub.Register(hub.NewClient(nil, tokenID))
	}
	waitFor(t, func() bool { return hub.GetClientCount(tokenID) == 10 })

	extra := hub.NewClient(nil, tokenID)
	hub.Register(extra)

	_, ok := receive(t, extra)
	gt.False(t, ok)
	gt.Equal(t, hub.GetClientCount(tokenID), 10)
}

func TestHub_Close(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource()
	hub := websocket_ctrl.NewHub(ctx, source)
	go hub.Run()

	tokenID := auth.TokenID("token-1")
	client := hub.NewClient(nil, tokenID)
	hub.Register(client)
	waitFor(t, func() bool { return hub.GetClientCount(tokenID) == 1 })

	gt.NoError(t, hub.Close())
	gt.Equal(t, hub.GetTotalClientCount(), 0)
	gt.False(t, source.subscribed(tokenID))

	// Operations after close do not block
	hub.BroadcastState(tokenID, auth.SignedOutState())
	hub.Unregister(client)
}

func TestHub_BroadcastDoesNotWaitForLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := newFakeSource()
	hub := websocket_ctrl.NewHub(ctx, source)
	t.Cleanup(func() { _ = hub.Close() })

	busy := auth.TokenID("token-busy")
	done := make(chan struct{})
	go func() {
		defer close(done)
		// more changes than the queue holds, with no loop draining it
		for range 1000 {
			hub.BroadcastState(busy, auth.SignedOutState())
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked while the hub loop was not running")
	}

	// the hub still delivers once the loop runs
	go hub.Run()
	tokenID := auth.TokenID("token-1")
	client := hub.NewClient(nil, tokenID)
	hub.Register(client)
	waitFor(t, func() bool { return hub.GetClientCount(tokenID) == 1 })

	// the queue may still be draining, so publish until a change gets in
	signedIn := auth.State{
		Session:  &auth.Session{UID: "uid-1", DisplayName: "Alice"},
		Resolved: true,
	}
	var data []byte
	waitFor(t, func() bool {
		source.publish(tokenID, signedIn)
		select {
		case data = <-client.Outbox():
			return true
		case <-time.After(10 * time.Millisecond):
			return false
		}
	})

	var resp websocket_model.SessionResponse
	gt.NoError(t, json.Unmarshal(data, &resp))
	gt.Equal(t, resp.Session.DisplayName, "Alice")
}
