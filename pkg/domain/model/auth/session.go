package auth

import (
	"context"
	"log/slog"
	"time"
)

// Session is the signed-in identity as reported by the identity provider.
// It is treated as an immutable value: updates replace the whole record.
type Session struct {
	UID           string `json:"uid" firestore:"uid"`
	DisplayName   string `json:"display_name" firestore:"display_name"`
	PhotoURL      string `json:"photo_url" firestore:"photo_url"`
	Email         string `json:"email" firestore:"email"`
	EmailVerified bool   `json:"email_verified" firestore:"email_verified"`
}

func (x *Session) LogValue() slog.Value {
	if x == nil {
		return slog.StringValue("(signed out)")
	}
	return slog.GroupValue(
		slog.String("uid", x.UID),
		slog.String("email", x.Email),
		slog.Bool("email_verified", x.EmailVerified),
	)
}

// Name returns the display name, falling back to the email address.
func (x *Session) Name() string {
	if x == nil {
		return ""
	}
	if x.DisplayName != "" {
		return x.DisplayName
	}
	return x.Email
}

// WithProfile returns a copy of x with the profile fields replaced.
func (x *Session) WithProfile(displayName, photoURL string) *Session {
	if x == nil {
		return nil
	}
	next := *x
	next.DisplayName = displayName
	next.PhotoURL = photoURL
	return &next
}

// State is what the rest of the application sees of a visitor: the session
// (nil when signed out) and whether the provider has answered yet.
// ExpiresAt is when the browser token of a signed-in visitor runs out.
type State struct {
	Session   *Session  `json:"session"`
	Resolved  bool      `json:"resolved"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SignedIn reports a resolved state with a session.
func (x State) SignedIn() bool {
	return x.Resolved && x.Session != nil
}

// SignedOutState is the resolved state without a session.
func SignedOutState() State {
	return State{Resolved: true}
}

type ctxStateKey struct{}

// ContextWithState stores the visitor state on the request context.
func ContextWithState(ctx context.Context, state State) context.Context {
	return context.WithValue(ctx, ctxStateKey{}, state)
}

// StateFromContext returns the visitor state. An unset state is unresolved.
func StateFromContext(ctx context.Context) State {
	state, ok := ctx.Value(ctxStateKey{}).(State)
	if !ok {
		return State{}
	}
	return state
}
