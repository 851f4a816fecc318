package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/utils/clock"
)

type TokenID string

const TokenExpireDuration = 7 * 24 * time.Hour

func (x TokenID) String() string {
	return string(x)
}

func NewTokenID() TokenID {
	id, err := uuid.NewV7()
	if err != nil {
		panic(err)
	}
	return TokenID(id.String())
}

func (x TokenID) Validate() error {
	if x == "" {
		return goerr.New("empty token ID")
	}
	if _, err := uuid.Parse(string(x)); err != nil {
		return goerr.Wrap(err, "invalid token ID format")
	}
	return nil
}

type TokenSecret string

func (x TokenSecret) String() string {
	return string(x)
}

func NewTokenSecret() TokenSecret {
	randomBytes := make([]byte, 32)
	if _, err := rand.Read(randomBytes); err != nil {
		panic(goerr.Wrap(err, "failed to generate random token secret"))
	}
	return TokenSecret(base64.RawURLEncoding.EncodeToString(randomBytes))
}

// Credential is what the identity provider hands back on sign-in.
type Credential struct {
	UID          string    `json:"uid" firestore:"uid"`
	IDToken      string    `json:"id_token" firestore:"id_token" masq:"secret"`
	RefreshToken string    `json:"refresh_token" firestore:"refresh_token" masq:"secret"`
	ExpiresAt    time.Time `json:"expires_at" firestore:"expires_at"`
}

// IsExpired reports whether the ID token must be refreshed before use.
// A minute of slack avoids handing out a token that dies in flight.
func (x *Credential) IsExpired(ctx context.Context) bool {
	return clock.Now(ctx).Add(time.Minute).After(x.ExpiresAt)
}

// Token binds a browser (token_id / token_secret cookies) to a provider
// credential and the last session reported for it.
type Token struct {
	ID         TokenID     `json:"id" firestore:"-"`
	Secret     TokenSecret `json:"secret" firestore:"secret" masq:"secret"`
	Credential Credential  `json:"credential" firestore:"credential"`
	Session    *Session    `json:"session" firestore:"session"`
	ExpiresAt  time.Time   `json:"expires_at" firestore:"expires_at"`
	CreatedAt  time.Time   `json:"created_at" firestore:"created_at"`
}

func (x *Token) Validate() error {
	if err := x.ID.Validate(); err != nil {
		return goerr.Wrap(err, "invalid token ID")
	}
	if x.Secret == "" {
		return goerr.New("empty token secret")
	}
	if x.Credential.UID == "" {
		return goerr.New("empty credential uid")
	}
	if x.ExpiresAt.IsZero() {
		return goerr.New("empty expires_at")
	}
	if x.CreatedAt.IsZero() {
		return goerr.New("empty created_at")
	}
	return nil
}

func (x *Token) IsExpired(ctx context.Context) bool {
	return clock.Now(ctx).After(x.ExpiresAt)
}

func NewToken(ctx context.Context, cred Credential, session *Session) *Token {
	now := clock.Now(ctx)
	return &Token{
		ID:         NewTokenID(),
		Secret:     NewTokenSecret(),
		Credential: cred,
		Session:    session,
		ExpiresAt:  now.Add(TokenExpireDuration),
		CreatedAt:  now,
	}
}
