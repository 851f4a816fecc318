package http

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
)

const (
	tokenIDCookieName     = "token_id"
	tokenSecretCookieName = "token_secret"
	oauthStateCookieName  = "oauth_state"
	flashCookieName       = "flash"

	oauthStateMaxAge = 600 // 10 minutes
	flashMaxAge      = 60
)

func (s *Server) isSecure(r *http.Request) bool {
	return s.secureCookie || r.TLS != nil
}

func (s *Server) setCookie(w http.ResponseWriter, r *http.Request, cookie *http.Cookie) {
	cookie.Path = "/"
	cookie.HttpOnly = true
	cookie.Secure = s.isSecure(r)
	cookie.SameSite = http.SameSiteLaxMode
	http.SetCookie(w, cookie)
}

func (s *Server) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	s.setCookie(w, r, &http.Cookie{Name: name, MaxAge: -1})
}

func (s *Server) setTokenCookies(w http.ResponseWriter, r *http.Request, token *auth.Token) {
	s.setCookie(w, r, &http.Cookie{
		Name:    tokenIDCookieName,
		Value:   token.ID.String(),
		Expires: token.ExpiresAt,
	})
	s.setCookie(w, r, &http.Cookie{
		Name:    tokenSecretCookieName,
		Value:   token.Secret.String(),
		Expires: token.ExpiresAt,
	})
}

func (s *Server) clearTokenCookies(w http.ResponseWriter, r *http.Request) {
	s.clearCookie(w, r, tokenIDCookieName)
	s.clearCookie(w, r, tokenSecretCookieName)
}

// tokenFromCookies returns the browser token credentials, empty when absent.
func tokenFromCookies(r *http.Request) (auth.TokenID, auth.TokenSecret) {
	var tokenID auth.TokenID
	var secret auth.TokenSecret
	if c, err := r.Cookie(tokenIDCookieName); err == nil {
		tokenID = auth.TokenID(c.Value)
	}
	if c, err := r.Cookie(tokenSecretCookieName); err == nil {
		secret = auth.TokenSecret(c.Value)
	}
	return tokenID, secret
}

// pendingSignIn is kept in the oauth_state cookie while the visitor is at
// the social provider.
type pendingSignIn struct {
	Challenge auth.ProviderChallenge `json:"challenge"`
	Next      string                 `json:"next"`
}

func encodeCookieValue(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", goerr.Wrap(err, "failed to marshal cookie value")
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCookieValue(value string, v any) error {
	raw, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return goerr.Wrap(err, "failed to decode cookie value")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return goerr.Wrap(err, "failed to unmarshal cookie value")
	}
	return nil
}
