package identity

import (
	"context"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/utils/errutil"
)

type idTokenClaims struct {
	UID       string
	ExpiresAt time.Time
}

// idTokenVerifier checks ID tokens issued by the secure token service.
type idTokenVerifier struct {
	jwksURL    string
	issuer     string
	audience   string
	httpClient *http.Client
}

func (v *idTokenVerifier) Verify(ctx context.Context, idToken string) (*idTokenClaims, error) {
	if idToken == "" {
		return nil, goerr.New("empty ID token")
	}

	keySet, err := jwk.Fetch(ctx, v.jwksURL, jwk.WithHTTPClient(v.httpClient))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to fetch JWK set", goerr.TV(errutil.EndpointKey, v.jwksURL))
	}

	token, err := jwt.Parse([]byte(idToken),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(v.issuer),
		jwt.WithAudience(v.audience),
	)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to parse ID token")
	}
	if token.Subject() == "" {
		return nil, goerr.New("ID token has no subject")
	}

	return &idTokenClaims{
		UID:       token.Subject(),
		ExpiresAt: token.Expiration(),
	}, nil
}
