package identity

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/interfaces"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/utils/errutil"
	"github.com/secmon-lab/tollgate/pkg/utils/safe"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

const (
	defaultSecureTokenURL = "https://securetoken.googleapis.com/v1/token"
	defaultJWKSURL        = "https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"
	secureTokenIssuer     = "https://securetoken.google.com/"
)

// Toolkit talks to Google Identity Toolkit (Firebase Authentication) over
// its REST API with a web API key.
type Toolkit struct {
	svc        *identitytoolkit.Service
	apiKey     string
	httpClient *http.Client
	tokenURL   string
	verifier   *idTokenVerifier
}

var _ interfaces.IdentityClient = &Toolkit{}

type toolkitConfig struct {
	endpoint   string
	tokenURL   string
	jwksURL    string
	httpClient *http.Client
}

type ToolkitOption func(*toolkitConfig)

// WithToolkitEndpoint overrides the identity toolkit base URL.
func WithToolkitEndpoint(endpoint string) ToolkitOption {
	return func(c *toolkitConfig) {
		c.endpoint = endpoint
	}
}

// WithSecureTokenURL overrides the refresh token exchange endpoint.
func WithSecureTokenURL(tokenURL string) ToolkitOption {
	return func(c *toolkitConfig) {
		c.tokenURL = tokenURL
	}
}

// WithJWKSURL overrides where ID token signing keys are fetched from.
func WithJWKSURL(jwksURL string) ToolkitOption {
	return func(c *toolkitConfig) {
		c.jwksURL = jwksURL
	}
}

func WithHTTPClient(client *http.Client) ToolkitOption {
	return func(c *toolkitConfig) {
		c.httpClient = client
	}
}

func NewToolkit(ctx context.Context, apiKey, projectID string, opts ...ToolkitOption) (*Toolkit, error) {
	if apiKey == "" {
		return nil, goerr.New("identity toolkit API key is required", goerr.T(errs.TagValidation))
	}
	if projectID == "" {
		return nil, goerr.New("identity toolkit project ID is required", goerr.T(errs.TagValidation))
	}

	cfg := &toolkitConfig{
		tokenURL:   defaultSecureTokenURL,
		jwksURL:    defaultJWKSURL,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	svcOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if cfg.endpoint != "" {
		svcOpts = append(svcOpts,
			option.WithEndpoint(cfg.endpoint),
			option.WithHTTPClient(cfg.httpClient),
		)
	}

	svc, err := identitytoolkit.NewService(ctx, svcOpts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create identity toolkit service")
	}

	return &Toolkit{
		svc:        svc,
		apiKey:     apiKey,
		httpClient: cfg.httpClient,
		tokenURL:   cfg.tokenURL,
		verifier: &idTokenVerifier{
			jwksURL:    cfg.jwksURL,
			issuer:     secureTokenIssuer + projectID,
			audience:   projectID,
			httpClient: cfg.httpClient,
		},
	}, nil
}

// wrapProviderError keeps the provider's message so that the view can show
// it to the visitor.
func wrapProviderError(err error, op Operation) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return goerr.Wrap(err, "identity provider rejected request",
			goerr.TV(errutil.OperationKey, string(op)),
			goerr.TV(errutil.HTTPStatusKey, apiErr.Code),
			goerr.TV(errs.ProviderMessageKey, apiErr.Message),
			goerr.T(errs.TagProvider))
	}
	return goerr.Wrap(err, "failed to call identity provider",
		goerr.TV(errutil.OperationKey, string(op)),
		goerr.T(errs.TagProvider))
}

// credential verifies the ID token returned by the provider and builds the
// credential from its claims.
func (t *Toolkit) credential(ctx context.Context, idToken, refreshToken string) (*auth.Credential, error) {
	claims, err := t.verifier.Verify(ctx, idToken)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to verify ID token", goerr.T(errs.TagProvider))
	}
	return &auth.Credential{
		UID:          claims.UID,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresAt:    claims.ExpiresAt,
	}, nil
}

func (t *Toolkit) CreateAccount(ctx context.Context, email, password string) (*auth.Credential, error) {
	resp, err := t.svc.Relyingparty.SignupNewUser(&identitytoolkit.IdentitytoolkitRelyingpartySignupNewUserRequest{
		Email:    email,
		Password: password,
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapProviderError(err, OpCreateAccount)
	}
	return t.credential(ctx, resp.IdToken, resp.RefreshToken)
}

func (t *Toolkit) SignIn(ctx context.Context, email, password string) (*auth.Credential, error) {
	resp, err := t.svc.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapProviderError(err, OpSignIn)
	}
	return t.credential(ctx, resp.IdToken, resp.RefreshToken)
}

func (t *Toolkit) ProviderSignIn(ctx context.Context, kind auth.ProviderKind, callbackURL string) (*auth.ProviderChallenge, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	resp, err := t.svc.Relyingparty.CreateAuthUri(&identitytoolkit.IdentitytoolkitRelyingpartyCreateAuthUriRequest{
		ProviderId:  kind.ProviderID(),
		ContinueUri: callbackURL,
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapProviderError(err, OpProviderSignIn)
	}
	if resp.AuthUri == "" {
		return nil, goerr.New("identity provider returned no authorization URL",
			goerr.TV(errutil.ProviderKey, kind.String()),
			goerr.T(errs.TagProvider))
	}

	return &auth.ProviderChallenge{
		Kind:      kind,
		AuthURL:   resp.AuthUri,
		SessionID: resp.SessionId,
	}, nil
}

func (t *Toolkit) CompleteProviderSignIn(ctx context.Context, challenge *auth.ProviderChallenge, redirectedURL string) (*auth.Credential, error) {
	u, err := url.Parse(redirectedURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid redirect URL", goerr.T(errs.TagValidation))
	}
	// A visitor declining consent comes back with an error instead of a code.
	if reason := u.Query().Get("error"); reason != "" {
		return nil, goerr.New("provider sign-in was not completed",
			goerr.V("reason", reason),
			goerr.TV(errutil.ProviderKey, challenge.Kind.String()),
			goerr.TV(errs.ProviderMessageKey, "USER_CANCELLED : "+u.Query().Get("error_description")),
			goerr.T(errs.TagProvider),
			goerr.T(errs.TagAbandoned))
	}

	resp, err := t.svc.Relyingparty.VerifyAssertion(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyAssertionRequest{
		RequestUri:        redirectedURL,
		SessionId:         challenge.SessionID,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		return nil, wrapProviderError(err, OpCompleteProviderSignIn)
	}
	if resp.ErrorMessage != "" {
		return nil, goerr.New("identity provider rejected assertion",
			goerr.TV(errutil.ProviderKey, challenge.Kind.String()),
			goerr.TV(errs.ProviderMessageKey, resp.ErrorMessage),
			goerr.T(errs.TagProvider))
	}

	return t.credential(ctx, resp.IdToken, resp.RefreshToken)
}

// SignOut has nothing to revoke on the provider side: the REST API does not
// offer end-user sign out, so forgetting the credential is the sign out.
func (t *Toolkit) SignOut(ctx context.Context, cred *auth.Credential) error {
	return nil
}

func (t *Toolkit) SendPasswordReset(ctx context.Context, email string) error {
	_, err := t.svc.Relyingparty.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: "PASSWORD_RESET",
		Email:       email,
	}).Context(ctx).Do()
	if err != nil {
		return wrapProviderError(err, OpSendPasswordReset)
	}
	return nil
}

func (t *Toolkit) SendVerificationEmail(ctx context.Context, cred *auth.Credential) error {
	_, err := t.svc.Relyingparty.GetOobConfirmationCode(&identitytoolkit.Relyingparty{
		RequestType: "VERIFY_EMAIL",
		IdToken:     cred.IDToken,
	}).Context(ctx).Do()
	if err != nil {
		return wrapProviderError(err, OpSendVerificationEmail)
	}
	return nil
}

func (t *Toolkit) UpdateProfile(ctx context.Context, cred *auth.Credential, displayName, photoURL string) error {
	req := &identitytoolkit.IdentitytoolkitRelyingpartySetAccountInfoRequest{
		IdToken:     cred.IDToken,
		DisplayName: displayName,
		PhotoUrl:    photoURL,
	}
	if photoURL == "" {
		req.DeleteAttribute = []string{"PHOTO_URL"}
	}

	if _, err := t.svc.Relyingparty.SetAccountInfo(req).Context(ctx).Do(); err != nil {
		return wrapProviderError(err, OpUpdateProfile)
	}
	return nil
}

func (t *Toolkit) Lookup(ctx context.Context, cred *auth.Credential) (*auth.Session, error) {
	resp, err := t.svc.Relyingparty.GetAccountInfo(&identitytoolkit.IdentitytoolkitRelyingpartyGetAccountInfoRequest{
		IdToken: cred.IDToken,
	}).Context(ctx).Do()
	if err != nil {
		var apiErr *googleapi.Error
		// USER_NOT_FOUND / INVALID_ID_TOKEN: the provider no longer knows
		// this credential, which is a sign out rather than a failure.
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest &&
			(strings.HasPrefix(apiErr.Message, "USER_NOT_FOUND") || strings.HasPrefix(apiErr.Message, "INVALID_ID_TOKEN")) {
			return nil, nil
		}
		return nil, wrapProviderError(err, OpLookup)
	}

	for _, u := range resp.Users {
		if u.LocalId != cred.UID || u.Disabled {
			continue
		}
		return &auth.Session{
			UID:           u.LocalId,
			DisplayName:   u.DisplayName,
			PhotoURL:      u.PhotoUrl,
			Email:         u.Email,
			EmailVerified: u.EmailVerified,
		}, nil
	}
	return nil, nil
}

type secureTokenResponse struct {
	IDToken      string `json:"id_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Error        *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Refresh exchanges the refresh token at the secure token endpoint, which is
// not part of the identity toolkit discovery document.
func (t *Toolkit) Refresh(ctx context.Context, cred *auth.Credential) (*auth.Credential, error) {
	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", cred.RefreshToken)

	endpoint := t.tokenURL + "?" + url.Values{"key": {t.apiKey}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create token request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to make token request",
			goerr.TV(errutil.EndpointKey, t.tokenURL),
			goerr.T(errs.TagProvider))
	}
	defer safe.Close(ctx, resp.Body)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read token response", goerr.T(errs.TagProvider))
	}

	var tokenResp secureTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, goerr.Wrap(err, "failed to parse token response",
			goerr.TV(errutil.HTTPStatusKey, resp.StatusCode),
			goerr.T(errs.TagProvider))
	}
	if resp.StatusCode != http.StatusOK || tokenResp.Error != nil {
		msg := "token refresh failed"
		if tokenResp.Error != nil {
			msg = tokenResp.Error.Message
		}
		opts := []goerr.Option{
			goerr.TV(errutil.OperationKey, string(OpRefresh)),
			goerr.TV(errutil.HTTPStatusKey, resp.StatusCode),
			goerr.TV(errs.ProviderMessageKey, msg),
			goerr.T(errs.TagProvider),
		}
		// Only a 400 naming the credential ends the session; 5xx and quota
		// answers are retried on the next request.
		if resp.StatusCode == http.StatusBadRequest && errs.IsCredentialRejection(msg) {
			opts = append(opts, goerr.T(errs.TagRejected))
		}
		return nil, goerr.New("identity provider rejected refresh", opts...)
	}

	return t.credential(ctx, tokenResp.IDToken, tokenResp.RefreshToken)
}
