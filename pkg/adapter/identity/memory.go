package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/interfaces"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/utils/clock"
	"github.com/secmon-lab/tollgate/pkg/utils/errutil"
	"golang.org/x/crypto/bcrypt"
)

// Operation names an IdentityClient method, for call counting and fault
// injection on Memory.
type Operation string

const (
	OpCreateAccount          Operation = "CreateAccount"
	OpSignIn                 Operation = "SignIn"
	OpProviderSignIn         Operation = "ProviderSignIn"
	OpCompleteProviderSignIn Operation = "CompleteProviderSignIn"
	OpSignOut                Operation = "SignOut"
	OpSendPasswordReset      Operation = "SendPasswordReset"
	OpSendVerificationEmail  Operation = "SendVerificationEmail"
	OpUpdateProfile          Operation = "UpdateProfile"
	OpLookup                 Operation = "Lookup"
	OpRefresh                Operation = "Refresh"
)

const memoryIDTokenTTL = time.Hour

// Mail is a message the Memory provider would have sent.
type Mail struct {
	Kind  string // PASSWORD_RESET or VERIFY_EMAIL
	Email string
}

type memoryAccount struct {
	uid         string
	email       string
	hash        []byte
	displayName string
	photoURL    string
	verified    bool
}

type memoryIDToken struct {
	uid       string
	expiresAt time.Time
}

// Memory is an in-process identity provider for development mode and tests.
// Messages follow the identity toolkit "CODE : description" format.
type Memory struct {
	mu            sync.Mutex
	accounts      map[string]*memoryAccount // by uid
	byEmail       map[string]string         // email -> uid
	idTokens      map[string]memoryIDToken
	refreshTokens map[string]string // refresh token -> uid
	challenges    map[string]auth.ProviderKind
	outbox        []Mail
	failures      map[Operation]string
	callCounts    map[Operation]int
}

var _ interfaces.IdentityClient = &Memory{}

func NewMemory() *Memory {
	return &Memory{
		accounts:      make(map[string]*memoryAccount),
		byEmail:       make(map[string]string),
		idTokens:      make(map[string]memoryIDToken),
		refreshTokens: make(map[string]string),
		challenges:    make(map[string]auth.ProviderKind),
		failures:      make(map[Operation]string),
		callCounts:    make(map[Operation]int),
	}
}

// FailNext makes the next call of op fail with the given provider message.
func (m *Memory) FailNext(op Operation, providerMessage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = providerMessage
}

// CallCount returns how many times op has been invoked.
func (m *Memory) CallCount(op Operation) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCounts[op]
}

// Outbox returns the mails sent so far.
func (m *Memory) Outbox() []Mail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Mail(nil), m.outbox...)
}

// VerifyEmail marks the account as verified, as if the visitor had followed
// the link in the verification mail.
func (m *Memory) VerifyEmail(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if uid, ok := m.byEmail[strings.ToLower(email)]; ok {
		m.accounts[uid].verified = true
	}
}

// DeleteAccount removes an account and everything issued to it.
func (m *Memory) DeleteAccount(email string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	uid, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return
	}
	delete(m.byEmail, strings.ToLower(email))
	delete(m.accounts, uid)
	m.revokeLocked(uid)
}

func providerError(op Operation, providerMessage string) error {
	opts := []goerr.Option{
		goerr.TV(errutil.OperationKey, string(op)),
		goerr.TV(errs.ProviderMessageKey, providerMessage),
		goerr.T(errs.TagProvider),
	}
	if op == OpRefresh && errs.IsCredentialRejection(providerMessage) {
		opts = append(opts, goerr.T(errs.TagRejected))
	}
	return goerr.New("identity provider rejected request", opts...)
}

// beginLocked counts the call and returns an injected failure, if any.
// Callers must hold m.mu.
func (m *Memory) beginLocked(op Operation) error {
	m.callCounts[op]++
	if msg, ok := m.failures[op]; ok {
		delete(m.failures, op)
		return providerError(op, msg)
	}
	return nil
}

func randomString() string {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		panic(goerr.Wrap(err, "failed to generate random string"))
	}
	return base64.RawURLEncoding.EncodeToString(b)
}

func (m *Memory) issueLocked(ctx context.Context, uid string) *auth.Credential {
	idToken := randomString()
	refreshToken := randomString()
	expiresAt := clock.Now(ctx).Add(memoryIDTokenTTL)

	m.idTokens[idToken] = memoryIDToken{uid: uid, expiresAt: expiresAt}
	m.refreshTokens[refreshToken] = uid

	return &auth.Credential{
		UID:          uid,
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresAt:    expiresAt,
	}
}

func (m *Memory) revokeLocked(uid string) {
	for token, t := range m.idTokens {
		if t.uid == uid {
			delete(m.idTokens, token)
		}
	}
	for token, owner := range m.refreshTokens {
		if owner == uid {
			delete(m.refreshTokens, token)
		}
	}
}

// accountLocked resolves an ID token to its account.
func (m *Memory) accountLocked(ctx context.Context, op Operation, cred *auth.Credential) (*memoryAccount, error) {
	if cred == nil {
		return nil, providerError(op, "INVALID_ID_TOKEN : The user's credential is no longer valid. The user must sign in again.")
	}
	t, ok := m.idTokens[cred.IDToken]
	if !ok {
		return nil, providerError(op, "INVALID_ID_TOKEN : The user's credential is no longer valid. The user must sign in again.")
	}
	if clock.Now(ctx).After(t.expiresAt) {
		return nil, providerError(op, "TOKEN_EXPIRED : The user's credential is no longer valid. The user must sign in again.")
	}
	account, ok := m.accounts[t.uid]
	if !ok {
		return nil, providerError(op, "USER_NOT_FOUND : There is no user record corresponding to this identifier. The user may have been deleted.")
	}
	return account, nil
}

func (m *Memory) CreateAccount(ctx context.Context, email, password string) (*auth.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpCreateAccount); err != nil {
		return nil, err
	}

	key := strings.ToLower(email)
	if _, exists := m.byEmail[key]; exists {
		return nil, providerError(OpCreateAccount, "EMAIL_EXISTS : The email address is already in use by another account.")
	}
	if len(password) < 6 {
		return nil, providerError(OpCreateAccount, "WEAK_PASSWORD : Password should be at least 6 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to hash password", goerr.T(errs.TagInternal))
	}

	account := &memoryAccount{
		uid:   uuid.NewString(),
		email: email,
		hash:  hash,
	}
	m.accounts[account.uid] = account
	m.byEmail[key] = account.uid

	return m.issueLocked(ctx, account.uid), nil
}

func (m *Memory) SignIn(ctx context.Context, email, password string) (*auth.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpSignIn); err != nil {
		return nil, err
	}

	uid, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, providerError(OpSignIn, "EMAIL_NOT_FOUND : There is no user record corresponding to this identifier. The user may have been deleted.")
	}
	account := m.accounts[uid]
	if account.hash == nil || bcrypt.CompareHashAndPassword(account.hash, []byte(password)) != nil {
		return nil, providerError(OpSignIn, "INVALID_PASSWORD : The password is invalid or the user does not have a password.")
	}

	return m.issueLocked(ctx, uid), nil
}

// ProviderSignIn skips the consent screen: the returned AuthURL points
// straight back at the callback, the way a provider would after approval.
func (m *Memory) ProviderSignIn(ctx context.Context, kind auth.ProviderKind, callbackURL string) (*auth.ProviderChallenge, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpProviderSignIn); err != nil {
		return nil, err
	}

	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid callback URL", goerr.V("url", callbackURL), goerr.T(errs.TagValidation))
	}
	sessionID := randomString()
	q := u.Query()
	q.Set("code", "dev-"+kind.String())
	u.RawQuery = q.Encode()

	m.challenges[sessionID] = kind
	return &auth.ProviderChallenge{
		Kind:      kind,
		AuthURL:   u.String(),
		SessionID: sessionID,
	}, nil
}

func (m *Memory) CompleteProviderSignIn(ctx context.Context, challenge *auth.ProviderChallenge, redirectedURL string) (*auth.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpCompleteProviderSignIn); err != nil {
		return nil, err
	}

	kind, ok := m.challenges[challenge.SessionID]
	if !ok || kind != challenge.Kind {
		return nil, providerError(OpCompleteProviderSignIn, "INVALID_SESSION : The sign-in session has expired or is unknown.")
	}
	delete(m.challenges, challenge.SessionID)

	u, err := url.Parse(redirectedURL)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid redirect URL", goerr.T(errs.TagValidation))
	}
	if reason := u.Query().Get("error"); reason != "" || u.Query().Get("code") == "" {
		return nil, goerr.New("provider sign-in was not completed",
			goerr.V("reason", reason),
			goerr.TV(errs.ProviderMessageKey, "USER_CANCELLED : The sign-in flow was cancelled."),
			goerr.T(errs.TagProvider),
			goerr.T(errs.TagAbandoned))
	}

	email := kind.String() + ".user@example.com"
	uid, ok := m.byEmail[email]
	if !ok {
		account := &memoryAccount{
			uid:         uuid.NewString(),
			email:       email,
			displayName: "Dev User (" + kind.Label() + ")",
		}
		m.accounts[account.uid] = account
		m.byEmail[email] = account.uid
		uid = account.uid
	}

	return m.issueLocked(ctx, uid), nil
}

func (m *Memory) SignOut(ctx context.Context, cred *auth.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpSignOut); err != nil {
		return err
	}
	if cred == nil {
		return nil
	}
	delete(m.idTokens, cred.IDToken)
	delete(m.refreshTokens, cred.RefreshToken)
	return nil
}

func (m *Memory) SendPasswordReset(ctx context.Context, email string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpSendPasswordReset); err != nil {
		return err
	}

	if _, ok := m.byEmail[strings.ToLower(email)]; !ok {
		return providerError(OpSendPasswordReset, "EMAIL_NOT_FOUND : There is no user record corresponding to this identifier. The user may have been deleted.")
	}
	m.outbox = append(m.outbox, Mail{Kind: "PASSWORD_RESET", Email: email})
	return nil
}

func (m *Memory) SendVerificationEmail(ctx context.Context, cred *auth.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpSendVerificationEmail); err != nil {
		return err
	}

	account, err := m.accountLocked(ctx, OpSendVerificationEmail, cred)
	if err != nil {
		return err
	}
	m.outbox = append(m.outbox, Mail{Kind: "VERIFY_EMAIL", Email: account.email})
	return nil
}

func (m *Memory) UpdateProfile(ctx context.Context, cred *auth.Credential, displayName, photoURL string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpUpdateProfile); err != nil {
		return err
	}

	account, err := m.accountLocked(ctx, OpUpdateProfile, cred)
	if err != nil {
		return err
	}
	account.displayName = displayName
	account.photoURL = photoURL
	return nil
}

func (m *Memory) Lookup(ctx context.Context, cred *auth.Credential) (*auth.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpLookup); err != nil {
		return nil, err
	}

	if cred == nil {
		return nil, nil
	}
	t, ok := m.idTokens[cred.IDToken]
	if !ok {
		return nil, nil
	}
	if clock.Now(ctx).After(t.expiresAt) {
		return nil, providerError(OpLookup, "TOKEN_EXPIRED : The user's credential is no longer valid. The user must sign in again.")
	}
	account, ok := m.accounts[t.uid]
	if !ok {
		return nil, nil
	}

	return &auth.Session{
		UID:           account.uid,
		DisplayName:   account.displayName,
		PhotoURL:      account.photoURL,
		Email:         account.email,
		EmailVerified: account.verified,
	}, nil
}

func (m *Memory) Refresh(ctx context.Context, cred *auth.Credential) (*auth.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.beginLocked(OpRefresh); err != nil {
		return nil, err
	}

	uid, ok := m.refreshTokens[cred.RefreshToken]
	if !ok {
		return nil, providerError(OpRefresh, "INVALID_REFRESH_TOKEN : Invalid refresh token provided.")
	}
	delete(m.refreshTokens, cred.RefreshToken)
	delete(m.idTokens, cred.IDToken)
	return m.issueLocked(ctx, uid), nil
}
