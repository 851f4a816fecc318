package identity_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/tollgate/pkg/adapter/identity"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/utils/clock"
)

func TestMemoryAccount(t *testing.T) {
	ctx := t.Context()
	m := identity.NewMemory()

	cred, err := m.CreateAccount(ctx, "alice@example.com", "Passw0rd!")
	gt.NoError(t, err)
	gt.S(t, cred.UID).NotEqual("")
	gt.S(t, cred.IDToken).NotEqual("")

	t.Run("duplicate email is rejected", func(t *testing.T) {
		_, err := m.CreateAccount(ctx, "Alice@example.com", "Passw0rd!")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagProvider))
		gt.Equal(t, errs.ProviderMessage(err), "The email address is already in use by another account.")
	})

	t.Run("sign in with correct password", func(t *testing.T) {
		signedIn, err := m.SignIn(ctx, "alice@example.com", "Passw0rd!")
		gt.NoError(t, err)
		gt.Equal(t, signedIn.UID, cred.UID)
	})

	t.Run("sign in with wrong password", func(t *testing.T) {
		_, err := m.SignIn(ctx, "alice@example.com", "wrong")
		gt.Error(t, err)
		gt.Equal(t, errs.ProviderMessage(err), "The password is invalid or the user does not have a password.")
	})

	t.Run("lookup reports the profile", func(t *testing.T) {
		gt.NoError(t, m.UpdateProfile(ctx, cred, "Alice", "https://example.com/a.png"))

		session, err := m.Lookup(ctx, cred)
		gt.NoError(t, err)
		gt.NotNil(t, session)
		gt.Equal(t, session.DisplayName, "Alice")
		gt.Equal(t, session.PhotoURL, "https://example.com/a.png")
		gt.False(t, session.EmailVerified)

		m.VerifyEmail("alice@example.com")
		session, err = m.Lookup(ctx, cred)
		gt.NoError(t, err)
		gt.True(t, session.EmailVerified)
	})

	t.Run("mails are recorded", func(t *testing.T) {
		gt.NoError(t, m.SendVerificationEmail(ctx, cred))
		gt.NoError(t, m.SendPasswordReset(ctx, "alice@example.com"))

		outbox := m.Outbox()
		gt.A(t, outbox).Length(2)
		gt.Equal(t, outbox[0], identity.Mail{Kind: "VERIFY_EMAIL", Email: "alice@example.com"})
		gt.Equal(t, outbox[1], identity.Mail{Kind: "PASSWORD_RESET", Email: "alice@example.com"})

		err := m.SendPasswordReset(ctx, "nobody@example.com")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagProvider))
	})

	t.Run("deleted account is no longer recognized", func(t *testing.T) {
		m.DeleteAccount("alice@example.com")
		session, err := m.Lookup(ctx, cred)
		gt.NoError(t, err)
		gt.Nil(t, session)
	})
}

func TestMemoryWeakPassword(t *testing.T) {
	m := identity.NewMemory()
	_, err := m.CreateAccount(t.Context(), "bob@example.com", "abc")
	gt.Error(t, err)
	gt.Equal(t, errs.ProviderMessage(err), "Password should be at least 6 characters")
}

func TestMemoryFailNext(t *testing.T) {
	ctx := t.Context()
	m := identity.NewMemory()
	m.FailNext(identity.OpSignIn, "TOO_MANY_ATTEMPTS_TRY_LATER : Access has been temporarily disabled.")

	_, err := m.CreateAccount(ctx, "carol@example.com", "Passw0rd!")
	gt.NoError(t, err)

	_, err = m.SignIn(ctx, "carol@example.com", "Passw0rd!")
	gt.Error(t, err)
	gt.Equal(t, errs.ProviderMessage(err), "Access has been temporarily disabled.")

	// the failure is consumed by the first call
	_, err = m.SignIn(ctx, "carol@example.com", "Passw0rd!")
	gt.NoError(t, err)
	gt.Equal(t, m.CallCount(identity.OpSignIn), 2)
}

func TestMemoryRefresh(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ctx := clock.With(t.Context(), func() time.Time { return now })
	m := identity.NewMemory()

	cred, err := m.CreateAccount(ctx, "dave@example.com", "Passw0rd!")
	gt.NoError(t, err)

	later := clock.With(t.Context(), func() time.Time { return now.Add(2 * time.Hour) })
	_, err = m.Lookup(later, cred)
	gt.Error(t, err)
	gt.S(t, errs.ProviderMessage(err)).Contains("no longer valid")

	refreshed, err := m.Refresh(later, cred)
	gt.NoError(t, err)
	gt.NotEqual(t, refreshed.IDToken, cred.IDToken)
	gt.Equal(t, refreshed.ExpiresAt, now.Add(3*time.Hour))

	session, err := m.Lookup(later, refreshed)
	gt.NoError(t, err)
	gt.Equal(t, session.Email, "dave@example.com")

	// refresh tokens are single use
	_, err = m.Refresh(later, cred)
	gt.Error(t, err)
}

func TestMemoryProviderSignIn(t *testing.T) {
	ctx := t.Context()
	m := identity.NewMemory()

	t.Run("consent granted", func(t *testing.T) {
		challenge, err := m.ProviderSignIn(ctx, auth.ProviderGitHub, "http://localhost:8080/auth/provider/callback")
		gt.NoError(t, err)
		gt.S(t, challenge.AuthURL).Contains("http://localhost:8080/auth/provider/callback?")

		cred, err := m.CompleteProviderSignIn(ctx, challenge, challenge.AuthURL)
		gt.NoError(t, err)

		session, err := m.Lookup(ctx, cred)
		gt.NoError(t, err)
		gt.Equal(t, session.Email, "github.user@example.com")
		gt.Equal(t, session.DisplayName, "Dev User (GitHub)")
	})

	t.Run("consent declined", func(t *testing.T) {
		challenge, err := m.ProviderSignIn(ctx, auth.ProviderGoogle, "http://localhost:8080/auth/provider/callback")
		gt.NoError(t, err)

		_, err = m.CompleteProviderSignIn(ctx, challenge, "http://localhost:8080/auth/provider/callback?error=access_denied")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagAbandoned))
	})

	t.Run("challenge is single use", func(t *testing.T) {
		challenge, err := m.ProviderSignIn(ctx, auth.ProviderTwitter, "http://localhost:8080/auth/provider/callback")
		gt.NoError(t, err)
		_, err = m.CompleteProviderSignIn(ctx, challenge, challenge.AuthURL)
		gt.NoError(t, err)

		_, err = m.CompleteProviderSignIn(ctx, challenge, challenge.AuthURL)
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagProvider))
	})

	t.Run("unknown provider", func(t *testing.T) {
		_, err := m.ProviderSignIn(ctx, auth.ProviderKind("myspace"), "http://localhost:8080/auth/provider/callback")
		gt.Error(t, err)
		gt.True(t, goerr.HasTag(err, errs.TagValidation))
	})
}
