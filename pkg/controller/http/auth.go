package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/domain/model/form"
	"github.com/secmon-lab/tollgate/pkg/usecase"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
	"github.com/secmon-lab/tollgate/pkg/utils/safe"
)

const (
	msgSignedIn          = "Login Successfully!"
	msgRegistered        = "Successfully registered!"
	msgRegisteredAndSent = "Successfully registered! And verification email has been sent."
	msgResetSent         = "Password reset link sent to your email address."
	msgVerificationSent  = "Verification email has been sent."
	msgProfileUpdated    = "Profile updated."
	msgSignedOut         = "Signed out."
	msgFlowExpired       = "The sign-in flow has expired. Please try again."
	msgSignInAgain       = "Your session has ended. Please sign in again."
	msgUnexpected        = "Something went wrong. Please try again later."

	providerCallbackPath = "/auth/provider/callback"
)

// formFailure turns an operation error into the status and the one message
// shown next to the form. Provider errors are shown by their trailing
// segment; anything unexpected is reported and replaced by a generic text.
func formFailure(ctx context.Context, err error) (int, string) {
	switch {
	case goerr.HasTag(err, errs.TagValidation):
		return http.StatusUnprocessableEntity, form.Message(err)

	case goerr.HasTag(err, errs.TagProvider):
		logging.From(ctx).Warn("identity provider rejected request", logging.ErrAttr(err))
		return http.StatusBadRequest, errs.ProviderMessage(err)

	case goerr.HasTag(err, errs.TagUnauthorized):
		logging.From(ctx).Info("request without session", logging.ErrAttr(err))
		return http.StatusUnauthorized, msgSignInAgain

	default:
		errs.Handle(ctx, err)
		return http.StatusInternalServerError, msgUnexpected
	}
}

// render shows a page along with any pending flash messages.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name string, data *pageData) {
	data.Flash = append(s.popFlash(w, r), data.Flash...)
	s.views.render(w, r, status, name, data)
}

func (s *Server) seeOther(w http.ResponseWriter, r *http.Request, target string) {
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (s *Server) callbackURL(r *http.Request) string {
	base := s.baseURL
	if base == "" {
		scheme := "http"
		if s.isSecure(r) {
			scheme = "https"
		}
		base = scheme + "://" + r.Host
	}
	return strings.TrimRight(base, "/") + providerCallbackPath
}

func (s *Server) homeHandler(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusOK, pageHome, &pageData{Title: "Home"})
}

func (s *Server) loginPageHandler(w http.ResponseWriter, r *http.Request) {
	next := safeNext(r.URL.Query().Get("next"), "")
	if auth.StateFromContext(r.Context()).SignedIn() {
		http.Redirect(w, r, safeNext(next, "/"), http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, pageLogin, &pageData{Title: "Sign in", Next: next})
}

// loginSubmitHandler handles both the sign-in button and the password reset
// button of the sign-in form.
func (s *Server) loginSubmitHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	next := safeNext(r.URL.Query().Get("next"), "")
	email := strings.TrimSpace(r.PostFormValue("email"))
	data := &pageData{Title: "Sign in", Next: next, Email: email}

	if r.PostFormValue("action") == "reset" {
		input := form.PasswordReset{Email: email}
		if err := input.Validate(); err != nil {
			data.Error = form.Message(err)
			s.render(w, r, http.StatusUnprocessableEntity, pageLogin, data)
			return
		}
		if err := s.sessionUC.RequestPasswordReset(ctx, input.Email); err != nil {
			status, msg := formFailure(ctx, err)
			data.Error = msg
			s.render(w, r, status, pageLogin, data)
			return
		}

		s.addFlash(w, r, success(msgResetSent))
		s.seeOther(w, r, loginURL(next))
		return
	}

	input := form.SignIn{Email: email, Password: r.PostFormValue("password")}
	if err := input.Validate(); err != nil {
		data.Error = form.Message(err)
		s.render(w, r, http.StatusUnprocessableEntity, pageLogin, data)
		return
	}

	token, err := s.sessionUC.SignIn(ctx, input.Email, input.Password)
	if err != nil {
		status, msg := formFailure(ctx, err)
		data.Error = msg
		s.render(w, r, status, pageLogin, data)
		return
	}

	s.setTokenCookies(w, r, token)
	s.addFlash(w, r, success(msgSignedIn))
	s.seeOther(w, r, safeNext(next, "/"))
}

func (s *Server) registerPageHandler(w http.ResponseWriter, r *http.Request) {
	if auth.StateFromContext(r.Context()).SignedIn() {
		http.Redirect(w, r, "/profile", http.StatusFound)
		return
	}
	s.render(w, r, http.StatusOK, pageRegister, &pageData{Title: "Sign up"})
}

func (s *Server) registerSubmitHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	input := form.SignUp{
		Name:          strings.TrimSpace(r.PostFormValue("name")),
		Email:         strings.TrimSpace(r.PostFormValue("email")),
		Password:      r.PostFormValue("password"),
		AcceptedTerms: r.PostFormValue("terms") == "on",
	}

	result, err := s.sessionUC.SignUp(ctx, input)
	if err != nil {
		status, msg := formFailure(ctx, err)
		s.render(w, r, status, pageRegister, &pageData{
			Title: "Sign up",
			Error: msg,
			Name:  input.Name,
			Email: input.Email,
		})
		return
	}

	msg := msgRegistered
	if verificationSent(result) {
		msg = msgRegisteredAndSent
	}
	s.setTokenCookies(w, r, result.Token)
	s.addFlash(w, r, success(msg))
	s.seeOther(w, r, "/profile")
}

func verificationSent(result *usecase.SignUpResult) bool {
	for _, stage := range result.Stages {
		if stage.Stage == usecase.StageSendVerificationEmail {
			return stage.Err == nil
		}
	}
	return false
}

func (s *Server) profilePageHandler(w http.ResponseWriter, r *http.Request) {
	session := auth.StateFromContext(r.Context()).Session
	s.render(w, r, http.StatusOK, pageProfile, &pageData{
		Title:       "Profile",
		DisplayName: session.DisplayName,
		PhotoURL:    session.PhotoURL,
	})
}

func (s *Server) profileSubmitHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID, _ := tokenFromCookies(r)
	input := form.Profile{
		DisplayName: strings.TrimSpace(r.PostFormValue("display_name")),
		PhotoURL:    strings.TrimSpace(r.PostFormValue("photo_url")),
	}
	data := &pageData{Title: "Profile", DisplayName: input.DisplayName, PhotoURL: input.PhotoURL}

	if err := input.Validate(); err != nil {
		data.Error = form.Message(err)
		s.render(w, r, http.StatusUnprocessableEntity, pageProfile, data)
		return
	}

	if err := s.sessionUC.UpdateProfile(ctx, tokenID, input.DisplayName, input.PhotoURL); err != nil {
		status, msg := formFailure(ctx, err)
		data.Error = msg
		s.render(w, r, status, pageProfile, data)
		return
	}
	if err := s.sessionUC.PatchProfile(ctx, tokenID, input.DisplayName, input.PhotoURL); err != nil {
		status, msg := formFailure(ctx, err)
		data.Error = msg
		s.render(w, r, status, pageProfile, data)
		return
	}

	s.addFlash(w, r, success(msgProfileUpdated))
	s.seeOther(w, r, "/profile")
}

func (s *Server) verificationHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID, _ := tokenFromCookies(r)

	if err := s.sessionUC.SendVerificationEmail(ctx, tokenID); err != nil {
		_, msg := formFailure(ctx, err)
		s.addFlash(w, r, failure(msg))
	} else {
		s.addFlash(w, r, success(msgVerificationSent))
	}
	s.seeOther(w, r, "/profile")
}

func (s *Server) logoutHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tokenID, secret := tokenFromCookies(r)

	if tokenID != "" {
		if err := s.sessionUC.SignOut(ctx, tokenID, secret); err != nil {
			_, msg := formFailure(ctx, err)
			s.addFlash(w, r, failure(msg))
			s.seeOther(w, r, "/")
			return
		}
	}

	s.clearTokenCookies(w, r)
	s.addFlash(w, r, success(msgSignedOut))
	s.seeOther(w, r, "/")
}

// providerSignInHandler starts a social sign-in. The challenge and the page
// to return to are kept in a short-lived cookie until the provider sends the
// visitor back.
func (s *Server) providerSignInHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	kind := auth.ProviderKind(chi.URLParam(r, "kind"))
	if err := kind.Validate(); err != nil {
		handleError(w, r, goerr.Wrap(err, "unknown provider", goerr.T(errs.TagNotFound)))
		return
	}
	next := safeNext(r.URL.Query().Get("next"), "")

	challenge, err := s.sessionUC.ProviderSignInURL(ctx, kind, s.callbackURL(r))
	if err != nil {
		_, msg := formFailure(ctx, err)
		s.addFlash(w, r, failure(msg))
		s.seeOther(w, r, loginURL(next))
		return
	}

	value, err := encodeCookieValue(pendingSignIn{Challenge: *challenge, Next: next})
	if err != nil {
		handleError(w, r, err)
		return
	}
	s.setCookie(w, r, &http.Cookie{
		Name:   oauthStateCookieName,
		Value:  value,
		MaxAge: oauthStateMaxAge,
	})

	http.Redirect(w, r, challenge.AuthURL, http.StatusTemporaryRedirect)
}

// providerCallbackHandler finishes a social sign-in. A missing or expired
// state cookie and a flow the visitor abandoned at the provider both end on
// the sign-in page with a message.
func (s *Server) providerCallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, err := r.Cookie(oauthStateCookieName)
	if err != nil {
		s.addFlash(w, r, failure(msgFlowExpired))
		s.seeOther(w, r, "/login")
		return
	}
	s.clearCookie(w, r, oauthStateCookieName)

	var pending pendingSignIn
	if err := decodeCookieValue(c.Value, &pending); err != nil {
		logging.From(ctx).Warn("malformed sign-in state", logging.ErrAttr(err))
		s.addFlash(w, r, failure(msgFlowExpired))
		s.seeOther(w, r, "/login")
		return
	}
	next := safeNext(pending.Next, "")

	redirectedURL := s.callbackURL(r) + "?" + r.URL.RawQuery
	result, err := s.sessionUC.CompleteProviderSignIn(ctx, &pending.Challenge, redirectedURL)
	if err != nil {
		_, msg := formFailure(ctx, err)
		s.addFlash(w, r, failure(msg))
		s.seeOther(w, r, loginURL(next))
		return
	}

	msgs := []flashMessage{success(msgSignedIn)}
	if result.VerificationSent {
		msgs = append(msgs, success(msgVerificationSent))
	}
	s.setTokenCookies(w, r, result.Token)
	s.addFlash(w, r, msgs...)
	s.seeOther(w, r, safeNext(next, "/"))
}

// sessionStateHandler returns the visitor state as JSON.
func (s *Server) sessionStateHandler(w http.ResponseWriter, r *http.Request) {
	state := auth.StateFromContext(r.Context())

	raw, err := json.Marshal(state)
	if err != nil {
		handleError(w, r, goerr.Wrap(err, "failed to marshal session state", goerr.T(errs.TagInternal)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	safe.Write(r.Context(), w, raw)
}
