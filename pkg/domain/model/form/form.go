// Package form holds the client input checks run before any identity
// provider call. A failed check blocks the submission and yields exactly one
// human readable message.
package form

import (
	"net/mail"
	"strings"
	"unicode"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
)

// PasswordSymbols is the punctuation set a password must draw from.
const PasswordSymbols = "!@#$%^&*"

const MinPasswordLength = 6

const (
	MsgPasswordLength = "Your password should be at least 6 character long."
	MsgPasswordSymbol = "Your password should be at least one special character."
	MsgPasswordCase   = "Your password should be at least one upper and lower case letter."
	MsgPasswordDigit  = "Your password should be at least one digit."
	MsgEmailRequired  = "Please provide your email address."
	MsgEmailInvalid   = "Please provide a valid email address."
	MsgNameRequired   = "Please provide your name."
	MsgTermsRequired  = "Please accept the Terms and Conditions."
	MsgPhotoURL       = "Photo URL must be an http or https address."
)

var (
	// FieldKey names the form field that failed.
	FieldKey   = goerr.NewTypedKey[string]("field")
	messageKey = goerr.NewTypedKey[string]("message")
)

func invalid(field, msg string) error {
	return goerr.New(msg,
		goerr.TV(FieldKey, field),
		goerr.TV(messageKey, msg),
		goerr.T(errs.TagValidation))
}

// Message returns the visitor facing text of a validation error, even when
// it has been wrapped since.
func Message(err error) string {
	if err == nil {
		return ""
	}
	if msg, ok := goerr.GetTypedValue(err, messageKey); ok {
		return msg
	}
	return err.Error()
}

// CheckPassword applies the password rules in a fixed order (length, symbol,
// case, digit) and reports the first one that fails.
func CheckPassword(password string) error {
	if len([]rune(password)) < MinPasswordLength {
		return invalid("password", MsgPasswordLength)
	}

	var hasSymbol, hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case strings.ContainsRune(PasswordSymbols, r):
			hasSymbol = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	switch {
	case !hasSymbol:
		return invalid("password", MsgPasswordSymbol)
	case !hasUpper || !hasLower:
		return invalid("password", MsgPasswordCase)
	case !hasDigit:
		return invalid("password", MsgPasswordDigit)
	}
	return nil
}

// CheckEmail accepts a bare address ("a@b.com"); display-name forms such as
// "A <a@b.com>" are rejected.
func CheckEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return invalid("email", MsgEmailRequired)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(addr.Address[strings.LastIndex(addr.Address, "@")+1:], ".") {
		return invalid("email", MsgEmailInvalid)
	}
	return nil
}

type SignIn struct {
	Email    string
	Password string
}

func (x SignIn) Validate() error {
	if err := CheckEmail(x.Email); err != nil {
		return err
	}
	return CheckPassword(x.Password)
}

type SignUp struct {
	Name          string
	Email         string
	Password      string
	AcceptedTerms bool
}

func (x SignUp) Validate() error {
	if strings.TrimSpace(x.Name) == "" {
		return invalid("name", MsgNameRequired)
	}
	if err := CheckEmail(x.Email); err != nil {
		return err
	}
	if err := CheckPassword(x.Password); err != nil {
		return err
	}
	if !x.AcceptedTerms {
		return invalid("terms", MsgTermsRequired)
	}
	return nil
}

type PasswordReset struct {
	Email string
}

func (x PasswordReset) Validate() error {
	return CheckEmail(x.Email)
}

type Profile struct {
	DisplayName string
	PhotoURL    string
}

func (x Profile) Validate() error {
	if strings.TrimSpace(x.DisplayName) == "" {
		return invalid("display_name", MsgNameRequired)
	}
	if x.PhotoURL != "" &&
		!strings.HasPrefix(x.PhotoURL, "https://") &&
		!strings.HasPrefix(x.PhotoURL, "http://") {
		return invalid("photo_url", MsgPhotoURL)
	}
	return nil
}
