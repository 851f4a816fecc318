package auth

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
)

// ProviderKind is a social identity provider offered on the sign-in page.
type ProviderKind string

const (
	ProviderGoogle   ProviderKind = "google"
	ProviderGitHub   ProviderKind = "github"
	ProviderTwitter  ProviderKind = "twitter"
	ProviderFacebook ProviderKind = "facebook"
)

// ProviderKinds lists the providers in the order they are shown.
var ProviderKinds = []ProviderKind{
	ProviderGoogle,
	ProviderTwitter,
	ProviderGitHub,
	ProviderFacebook,
}

var providerIDs = map[ProviderKind]string{
	ProviderGoogle:   "google.com",
	ProviderGitHub:   "github.com",
	ProviderTwitter:  "twitter.com",
	ProviderFacebook: "facebook.com",
}

var providerLabels = map[ProviderKind]string{
	ProviderGoogle:   "Google",
	ProviderGitHub:   "GitHub",
	ProviderTwitter:  "Twitter",
	ProviderFacebook: "Facebook",
}

func (x ProviderKind) String() string {
	return string(x)
}

func (x ProviderKind) Validate() error {
	if _, ok := providerIDs[x]; !ok {
		return goerr.New("unsupported identity provider",
			goerr.V("provider", string(x)),
			goerr.T(errs.TagValidation))
	}
	return nil
}

// ProviderID is the identifier the identity service uses for x.
func (x ProviderKind) ProviderID() string {
	return providerIDs[x]
}

func (x ProviderKind) Label() string {
	return providerLabels[x]
}

// ProviderChallenge is an in-flight interactive sign-in. AuthURL is where
// the visitor is sent for consent; SessionID must be presented again when
// the provider redirects back.
type ProviderChallenge struct {
	Kind      ProviderKind `json:"kind"`
	AuthURL   string       `json:"auth_url"`
	SessionID string       `json:"session_id" masq:"secret"`
}
