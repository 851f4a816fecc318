package errs

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// ProviderMessageKey carries the raw message returned by the identity
// provider, e.g. "WEAK_PASSWORD : Password should be at least 6 characters".
var ProviderMessageKey = goerr.NewTypedKey[string]("provider_message")

// ProviderMessage extracts the human readable part of a provider error: the
// segment after the last colon. The format is not guaranteed by the
// provider, so the whole message is returned when no such segment exists.
func ProviderMessage(err error) string {
	if err == nil {
		return ""
	}

	msg, ok := goerr.GetTypedValue(err, ProviderMessageKey)
	if !ok || msg == "" {
		msg = err.Error()
	}

	idx := strings.LastIndex(msg, ":")
	if idx < 0 {
		return strings.TrimSpace(msg)
	}
	if tail := strings.TrimSpace(msg[idx+1:]); tail != "" {
		return tail
	}
	return strings.TrimSpace(msg[:idx])
}

// credentialRejections are the provider codes that end a credential for good.
// Anything else, including quota and availability errors, may pass.
var credentialRejections = map[string]struct{}{
	"INVALID_REFRESH_TOKEN": {},
	"INVALID_GRANT_TYPE":    {},
	"MISSING_REFRESH_TOKEN": {},
	"TOKEN_EXPIRED":         {},
	"USER_DISABLED":         {},
	"USER_NOT_FOUND":        {},
	"INVALID_ID_TOKEN":      {},
}

// IsCredentialRejection reports whether a raw provider message, such as
// "TOKEN_EXPIRED : The user's credential is no longer valid", says the
// credential itself is no longer accepted.
func IsCredentialRejection(providerMessage string) bool {
	code := providerMessage
	if idx := strings.IndexAny(code, " :"); idx >= 0 {
		code = code[:idx]
	}
	_, ok := credentialRejections[code]
	return ok
}

// IsRejected reports whether the identity provider refused the credential
// behind err. Transport failures and transient provider errors are not
// rejections.
func IsRejected(err error) bool {
	return goerr.HasTag(err, TagRejected)
}
