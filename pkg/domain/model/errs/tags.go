package errs

import "github.com/m-mizutani/goerr/v2"

var (
	// Client errors (4xx)
	TagNotFound     = goerr.NewTag("not_found")    // 404
	TagValidation   = goerr.NewTag("validation")   // 400
	TagUnauthorized = goerr.NewTag("unauthorized") // 401
	TagForbidden    = goerr.NewTag("forbidden")    // 403

	// Server errors (5xx)
	TagInternal = goerr.NewTag("internal") // 500
	TagDatabase = goerr.NewTag("database") // 500

	// Identity provider errors. The provider owns the message shown to the
	// visitor; see ProviderMessage.
	TagProvider  = goerr.NewTag("provider")
	TagAbandoned = goerr.NewTag("abandoned")
	TagRejected  = goerr.NewTag("credential_rejected")
)
