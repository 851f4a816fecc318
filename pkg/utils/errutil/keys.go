package errutil

import (
	"github.com/m-mizutani/goerr/v2"
)

var (
	// IDs
	TokenIDKey   = goerr.NewTypedKey[string]("token_id")
	UIDKey       = goerr.NewTypedKey[string]("uid")
	RequestIDKey = goerr.NewTypedKey[string]("request_id")

	// Values
	OperationKey  = goerr.NewTypedKey[string]("operation")
	RepositoryKey = goerr.NewTypedKey[string]("repository")
	CollectionKey = goerr.NewTypedKey[string]("collection")
	StageKey      = goerr.NewTypedKey[string]("stage")

	// External services
	ProviderKey   = goerr.NewTypedKey[string]("provider")
	EndpointKey   = goerr.NewTypedKey[string]("endpoint")
	HTTPStatusKey = goerr.NewTypedKey[int]("http_status")
)
