package http

import "github.com/secmon-lab/tollgate/pkg/domain/model/auth"

var (
	PanicRecoveryMiddleware = panicRecoveryMiddleware
	LoggingMiddleware       = loggingMiddleware
	SafeNext                = safeNext
	LoginURL                = loginURL
)

// Decide returns the name of the guard outcome for state.
func Decide(state auth.State) string {
	return decide(state).String()
}
