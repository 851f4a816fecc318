package http

import (
	"fmt"
	"net/http"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
)

// getDetailedStackTrace returns a detailed stack trace with function names and line numbers
func getDetailedStackTrace() string {
	var buf strings.Builder
	buf.WriteString("Detailed Stack Trace:\n")

	// Skip the frames of the panic recovery code
	callers := make([]uintptr, 64)
	n := runtime.Callers(3, callers)
	frames := runtime.CallersFrames(callers[:n])

	for {
		frame, more := frames.Next()
		buf.WriteString(fmt.Sprintf("  %s\n    %s:%d\n", frame.Function, frame.File, frame.Line))
		if !more {
			break
		}
	}

	return buf.String()
}

func panicRecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}

				panicErr := goerr.New("panic recovered",
					goerr.V("panic", fmt.Sprintf("%v", err)),
					goerr.V("debug_stack", string(debug.Stack())),
					goerr.V("detailed_stack", getDetailedStackTrace()),
					goerr.V("method", r.Method),
					goerr.V("path", r.URL.Path),
					goerr.T(errs.TagInternal),
				)

				handleError(w, r, panicErr)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// sessionMiddleware resolves the visitor state from the token cookies and
// puts it on the request context. Stale cookies of a signed-out visitor are
// dropped.
func sessionMiddleware(s *Server) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			tokenID, secret := tokenFromCookies(r)

			state, err := s.sessionUC.Resolve(ctx, tokenID, secret)
			if err != nil {
				// Keep the visitor on the loading page rather than treating a
				// storage failure as a sign out.
				errs.Handle(ctx, goerr.Wrap(err, "failed to resolve session"))
				state = auth.State{}
			}

			if state.Resolved && state.Session == nil && tokenID != "" {
				s.clearTokenCookies(w, r)
			}

			if state.Session != nil {
				ctx = logging.With(ctx, logging.From(ctx).With("uid", state.Session.UID))
			}
			ctx = auth.ContextWithState(ctx, state)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
