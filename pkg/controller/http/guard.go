package http

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/secmon-lab/tollgate/pkg/domain/model/auth"
)

type guardDecision int

const (
	// guardResolving: the provider has not reported yet, show the loading
	// placeholder
	guardResolving guardDecision = iota
	guardAuthorized
	guardDenied
)

func (x guardDecision) String() string {
	switch x {
	case guardResolving:
		return "resolving"
	case guardAuthorized:
		return "authorized"
	case guardDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// decide is the route guard: it never grants or denies before resolution.
func decide(state auth.State) guardDecision {
	switch {
	case !state.Resolved:
		return guardResolving
	case state.Session != nil:
		return guardAuthorized
	default:
		return guardDenied
	}
}

// loadingRefreshSeconds is how often the placeholder page reloads itself.
const loadingRefreshSeconds = 1

func (s *Server) renderLoading(w http.ResponseWriter, r *http.Request) {
	s.views.render(w, r, http.StatusOK, pageLoading, &pageData{
		Title:          "Loading",
		RefreshSeconds: loadingRefreshSeconds,
	})
}

// requireResolved holds pages back behind the loading placeholder until the
// visitor's state is known.
func (s *Server) requireResolved(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if decide(auth.StateFromContext(r.Context())) == guardResolving {
			s.renderLoading(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireSession lets signed-in visitors through and sends everyone else to
// the sign-in page, remembering where they wanted to go.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch decide(auth.StateFromContext(r.Context())) {
		case guardAuthorized:
			next.ServeHTTP(w, r)

		case guardResolving:
			if r.Method != http.MethodGet {
				http.Error(w, "Session is being resolved, retry shortly", http.StatusServiceUnavailable)
				return
			}
			s.renderLoading(w, r)

		default:
			target := r.URL.RequestURI()
			if r.Method != http.MethodGet {
				target = r.URL.Path
			}
			http.Redirect(w, r, loginURL(target), http.StatusFound)
		}
	})
}

func loginURL(next string) string {
	if next == "" || next == "/" {
		return "/login"
	}
	return "/login?" + url.Values{"next": {next}}.Encode()
}

// safeNext accepts only local absolute paths, so that the sign-in page
// cannot be used to redirect visitors to another site.
func safeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") ||
		strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.IsAbs() || u.Host != "" {
		return fallback
	}
	return next
}
