package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	websocket_controller "github.com/secmon-lab/tollgate/pkg/controller/websocket"
	"github.com/secmon-lab/tollgate/pkg/utils/safe"
)

type Server struct {
	router       *chi.Mux
	sessionUC    SessionUseCase
	views        *views
	wsHandler    *websocket_controller.Handler // for session change push
	secureCookie bool                          // force Secure cookies behind a TLS terminating proxy
	baseURL      string                        // public origin used for provider callbacks
}

type Options func(*Server)

func WithSecureCookie(secure bool) Options {
	return func(s *Server) {
		s.secureCookie = secure
	}
}

// WithBaseURL sets the public origin (e.g. https://auth.example.com). When
// empty, the origin is derived from the request.
func WithBaseURL(baseURL string) Options {
	return func(s *Server) {
		s.baseURL = baseURL
	}
}

func WithWebSocketHandler(handler *websocket_controller.Handler) Options {
	return func(s *Server) {
		s.wsHandler = handler
	}
}

func New(uc SessionUseCase, opts ...Options) (*Server, error) {
	v, err := newViews()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load templates")
	}

	r := chi.NewRouter()
	s := &Server{
		router:    r,
		sessionUC: uc,
		views:     v,
	}
	for _, opt := range opts {
		opt(s)
	}

	r.Use(loggingMiddleware)
	r.Use(panicRecoveryMiddleware)
	r.Get("/healthz", healthzHandler)

	r.Group(func(r chi.Router) {
		r.Use(sessionMiddleware(s))

		r.Get("/api/session", s.sessionStateHandler)
		if s.wsHandler != nil {
			r.Get("/ws/session", s.wsHandler.HandleSession)
		}

		r.Post("/login", s.loginSubmitHandler)
		r.Post("/register", s.registerSubmitHandler)
		r.Post("/logout", s.logoutHandler)

		r.Route("/auth/provider", func(r chi.Router) {
			r.Get("/callback", s.providerCallbackHandler)
			r.Get("/{kind}", s.providerSignInHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireResolved)
			r.Get("/", s.homeHandler)
			r.Get("/login", s.loginPageHandler)
			r.Get("/register", s.registerPageHandler)
		})

		r.Route("/profile", func(r chi.Router) {
			r.Use(s.requireSession)
			r.Get("/", s.profilePageHandler)
			r.Post("/", s.profileSubmitHandler)
			r.Post("/verification", s.verificationHandler)
		})
	})

	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	safe.Write(r.Context(), w, []byte("ok"))
}
