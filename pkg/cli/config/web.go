package config

import (
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	server "github.com/secmon-lab/tollgate/pkg/controller/http"
	"github.com/secmon-lab/tollgate/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Web holds the options of the browser facing side.
type Web struct {
	baseURL         string
	secureCookie    bool
	resolveTimeout  time.Duration
	refreshInterval time.Duration
}

func (x *Web) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "base-url",
			Usage:       "Public URL of this server for provider callbacks (e.g., https://auth.example.com)",
			Category:    "Web",
			Sources:     cli.EnvVars("TOLLGATE_BASE_URL"),
			Destination: &x.baseURL,
		},
		&cli.BoolFlag{
			Name:        "secure-cookie",
			Usage:       "Always set the Secure attribute on cookies (behind a TLS terminating proxy)",
			Category:    "Web",
			Sources:     cli.EnvVars("TOLLGATE_SECURE_COOKIE"),
			Destination: &x.secureCookie,
		},
		&cli.DurationFlag{
			Name:        "resolve-timeout",
			Usage:       "How long a request waits for the provider's first report before showing the loading page",
			Category:    "Web",
			Sources:     cli.EnvVars("TOLLGATE_RESOLVE_TIMEOUT"),
			Value:       2 * time.Second,
			Destination: &x.resolveTimeout,
		},
		&cli.DurationFlag{
			Name:        "refresh-interval",
			Usage:       "Age after which a session is checked with the provider again",
			Category:    "Web",
			Sources:     cli.EnvVars("TOLLGATE_REFRESH_INTERVAL"),
			Value:       10 * time.Minute,
			Destination: &x.refreshInterval,
		},
	}
}

func (x Web) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("base_url", x.baseURL),
		slog.Bool("secure_cookie", x.secureCookie),
		slog.Duration("resolve_timeout", x.resolveTimeout),
		slog.Duration("refresh_interval", x.refreshInterval),
	)
}

func (x *Web) Validate() error {
	if x.baseURL == "" {
		return nil
	}
	u, err := url.Parse(x.baseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return goerr.New("base URL must be an absolute http or https URL", goerr.V("base_url", x.baseURL))
	}
	return nil
}

// SessionOptions returns the options of the session facade.
func (x *Web) SessionOptions() []usecase.SessionOption {
	var opts []usecase.SessionOption
	if x.resolveTimeout > 0 {
		opts = append(opts, usecase.WithResolveTimeout(x.resolveTimeout))
	}
	if x.refreshInterval > 0 {
		opts = append(opts, usecase.WithRefreshInterval(x.refreshInterval))
	}
	return opts
}

// ServerOptions returns the options of the HTTP server.
func (x *Web) ServerOptions() []server.Options {
	secure := x.secureCookie || strings.HasPrefix(x.baseURL, "https://")
	return []server.Options{
		server.WithSecureCookie(secure),
		server.WithBaseURL(strings.TrimRight(x.baseURL, "/")),
	}
}
