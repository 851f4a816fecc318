package cli

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/tollgate/pkg/cli/config"
	server "github.com/secmon-lab/tollgate/pkg/controller/http"
	websocket_controller "github.com/secmon-lab/tollgate/pkg/controller/websocket"
	"github.com/secmon-lab/tollgate/pkg/domain/model/errs"
	"github.com/secmon-lab/tollgate/pkg/usecase"
	"github.com/secmon-lab/tollgate/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdServe() *cli.Command {
	var (
		addr          string
		purgeInterval time.Duration
		webCfg        config.Web
		identityCfg   config.Identity
		firestoreCfg  config.Firestore
		sentryCfg     config.Sentry
	)

	flags := joinFlags(
		[]cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Aliases:     []string{"a"},
				Sources:     cli.EnvVars("TOLLGATE_ADDR"),
				Usage:       "Listen address (default: 127.0.0.1:8080)",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "purge-interval",
				Sources:     cli.EnvVars("TOLLGATE_PURGE_INTERVAL"),
				Usage:       "Interval of expired token removal, 0 to disable",
				Value:       time.Hour,
				Destination: &purgeInterval,
			},
		},
		webCfg.Flags(),
		identityCfg.Flags(),
		firestoreCfg.Flags(),
		sentryCfg.Flags(),
	)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Run server",
		Flags:   flags,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := webCfg.Validate(); err != nil {
				return err
			}

			logging.Default().Info("starting server",
				"addr", addr,
				"url", listenURL(addr),
				"purge_interval", purgeInterval,
				"web", webCfg,
				"identity", identityCfg,
				"firestore", firestoreCfg,
				"sentry", sentryCfg,
			)

			flush, err := sentryCfg.Configure()
			defer flush()
			if err != nil {
				return err
			}

			idp, err := identityCfg.Configure(ctx)
			if err != nil {
				return err
			}

			repo, closeRepo, err := firestoreCfg.Configure(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			ctx, cancel := context.WithCancel(ctx)
			defer cancel()

			uc := usecase.NewSessionUseCase(idp, repo, webCfg.SessionOptions()...)

			// Create WebSocket hub and handler
			wsHub := websocket_controller.NewHub(ctx, uc)
			go wsHub.Run()
			wsHandler := websocket_controller.NewHandler(wsHub)

			serverOptions := append(webCfg.ServerOptions(), server.WithWebSocketHandler(wsHandler))
			handler, err := server.New(uc, serverOptions...)
			if err != nil {
				return err
			}

			go runPurge(ctx, uc, purgeInterval)

			httpServer := http.Server{
				Addr:              addr,
				Handler:           handler,
				ReadTimeout:       30 * time.Second,
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext: func(l net.Listener) context.Context {
					return ctx
				},
			}

			errCh := make(chan error, 1)
			go func() {
				defer close(errCh)
				if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to serve", goerr.V("addr", addr))
				}
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case <-sigCh:
				// Close WebSocket hub
				if err := wsHub.Close(); err != nil {
					logging.From(ctx).Error("failed to close WebSocket hub", "error", err)
				}

				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return httpServer.Shutdown(ctx)
			}
		},
	}
}

// runPurge removes expired browser tokens every interval until ctx ends.
func runPurge(ctx context.Context, uc *usecase.SessionUseCase, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := uc.PurgeExpiredTokens(ctx)
			if err != nil {
				errs.Handle(ctx, err)
				continue
			}
			if n > 0 {
				logging.From(ctx).Info("purged expired tokens", "count", n)
			}
		}
	}
}
