package cmd

import (
	"context"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func serveCMD() *cobra.Command {
	var (
		addr    string
		offline bool
	)
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := LoadConfig()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.Server.Addr
			}

			app, err := NewApp(ctx, cfg, AppOptions{Offline: offline})
			if err != nil {
				return err
			}
			defer app.Close(context.WithoutCancel(ctx))

			e := newServer(app, app.Store, app.Metrics.Handler(), log.Logger)
			e.Server.ReadTimeout = cfg.Server.ReadTimeout
			e.Server.WriteTimeout = cfg.Server.WriteTimeout

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", addr).Msg("http server listening")
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Server.ShutdownTimeout)
			defer cancel()
			log.Info().Msg("http server shutting down")
			return e.Shutdown(shutdownCtx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (default SERVER_ADDR)")
	serve.Flags().BoolVar(&offline, "offline", false, "plan with the rule-based router and skip every model call")
	return serve
}
