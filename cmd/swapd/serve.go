package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/skillswap/swapd/internal/config"
	apihttp "github.com/skillswap/swapd/internal/interfaces/http"
	"github.com/skillswap/swapd/internal/scheduler"
)

const shutdownGrace = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the API server and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a, err := buildApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := apihttp.NewServer(*cfg, a.svc, a.cache, a.metrics, a.log)
			if err != nil {
				return err
			}

			jobs, err := scheduler.LoadConfig(cfg.Scheduler.ConfigFile)
			if err != nil {
				return err
			}
			sched, err := scheduler.New(jobs, scheduler.Deps{
				Completion: a.svc.Completion,
				Cache:      a.cache,
			}, a.log)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			go func() {
				if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
					a.log.Error().Err(err).Msg("scheduler stopped")
				}
			}()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start() }()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			}

			shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownGrace)
			defer cancelShutdown()
			return srv.Shutdown(shutdownCtx)
		},
	}
}
