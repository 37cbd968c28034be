package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/Go-ku/landlord-app-sub001/internal/jobs"
	"github.com/Go-ku/landlord-app-sub001/internal/server"
	"github.com/Go-ku/landlord-app-sub001/pkg/database"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	var skipMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap()
			if err != nil {
				return err
			}
			defer a.close()
			log := a.log

			if !skipMigrate {
				if err := database.Migrate(a.db); err != nil {
					return err
				}
				log.Info("Database schema is up to date")
			}

			e := server.New(server.Deps{
				DB:             a.db,
				Services:       a.svc,
				JWT:            a.jwt,
				Logger:         log,
				AllowedOrigins: a.cfg.Server.AllowedOrigins,
				CallbackSecret: a.cfg.Payment.CallbackSecret,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				log.Info("Starting server", zap.String("port", a.cfg.Server.Port))
				if err := e.Start(":" + a.cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-ctx.Done()
				log.Info("Shutting down server")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
				defer cancel()
				return e.Shutdown(shutdownCtx)
			})

			if a.cfg.Jobs.SweepEnabled {
				sweeper := jobs.NewSweeper(a.svc.Invoices, a.svc.Leases, a.cfg.Jobs.SweepInterval, log)
				g.Go(func() error { return sweeper.Run(ctx) })
			}

			if a.cfg.Policy.File != "" && a.cfg.Policy.Watch {
				g.Go(func() error { return a.policy.Watch(ctx, a.cfg.Policy.File, log) })
			}

			if err := g.Wait(); err != nil {
				log.Error("Server stopped with error", zap.Error(err))
				return err
			}
			log.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not migrate the schema on start")
	return cmd
}
