package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rewardledger/internal/clock"
	"rewardledger/internal/handler"
	"rewardledger/internal/infrastructure/database"
	"rewardledger/internal/job"

	"github.com/spf13/cobra"
)

func newServeCmd(configPath *string) *cobra.Command {
	var autoMigrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and background jobs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath, autoMigrate)
		},
	}
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "create or update tables before serving")
	return cmd
}

func runServe(parent context.Context, configPath string, autoMigrate bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, configPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			a.logger.Error().Err(err).Msg("shutdown cleanup failed")
		}
	}()

	if autoMigrate {
		if err := database.Migrate(a.db); err != nil {
			return err
		}
	}

	publisher, err := a.publisher()
	if err != nil {
		return err
	}
	svc := a.services()

	jobsCtx, cancelJobs := context.WithCancel(ctx)
	defer cancelJobs()

	outboxSender := job.NewOutboxSender(a.store, publisher, &a.cfg.Jobs, a.logger)
	go outboxSender.Start(jobsCtx)

	compaction := job.NewGrantCompactionJob(a.store, clock.System{}, a.cfg.Jobs.CompactionInterval, a.cfg.Jobs.CompactionGrace, a.logger)
	go compaction.Start(jobsCtx)

	h := handler.NewHandler(svc.ledger, svc.gate, svc.ads, a.cfg.Ledger, a.logger)
	router := handler.SetupRouter(h, a.logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info().Int("port", a.cfg.Server.Port).Msg("http server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		a.logger.Info().Msg("shutting down")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	cancelJobs()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http server shutdown")
	}

	a.logger.Info().Msg("server stopped")
	return nil
}

// exitOnSignal is used by one-shot commands so Ctrl-C aborts in-flight queries.
func exitOnSignal(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
