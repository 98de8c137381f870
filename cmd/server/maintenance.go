package main

import (
	"fmt"

	"rewardledger/internal/clock"
	"rewardledger/internal/infrastructure/database"
	"rewardledger/internal/job"

	"github.com/spf13/cobra"
)

func newMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the ledger tables",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := exitOnSignal(cmd.Context())
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := database.Migrate(a.db.WithContext(ctx)); err != nil {
				return err
			}
			a.logger.Info().Msg("migration complete")
			return nil
		},
	}
}

func newCompactCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Delete expired feature grants once and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := exitOnSignal(cmd.Context())
			defer stop()

			a, err := newApp(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.Close()

			compaction := job.NewGrantCompactionJob(a.store, clock.System{}, a.cfg.Jobs.CompactionInterval, a.cfg.Jobs.CompactionGrace, a.logger)
			n, err := compaction.RunOnce(ctx)
			if err != nil {
				return fmt.Errorf("compact grants: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d expired grants\n", n)
			return nil
		},
	}
}
