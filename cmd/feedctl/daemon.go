package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"feedctl"
)

func daemonCmd() *cobra.Command {
	var repairSpec, refreshSpec string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the idempotent repairs on a cron schedule",
		Long: `Continuously run the consistency repairs (story totals, offsets,
monthly counts, dryness, first-published backfill) and schedule feed
refreshes on cron schedules. Destructive operations (feed deletion) are
never run unattended. Handles SIGINT/SIGTERM for graceful shutdown.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(func(ctx context.Context, engine *feedctl.Engine) error {
				log := newLogger()
				sched := cron.New()

				if _, err := sched.AddFunc(repairSpec, func() {
					if err := runRepairCycle(context.Background(), engine); err != nil {
						log.Error("repair cycle failed", "error", err)
					}
				}); err != nil {
					return err
				}

				if _, err := sched.AddFunc(refreshSpec, func() {
					if err := runRefreshCycle(context.Background(), engine); err != nil {
						log.Error("refresh cycle failed", "error", err)
					}
				}); err != nil {
					return err
				}

				log.Info("daemon starting", "repair_schedule", repairSpec, "refresh_schedule", refreshSpec)
				sched.Start()

				sig := make(chan os.Signal, 1)
				signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
				<-sig

				log.Info("daemon received shutdown signal, waiting for running jobs")
				// Stop returns once scheduled jobs in flight have finished.
				<-sched.Stop().Done()
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&repairSpec, "repair-schedule", "@hourly", "cron schedule for the repair cycle")
	cmd.Flags().StringVar(&refreshSpec, "refresh-schedule", "@every 30m", "cron schedule for feed refresh scheduling")
	return cmd
}

// runRepairCycle runs every idempotent repair once. Each step is safe to
// re-run; a clean database makes the whole cycle a no-op.
func runRepairCycle(ctx context.Context, engine *feedctl.Engine) error {
	totals, err := engine.Aggregates().ListIncorrectTotals(ctx)
	if err != nil {
		return err
	}
	if _, err := engine.Aggregates().FixTotalStorys(ctx, totals); err != nil {
		return err
	}

	mismatches, err := engine.Offsets().Mismatches(ctx)
	if err != nil {
		return err
	}
	if err := engine.Offsets().Repair(ctx, mismatches); err != nil {
		return err
	}

	feedIDs, err := engine.Store().GetAllFeedIDs(ctx)
	if err != nil {
		return err
	}
	if err := engine.Aggregates().RefreshMonthlyStoryCounts(ctx, feedIDs); err != nil {
		return err
	}
	if err := engine.Aggregates().RefreshDryness(ctx, feedIDs); err != nil {
		return err
	}
	if err := engine.Aggregates().BackfillFirstPublished(ctx, feedIDs); err != nil {
		return err
	}

	if _, err := engine.Store().DeleteExpiredTasks(ctx, time.Now()); err != nil {
		return err
	}
	return nil
}

// runRefreshCycle schedules a refresh task for every feed.
func runRefreshCycle(ctx context.Context, engine *feedctl.Engine) error {
	feedIDs, err := engine.Refresh().CollectFeedIDs(ctx, "all", "", "")
	if err != nil {
		return err
	}
	_, err = engine.Refresh().Schedule(ctx, feedIDs, engine.Config().Refresh.ExpireHours)
	return err
}
