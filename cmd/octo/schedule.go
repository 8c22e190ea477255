package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/matsen/octosphere/internal/task"
)

var (
	scheduleOnce bool
	scheduleTick time.Duration
)

func init() {
	rootCmd.AddCommand(scheduleCmd)
	scheduleCmd.Flags().BoolVar(&scheduleOnce, "once", false, "Sync everyone who is due, then exit")
	scheduleCmd.Flags().DurationVar(&scheduleTick, "tick", task.DefaultTick, "How often to look for researchers who are due")
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Periodically sync every connected researcher who is due",
	Long: `Sync every active researcher whose last sync is older than the sync
interval (SYNC_INTERVAL_DAYS, default 7). Runs until interrupted unless
--once is given.`,
	Args: cobra.NoArgs,
	RunE: runSchedule,
}

func runSchedule(cmd *cobra.Command, args []string) error {
	interval, err := settings.Interval()
	if err != nil {
		exitWithError(ExitConfigError, "%v", err)
	}
	mustValidate(true)

	db := mustOpenDatabase()
	defer db.Close()

	s := task.NewScheduler(newRunner(db), db, interval,
		task.WithTick(scheduleTick),
		task.WithSchedulerLogger(logger.With("component", "scheduler")))

	if scheduleOnce {
		outcomes := s.RunOnce(cmd.Context())
		if humanOutput {
			for _, out := range outcomes {
				if err := printOutcome(out); err != nil {
					return err
				}
			}
			return nil
		}
		return outputJSON(outcomes)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("scheduler started", "interval", interval.String(), "tick", scheduleTick.String())
	if err := s.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("scheduler stopped")
	return nil
}
