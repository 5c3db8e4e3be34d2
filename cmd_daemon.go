package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"autocurator/scheduler"
)

var runOnStart bool

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the pipeline on a schedule until interrupted",
	Long:  "Runs the pipeline on SCHEDULE_CRON or SCHEDULE_INTERVAL. A trigger that fires while a run is in progress is skipped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		orch, st, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sched := scheduler.New(cfg.Scheduler, orch)
		if err := sched.Start(ctx); err != nil {
			return err
		}
		defer sched.Stop()

		if runOnStart {
			go sched.TriggerNow(ctx)
		}

		zap.L().Info("daemon running", zap.String("source", cfg.DataSource))
		<-ctx.Done()
		zap.L().Info("shutting down", zap.Int64("skipped_triggers", sched.Skipped()))
		return nil
	},
}

func init() {
	daemonCmd.Flags().BoolVar(&runOnStart, "now", false, "trigger one run immediately")
	rootCmd.AddCommand(daemonCmd)
}
