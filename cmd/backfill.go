package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/cellardesk/cellar-cli/internal/model"
)

var backfillMode string

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Batched recomputation of readiness across the inventory",
}

var backfillStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a backfill job and drive it to completion",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !model.ValidBackfillMode(backfillMode) {
			return eris.Errorf("invalid mode %q (missing_only, stale_or_missing, force_all)", backfillMode)
		}

		// SIGINT stops the step loop between batches; the job row stays
		// running and resumes from its cursor.
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		job, err := env.Orch.Start(ctx, model.BackfillMode(backfillMode))
		if err != nil {
			return err
		}
		if err := env.Orch.Run(ctx, job.ID); err != nil {
			zap.L().Warn("backfill interrupted; resume with the job id",
				zap.String("job_id", job.ID), zap.Error(err))
			return err
		}
		return printJob(env, cmd, job.ID)
	},
}

var backfillResumeCmd = &cobra.Command{
	Use:   "resume <job-id>",
	Short: "Resume an interrupted or failed backfill job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Orch.Resume(ctx, args[0]); err != nil {
			return err
		}
		return printJob(env, cmd, args[0])
	},
}

var backfillCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Request cooperative cancellation of a running job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return env.Orch.Cancel(ctx, args[0])
	},
}

var backfillStatusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print the persisted state of a backfill job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		return printJob(env, cmd, args[0])
	},
}

func printJob(env *engineEnv, cmd *cobra.Command, jobID string) error {
	job, err := env.Orch.Status(cmd.Context(), jobID)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(job)
}

func init() {
	backfillStartCmd.Flags().StringVar(&backfillMode, "mode", string(model.ModeStaleOrMissing),
		"which wines to recompute: missing_only, stale_or_missing, force_all")
	backfillCmd.AddCommand(backfillStartCmd, backfillResumeCmd, backfillCancelCmd, backfillStatusCmd)
	rootCmd.AddCommand(backfillCmd)
}
