package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/taskflow/taskflow/internal/domain"
	apperrors "github.com/taskflow/taskflow/internal/pkg/errors"
	"github.com/taskflow/taskflow/internal/worker"
)

// TriggerOperator marks reconciliation runs started from syncctl
const TriggerOperator = "operator"

type syncOptions struct {
	force    bool
	entities []string
	async    bool
}

// NewSyncCommand creates the sync command
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &syncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the secondary store with the primary store",
		Long: `Backfill and repair the secondary store from the primary store.

Without --force an entity whose table already holds at least as many rows
as there are live documents is skipped. With --force every live document is
compared and drifted rows are overwritten.

Exits 1 when any entity failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *Session) error {
				if opts.async {
					return runSyncAsync(ctx, cmd, rootOpts, s, opts)
				}
				return runSync(ctx, cmd, rootOpts, s, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "compare every document and repair drifted rows")
	cmd.Flags().StringArrayVar(&opts.entities, "entity", nil, "restrict to a collection (repeatable)")
	cmd.Flags().BoolVar(&opts.async, "async", false, "queue the run for the worker instead of running it here")

	return cmd
}

func runSync(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, s *Session, opts *syncOptions) error {
	report, err := s.Admin.Reconcile(ctx, domain.ReconcileOptions{
		Force:    opts.force,
		Entities: opts.entities,
		Trigger:  TriggerOperator,
	})
	if apperrors.HasCode(err, apperrors.CodeSyncDisabled) {
		report = domain.ReconcileReport{Skipped: "sync disabled (POSTGRES_SYNC_ENABLED=false)", Success: true}
		err = nil
	}
	if err != nil && !apperrors.HasCode(err, apperrors.CodeDualWriteFailed) {
		return WrapExitError(ExitFailure, "reconciliation failed", err)
	}

	f := newFormatter(rootOpts, cmd.OutOrStdout())
	if werr := f.emit(report, func(w io.Writer) { printReport(w, report) }); werr != nil {
		return werr
	}

	if err != nil {
		return WrapExitError(ExitFailure, "reconciliation failed", err)
	}
	return nil
}

func runSyncAsync(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, s *Session, opts *syncOptions) error {
	if s.Queue == nil {
		return NewExitError(ExitCommandError, "no task queue configured; run without --async")
	}

	info, err := worker.EnqueueReconcile(ctx, s.Queue, s.QueueName, &worker.ReconcilePayload{
		Force:    opts.force,
		Entities: opts.entities,
		Trigger:  TriggerOperator,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "failed to enqueue reconciliation", err)
	}

	result := map[string]string{"taskId": info.ID, "queue": info.Queue}
	return newFormatter(rootOpts, cmd.OutOrStdout()).emit(result, func(w io.Writer) {
		fmt.Fprintf(w, "queued reconciliation %s on %s\n", info.ID, info.Queue)
	})
}

func printReport(w io.Writer, report domain.ReconcileReport) {
	if report.Skipped != "" {
		fmt.Fprintf(w, "reconciliation skipped: %s\n", report.Skipped)
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "COLLECTION\tSTATUS\tPRIMARY\tSECONDARY\tINSERTED\tREPAIRED\tERRORS")
	for _, e := range report.Entities {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%d\n",
			e.Collection, e.Status, e.PrimaryCount, e.SecondaryCount, e.Inserted, e.Repaired, e.RowErrors)
	}
	_ = tw.Flush()

	for _, e := range report.Entities {
		if e.Error != "" {
			fmt.Fprintf(w, "%s: %s\n", e.Collection, e.Error)
		}
	}

	outcome := "ok"
	if !report.Success {
		outcome = "failed"
	}
	fmt.Fprintf(w, "reconciliation %s in %s\n", outcome, report.FinishedAt.Sub(report.StartedAt))
}
