package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskflow/taskflow/internal/domain"
)

// NewFailuresCommand creates the failures command group
func NewFailuresCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "failures",
		Short: "Inspect the sync failure ledger",
	}

	cmd.AddCommand(newFailuresListCommand(rootOpts))
	cmd.AddCommand(newFailuresClearCommand(rootOpts))

	return cmd
}

func newFailuresListCommand(rootOpts *RootOptions) *cobra.Command {
	var filter domain.FailureFilter
	var operation string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sync failures, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.Operation = domain.Operation(operation)
			return withSession(cmd, rootOpts, func(ctx context.Context, s *Session) error {
				records, err := s.Admin.ListFailures(ctx, filter)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to list failures", err)
				}
				if records == nil {
					records = []domain.FailureRecord{}
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).emit(records, func(w io.Writer) {
					printFailures(w, records)
				})
			})
		},
	}

	cmd.Flags().StringVar(&filter.Collection, "collection", "", "only failures of this collection")
	cmd.Flags().StringVar(&filter.SharedID, "id", "", "only failures of this record")
	cmd.Flags().StringVar(&operation, "operation", "", "only failures of this operation")
	cmd.Flags().IntVar(&filter.Limit, "limit", 100, "maximum number of failures")

	return cmd
}

func newFailuresClearCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Drop every recorded sync failure",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *Session) error {
				n, err := s.Admin.ClearFailures(ctx)
				if err != nil {
					return WrapExitError(ExitFailure, "failed to clear failures", err)
				}
				return newFormatter(rootOpts, cmd.OutOrStdout()).emit(map[string]int{"cleared": n}, func(w io.Writer) {
					fmt.Fprintf(w, "cleared %d failure(s)\n", n)
				})
			})
		},
	}
}

func printFailures(w io.Writer, records []domain.FailureRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, "no sync failures")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCOLLECTION\tID\tOPERATION\tSTORE\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Timestamp.UTC().Format(time.RFC3339), r.Collection, r.SharedID, r.Operation, r.Store, r.Error)
	}
	_ = tw.Flush()
}
