package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskflow/taskflow/internal/domain"
)

// NewStatusCommand creates the status command
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <collection> <id>",
		Short: "Compare one record across both stores",
		Long: `Show whether a record exists in each store, its sync marker and the
fields that differ between the document and its row.

Exits 1 when the record is in neither store.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd, rootOpts, func(ctx context.Context, s *Session) error {
				report, err := s.Admin.Status(ctx, args[0], args[1])
				if err != nil {
					return WrapExitError(ExitFailure, "failed to get status", err)
				}
				if werr := newFormatter(rootOpts, cmd.OutOrStdout()).emit(report, func(w io.Writer) {
					printStatus(w, report)
				}); werr != nil {
					return werr
				}
				if !report.InPrimary && !report.InSecondary {
					return NewExitError(ExitFailure, fmt.Sprintf("%s/%s not found in either store", args[0], args[1]))
				}
				return nil
			})
		},
	}
}

func printStatus(w io.Writer, r *domain.SyncStatusReport) {
	fmt.Fprintf(w, "record:     %s/%s\n", r.Collection, r.SharedID)
	fmt.Fprintf(w, "primary:    %s\n", presence(r.InPrimary))
	fmt.Fprintf(w, "secondary:  %s\n", presence(r.InSecondary))
	if r.SyncStatus != "" {
		fmt.Fprintf(w, "status:     %s\n", r.SyncStatus)
	}
	if r.SyncError != "" {
		fmt.Fprintf(w, "error:      %s\n", r.SyncError)
	}
	if r.LastSyncAt != nil {
		fmt.Fprintf(w, "last sync:  %s\n", r.LastSyncAt.UTC().Format(time.RFC3339))
	}
	if len(r.Drift) > 0 {
		fmt.Fprintf(w, "drift:      %s\n", strings.Join(r.Drift, ", "))
	}
	if n := len(r.Failures); n > 0 {
		fmt.Fprintf(w, "failures:   %d (latest: %s)\n", n, r.Failures[0].Error)
	}
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
