// Package cli implements syncctl, the operator command line for the
// secondary store synchronization.
package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/worker"
)

// Version is set at build time
var Version = "0.1.0"

// Admin is the part of the sync admin service the commands use
type Admin interface {
	Reconcile(ctx context.Context, opts domain.ReconcileOptions) (domain.ReconcileReport, error)
	ListFailures(ctx context.Context, filter domain.FailureFilter) ([]domain.FailureRecord, error)
	ClearFailures(ctx context.Context) (int, error)
	Status(ctx context.Context, collection, sharedID string) (*domain.SyncStatusReport, error)
}

// Session is a connected set of services. Queue is nil when no task
// queue is configured.
type Session struct {
	Admin     Admin
	Queue     worker.Enqueuer
	QueueName string
	Close     func()
}

// Connector opens a session for one command invocation
type Connector func(ctx context.Context, opts *RootOptions) (*Session, error)

// RootOptions holds global flags for all commands
type RootOptions struct {
	Verbose bool
	Format  string
	Timeout time.Duration

	connect Connector
}

// ValidFormats defines the allowed output formats
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the syncctl root command. connect opens the stores
// for each command; nil uses the configured stores.
func NewRootCommand(connect Connector) *cobra.Command {
	if connect == nil {
		connect = DefaultConnector
	}
	opts := &RootOptions{connect: connect}

	cmd := &cobra.Command{
		Use:   "syncctl",
		Short: "Operate the TaskFlow secondary store synchronization",
		Long: `syncctl inspects and repairs the PostgreSQL mirror of the TaskFlow
document store.

Commands:
  sync      - reconcile the secondary store with the primary store
  failures  - list or clear the sync failure ledger
  status    - compare one record across both stores

Example:
  syncctl sync --force --entity tasks
  syncctl failures list --collection tasks
  syncctl status tasks 6f1c...`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Minute, "overall command timeout")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewFailuresCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// withSession runs fn against a fresh session bounded by the command timeout
func withSession(cmd *cobra.Command, opts *RootOptions, fn func(ctx context.Context, s *Session) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	s, err := opts.connect(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect", err)
	}
	if s.Close != nil {
		defer s.Close()
	}
	return fn(ctx, s)
}
