package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"docuquery/internal/app"
)

type processor interface {
	Process(ctx context.Context, documentID string) bool
	Reprocess(ctx context.Context, documentID string) bool
	ProcessAllQueued(ctx context.Context) (app.BatchResult, error)
}

// opener builds the processor and returns a cleanup func.
type opener func(ctx context.Context) (processor, func() error, error)

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "docuquery-admin",
		Short:         "Operate the docuquery document pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	withProcessor := func(run func(cmd *cobra.Command, p processor, args []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			p, cleanup, err := open(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if err := cleanup(); err != nil {
					cmd.PrintErrf("close resources failed: %v\n", err)
				}
			}()
			return run(cmd, p, args)
		}
	}

	root.AddCommand(&cobra.Command{
		Use:   "process [document-id]",
		Short: "Process one queued document",
		Args:  cobra.ExactArgs(1),
		RunE: withProcessor(func(cmd *cobra.Command, p processor, args []string) error {
			return report(cmd, args[0], p.Process(cmd.Context(), args[0]))
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "reprocess [document-id]",
		Short: "Clear a document's vectors and process it again",
		Args:  cobra.ExactArgs(1),
		RunE: withProcessor(func(cmd *cobra.Command, p processor, args []string) error {
			return report(cmd, args[0], p.Reprocess(cmd.Context(), args[0]))
		}),
	})

	root.AddCommand(&cobra.Command{
		Use:   "process-queued",
		Short: "Process every document still in the queued state",
		Args:  cobra.NoArgs,
		RunE: withProcessor(func(cmd *cobra.Command, p processor, _ []string) error {
			res, err := p.ProcessAllQueued(cmd.Context())
			if err != nil {
				return fmt.Errorf("process queued documents: %w", err)
			}
			cmd.Printf("processed: %d\nfailed: %d\nskipped: %d\ntotal: %d\n", res.Processed, res.Failed, res.Skipped, res.Total)
			return nil
		}),
	})

	return root
}

func report(cmd *cobra.Command, documentID string, ok bool) error {
	if !ok {
		return fmt.Errorf("document %s was not processed; check its status and error message", documentID)
	}
	cmd.Printf("document %s is ready\n", documentID)
	return nil
}
