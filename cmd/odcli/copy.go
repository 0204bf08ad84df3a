package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newCopyCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "copy <item-id> <dest-parent-id>",
		Short: "Copy an item server-side, waiting for the async operation",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				return runCopy(ctx, s, args[0], args[1], name)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "name for the copy (defaults to the source name)")

	return cmd
}

func runCopy(ctx context.Context, s *session, itemID, destParentID, name string) error {
	progress := func(percent float64) {
		statusf("\rCopying... %.0f%%", percent)
	}

	item, err := s.client.CopyAndWait(ctx, itemID, destParentID, name, progress)
	if err != nil {
		return fmt.Errorf("copying %s: %w", itemID, err)
	}

	statusf("\rCopy complete: %s (id %s).\n", item.Name, item.ID)

	return nil
}
