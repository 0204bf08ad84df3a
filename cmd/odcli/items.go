package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-sdk-go/onedrive"
)

func newDrivesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drives",
		Short: "List the drives available to the signed-in account",
		RunE: func(_ *cobra.Command, _ []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				drives, err := s.client.Drives(ctx)
				if err != nil {
					return err
				}

				if flagJSON {
					return printJSON(drives)
				}

				for _, d := range drives {
					fmt.Printf("%s\t%s\n", d.ID, d.DriveType)
				}

				return nil
			})
		},
	}
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls <item-id>",
		Short: "List the children of a folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				items, err := s.client.Children(ctx, args[0])
				if err != nil {
					return err
				}

				if flagJSON {
					return printJSON(items)
				}

				for _, item := range items {
					fmt.Println(formatItemLine(item))
				}

				return nil
			})
		},
	}
}

func newStatCmd() *cobra.Command {
	var byPath bool

	cmd := &cobra.Command{
		Use:   "stat <item-id|path>",
		Short: "Show metadata for a single item",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				var (
					item *onedrive.Item
					err  error
				)

				if byPath {
					item, err = s.client.ItemByPath(ctx, args[0])
				} else {
					item, err = s.client.Item(ctx, args[0])
				}

				if err != nil {
					return err
				}

				if flagJSON {
					return printJSON(item)
				}

				fmt.Printf("ID:       %s\n", item.ID)
				fmt.Printf("Name:     %s\n", item.Name)
				fmt.Printf("Size:     %d\n", item.Size)
				fmt.Printf("Modified: %s\n", item.LastModifiedDateTime)
				if item.WebURL != "" {
					fmt.Printf("URL:      %s\n", item.WebURL)
				}

				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&byPath, "path", false, "treat the argument as a path from the drive root")

	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <item-id> [local-file]",
		Short: "Download a file; writes to stdout when no local file is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				body, err := s.client.Download(ctx, args[0])
				if err != nil {
					return err
				}
				defer body.Close()

				out := io.Writer(os.Stdout)
				if len(args) == 2 {
					f, err := os.Create(args[1])
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}

				if _, err := io.Copy(out, body); err != nil {
					return fmt.Errorf("downloading: %w", err)
				}

				return nil
			})
		},
	}
}

func newRmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <item-id>",
		Short: "Delete an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				if err := s.client.Delete(ctx, args[0]); err != nil {
					return err
				}

				statusf("Deleted %s.\n", args[0])

				return nil
			})
		},
	}
}

// withSession runs fn inside a logged-in session, handling setup and
// teardown shared by every read command.
func withSession(fn func(ctx context.Context, s *session) error) error {
	ctx := context.Background()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := requireLogin(ctx, s); err != nil {
		return err
	}

	return fn(ctx, s)
}

func formatItemLine(item onedrive.Item) string {
	kind := "file"
	if item.Folder != nil {
		kind = "dir "
	}

	return fmt.Sprintf("%s  %10d  %s  %s", kind, item.Size, item.ID, item.Name)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
