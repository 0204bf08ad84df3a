package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-sdk-go/onedrive"
)

func newPutCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "put <local-file> <parent-id>",
		Short: "Upload a file in chunks",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			return withSession(func(ctx context.Context, s *session) error {
				return runPut(ctx, s, args[0], args[1], name)
			})
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "remote file name (defaults to the local name)")

	return cmd
}

func runPut(ctx context.Context, s *session, localPath, parentID, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}

	if name == "" {
		name = filepath.Base(localPath)
	}

	progress := uploadProgress(info.Size(), name)

	item, err := s.client.UploadChunked(ctx, parentID, name, f, info.Size(), s.cfg.ChunkSize, progress)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", localPath, err)
	}

	statusf("Uploaded %s (%d bytes, id %s).\n", item.Name, item.Size, item.ID)

	return nil
}

// uploadProgress returns a per-chunk progress callback. On a terminal it
// renders a progress bar; otherwise it stays silent so piped output remains
// clean.
func uploadProgress(total int64, description string) onedrive.ProgressFunc {
	if flagQuiet || !isatty.IsTerminal(os.Stderr.Fd()) {
		return nil
	}

	bar := progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)

	return func(transferred, _ int64) {
		bar.Set64(transferred)
	}
}
