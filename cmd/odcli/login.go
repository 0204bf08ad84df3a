package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/onedrive-sdk-go/auth"
	"github.com/tonimelisma/onedrive-sdk-go/onedrive"
)

func newLoginCmd() *cobra.Command {
	var emailHint string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate with OneDrive in the browser",
		RunE: func(_ *cobra.Command, _ []string) error {
			return runLogin(emailHint)
		},
	}

	cmd.Flags().StringVar(&emailHint, "email", "", "pre-fill the sign-in page with this address")

	return cmd
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove saved login state",
		RunE:  runLogout,
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the signed-in account and its drives",
		RunE:  runStatus,
	}
}

func runLogin(emailHint string) error {
	ctx := context.Background()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	account, err := s.authenticator.Login(ctx, emailHint)
	if err != nil {
		if errors.Is(err, auth.ErrCancelled) {
			return fmt.Errorf("login cancelled")
		}

		return err
	}

	s.logger.Info("login successful", slog.String("account_type", string(account.AccountType())))
	statusf("Login successful (%s).\n", account.AccountType())

	return nil
}

func runLogout(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.authenticator.Logout(ctx); err != nil {
		return err
	}

	statusf("Logged out.\n")

	return nil
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	AccountType string        `json:"account_type"`
	ServiceRoot string        `json:"service_root"`
	Drives      []statusDrive `json:"drives"`
}

type statusDrive struct {
	ID             string `json:"id"`
	DriveType      string `json:"drive_type"`
	Owner          string `json:"owner,omitempty"`
	QuotaTotal     int64  `json:"quota_total"`
	QuotaRemaining int64  `json:"quota_remaining"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	ctx := context.Background()

	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := requireLogin(ctx, s); err != nil {
		return err
	}

	account := s.authenticator.AccountInfo()

	// The default drive and the drive list are independent reads.
	var (
		defaultDrive *onedrive.Drive
		drives       []onedrive.Drive
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		defaultDrive, err = s.client.DefaultDrive(gctx)
		return err
	})

	g.Go(func() error {
		var err error
		drives, err = s.client.Drives(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("fetching drives: %w", err)
	}

	if flagJSON {
		return printStatusJSON(account, defaultDrive, drives)
	}

	printStatusText(account, defaultDrive, drives)

	return nil
}

func printStatusJSON(account auth.AccountInfo, defaultDrive *onedrive.Drive, drives []onedrive.Drive) error {
	out := statusOutput{
		AccountType: string(account.AccountType()),
		ServiceRoot: account.ServiceRoot(),
		Drives:      make([]statusDrive, 0, len(drives)),
	}

	for _, d := range drives {
		out.Drives = append(out.Drives, toStatusDrive(d))
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(out)
}

func toStatusDrive(d onedrive.Drive) statusDrive {
	out := statusDrive{
		ID:        d.ID,
		DriveType: d.DriveType,
	}

	if d.Owner != nil && d.Owner.User != nil {
		out.Owner = d.Owner.User.DisplayName
	}

	if d.Quota != nil {
		out.QuotaTotal = d.Quota.Total
		out.QuotaRemaining = d.Quota.Remaining
	}

	return out
}

func printStatusText(account auth.AccountInfo, defaultDrive *onedrive.Drive, drives []onedrive.Drive) {
	fmt.Printf("Account:      %s\n", account.AccountType())
	fmt.Printf("Service root: %s\n", account.ServiceRoot())

	if defaultDrive != nil {
		fmt.Printf("Default drive: %s (%s)\n", defaultDrive.ID, defaultDrive.DriveType)
	}

	for _, d := range drives {
		line := fmt.Sprintf("  %s  %s", d.ID, d.DriveType)
		if d.Quota != nil && d.Quota.Total > 0 {
			line += fmt.Sprintf("  %d/%d bytes free", d.Quota.Remaining, d.Quota.Total)
		}

		fmt.Println(line)
	}
}
