package main

import (
	"context"
	"fmt"

	"github.com/dgnsrekt/tabkondo/internal/config"
	"github.com/dgnsrekt/tabkondo/internal/options"
	"github.com/dgnsrekt/tabkondo/internal/service"
	"github.com/spf13/cobra"
)

func newTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage the stored Readwise API token",
	}
	cmd.AddCommand(newTokenSetCmd())
	cmd.AddCommand(newTokenClearCmd())
	cmd.AddCommand(newTokenStatusCmd())
	return cmd
}

// optionsService opens the options store without touching the browser.
func optionsService() (*service.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	store, err := options.NewStore(cfg.OptionsFile)
	if err != nil {
		return nil, err
	}
	return service.NewService(context.Background(), nil, store, nil), nil
}

func newTokenSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <token>",
		Short: "Store the Readwise API token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := optionsService()
			if err != nil {
				return err
			}
			if err := svc.SetToken(args[0]); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token saved")
			return nil
		},
	}
}

func newTokenClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove the stored Readwise API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := optionsService()
			if err != nil {
				return err
			}
			if err := svc.ClearToken(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "token cleared")
			return nil
		},
	}
}

func newTokenStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether a token is stored and the last run error",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := optionsService()
			if err != nil {
				return err
			}
			opts, err := svc.Options()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if opts.TokenSet {
				_, _ = fmt.Fprintln(out, "token: set")
			} else {
				_, _ = fmt.Fprintln(out, "token: not set")
			}
			if opts.LastError != "" {
				_, _ = fmt.Fprintln(out, "last error: "+opts.LastError)
			}
			return nil
		},
	}
}
