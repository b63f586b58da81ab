package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (a *app) refreshCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Fetch new transactions for the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			s, err := a.newSession(cmd.Context(), out)
			if err != nil {
				return err
			}
			res := s.orch.RefreshOnLaunch(cmd.Context())
			s.stop()

			fmt.Fprintf(out, "Result: %s\n", res)
			return resultError(res)
		},
	}
}

func (a *app) syncCmd() *cobra.Command {
	var (
		cursor      string
		accessToken string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Print one page of /transactions/sync for the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := accessToken
			if token == "" {
				p, err := a.openPrefs()
				if err != nil {
					return err
				}
				token = p.AccessToken()
			}
			if token == "" {
				return errors.New("not signed in: pass --access-token or link an account first")
			}

			body, err := a.gateway().SyncTransactions(cmd.Context(), token, cursor)
			if err != nil {
				return fmt.Errorf("failed to sync transactions: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(body)
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", "", "sync cursor from a previous page")
	cmd.Flags().StringVar(&accessToken, "access-token", "", "access token to use instead of the stored one")
	return cmd
}

func (a *app) signOutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sign-out",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := a.openPrefs()
			if err != nil {
				return err
			}
			if err := p.Clear(); err != nil {
				return fmt.Errorf("failed to clear session: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
