package main

import (
	"fmt"
	"io"
	"os"

	"expense-ledger/src/models"

	"github.com/spf13/cobra"
)

func (a *app) linkTokenCmd() *cobra.Command {
	var userID string

	cmd := &cobra.Command{
		Use:   "link-token",
		Short: "Create a Plaid Link token through the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token, err := a.gateway().CreateLinkSession(cmd.Context(), userID)
			if err != nil {
				return fmt.Errorf("failed to create link token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "", "client_user_id sent to Plaid (default: time based)")
	return cmd
}

func (a *app) simulateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "simulate",
		Short: "Run the sandbox flow without Plaid Link",
		Long: `simulate asks the proxy for a sandbox public token, exchanges it and
polls for transactions until Plaid has them ready.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			s, err := a.newSession(cmd.Context(), out)
			if err != nil {
				return err
			}
			res := s.orch.Simulate(cmd.Context())
			s.stop()

			fmt.Fprintf(out, "Result: %s\n", res)
			return resultError(res)
		},
	}
}

func (a *app) exchangeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "exchange <public_token>",
		Short: "Exchange a public token and ingest its transactions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			s, err := a.newSession(cmd.Context(), out)
			if err != nil {
				return err
			}
			res := s.orch.HandleLinkResult(cmd.Context(), models.LinkResult{Kind: models.LinkSuccess, PublicToken: args[0]})
			s.stop()

			fmt.Fprintf(out, "Result: %s\n", res)
			return resultError(res)
		},
	}
}

func (a *app) linkResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "link-result <file|->",
		Short: "Process a Plaid Link callback payload",
		Long: `link-result reads the JSON a Link onSuccess or onExit callback produced,
from a file or from stdin when the argument is "-", and acts on it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			s, err := a.newSession(cmd.Context(), out)
			if err != nil {
				return err
			}
			res := s.orch.HandleLinkResult(cmd.Context(), models.DecodeLinkResult(data))
			s.stop()

			fmt.Fprintf(out, "Result: %s\n", res)
			return resultError(res)
		},
	}
}

func readInput(stdin io.Reader, name string) ([]byte, error) {
	if name == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, nil
}
