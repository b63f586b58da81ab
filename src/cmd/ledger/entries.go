package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"expense-ledger/src/ingest"
	"expense-ledger/src/models"

	"github.com/spf13/cobra"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := store.Close(); closeErr != nil {
					a.log.Error().Err(closeErr).Msg("failed to close ledger")
				}
			}()

			entries, err := store.ListAll(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No entries. Run 'ledger simulate' or 'ledger demo' to add some.")
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDATE\tTYPE\tAMOUNT\tTITLE")
			for _, e := range entries {
				id := "-"
				if e.ID != nil {
					id = strconv.FormatInt(*e.ID, 10)
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%s\n", id, e.Date, e.Type, e.Amount, e.Title)
			}
			return w.Flush()
		},
	}
}

func (a *app) countCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Print the number of ledger entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func (a *app) deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a ledger entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid id %q: %w", args[0], err)
			}

			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), models.LedgerEntry{ID: &id}); err != nil {
				return fmt.Errorf("failed to delete entry %d: %w", id, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted entry %d\n", id)
			return nil
		},
	}
}

// demoEntries are the rows the demo command inserts, dated in ISO form and
// normalized on insert like ingested transactions.
var demoEntries = []models.LedgerEntry{
	{Title: "Demo Coffee", Amount: 4.50, Date: "2025-12-07", Type: models.Expense},
	{Title: "Demo Groceries", Amount: 32.75, Date: "2025-12-05", Type: models.Expense},
	{Title: "Demo Salary", Amount: 1500, Date: "2025-12-01", Type: models.Income},
}

func (a *app) demoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Insert a few demo entries without talking to the proxy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := a.openStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			for _, e := range demoEntries {
				e.Date = ingest.NormalizeDate(e.Date)
				if err := store.Insert(cmd.Context(), &e); err != nil {
					return fmt.Errorf("failed to insert %s: %w", e.Title, err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d demo entries\n", len(demoEntries))
			return nil
		},
	}
}
