package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/balance"
)

func newTrialBalanceCmd(opts *rootOptions) *cobra.Command {
	var (
		asOf   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cutoff, err := parseAsOf(asOf)
			if err != nil {
				return err
			}
			ctx := opts.context(cmd.Context())
			env, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer env.close()
			tb, err := env.services.Balances.TrialBalance(ctx, cutoff)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(tb)
			}
			return printTrialBalance(cmd.OutOrStdout(), tb)
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "include entries up to this date (YYYY-MM-DD)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func parseAsOf(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("--as-of must be YYYY-MM-DD: %w", err)
	}
	return &t, nil
}

func printTrialBalance(w io.Writer, tb balance.TrialBalance) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "ID\tACCOUNT\tTYPE\tDEBIT\tCREDIT\t")
	for _, row := range tb.Rows {
		debit, credit := "", ""
		if row.Side == balance.SideDebit {
			debit = row.Amount.StringFixed(2)
		} else {
			credit = row.Amount.StringFixed(2)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t\n", row.AccountID, row.Name, row.Type, debit, credit)
	}
	fmt.Fprintf(tw, "\tTOTAL\t\t%s\t%s\t\n", tb.TotalDebit.StringFixed(2), tb.TotalCredit.StringFixed(2))
	if err := tw.Flush(); err != nil {
		return err
	}
	if tb.IsBalanced {
		_, err := fmt.Fprintln(w, "balanced")
		return err
	}
	_, err := fmt.Fprintf(w, "NOT BALANCED: difference %s\n", tb.Difference.StringFixed(2))
	return err
}
