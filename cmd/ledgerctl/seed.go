package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/odyssey-erp/retail-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/retail-ledger/internal/accounting/mappings"
)

// chartFile is the YAML layout accepted by seed.
type chartFile struct {
	Accounts []chartAccount    `yaml:"accounts"`
	Mappings map[string]string `yaml:"mappings"`
}

type chartAccount struct {
	Name           string `yaml:"name"`
	Type           string `yaml:"type"`
	Parent         string `yaml:"parent"`
	OpeningBalance string `yaml:"opening_balance"`
}

func newSeedCmd(opts *rootOptions) *cobra.Command {
	var (
		file   string
		dryRun bool
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create accounts and account mappings from a chart file",
		Long: `Seed creates the accounts listed in a YAML chart file and points the
well-known mapping keys at them. Accounts that already exist are reused, so
the command can run repeatedly.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			chart, err := readChart(file)
			if err != nil {
				return err
			}
			if dryRun {
				printPlan(cmd.OutOrStdout(), chart)
				return nil
			}
			ctx := opts.context(cmd.Context())
			env, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer env.close()
			res, err := applyChart(ctx, env.services.Accounts, env.services.Mappings, chart)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "accounts created: %d, existing: %d, mappings: %d\n", res.Created, res.Existing, res.Mapped)
			if len(res.MissingKeys) > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "required mappings still missing: %s\n", strings.Join(res.MissingKeys, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "chart YAML file")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate the file and print the plan without writing")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func readChart(path string) (chartFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return chartFile{}, fmt.Errorf("read chart: %w", err)
	}
	return parseChart(raw)
}

// parseChart decodes and validates a chart. Parents must be listed before
// their children.
func parseChart(raw []byte) (chartFile, error) {
	var chart chartFile
	if err := yaml.Unmarshal(raw, &chart); err != nil {
		return chartFile{}, fmt.Errorf("parse chart: %w", err)
	}
	if len(chart.Accounts) == 0 {
		return chartFile{}, errors.New("chart: no accounts listed")
	}
	seen := make(map[string]bool, len(chart.Accounts))
	for i, acc := range chart.Accounts {
		name := nameKey(acc.Name)
		if name == "" {
			return chartFile{}, fmt.Errorf("chart: account %d has no name", i+1)
		}
		if seen[name] {
			return chartFile{}, fmt.Errorf("chart: account %q listed twice", acc.Name)
		}
		if !accounts.AccountType(strings.ToUpper(acc.Type)).Valid() {
			return chartFile{}, fmt.Errorf("chart: account %q has unknown type %q", acc.Name, acc.Type)
		}
		if acc.Parent != "" && !seen[nameKey(acc.Parent)] {
			return chartFile{}, fmt.Errorf("chart: parent %q of %q must be listed first", acc.Parent, acc.Name)
		}
		if acc.OpeningBalance != "" {
			if _, err := decimal.NewFromString(acc.OpeningBalance); err != nil {
				return chartFile{}, fmt.Errorf("chart: account %q opening balance: %w", acc.Name, err)
			}
		}
		seen[name] = true
	}
	for key, name := range chart.Mappings {
		if !knownMappingKey(key) {
			return chartFile{}, fmt.Errorf("chart: unknown mapping key %q", key)
		}
		if !seen[nameKey(name)] {
			return chartFile{}, fmt.Errorf("chart: mapping %q targets unlisted account %q", key, name)
		}
	}
	return chart, nil
}

func knownMappingKey(key string) bool {
	if slices.Contains(mappings.Required, key) {
		return true
	}
	category, ok := strings.CutPrefix(key, mappings.KeyExpense+".")
	return ok && category != "" && category == strings.ToLower(category)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// AccountStore is the part of the account service seed needs.
type AccountStore interface {
	Create(ctx context.Context, req accounts.CreateAccountRequest) (accounts.Account, error)
	List(ctx context.Context, filter accounts.ListFilter) ([]accounts.Account, error)
}

// MappingWriter stores account mappings.
type MappingWriter interface {
	Upsert(ctx context.Context, key string, accountID int64) error
}

type seedResult struct {
	Created     int
	Existing    int
	Mapped      int
	MissingKeys []string
}

func applyChart(ctx context.Context, store AccountStore, writer MappingWriter, chart chartFile) (seedResult, error) {
	ids, err := accountIDs(ctx, store)
	if err != nil {
		return seedResult{}, err
	}
	var res seedResult
	for _, acc := range chart.Accounts {
		key := nameKey(acc.Name)
		if _, ok := ids[key]; ok {
			res.Existing++
			continue
		}
		req := accounts.CreateAccountRequest{
			Name: strings.TrimSpace(acc.Name),
			Type: accounts.AccountType(strings.ToUpper(acc.Type)),
		}
		if acc.OpeningBalance != "" {
			req.OpeningBalance = decimal.RequireFromString(acc.OpeningBalance)
		}
		if acc.Parent != "" {
			parent := ids[nameKey(acc.Parent)]
			req.ParentID = &parent
		}
		created, err := store.Create(ctx, req)
		if errors.Is(err, accounts.ErrDuplicateName) {
			// Created concurrently; pick up its id.
			refreshed, listErr := accountIDs(ctx, store)
			if listErr != nil {
				return res, listErr
			}
			if _, ok := refreshed[key]; ok {
				ids = refreshed
				res.Existing++
				continue
			}
		}
		if err != nil {
			return res, fmt.Errorf("create account %q: %w", acc.Name, err)
		}
		ids[key] = created.ID
		res.Created++
	}

	keys := make([]string, 0, len(chart.Mappings))
	for k := range chart.Mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	mapped := make(map[string]bool, len(keys))
	for _, k := range keys {
		if err := writer.Upsert(ctx, k, ids[nameKey(chart.Mappings[k])]); err != nil {
			return res, fmt.Errorf("map %s: %w", k, err)
		}
		mapped[k] = true
		res.Mapped++
	}
	for _, k := range mappings.Required {
		if !mapped[k] {
			res.MissingKeys = append(res.MissingKeys, k)
		}
	}
	return res, nil
}

func accountIDs(ctx context.Context, store AccountStore) (map[string]int64, error) {
	existing, err := store.List(ctx, accounts.ListFilter{IncludeRetired: true})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	ids := make(map[string]int64, len(existing))
	for _, acc := range existing {
		ids[nameKey(acc.Name)] = acc.ID
	}
	return ids, nil
}

func printPlan(w io.Writer, chart chartFile) {
	for _, acc := range chart.Accounts {
		line := fmt.Sprintf("account %s (%s)", acc.Name, strings.ToUpper(acc.Type))
		if acc.Parent != "" {
			line += " under " + acc.Parent
		}
		fmt.Fprintln(w, line)
	}
	keys := make([]string, 0, len(chart.Mappings))
	for k := range chart.Mappings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "mapping %s -> %s\n", k, chart.Mappings[k])
	}
}
