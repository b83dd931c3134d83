package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"
)

func newSequenceCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sequence",
		Short: "Inspect and repair document number counters",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Raise every counter above the highest stored document number",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := opts.context(cmd.Context())
			env, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer env.close()
			return syncSequences(ctx, cmd.OutOrStdout(), env.services.Documents, env.services.Sequences)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "peek PREFIX",
		Short: "Show the next number for a prefix without consuming it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := opts.context(cmd.Context())
			env, err := opts.open(ctx)
			if err != nil {
				return err
			}
			defer env.close()
			next, err := env.services.Sequences.Peek(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), next)
			return err
		},
	})
	return cmd
}

// NumberSource lists stored document numbers per prefix.
type NumberSource interface {
	NumberSources(ctx context.Context) (map[string][]string, error)
}

// CounterSyncer raises a counter to cover existing numbers.
type CounterSyncer interface {
	Sync(ctx context.Context, prefix string, existing []string) (int64, error)
}

func syncSequences(ctx context.Context, w io.Writer, source NumberSource, syncer CounterSyncer) error {
	sources, err := source.NumberSources(ctx)
	if err != nil {
		return err
	}
	prefixes := make([]string, 0, len(sources))
	for p := range sources {
		prefixes = append(prefixes, p)
	}
	sort.Strings(prefixes)
	for _, prefix := range prefixes {
		last, err := syncer.Sync(ctx, prefix, sources[prefix])
		if err != nil {
			return fmt.Errorf("sync %s: %w", prefix, err)
		}
		fmt.Fprintf(w, "%s\tlast=%d\tstored=%d\n", prefix, last, len(sources[prefix]))
	}
	return nil
}
