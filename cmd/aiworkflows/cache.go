package main

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/brunobiangulo/aiworkflows"
	"github.com/spf13/cobra"
)

func newCacheCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or purge the conversion cache",
	}

	stats := &cobra.Command{
		Use:   "stats",
		Short: "Show how many conversions are cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conv, err := g.cacheConverter()
			if err != nil {
				return err
			}
			defer conv.Close()

			st, err := conv.Store().Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s %d\n", dimStyle.Render("Conversions:"), st.Conversions)
			targets := make([]string, 0, len(st.ByTarget))
			for t := range st.ByTarget {
				targets = append(targets, t)
			}
			sort.Strings(targets)
			for _, t := range targets {
				fmt.Fprintf(out, "  %s %d\n", dimStyle.Render(t+":"), st.ByTarget[t])
			}
			return nil
		},
	}

	var olderThan time.Duration
	purge := &cobra.Command{
		Use:   "purge",
		Short: "Delete cached conversions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return errors.New("--older-than must not be negative")
			}
			conv, err := g.cacheConverter()
			if err != nil {
				return err
			}
			defer conv.Close()

			n, err := conv.Store().Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d\n", successStyle.Render("Purged:"), n)
			return nil
		},
	}
	purge.Flags().DurationVar(&olderThan, "older-than", 0, "Only delete entries older than this (0 deletes all)")

	cmd.AddCommand(stats, purge)
	return cmd
}

// cacheConverter opens a converter with the cache enabled regardless of
// --cache.
func (g *globalFlags) cacheConverter() (aiworkflows.Converter, error) {
	cfg, err := g.config()
	if err != nil {
		return nil, err
	}
	cfg.Cache = true
	return aiworkflows.New(cfg)
}
