package main

import (
	"context"

	"github.com/spf13/cobra"

	"ckg/internal/diff"
)

var impactHops int

var impactCmd = &cobra.Command{
	Use:   "impact <base-snapshot> <target-snapshot>",
	Short: "Blast radius of the changes between two snapshots",
	Long: `Diffs the two snapshots, then expands the changed symbols within the target
snapshot over reverse CALLS and IMPORTS edges: everything that transitively
depends on a change, annotated with the shortest hop distance to the nearest
changed symbol (changed symbols themselves are hop 0).`,
	Args: cobra.ExactArgs(2),
	RunE: runImpact,
}

func init() {
	impactCmd.Flags().IntVar(&impactHops, "max-hops", 0, "Hop limit for reverse reachability (default from config)")
	rootCmd.AddCommand(impactCmd)
}

func runImpact(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	engine := diff.NewEngine(st, logger)
	result, err := engine.Diff(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	hops := cfg.Impact.MaxHops
	if impactHops > 0 {
		hops = impactHops
	}
	impact, err := engine.ImpactOf(ctx, result, args[1], hops)
	if err != nil {
		return err
	}
	return printJSON(impact)
}
