package main

import (
	"context"

	"github.com/spf13/cobra"

	"ckg/internal/diff"
)

var diffCmd = &cobra.Command{
	Use:   "diff <base-snapshot> <target-snapshot>",
	Short: "Compare two snapshots symbol by symbol",
	Long: `Matches symbols across two committed snapshots by qualified name and
classifies each as added, removed or modified (signature or content hash
changed). Unchanged symbols are counted, not listed.`,
	Args: cobra.ExactArgs(2),
	RunE: runDiff,
}

func init() {
	rootCmd.AddCommand(diffCmd)
}

func runDiff(cmd *cobra.Command, args []string) error {
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

	result, err := diff.NewEngine(st, logger).Diff(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(result)
}
