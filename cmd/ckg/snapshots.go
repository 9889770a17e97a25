package main

import (
	"context"

	"github.com/spf13/cobra"
)

var snapshotsRepo string

var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runSnapshots,
}

func init() {
	snapshotsCmd.Flags().StringVar(&snapshotsRepo, "repo", "", "Filter by repository reference")
	rootCmd.AddCommand(snapshotsCmd)
}

func runSnapshots(cmd *cobra.Command, args []string) error {
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

	snaps, err := st.ListSnapshots(context.Background(), snapshotsRepo)
	if err != nil {
		return err
	}
	return printJSON(snaps)
}

var findSnapshot string

var findCmd = &cobra.Command{
	Use:   "find <pattern>",
	Short: "Find nodes by name or qualified-name pattern",
	Long: `Looks up nodes by name. '*' in the pattern is a wildcard over the qualified
name; a bare pattern matches as a qualified-name substring or an exact bare
name.

Examples:
  ckg find handle_request
  ckg find "api/*.py:*"`,
	Args: cobra.ExactArgs(1),
	RunE: runFind,
}

func init() {
	findCmd.Flags().StringVar(&findSnapshot, "snapshot", "", "Snapshot id (default: newest committed)")
	rootCmd.AddCommand(findCmd)
}

func runFind(cmd *cobra.Command, args []string) error {
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
	snapshotID, err := resolveSnapshot(ctx, st, findSnapshot)
	if err != nil {
		return err
	}
	nodes, err := st.FindByName(ctx, snapshotID, args[0])
	if err != nil {
		return err
	}
	return printJSON(nodes)
}

var endpointsSnapshot string

var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List HTTP endpoints declared in a snapshot",
	Args:  cobra.NoArgs,
	RunE:  runEndpoints,
}

func init() {
	endpointsCmd.Flags().StringVar(&endpointsSnapshot, "snapshot", "", "Snapshot id (default: newest committed)")
	rootCmd.AddCommand(endpointsCmd)
}

func runEndpoints(cmd *cobra.Command, args []string) error {
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
	snapshotID, err := resolveSnapshot(ctx, st, endpointsSnapshot)
	if err != nil {
		return err
	}
	edges, err := st.FindEndpoints(ctx, snapshotID)
	if err != nil {
		return err
	}
	return printJSON(edges)
}
