package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"ckg/internal/config"
	"ckg/internal/embed"
	"ckg/internal/logging"
	"ckg/internal/model"
	"ckg/internal/store"
)

const version = "0.1.0"

var (
	// dirFlag is the workspace root holding the .ckg directory.
	dirFlag string
	// verboseFlag raises log level to debug.
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:   "ckg",
	Short: "CKG - Code Knowledge Graph Engine",
	Long: `CKG builds versioned knowledge graphs from source repositories and answers
structural questions about them: hybrid symbol search, call-path tracing,
snapshot diffing and change-impact analysis.`,
	Version: version,
}

func init() {
	rootCmd.SetVersionTemplate("CKG version {{.Version}}\n")
	rootCmd.PersistentFlags().StringVar(&dirFlag, "dir", ".", "Workspace root holding the .ckg directory")
	rootCmd.PersistentFlags().BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging")
}

// loadConfig reads the workspace configuration, applying the --verbose flag.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(dirFlag)
	if err != nil {
		return nil, err
	}
	if verboseFlag {
		cfg.Logging.Level = "debug"
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logging.Logger {
	return logging.NewLogger(logging.Config{
		Format: logging.Format(cfg.Logging.Format),
		Level:  logging.Level(cfg.Logging.Level),
	})
}

// openStore opens the workspace graph database. Callers own Close.
func openStore(cfg *config.Config, logger *logging.Logger) (*store.Store, error) {
	db, err := store.Open(dirFlag, logger)
	if err != nil {
		return nil, err
	}
	return store.New(db, logger)
}

// newEmbedder returns nil when embedding is disabled; every consumer treats
// nil as "vector features off".
func newEmbedder(cfg *config.Config) embed.Embedder {
	if !cfg.Embedding.Enabled {
		return nil
	}
	return embed.NewClient(embed.Config{
		BaseURL:   cfg.Embedding.BaseURL,
		APIKey:    cfg.Embedding.APIKey,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		Timeout:   time.Duration(cfg.Embedding.TimeoutMs) * time.Millisecond,
	})
}

// resolveSnapshot turns an empty snapshot flag into the newest committed
// snapshot in the workspace.
func resolveSnapshot(ctx context.Context, st *store.Store, snapshotID string) (string, error) {
	if snapshotID != "" {
		return snapshotID, nil
	}
	snaps, err := st.ListSnapshots(ctx, "")
	if err != nil {
		return "", err
	}
	for _, s := range snaps {
		if s.Status == model.SnapshotCommitted {
			return s.ID, nil
		}
	}
	return "", fmt.Errorf("no committed snapshot; run 'ckg ingest' first")
}

// resolveNode accepts either a node id or a qualified name and returns the
// node id.
func resolveNode(ctx context.Context, st *store.Store, snapshotID, ref string) (string, error) {
	if n, err := st.GetNodeByQualifiedName(ctx, snapshotID, ref); err == nil {
		return n.ID, nil
	}
	n, err := st.GetNode(ctx, snapshotID, ref)
	if err != nil {
		return "", err
	}
	return n.ID, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
