package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"ckg/internal/builder"
	"ckg/internal/config"
	"ckg/internal/logging"
	"ckg/internal/parse"
)

var (
	ingestManifest string
	ingestRepo     string
	ingestRoot     string
	ingestSCIP     string
	ingestSnapshot string
	ingestInclude  []string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Build a graph snapshot from a repository",
	Long: `Parses a repository checkout (or a precomputed SCIP index) and builds a new
committed graph snapshot. Per-file parse failures do not abort the build; the
snapshot commits with complete=false and the errored files listed.

Examples:
  ckg ingest --repo github.com/acme/api@main --root ./api
  ckg ingest --repo github.com/acme/api@main --scip index.scip
  ckg ingest -f ingest.yaml`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestManifest, "manifest", "f", "", "YAML ingestion manifest")
	ingestCmd.Flags().StringVar(&ingestRepo, "repo", "", "Repository reference recorded on the snapshot")
	ingestCmd.Flags().StringVar(&ingestRoot, "root", "", "Local path of the checked-out source")
	ingestCmd.Flags().StringVar(&ingestSCIP, "scip", "", "Precomputed SCIP index to ingest instead of scanning source")
	ingestCmd.Flags().StringVar(&ingestSnapshot, "snapshot", "", "Snapshot id (default: generated)")
	ingestCmd.Flags().StringSliceVar(&ingestInclude, "include", nil, "Restrict scanning to these path prefixes")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	start := time.Now()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	m, err := ingestionManifest()
	if err != nil {
		return err
	}

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	files, err := parsedFiles(ctx, cfg, m)
	if err != nil {
		return err
	}

	result, err := builder.New(st, newEmbedder(cfg), logger).
		Build(ctx, ingestSnapshot, m.Repository, files)
	if err != nil {
		return err
	}

	logger.Info("Ingestion finished", logging.Fields{
		"snapshot": result.SnapshotID,
		"duration": time.Since(start).Milliseconds(),
	})
	return printJSON(result)
}

// ingestionManifest merges the -f manifest with the direct flags; flags win.
func ingestionManifest() (*parse.Manifest, error) {
	m := &parse.Manifest{}
	if ingestManifest != "" {
		loaded, err := parse.LoadManifest(ingestManifest)
		if err != nil {
			return nil, err
		}
		m = loaded
	}
	if ingestRepo != "" {
		m.Repository = ingestRepo
	}
	if ingestRoot != "" {
		m.Root = ingestRoot
	}
	if ingestSCIP != "" {
		m.SCIPIndex = ingestSCIP
	}
	if len(ingestInclude) > 0 {
		m.Include = ingestInclude
	}
	if m.Repository == "" {
		return nil, fmt.Errorf("--repo or a manifest with 'repository' is required")
	}
	if m.Root == "" && m.SCIPIndex == "" {
		return nil, fmt.Errorf("--root or --scip is required")
	}
	return m, nil
}

func parsedFiles(ctx context.Context, cfg *config.Config, m *parse.Manifest) ([]parse.ParsedFile, error) {
	if m.SCIPIndex != "" {
		return parse.FromSCIPIndex(m.SCIPIndex)
	}
	maxSize := cfg.Ingestion.MaxFileSizeBytes
	if m.MaxFileSizeBytes > 0 {
		maxSize = m.MaxFileSizeBytes
	}
	return parse.ScanRepository(ctx, m.Root, parse.ScanOptions{
		MaxFileSize: maxSize,
		Workers:     cfg.Ingestion.Workers,
		Include:     m.Include,
	})
}
